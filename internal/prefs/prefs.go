package prefs

import (
	"sort"
	"sync"
)

// Values is a flat key/value map of one namespace. Values are primitive:
// string, bool or a set of strings.
type Values map[string]any

// Store persists Values per namespace.
type Store interface {
	Load(namespace string) (Values, error)
	Save(namespace string, values Values) error
}

func (v Values) String(key, def string) string {
	raw, ok := v[key]
	if !ok {
		return def
	}
	s, ok := raw.(string)
	if !ok {
		return def
	}
	return s
}

func (v Values) Bool(key string, def bool) bool {
	raw, ok := v[key]
	if !ok {
		return def
	}
	b, ok := raw.(bool)
	if !ok {
		return def
	}
	return b
}

// StringSet returns the sorted, de-duplicated set stored under key. Anything
// that is not a list of strings yields nil.
func (v Values) StringSet(key string) []string {
	raw, ok := v[key]
	if !ok || raw == nil {
		return nil
	}

	var items []string
	switch list := raw.(type) {
	case []string:
		items = list
	case []any:
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil
			}
			items = append(items, s)
		}
	default:
		return nil
	}

	return normalizeSet(items)
}

// Keys returns the keys in sorted order.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (v Values) clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		if list, ok := val.([]string); ok && list != nil {
			cp := make([]string, len(list))
			copy(cp, list)
			val = cp
		}
		out[k] = val
	}
	return out
}

func normalizeSet(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// MemoryStore keeps namespaces in memory.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]Values
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Values)}
}

func (s *MemoryStore) Load(namespace string) (Values, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[namespace]
	if !ok {
		return Values{}, nil
	}
	return v.clone(), nil
}

func (s *MemoryStore) Save(namespace string, values Values) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[namespace] = values.clone()
	return nil
}
