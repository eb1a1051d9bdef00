package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore keeps every namespace in a single YAML document:
//
//	list_TODO:
//	  exclude_done: true
//	  search_categories: [Work]
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// errCorrupt marks a prefs file that is not a YAML mapping.
var errCorrupt = errors.New("corrupt prefs file")

func (s *FileStore) Load(namespace string) (Values, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.read()
	if err != nil {
		return nil, err
	}
	node, ok := raw[namespace]
	if !ok {
		return Values{}, nil
	}
	v, err := decodeNamespace(&node)
	if err != nil {
		return nil, fmt.Errorf("parse prefs %s: %w", namespace, err)
	}
	return v, nil
}

// Save replaces namespace and keeps the others. Namespaces that no longer
// decode are dropped, and an unreadable document is started over, so one
// bad entry cannot block saving.
func (s *FileStore) Save(namespace string, values Values) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.read()
	if errors.Is(err, errCorrupt) {
		log.Printf("prefs: %v, rewriting %s", err, s.path)
		raw = nil
	} else if err != nil {
		return err
	}

	doc := make(map[string]Values, len(raw)+1)
	for ns, node := range raw {
		if ns == namespace {
			continue
		}
		v, err := decodeNamespace(&node)
		if err != nil {
			log.Printf("prefs: dropping namespace %s: %v", ns, err)
			continue
		}
		doc[ns] = v
	}
	doc[namespace] = values.clone()

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace prefs: %w", err)
	}
	return nil
}

// read returns the undecoded namespaces of the document.
func (s *FileStore) read() (map[string]yaml.Node, error) {
	raw := make(map[string]yaml.Node)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return raw, nil
		}
		return nil, fmt.Errorf("read prefs: %w", err)
	}

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorrupt, err)
	}
	if raw == nil {
		raw = make(map[string]yaml.Node)
	}
	return raw, nil
}

func decodeNamespace(node *yaml.Node) (Values, error) {
	var v Values
	if err := node.Decode(&v); err != nil {
		return nil, err
	}
	if v == nil {
		v = Values{}
	}
	return v, nil
}
