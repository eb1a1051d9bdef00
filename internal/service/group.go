package service

import (
	"sort"
	"strconv"
	"time"

	"github.com/tazhate/pimstore/internal/domain"
)

// GroupUnknown collects rows whose group value is missing or not
// recognised. It always sorts last.
const GroupUnknown = "UNKNOWN"

// Group is a run of list rows sharing one group key. Rows keep the query
// order.
type Group struct {
	Key  string
	Rows []*domain.ICal4List
}

type groupKey struct {
	label string
	rank  int
}

// GroupEntries splits rows by g. With no grouping a single group with an
// empty key is returned.
func GroupEntries(rows []*domain.ICal4List, g domain.GroupBy, m domain.Module, loc *time.Location) []Group {
	if g == domain.GroupByNone {
		return []Group{{Rows: rows}}
	}
	if loc == nil {
		loc = time.UTC
	}

	index := make(map[string]int)
	var keys []groupKey
	var groups []Group
	for _, r := range rows {
		k := keyOf(r, g, m, loc)
		i, ok := index[k.label]
		if !ok {
			i = len(groups)
			index[k.label] = i
			keys = append(keys, k)
			groups = append(groups, Group{Key: k.label})
		}
		groups[i].Rows = append(groups[i].Rows, r)
	}

	order := make([]int, len(groups))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := keys[order[a]], keys[order[b]]
		if (ka.rank < 0) != (kb.rank < 0) {
			return kb.rank < 0
		}
		if ka.rank != kb.rank {
			return ka.rank < kb.rank
		}
		return ka.label < kb.label
	})

	out := make([]Group, 0, len(groups))
	for _, i := range order {
		out = append(out, groups[i])
	}
	return out
}

func keyOf(r *domain.ICal4List, g domain.GroupBy, m domain.Module, loc *time.Location) groupKey {
	unknown := groupKey{label: GroupUnknown, rank: -1}

	switch g {
	case domain.GroupByStatus:
		rank := domain.StatusRank(m, r.Status)
		if rank < 0 {
			return unknown
		}
		return groupKey{label: string(r.Status), rank: rank}
	case domain.GroupByClassification:
		rank := domain.ClassificationRank(r.Classification)
		if rank < 0 {
			return unknown
		}
		return groupKey{label: string(r.Classification), rank: rank}
	case domain.GroupByPriority:
		if r.Priority == nil {
			return unknown
		}
		return groupKey{label: strconv.Itoa(*r.Priority), rank: *r.Priority}
	case domain.GroupByDate, domain.GroupByStart:
		return dateKey(r.DTStart, r.DTStartTZ, loc)
	case domain.GroupByDue:
		return dateKey(r.Due, r.DueTZ, loc)
	}
	return unknown
}

func dateKey(t *time.Time, tz string, loc *time.Location) groupKey {
	if t == nil {
		return groupKey{label: GroupUnknown, rank: -1}
	}
	zone := loc
	if tz == domain.TZAllDay {
		zone = time.UTC
	}
	day := t.In(zone)
	// Day numbers are shifted so dates before 1970 stay non-negative.
	rank := int(time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC).Unix()/86400) + 1<<20
	return groupKey{label: day.Format("2006-01-02"), rank: rank}
}
