package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tazhate/pimstore/internal/domain"
	"github.com/tazhate/pimstore/internal/storage"
)

var testNow = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type countingNotifier struct {
	n atomic.Int64
}

func (c *countingNotifier) NotifyChanged() { c.n.Add(1) }

func (c *countingNotifier) count() int64 { return c.n.Load() }

type testEnv struct {
	storage     *storage.Storage
	notifier    *countingNotifier
	relations   *RelationService
	recurrence  *RecurrenceService
	entries     *EntryService
	collections *CollectionService
}

func newTestEnv(t *testing.T) (*testEnv, func()) {
	t.Helper()
	s, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	n := &countingNotifier{}
	rel := NewRelationService(s, n, fixedClock)
	rec := NewRecurrenceService(s, n, time.UTC, fixedClock)
	env := &testEnv{
		storage:     s,
		notifier:    n,
		relations:   rel,
		recurrence:  rec,
		entries:     NewEntryService(s, rec, rel, n, fixedClock),
		collections: NewCollectionService(s, n, fixedClock, "TEST"),
	}
	return env, func() {
		_ = s.Close()
	}
}

func (e *testEnv) insert(t *testing.T, o *domain.ICalObject, categories ...string) *domain.ICalObject {
	t.Helper()
	out, err := e.entries.InsertQuickItem(context.Background(), o, categories, "")
	if err != nil {
		t.Fatalf("insert %q: %v", o.Summary, err)
	}
	return out
}

func (e *testEnv) todo(t *testing.T, summary string) *domain.ICalObject {
	t.Helper()
	o := domain.NewTodo(testNow)
	o.Summary = summary
	return e.insert(t, o)
}

func (e *testEnv) link(t *testing.T, child, parent *domain.ICalObject) {
	t.Helper()
	if _, err := e.relations.Link(context.Background(), child.ID, parent.UID, domain.RelTypeParent); err != nil {
		t.Fatalf("link %q below %q: %v", child.Summary, parent.Summary, err)
	}
}

func (e *testEnv) count(t *testing.T) int {
	t.Helper()
	n, err := e.storage.CountObjects(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func (e *testEnv) collection(t *testing.T, c *domain.Collection) *domain.Collection {
	t.Helper()
	if err := e.storage.CreateCollection(context.Background(), c); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	return c
}

// dailySeries stores a daily task series starting Oct 1 09:00 UTC.
func (e *testEnv) dailySeries(t *testing.T) *domain.ICalObject {
	t.Helper()
	start := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	due := start.Add(2 * time.Hour)
	o := domain.NewTodo(testNow)
	o.Summary = "standup"
	o.DTStart = &start
	o.Due = &due
	o.RRule = "FREQ=DAILY;COUNT=30"
	return e.insert(t, o, "Work")
}
