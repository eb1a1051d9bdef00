package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tazhate/pimstore/internal/domain"
	"github.com/tazhate/pimstore/internal/query"
)

func TestDeleteWithChildrenRemovesSubtreeOnly(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	parent := env.todo(t, "parent")
	a := env.todo(t, "a")
	b := env.todo(t, "b")
	grandchild := env.todo(t, "grandchild")
	env.link(t, a, parent)
	env.link(t, b, parent)
	env.link(t, grandchild, a)
	env.todo(t, "unrelated")

	before := env.count(t)
	n, err := env.relations.DeleteWithChildren(ctx, parent.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	// Three linked descendants plus the parent.
	if n != 4 {
		t.Fatalf("expected 4 deleted, got %d", n)
	}
	if after := env.count(t); before-after != 4 {
		t.Fatalf("expected 4 fewer rows, got %d -> %d", before, after)
	}
}

func TestDeleteWithChildrenIsAllOrNothing(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	ro := env.collection(t, &domain.Collection{DisplayName: "Shared", AccountName: "acc", AccountType: "caldav", SupportsVTodo: true})
	parent := env.todo(t, "parent")
	child := env.todo(t, "child")
	env.link(t, child, parent)

	// Move the child into a collection that then turns read-only.
	if err := env.collections.MoveToCollection(ctx, child.ID, ro.ID); err != nil {
		t.Fatalf("move: %v", err)
	}
	ro.ReadOnly = true
	if err := env.storage.UpdateCollection(ctx, ro); err != nil {
		t.Fatalf("update collection: %v", err)
	}

	before := env.count(t)
	if _, err := env.relations.DeleteWithChildren(ctx, parent.ID); !errors.Is(err, domain.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
	if after := env.count(t); after != before {
		t.Fatalf("partial delete observed: %d -> %d", before, after)
	}
}

func TestDeleteWithChildrenSurvivesCycles(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	a := env.todo(t, "a")
	b := env.todo(t, "b")
	env.link(t, a, b)
	env.link(t, b, a)

	n, err := env.relations.DeleteWithChildren(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 || env.count(t) != 0 {
		t.Fatalf("expected both entries deleted, got %d", n)
	}
}

func TestDeleteSeriesTakesExceptions(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	series := env.dailySeries(t)
	if _, _, err := env.recurrence.Materialize(ctx, series.ID, *series.DTStart); err != nil {
		t.Fatalf("materialize: %v", err)
	}

	n, err := env.relations.DeleteWithChildren(ctx, series.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected series and exception deleted, got %d", n)
	}
}

func TestDeleteExceptionKeepsSeriesChildren(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	series := env.dailySeries(t)
	sub := env.todo(t, "prepare agenda")
	env.link(t, sub, series)

	ex, _, err := env.recurrence.Materialize(ctx, series.ID, time.Date(2026, 10, 3, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	rows, err := env.storage.QueryList(ctx, query.BuildList(domain.ModuleTodo, domain.NewListSettings(domain.ModuleTodo), testNow, time.UTC))
	if err != nil {
		t.Fatalf("query list: %v", err)
	}
	counts := make(map[int64]int)
	for _, r := range rows {
		counts[r.ID] = r.NumSubtasks
	}
	if counts[series.ID] != 1 {
		t.Fatalf("expected the series to count 1 subtask, got %d", counts[series.ID])
	}
	if n, ok := counts[ex.ID]; !ok || n != 0 {
		t.Fatalf("expected the exception listed without subtasks, got %d (listed %v)", n, ok)
	}

	before := env.count(t)
	n, err := env.relations.DeleteWithChildren(ctx, ex.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 || env.count(t) != before-1 {
		t.Fatalf("expected only the exception deleted, got %d (%d -> %d)", n, before, env.count(t))
	}
	for _, id := range []int64{series.ID, sub.ID} {
		if o, _ := env.storage.GetObject(ctx, id); o == nil {
			t.Fatalf("entry %d must survive deleting an exception", id)
		}
	}
}

func TestLinkIsIdempotent(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	parent := env.todo(t, "parent")
	child := env.todo(t, "child")

	added, err := env.relations.Link(ctx, child.ID, parent.UID, domain.RelTypeParent)
	if err != nil || !added {
		t.Fatalf("first link: %v %v", added, err)
	}
	notified := env.notifier.count()

	added, err = env.relations.Link(ctx, child.ID, parent.UID, domain.RelTypeParent)
	if err != nil {
		t.Fatalf("second link: %v", err)
	}
	if added {
		t.Fatalf("expected the second link to be a no-op")
	}
	if env.notifier.count() != notified {
		t.Fatalf("no-op link must not notify")
	}

	rels, err := env.storage.ListRelations(ctx, child.ID)
	if err != nil {
		t.Fatalf("list relations: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("expected 1 relation, got %d", len(rels))
	}

	if _, err := env.relations.Link(ctx, child.ID, child.UID, domain.RelTypeParent); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected self link to fail, got %v", err)
	}
	if _, err := env.relations.Link(ctx, child.ID, parent.UID, domain.RelTypeSeries); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected a manual series edge to fail, got %v", err)
	}
}

func TestUnlinkKeepsChildUnlessAsked(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	parent := env.todo(t, "parent")
	child := env.todo(t, "child")
	env.link(t, child, parent)

	if err := env.relations.Unlink(ctx, child.ID, parent.UID, false); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	got, err := env.storage.GetObject(ctx, child.ID)
	if err != nil || got == nil {
		t.Fatalf("child must survive unlink: %v", err)
	}
	ids, _ := env.storage.ChildIDs(ctx, parent.UID)
	if len(ids) != 0 {
		t.Fatalf("expected edge removed, got %v", ids)
	}

	env.link(t, child, parent)
	if err := env.relations.Unlink(ctx, child.ID, parent.UID, true); err != nil {
		t.Fatalf("unlink and delete: %v", err)
	}
	if got, _ := env.storage.GetObject(ctx, child.ID); got != nil {
		t.Fatalf("expected child deleted after unlink")
	}
}

func TestPruneDangling(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	parent := env.todo(t, "parent")
	child := env.todo(t, "child")
	env.link(t, child, parent)
	if _, err := env.storage.DeleteObject(ctx, parent.ID); err != nil {
		t.Fatalf("delete parent: %v", err)
	}

	n, err := env.relations.PruneDangling(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned edge, got %d", n)
	}
}
