package service

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/tazhate/pimstore/internal/domain"
	"github.com/tazhate/pimstore/internal/live"
	"github.com/tazhate/pimstore/internal/prefs"
)

type listFixture struct {
	env    *testEnv
	hub    *live.Hub
	worker *live.Worker
	store  *prefs.MemoryStore
	vm     *ListViewModel
	sub    <-chan ListResult
}

func newListFixture(t *testing.T, seed func(env *testEnv)) (*listFixture, func()) {
	t.Helper()
	env, cleanupEnv := newTestEnv(t)
	if seed != nil {
		seed(env)
	}
	f := &listFixture{
		env:    env,
		hub:    live.NewHub(),
		worker: live.NewWorker(8),
		store:  prefs.NewMemoryStore(),
	}
	f.vm = NewListViewModel(ListViewModelConfig{
		Module:  domain.ModuleTodo,
		Storage: env.storage,
		Prefs:   f.store,
		Worker:  f.worker,
		Hub:     f.hub,
		Entries: env.entries,
		Clock:   fixedClock,
	})
	sub, cancel := f.vm.Entries.Subscribe()
	f.sub = sub
	return f, func() {
		cancel()
		f.vm.Close()
		f.worker.Close()
		cleanupEnv()
	}
}

// await returns the first published result of generation gen or later.
func (f *listFixture) await(t *testing.T, gen uint64) ListResult {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		if res := f.vm.Entries.Get(); res.Generation >= gen {
			return res
		}
		select {
		case res := <-f.sub:
			if res.Generation >= gen {
				return res
			}
		case <-timeout:
			t.Fatalf("no result for generation %d", gen)
		}
	}
}

func TestListViewModelPublishesRows(t *testing.T) {
	f, cleanup := newListFixture(t, func(env *testEnv) {
		env.todo(t, "a")
		env.todo(t, "b")
	})
	defer cleanup()

	res := f.await(t, f.vm.Generation())
	if res.Err != nil {
		t.Fatalf("query: %v", res.Err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	if len(res.Groups) != 1 || len(res.Groups[0].Rows) != 2 {
		t.Fatalf("expected a single ungrouped group, got %+v", res.Groups)
	}
}

func TestListViewModelFollowsSettings(t *testing.T) {
	f, cleanup := newListFixture(t, func(env *testEnv) {
		env.todo(t, "open")
		done := env.todo(t, "done")
		if _, err := env.entries.UpdateProgress(context.Background(), domain.RefID(done.ID), 100); err != nil {
			t.Fatalf("complete: %v", err)
		}
	})
	defer cleanup()

	before := f.vm.Generation()
	f.vm.Update(func(s *domain.ListSettings) { s.ExcludeDone = true })
	if f.vm.Generation() != before+1 {
		t.Fatalf("expected a settings change to start a new generation")
	}

	res := f.await(t, before+1)
	if len(res.Rows) != 1 || res.Rows[0].Summary != "open" {
		t.Fatalf("expected only the open task, got %d rows", len(res.Rows))
	}
	if !res.Settings.ExcludeDone {
		t.Fatalf("result must carry the settings it was built from")
	}
}

func TestListViewModelRefreshesOnChange(t *testing.T) {
	f, cleanup := newListFixture(t, nil)
	defer cleanup()

	f.await(t, f.vm.Generation())
	gen := f.vm.Generation()

	o := domain.NewTodo(testNow)
	o.Summary = "new"
	if _, err := f.env.entries.InsertQuickItem(context.Background(), o, nil, ""); err != nil {
		t.Fatalf("insert: %v", err)
	}
	f.hub.NotifyChanged()

	res := f.await(t, gen+1)
	if len(res.Rows) != 1 {
		t.Fatalf("expected the inserted row after a change, got %d", len(res.Rows))
	}
}

func TestListViewModelDropsStaleResults(t *testing.T) {
	f, cleanup := newListFixture(t, nil)
	defer cleanup()

	current := f.await(t, f.vm.Generation())
	f.vm.publish(current.Generation-1, domain.NewListSettings(domain.ModuleTodo), []*domain.ICal4List{{ID: 99}}, nil)

	if got := f.vm.Entries.Get(); got.Generation != current.Generation || len(got.Rows) != 0 {
		t.Fatalf("stale result was published: %+v", got)
	}
}

func TestClearFilterPersistsDefaults(t *testing.T) {
	f, cleanup := newListFixture(t, nil)
	defer cleanup()

	f.vm.Update(func(s *domain.ListSettings) {
		s.SearchCategories = []string{"Work"}
		s.FilterOverdue = true
		s.GroupBy = domain.GroupByStatus
	})
	if err := f.vm.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	f.vm.SetSearchText("meeting")

	if err := f.vm.ClearFilter(); err != nil {
		t.Fatalf("clear: %v", err)
	}

	stored, err := f.store.Load(domain.NewListSettings(domain.ModuleTodo).Namespace())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := domain.NewListSettings(domain.ModuleTodo).Values()
	if !reflect.DeepEqual(stored, want) {
		t.Fatalf("expected defaults persisted\n got %v\nwant %v", stored, want)
	}
	if f.vm.Settings().SearchText != "" {
		t.Fatalf("clearing must drop the search text")
	}
}

func TestListViewModelIgnoresVanishedRows(t *testing.T) {
	f, cleanup := newListFixture(t, nil)
	defer cleanup()
	ctx := context.Background()

	if err := f.vm.UpdateProgress(ctx, domain.RefID(12345), 50); err != nil {
		t.Fatalf("expected a vanished row to be ignored, got %v", err)
	}
	if err := f.vm.Delete(ctx, []int64{12345}); err != nil {
		t.Fatalf("expected deleting a vanished row to be ignored, got %v", err)
	}
}

func TestApplyPresetKeepsSearchText(t *testing.T) {
	f, cleanup := newListFixture(t, nil)
	defer cleanup()

	f.vm.SetSearchText("groceries")
	preset := domain.NewListSettings(domain.ModuleTodo)
	preset.ExcludeDone = true
	f.vm.ApplyPreset(preset)

	got := f.vm.Settings()
	if !got.ExcludeDone || got.SearchText != "groceries" {
		t.Fatalf("unexpected settings after preset: %+v", got)
	}
}
