package service

import (
	"context"
	"errors"
	"testing"

	"github.com/tazhate/pimstore/internal/domain"
)

type fakeDirectory struct {
	accounts    []domain.Account
	collections map[string][]domain.Collection
}

func (d *fakeDirectory) Accounts(ctx context.Context) ([]domain.Account, error) {
	return d.accounts, nil
}

func (d *fakeDirectory) Collections(ctx context.Context, a domain.Account) ([]domain.Collection, error) {
	return d.collections[a.Name], nil
}

func TestPruneDeletedAccountsKeepsLocalAndTest(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	gone := env.collection(t, &domain.Collection{URL: "https://dav.example.com/gone/", DisplayName: "Gone", AccountName: "old", AccountType: "caldav", SupportsVTodo: true})
	kept := env.collection(t, &domain.Collection{URL: "https://dav.example.com/kept/", DisplayName: "Kept", AccountName: "me", AccountType: "caldav", SupportsVTodo: true})
	env.collection(t, &domain.Collection{DisplayName: "Test", AccountName: "test", AccountType: "TEST", SupportsVTodo: true})

	task := env.todo(t, "in gone")
	if err := env.collections.MoveToCollection(ctx, task.ID, gone.ID); err != nil {
		t.Fatalf("move: %v", err)
	}

	n, err := env.collections.PruneDeletedAccounts(ctx, []domain.Account{kept.Account()})
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned collection, got %d", n)
	}

	all, err := env.collections.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected local, kept and test collections, got %d", len(all))
	}
	if got, _ := env.storage.GetObject(ctx, task.ID); got != nil {
		t.Fatalf("entries of a pruned collection must be deleted")
	}
}

func TestRefreshFromDirectory(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	me := domain.Account{Name: "me", Type: "caldav"}
	dir := &fakeDirectory{
		accounts: []domain.Account{me},
		collections: map[string][]domain.Collection{
			"me": {{URL: "https://dav.example.com/me/tasks/", DisplayName: "Tasks", SupportsVTodo: true}},
		},
	}

	n, err := env.collections.RefreshFromDirectory(ctx, dir)
	if err != nil || n != 1 {
		t.Fatalf("refresh: %d %v", n, err)
	}

	dir.collections["me"][0].DisplayName = "Renamed"
	if _, err := env.collections.RefreshFromDirectory(ctx, dir); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	c, err := env.storage.GetCollectionByURL(ctx, me, "https://dav.example.com/me/tasks/")
	if err != nil || c == nil {
		t.Fatalf("get collection: %v", err)
	}
	if c.DisplayName != "Renamed" {
		t.Fatalf("expected the collection to be updated in place, got %q", c.DisplayName)
	}
	all, _ := env.collections.List(ctx)
	if len(all) != 2 {
		t.Fatalf("expected local plus one remote collection, got %d", len(all))
	}

	dir.accounts = nil
	if _, err := env.collections.RefreshFromDirectory(ctx, dir); err != nil {
		t.Fatalf("third refresh: %v", err)
	}
	all, _ = env.collections.List(ctx)
	if len(all) != 1 {
		t.Fatalf("expected removed account pruned, got %d collections", len(all))
	}
}

func TestMoveToCollectionRefusals(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	journals := env.collection(t, &domain.Collection{DisplayName: "Journals", AccountName: "me", AccountType: "caldav", SupportsVJournal: true})
	task := env.todo(t, "task")

	if err := env.collections.MoveToCollection(ctx, task.ID, journals.ID); !errors.Is(err, domain.ErrUnsupportedComponent) {
		t.Fatalf("expected ErrUnsupportedComponent, got %v", err)
	}
	if err := env.collections.MoveToCollection(ctx, task.ID, 4242); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	series := env.dailySeries(t)
	ex, _, err := env.recurrence.Materialize(ctx, series.ID, *series.DTStart)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if err := env.collections.MoveToCollection(ctx, ex.ID, journals.ID); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for an exception, got %v", err)
	}

	tasks := env.collection(t, &domain.Collection{DisplayName: "Tasks", AccountName: "me", AccountType: "caldav", SupportsVTodo: true})
	if err := env.collections.MoveToCollection(ctx, series.ID, tasks.ID); err != nil {
		t.Fatalf("move series: %v", err)
	}
	moved, _ := env.storage.GetObject(ctx, ex.ID)
	if moved.CollectionID != tasks.ID {
		t.Fatalf("exception must follow its series")
	}
}

func TestWriteableCollectionsByModule(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	env.collection(t, &domain.Collection{DisplayName: "Journals", AccountName: "me", AccountType: "caldav", SupportsVJournal: true})
	env.collection(t, &domain.Collection{DisplayName: "Locked", AccountName: "me", AccountType: "caldav", SupportsVTodo: true, ReadOnly: true})

	todo, err := env.collections.Writeable(ctx, domain.ModuleTodo)
	if err != nil {
		t.Fatalf("writeable: %v", err)
	}
	if len(todo) != 1 || todo[0].ID != domain.LocalCollectionID {
		t.Fatalf("expected only the local collection for tasks, got %d", len(todo))
	}
	notes, _ := env.collections.Writeable(ctx, domain.ModuleNote)
	if len(notes) != 2 {
		t.Fatalf("expected local and journal collections for notes, got %d", len(notes))
	}
}
