package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tazhate/pimstore/internal/domain"
	"github.com/tazhate/pimstore/internal/query"
)

var testNow = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

func newTestStorage(t *testing.T) (*Storage, func()) {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	return s, func() {
		_ = s.Close()
	}
}

func insertTodo(t *testing.T, s *Storage, summary string, due *time.Time, categories ...string) *domain.ICalObject {
	t.Helper()
	o := domain.NewTodo(testNow)
	o.Summary = summary
	o.Due = due
	e := &domain.ICalEntity{Object: o}
	for _, c := range categories {
		e.Categories = append(e.Categories, domain.Category{Text: c})
	}
	if err := s.InsertEntity(context.Background(), e); err != nil {
		t.Fatalf("insert %q: %v", summary, err)
	}
	return o
}

func TestInsertAndGetEntityRoundTrip(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	due := testNow.Add(2 * time.Hour)
	prio := 3
	o := domain.NewTodo(testNow)
	o.Summary = "File taxes"
	o.Due = &due
	o.Priority = &prio
	o.ExDates = []time.Time{testNow.AddDate(0, 0, 7)}

	e := &domain.ICalEntity{
		Object:     o,
		Categories: []domain.Category{{Text: "Home"}},
		Comments:   []domain.Comment{{Text: "bring receipts"}},
		Organizer:  &domain.Organizer{CalAddress: "mailto:me@example.com"},
		Alarms:     []domain.Alarm{{TriggerRelativeDuration: "-PT15M"}},
	}
	if err := s.InsertEntity(ctx, e); err != nil {
		t.Fatalf("insert entity: %v", err)
	}

	got, err := s.GetEntity(ctx, o.ID)
	if err != nil {
		t.Fatalf("get entity: %v", err)
	}
	if got == nil {
		t.Fatalf("expected entity %d", o.ID)
	}
	if got.Object.Summary != "File taxes" || got.Object.Due == nil || !got.Object.Due.Equal(due) {
		t.Fatalf("unexpected object %+v", got.Object)
	}
	if got.Object.Priority == nil || *got.Object.Priority != 3 {
		t.Fatalf("expected priority 3, got %v", got.Object.Priority)
	}
	if got.Object.Percent == nil || *got.Object.Percent != 0 {
		t.Fatalf("expected percent 0, got %v", got.Object.Percent)
	}
	if len(got.Object.ExDates) != 1 || !got.Object.ExDates[0].Equal(o.ExDates[0]) {
		t.Fatalf("unexpected exdates %v", got.Object.ExDates)
	}
	if len(got.Categories) != 1 || len(got.Comments) != 1 || got.Organizer == nil || len(got.Alarms) != 1 {
		t.Fatalf("child records not loaded: %+v", got)
	}
	if got.Alarms[0].Action != "DISPLAY" {
		t.Fatalf("expected default alarm action, got %q", got.Alarms[0].Action)
	}
}

func TestGetMissingObjectReturnsNil(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()

	o, err := s.GetObject(context.Background(), 42)
	if err != nil || o != nil {
		t.Fatalf("expected nil, nil; got %v, %v", o, err)
	}
}

func TestUpdateDeletedObjectReportsNotFound(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	o := insertTodo(t, s, "gone", nil)
	if _, err := s.DeleteObject(ctx, o.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	o.Summary = "edited"
	if err := s.UpdateObject(ctx, o); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteCascadesChildRecords(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	o := insertTodo(t, s, "with children", nil, "Work", "Home")
	if _, err := s.InsertRelation(ctx, &domain.Relation{ICalObjectID: o.ID, Text: "parent-uid"}); err != nil {
		t.Fatalf("insert relation: %v", err)
	}
	if _, err := s.DeleteObject(ctx, o.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	cats, err := s.ListCategories(ctx, o.ID)
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	rels, err := s.ListRelations(ctx, o.ID)
	if err != nil {
		t.Fatalf("list relations: %v", err)
	}
	if len(cats) != 0 || len(rels) != 0 {
		t.Fatalf("expected cascade, got %d categories and %d relations", len(cats), len(rels))
	}
}

func TestInsertRelationIsIdempotent(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	parent := insertTodo(t, s, "parent", nil)
	child := insertTodo(t, s, "child", nil)

	for i := 0; i < 3; i++ {
		if _, err := s.InsertRelation(ctx, &domain.Relation{ICalObjectID: child.ID, Text: parent.UID, RelType: domain.RelTypeParent}); err != nil {
			t.Fatalf("insert relation: %v", err)
		}
	}
	rels, err := s.ListRelations(ctx, child.ID)
	if err != nil {
		t.Fatalf("list relations: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("expected 1 relation, got %d", len(rels))
	}

	ids, err := s.ChildIDs(ctx, parent.UID)
	if err != nil {
		t.Fatalf("child ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != child.ID {
		t.Fatalf("unexpected child ids %v", ids)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *Storage) error {
		if err := tx.InsertObject(ctx, domain.NewNote(testNow)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	n, err := s.CountObjects(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected rollback, found %d objects", n)
	}
}

func TestCategoryFilterMembership(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	insertTodo(t, s, "a", nil, "Work")
	insertTodo(t, s, "b", nil, "Work", "Home")
	insertTodo(t, s, "c", nil, "Home")
	insertTodo(t, s, "d", nil)
	insertTodo(t, s, "e", nil, "Errands", "Work")

	settings := domain.NewListSettings(domain.ModuleTodo)
	settings.SearchCategories = []string{"Work", "Errands"}
	rows, err := s.QueryList(ctx, query.BuildList(domain.ModuleTodo, settings, testNow, time.UTC))
	if err != nil {
		t.Fatalf("query list: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	selected := map[string]bool{"Work": true, "Errands": true}
	for _, r := range rows {
		found := false
		for _, c := range r.Categories {
			if selected[c] {
				found = true
			}
		}
		if !found {
			t.Fatalf("row %q has none of the selected categories: %v", r.Summary, r.Categories)
		}
	}
}

func TestSearchTextFoldsNonASCIICase(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	insertTodo(t, s, "Купить молоко", nil)
	insertTodo(t, s, "купить хлеб", nil)
	insertTodo(t, s, "Buy milk", nil)
	insertTodo(t, s, "50% off", nil)
	insertTodo(t, s, "500 offers", nil)

	tests := []struct {
		text string
		want int
	}{
		{"КУПИТЬ", 2},
		{"Молоко", 1},
		{"MILK", 1},
		{"0%", 1},
	}
	for _, tt := range tests {
		settings := domain.NewListSettings(domain.ModuleTodo)
		settings.SearchText = tt.text
		rows, err := s.QueryList(ctx, query.BuildList(domain.ModuleTodo, settings, testNow, time.UTC))
		if err != nil {
			t.Fatalf("query %q: %v", tt.text, err)
		}
		if len(rows) != tt.want {
			t.Fatalf("search %q: expected %d rows, got %d", tt.text, tt.want, len(rows))
		}
	}
}

func TestExcludeDoneHidesCompletedTasks(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	done := insertTodo(t, s, "done", nil)
	done.SetUpdatedProgress(100, testNow)
	if err := s.UpdateObject(ctx, done); err != nil {
		t.Fatalf("update: %v", err)
	}
	half := insertTodo(t, s, "half", nil)
	half.SetUpdatedProgress(50, testNow)
	if err := s.UpdateObject(ctx, half); err != nil {
		t.Fatalf("update: %v", err)
	}
	fresh := insertTodo(t, s, "fresh", nil)
	fresh.SetUpdatedProgress(0, testNow)
	if err := s.UpdateObject(ctx, fresh); err != nil {
		t.Fatalf("update: %v", err)
	}

	settings := domain.NewListSettings(domain.ModuleTodo)
	settings.ExcludeDone = true
	rows, err := s.QueryList(ctx, query.BuildList(domain.ModuleTodo, settings, testNow, time.UTC))
	if err != nil {
		t.Fatalf("query list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for _, r := range rows {
		if r.Percent != nil && *r.Percent == 100 {
			t.Fatalf("completed row %q was returned", r.Summary)
		}
	}
}

func TestDueTodayExcludesTomorrowJustAfterMidnight(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	today := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	tomorrow := time.Date(2026, 10, 20, 0, 1, 0, 0, time.UTC)
	insertTodo(t, s, "today", &today)
	insertTodo(t, s, "tomorrow", &tomorrow)

	settings := domain.NewListSettings(domain.ModuleTodo)
	settings.FilterDueToday = true
	rows, err := s.QueryList(ctx, query.BuildList(domain.ModuleTodo, settings, testNow, time.UTC))
	if err != nil {
		t.Fatalf("query list: %v", err)
	}
	if len(rows) != 1 || rows[0].Summary != "today" {
		t.Fatalf("expected only the task due today, got %d rows", len(rows))
	}
}

func TestListViewChildFlagsAndCounts(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	note := domain.NewNote(testNow)
	note.Summary = "project"
	if err := s.InsertObject(ctx, note); err != nil {
		t.Fatalf("insert note: %v", err)
	}
	sub := insertTodo(t, s, "subtask", nil)
	if _, err := s.InsertRelation(ctx, &domain.Relation{ICalObjectID: sub.ID, Text: note.UID}); err != nil {
		t.Fatalf("link: %v", err)
	}

	todos := domain.NewListSettings(domain.ModuleTodo)
	rows, err := s.QueryList(ctx, query.BuildList(domain.ModuleTodo, todos, testNow, time.UTC))
	if err != nil {
		t.Fatalf("query todos: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("child of a note must be hidden from tasks by default, got %d rows", len(rows))
	}

	todos.ShowAllSubentries = true
	rows, err = s.QueryList(ctx, query.BuildList(domain.ModuleTodo, todos, testNow, time.UTC))
	if err != nil {
		t.Fatalf("query todos: %v", err)
	}
	if len(rows) != 1 || !rows[0].IsChildOfNote {
		t.Fatalf("expected the subtask flagged as child of a note, got %+v", rows)
	}

	notes, err := s.QueryList(ctx, query.BuildList(domain.ModuleNote, domain.NewListSettings(domain.ModuleNote), testNow, time.UTC))
	if err != nil {
		t.Fatalf("query notes: %v", err)
	}
	if len(notes) != 1 || notes[0].NumSubtasks != 1 {
		t.Fatalf("expected one note with one subtask, got %+v", notes)
	}

	subs, err := s.SubEntries(ctx, note.UID, domain.ModuleTodo)
	if err != nil {
		t.Fatalf("sub entries: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != sub.ID {
		t.Fatalf("unexpected sub entries %+v", subs)
	}
}

func TestPruneDanglingRelations(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	parent := insertTodo(t, s, "parent", nil)
	child := insertTodo(t, s, "child", nil)
	if _, err := s.InsertRelation(ctx, &domain.Relation{ICalObjectID: child.ID, Text: parent.UID}); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, err := s.InsertRelation(ctx, &domain.Relation{ICalObjectID: child.ID, Text: "missing"}); err != nil {
		t.Fatalf("link: %v", err)
	}

	n, err := s.PruneDanglingRelations(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned edge, got %d", n)
	}
}

func TestWriteableCollections(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	ro := &domain.Collection{DisplayName: "Shared", AccountName: "a", AccountType: "caldav", ReadOnly: true, SupportsVTodo: true}
	journals := &domain.Collection{DisplayName: "Diary", AccountName: "a", AccountType: "caldav", SupportsVJournal: true}
	for _, c := range []*domain.Collection{ro, journals} {
		if err := s.CreateCollection(ctx, c); err != nil {
			t.Fatalf("create collection: %v", err)
		}
	}

	todo, err := s.AllWriteableCollections(ctx, domain.ModuleTodo)
	if err != nil {
		t.Fatalf("writeable: %v", err)
	}
	if len(todo) != 1 || todo[0].ID != domain.LocalCollectionID {
		t.Fatalf("expected only the local collection for tasks, got %d", len(todo))
	}

	remote, err := s.AllRemoteCollections(ctx)
	if err != nil {
		t.Fatalf("remote: %v", err)
	}
	if len(remote) != 2 {
		t.Fatalf("expected 2 remote collections, got %d", len(remote))
	}

	if err := s.DeleteCollection(ctx, domain.LocalCollectionID); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected local collection to be protected, got %v", err)
	}
}

func TestListPresetsReplaceByName(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	settings := domain.NewListSettings(domain.ModuleTodo)
	settings.ExcludeDone = true
	settings.SearchCategories = []string{"Work"}
	p := &domain.StoredListSetting{Module: domain.ModuleTodo, Name: "work", Settings: settings}
	if err := s.SaveListPreset(ctx, p); err != nil {
		t.Fatalf("save preset: %v", err)
	}

	settings2 := settings.Clone()
	settings2.ExcludeDone = false
	if err := s.SaveListPreset(ctx, &domain.StoredListSetting{Module: domain.ModuleTodo, Name: "work", Settings: settings2}); err != nil {
		t.Fatalf("save preset: %v", err)
	}

	list, err := s.ListPresets(ctx, domain.ModuleTodo)
	if err != nil {
		t.Fatalf("list presets: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 preset, got %d", len(list))
	}
	got := list[0].Settings
	if got.ExcludeDone || len(got.SearchCategories) != 1 || got.SearchCategories[0] != "Work" {
		t.Fatalf("unexpected preset %+v", got)
	}
}
