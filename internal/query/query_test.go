package query

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tazhate/pimstore/internal/domain"
)

var fixedNow = time.Date(2026, 10, 19, 14, 30, 0, 0, time.UTC)

func placeholders(sql string) int {
	return strings.Count(sql, "?")
}

func TestSelectRenderKeepsArgsInPlaceholderOrder(t *testing.T) {
	sel := &Select{
		Columns: "*",
		From:    "t",
		Where: []Clause{
			Eq("a", 1),
			Or(Contains("b", "x"), In("c", "p", "q")),
			Range("d", 10, 20),
			IsNull("e"),
		},
		OrderBy: []Order{{Expr: "d", Desc: true, NullsLast: true}},
	}

	q := sel.Render()
	wantSQL := `SELECT * FROM t WHERE a = ? AND (pim_fold(b) LIKE pim_fold(?) ESCAPE '\' OR c IN (?,?)) AND (d >= ? AND d < ?) AND e IS NULL ORDER BY d IS NULL, d DESC`
	if q.SQL != wantSQL {
		t.Fatalf("unexpected SQL:\n got %s\nwant %s", q.SQL, wantSQL)
	}
	wantArgs := []any{1, "%x%", "p", "q", 10, 20}
	if !reflect.DeepEqual(q.Args, wantArgs) {
		t.Fatalf("unexpected args %v", q.Args)
	}
}

func TestContainsEscapesWildcards(t *testing.T) {
	q := (&Select{Columns: "*", From: "t", Where: []Clause{Contains("s", `50%_off\`)}}).Render()
	if got := q.Args[0]; got != `%50\%\_off\\%` {
		t.Fatalf("unexpected pattern %q", got)
	}
}

func TestEmptyInMatchesNothing(t *testing.T) {
	q := (&Select{Columns: "*", From: "t", Where: []Clause{In("x")}}).Render()
	if q.SQL != "SELECT * FROM t WHERE 0" || len(q.Args) != 0 {
		t.Fatalf("unexpected render %q %v", q.SQL, q.Args)
	}
}

func TestBuildListModuleFirstAndNoTextPredicateWhenEmpty(t *testing.T) {
	for _, m := range domain.Modules {
		for _, text := range []string{"", " ", "a"} {
			s := domain.NewListSettings(m)
			s.SearchText = text
			q := BuildList(m, s, fixedNow, time.UTC)

			if !strings.Contains(q.SQL, "WHERE ical4list.module = ?") {
				t.Fatalf("module predicate missing: %s", q.SQL)
			}
			if q.Args[0] != string(m) {
				t.Fatalf("expected module as first arg, got %v", q.Args[0])
			}
			if strings.Contains(q.SQL, "LIKE") {
				t.Fatalf("search %q must not add a text predicate: %s", text, q.SQL)
			}
			if placeholders(q.SQL) != len(q.Args) {
				t.Fatalf("placeholder/arg mismatch: %s %v", q.SQL, q.Args)
			}
		}
	}
}

func TestBuildListBindsUserValues(t *testing.T) {
	s := domain.NewListSettings(domain.ModuleNote)
	s.SearchText = "x'); DROP TABLE icalobjects; --"
	s.SearchCategories = []string{"Work'"}
	s.SearchCollections = []string{"Personal"}

	q := BuildList(domain.ModuleNote, s, fixedNow, time.UTC)
	if strings.Contains(q.SQL, "DROP") || strings.Contains(q.SQL, "Work'") || strings.Contains(q.SQL, "Personal") {
		t.Fatalf("user values leaked into the template: %s", q.SQL)
	}
	if placeholders(q.SQL) != len(q.Args) {
		t.Fatalf("placeholder/arg mismatch: %s %v", q.SQL, q.Args)
	}
}

func TestBuildListJoinsOnlyWhenFiltered(t *testing.T) {
	plain := BuildList(domain.ModuleTodo, domain.NewListSettings(domain.ModuleTodo), fixedNow, time.UTC)
	if strings.Contains(plain.SQL, "JOIN") {
		t.Fatalf("unfiltered query must not join: %s", plain.SQL)
	}
	if !strings.HasPrefix(plain.SQL, "SELECT DISTINCT ical4list.*") {
		t.Fatalf("expected distinct select: %s", plain.SQL)
	}

	s := domain.NewListSettings(domain.ModuleTodo)
	s.SearchCategories = []string{"Work", "Home"}
	q := BuildList(domain.ModuleTodo, s, fixedNow, time.UTC)
	if !strings.Contains(q.SQL, "LEFT JOIN categories") || strings.Contains(q.SQL, "LEFT JOIN organizers") || strings.Contains(q.SQL, "LEFT JOIN collections") {
		t.Fatalf("expected only the category join: %s", q.SQL)
	}
	if !strings.Contains(q.SQL, "categories.text IN (?,?)") {
		t.Fatalf("expected category membership test: %s", q.SQL)
	}

	s = domain.NewListSettings(domain.ModuleTodo)
	s.SearchAccounts = []string{"alice"}
	q = BuildList(domain.ModuleTodo, s, fixedNow, time.UTC)
	if !strings.Contains(q.SQL, "LEFT JOIN collections") || !strings.Contains(q.SQL, "collections.account_name IN (?)") {
		t.Fatalf("expected collection join for account filter: %s", q.SQL)
	}
}

func TestBuildListStatusFilterIgnoresForeignStatuses(t *testing.T) {
	s := domain.NewListSettings(domain.ModuleJournal)
	s.SearchStatus = []domain.Status{domain.StatusCompleted}
	q := BuildList(domain.ModuleJournal, s, fixedNow, time.UTC)
	if strings.Contains(q.SQL, "ical4list.status IN") {
		t.Fatalf("todo status must not filter journals: %s", q.SQL)
	}

	s.SearchStatus = []domain.Status{domain.StatusCompleted, domain.StatusFinal}
	q = BuildList(domain.ModuleJournal, s, fixedNow, time.UTC)
	if !strings.Contains(q.SQL, "ical4list.status IN (?)") {
		t.Fatalf("expected journal status filter: %s", q.SQL)
	}
}

func TestBuildListDueWindows(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	s := domain.NewListSettings(domain.ModuleTodo)
	s.FilterDueToday = true
	s.FilterOverdue = true

	q := BuildList(domain.ModuleTodo, s, fixedNow, loc)
	if !strings.Contains(q.SQL, "(ical4list.due < ? OR (ical4list.due >= ? AND ical4list.due < ?))") {
		t.Fatalf("expected due filters OR'd in one clause: %s", q.SQL)
	}

	midnight := time.Date(2026, 10, 19, 0, 0, 0, 0, loc)
	want := []any{fixedNow.UnixMilli(), midnight.UnixMilli(), midnight.AddDate(0, 0, 1).UnixMilli()}
	got := q.Args[1:4]
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected due args %v, want %v", got, want)
	}
}

func TestBuildListChildVisibility(t *testing.T) {
	s := domain.NewListSettings(domain.ModuleTodo)
	q := BuildList(domain.ModuleTodo, s, fixedNow, time.UTC)
	for _, c := range []string{"is_child_of_journal = ?", "is_child_of_note = ?", "is_child_of_todo = ?"} {
		if !strings.Contains(q.SQL, c) {
			t.Fatalf("expected %q in %s", c, q.SQL)
		}
	}

	s.ShowAllSubentries = true
	q = BuildList(domain.ModuleTodo, s, fixedNow, time.UTC)
	if !strings.Contains(q.SQL, "is_child_of_todo = ?") {
		t.Fatalf("own-module children must always be hidden: %s", q.SQL)
	}
	if strings.Contains(q.SQL, "is_child_of_note") || strings.Contains(q.SQL, "is_child_of_journal") {
		t.Fatalf("foreign children must be visible with show-all: %s", q.SQL)
	}
}

func TestBuildListOrdering(t *testing.T) {
	tests := []struct {
		module domain.Module
		want   string
	}{
		{domain.ModuleJournal, "ORDER BY ical4list.dtstart IS NULL, ical4list.dtstart ASC, ical4list.created IS NULL, ical4list.created ASC"},
		{domain.ModuleNote, "ORDER BY ical4list.last_modified IS NULL, ical4list.last_modified DESC, ical4list.created IS NULL, ical4list.created ASC"},
		{domain.ModuleTodo, "ORDER BY ical4list.due IS NULL, ical4list.due ASC, ical4list.created IS NULL, ical4list.created ASC"},
	}
	for _, tt := range tests {
		q := BuildList(tt.module, domain.NewListSettings(tt.module), fixedNow, time.UTC)
		if !strings.HasSuffix(q.SQL, tt.want) {
			t.Fatalf("%s: unexpected order in %s", tt.module, q.SQL)
		}
	}

	s := domain.NewListSettings(domain.ModuleTodo)
	s.OrderBy = domain.OrderByPriority
	s.SortOrder = domain.SortDescending
	q := BuildList(domain.ModuleTodo, s, fixedNow, time.UTC)
	if !strings.Contains(q.SQL, "ORDER BY ical4list.priority IS NULL, ical4list.priority DESC, ical4list.due IS NULL") {
		t.Fatalf("explicit order must come first: %s", q.SQL)
	}
}

func TestBuildListIsDeterministic(t *testing.T) {
	s := domain.NewListSettings(domain.ModuleTodo)
	s.SearchText = "report"
	s.SearchCategories = []string{"Work"}
	s.FilterDueTomorrow = true

	a := BuildList(domain.ModuleTodo, s, fixedNow, time.UTC)
	b := BuildList(domain.ModuleTodo, s.Clone(), fixedNow, time.UTC)
	if a.SQL != b.SQL || !reflect.DeepEqual(a.Args, b.Args) {
		t.Fatalf("expected identical output")
	}
}
