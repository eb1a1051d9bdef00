package query

import (
	"strings"
	"time"

	"github.com/tazhate/pimstore/internal/domain"
)

// Names of the list view and the tables it may be joined with.
const (
	ViewICal4List    = "ical4list"
	TableCategories  = "categories"
	TableOrganizers  = "organizers"
	TableCollections = "collections"
)

// MinSearchLength is the shortest search text that filters the list.
const MinSearchLength = 2

func col(name string) string {
	return ViewICal4List + "." + name
}

var childColumns = map[domain.Module]string{
	domain.ModuleJournal: col("is_child_of_journal"),
	domain.ModuleNote:    col("is_child_of_note"),
	domain.ModuleTodo:    col("is_child_of_todo"),
}

var orderColumns = map[domain.OrderBy]string{
	domain.OrderByStart:          col("dtstart"),
	domain.OrderByDue:            col("due"),
	domain.OrderByCompleted:      col("completed"),
	domain.OrderByCreated:        col("created"),
	domain.OrderByLastModified:   col("last_modified"),
	domain.OrderBySummary:        col("summary"),
	domain.OrderByPriority:       col("priority"),
	domain.OrderByStatus:         col("status"),
	domain.OrderByClassification: col("classification"),
}

// OrderColumn returns the view column sorted by for by.
func OrderColumn(by domain.OrderBy) (string, bool) {
	expr, ok := orderColumns[by]
	return expr, ok
}

// BuildList renders the list query of module m for the settings snapshot s.
// now and loc fix the due-date windows; the result depends on nothing else.
func BuildList(m domain.Module, s *domain.ListSettings, now time.Time, loc *time.Location) Query {
	if s == nil {
		s = domain.NewListSettings(m)
	}
	if loc == nil {
		loc = time.UTC
	}

	sel := &Select{
		Distinct: true,
		Columns:  ViewICal4List + ".*",
		From:     ViewICal4List,
	}

	if len(s.SearchCategories) > 0 {
		sel.Joins = append(sel.Joins, Join{
			Table: TableCategories,
			On:    col("id") + " = " + TableCategories + ".icalobject_id",
		})
	}
	if len(s.SearchOrganizers) > 0 {
		sel.Joins = append(sel.Joins, Join{
			Table: TableOrganizers,
			On:    col("id") + " = " + TableOrganizers + ".icalobject_id",
		})
	}
	if len(s.SearchCollections) > 0 || len(s.SearchAccounts) > 0 {
		sel.Joins = append(sel.Joins, Join{
			Table: TableCollections,
			On:    col("collection_id") + " = " + TableCollections + ".id",
		})
	}

	// The module predicate always comes first.
	sel.Where = append(sel.Where, Eq(col("module"), string(m)))

	if text := strings.TrimSpace(s.SearchText); len([]rune(text)) >= MinSearchLength {
		sel.Where = append(sel.Where, Or(
			Contains(col("summary"), text),
			Contains(col("description"), text),
		))
	}

	if len(s.SearchCategories) > 0 {
		sel.Where = append(sel.Where, InStrings(TableCategories+".text", s.SearchCategories))
	}
	if len(s.SearchOrganizers) > 0 {
		sel.Where = append(sel.Where, InStrings(TableOrganizers+".caladdress", s.SearchOrganizers))
	}

	var statuses []any
	for _, st := range s.SearchStatus {
		if m.AllowsStatus(st) {
			statuses = append(statuses, string(st))
		}
	}
	if len(statuses) > 0 {
		sel.Where = append(sel.Where, In(col("status"), statuses...))
	}

	if len(s.SearchClassification) > 0 {
		classes := make([]any, 0, len(s.SearchClassification))
		for _, c := range s.SearchClassification {
			classes = append(classes, string(c))
		}
		sel.Where = append(sel.Where, In(col("classification"), classes...))
	}

	if s.ExcludeDone {
		sel.Where = append(sel.Where, Cmp(col("percent"), OpIsNot, 100))
	}

	if due := dueClauses(s, now, loc); len(due) > 0 {
		sel.Where = append(sel.Where, Or(due...))
	}

	if len(s.SearchCollections) > 0 {
		sel.Where = append(sel.Where, InStrings(TableCollections+".display_name", s.SearchCollections))
	}
	if len(s.SearchAccounts) > 0 {
		sel.Where = append(sel.Where, InStrings(TableCollections+".account_name", s.SearchAccounts))
	}

	sel.Where = append(sel.Where, childVisibility(m, s.ShowAllSubentries)...)
	sel.OrderBy = orderTerms(m, s)

	return sel.Render()
}

func dueClauses(s *domain.ListSettings, now time.Time, loc *time.Location) []Clause {
	due := col("due")
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	tomorrow := today.AddDate(0, 0, 1)
	dayAfter := today.AddDate(0, 0, 2)

	var out []Clause
	if s.FilterOverdue {
		out = append(out, Cmp(due, OpLt, now.UnixMilli()))
	}
	if s.FilterDueToday {
		out = append(out, Range(due, today.UnixMilli(), tomorrow.UnixMilli()))
	}
	if s.FilterDueTomorrow {
		out = append(out, Range(due, tomorrow.UnixMilli(), dayAfter.UnixMilli()))
	}
	if s.FilterDueFuture {
		out = append(out, Cmp(due, OpGt, now.UnixMilli()))
	}
	if s.FilterNoDatesSet {
		out = append(out, And(IsNull(col("dtstart")), IsNull(due)))
	}
	return out
}

// childVisibility hides children of the module's own entries, since those are
// shown nested under their parent. Children of other modules' entries are
// hidden too unless showAll is set.
func childVisibility(m domain.Module, showAll bool) []Clause {
	var out []Clause
	for _, other := range domain.Modules {
		if other != m && showAll {
			continue
		}
		out = append(out, Eq(childColumns[other], 0))
	}
	return out
}

func orderTerms(m domain.Module, s *domain.ListSettings) []Order {
	var out []Order
	seen := make(map[domain.OrderBy]bool)

	add := func(by domain.OrderBy, order domain.SortOrder) {
		expr, ok := OrderColumn(by)
		if !ok || seen[by] {
			return
		}
		seen[by] = true
		out = append(out, Order{Expr: expr, Desc: order == domain.SortDescending, NullsLast: true})
	}

	add(s.OrderBy, s.SortOrder)
	add(s.OrderBy2, s.SortOrder2)
	for _, t := range m.Rules().DefaultOrder {
		add(t.By, t.Order)
	}
	return out
}
