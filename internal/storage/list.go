package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tazhate/pimstore/internal/domain"
	"github.com/tazhate/pimstore/internal/query"
)

// categorySeparator joins category texts in the list view.
const categorySeparator = "\x1f"

func scanListRow(row rowScanner) (*domain.ICal4List, error) {
	var r domain.ICal4List
	var module, component, status, classification string
	var dtstart, due, completed, priority, percent, color sql.NullInt64
	var recurid, categories sql.NullString
	var created, lastModified int64

	err := row.Scan(&r.ID, &r.UID, &module, &component, &r.Summary, &r.Description,
		&dtstart, &r.DTStartTZ, &due, &r.DueTZ, &completed,
		&status, &classification, &priority, &percent, &r.RRule, &recurid,
		&created, &lastModified, &r.CollectionID,
		&r.CollectionDisplayName, &color, &r.AccountName, &r.AccountType, &r.IsReadOnly,
		&r.IsChildOfJournal, &r.IsChildOfNote, &r.IsChildOfTodo,
		&r.NumSubtasks, &r.NumSubnotes, &categories)
	if err != nil {
		return nil, err
	}

	r.Module = domain.Module(module)
	r.Component = domain.Component(component)
	r.DTStart = fromMillis(dtstart)
	r.Due = fromMillis(due)
	r.Completed = fromMillis(completed)
	r.Status = statusOf(status)
	r.Classification = classificationOf(classification)
	r.Priority = intFromNull(priority)
	r.Percent = intFromNull(percent)
	r.CollectionColor = intFromNull(color)
	r.RecurID = recurid.String
	r.Created = time.UnixMilli(created).UTC()
	r.LastModified = time.UnixMilli(lastModified).UTC()
	if categories.Valid && categories.String != "" {
		r.Categories = strings.Split(categories.String, categorySeparator)
	}
	return &r, nil
}

// QueryList runs a query built against the ical4list view.
func (s *Storage) QueryList(ctx context.Context, q query.Query) ([]*domain.ICal4List, error) {
	rows, err := s.q.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("query list: %w", err)
	}
	defer rows.Close()

	var out []*domain.ICal4List
	for rows.Next() {
		r, err := scanListRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan list row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SubEntries returns the list rows of module m linked as children of uid.
func (s *Storage) SubEntries(ctx context.Context, uid string, m domain.Module) ([]*domain.ICal4List, error) {
	sel := &query.Select{
		Distinct: true,
		Columns:  query.ViewICal4List + ".*",
		From:     query.ViewICal4List,
		Joins: []query.Join{{
			Table: "relatedto",
			On:    query.ViewICal4List + ".id = relatedto.icalobject_id",
		}},
		Where: []query.Clause{
			query.Eq(query.ViewICal4List+".module", string(m)),
			query.Eq("relatedto.text", uid),
			query.Eq("relatedto.reltype", string(domain.RelTypeParent)),
		},
	}
	for _, t := range m.Rules().DefaultOrder {
		if expr, ok := query.OrderColumn(t.By); ok {
			sel.OrderBy = append(sel.OrderBy, query.Order{Expr: expr, Desc: t.Order == domain.SortDescending, NullsLast: true})
		}
	}
	return s.QueryList(ctx, sel.Render())
}

// AllCategories returns every distinct category text in use.
func (s *Storage) AllCategories(ctx context.Context) ([]string, error) {
	return s.distinctStrings(ctx, `SELECT DISTINCT text FROM categories ORDER BY text`)
}

// AllOrganizers returns every distinct organizer address in use.
func (s *Storage) AllOrganizers(ctx context.Context) ([]string, error) {
	return s.distinctStrings(ctx, `SELECT DISTINCT caladdress FROM organizers ORDER BY caladdress`)
}

func (s *Storage) distinctStrings(ctx context.Context, q string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list values: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
