package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tazhate/pimstore/internal/domain"
	"github.com/tazhate/pimstore/internal/query"
	"github.com/tazhate/pimstore/internal/service"
)

const toolTimeout = 30 * time.Second

func toolDefinitions() []Tool {
	idProp := Property{Type: "number", Description: "Entry ID"}
	return []Tool{
		{
			Name:        "pim_list_entries",
			Description: "List journals, notes or tasks with optional filters. Returns rows in list order, grouped when group_by is set.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"module":       {Type: "string", Description: "Which list", Enum: []string{"JOURNAL", "NOTE", "TODO"}},
					"search":       {Type: "string", Description: "Text to look for in summary and description"},
					"categories":   {Type: "string", Description: "Comma separated categories; any match"},
					"exclude_done": {Type: "boolean", Description: "Hide completed tasks"},
					"due":          {Type: "string", Description: "Comma separated due windows", Enum: []string{"overdue", "today", "tomorrow", "future", "none"}},
					"group_by":     {Type: "string", Description: "Grouping", Enum: []string{"STATUS", "CLASSIFICATION", "PRIORITY", "DATE", "START", "DUE"}},
				},
				Required: []string{"module"},
			},
		},
		{
			Name:        "pim_create_entry",
			Description: "Create a journal, note or task, optionally below a parent entry.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"module":        {Type: "string", Description: "Entry type", Enum: []string{"JOURNAL", "NOTE", "TODO"}},
					"summary":       {Type: "string", Description: "Title"},
					"description":   {Type: "string", Description: "Body text"},
					"categories":    {Type: "string", Description: "Comma separated categories"},
					"parent_uid":    {Type: "string", Description: "UID of the parent entry"},
					"collection_id": {Type: "number", Description: "Target collection (default: local)"},
				},
				Required: []string{"module", "summary"},
			},
		},
		{
			Name:        "pim_link",
			Description: "Link an entry below a parent. Linking twice is a no-op.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"id":         idProp,
					"parent_uid": {Type: "string", Description: "UID of the parent entry"},
					"reltype":    {Type: "string", Description: "Relation type", Enum: []string{"PARENT", "CHILD", "SIBLING"}},
				},
				Required: []string{"id", "parent_uid"},
			},
		},
		{
			Name:        "pim_unlink",
			Description: "Remove the link between an entry and its parent, optionally deleting the entry afterwards.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"id":           idProp,
					"parent_uid":   {Type: "string", Description: "UID of the parent entry"},
					"delete_after": {Type: "boolean", Description: "Delete the entry and its children after unlinking"},
				},
				Required: []string{"id", "parent_uid"},
			},
		},
		{
			Name:        "pim_delete",
			Description: "Delete an entry together with all of its children. Nothing is deleted if any of them is read-only.",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]Property{"id": idProp},
				Required:   []string{"id"},
			},
		},
		{
			Name:        "pim_update_progress",
			Description: "Set the progress of a task in percent. With occurrence set, only that occurrence of a recurring task changes.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"id":         idProp,
					"percent":    {Type: "number", Description: "0 to 100"},
					"occurrence": {Type: "string", Description: "Start of the occurrence, RFC 3339"},
				},
				Required: []string{"id", "percent"},
			},
		},
		{
			Name:        "pim_move_to_collection",
			Description: "Move an entry (and a series' exceptions) to another collection.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"id":            idProp,
					"collection_id": {Type: "number", Description: "Target collection"},
				},
				Required: []string{"id", "collection_id"},
			},
		},
		{
			Name:        "pim_list_collections",
			Description: "List collections with their account and write access.",
			InputSchema: InputSchema{Type: "object", Properties: map[string]Property{}},
		},
		{
			Name:        "pim_export_ics",
			Description: "Export entries as iCalendar text. Recurring series include their exceptions.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"ids": {Type: "string", Description: "Comma separated entry IDs"},
				},
				Required: []string{"ids"},
			},
		},
	}
}

func (s *MCPServer) callTool(name string, a args) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), toolTimeout)
	defer cancel()

	switch name {
	case "pim_list_entries":
		return s.listEntries(ctx, a)
	case "pim_create_entry":
		return s.createEntry(ctx, a)
	case "pim_link":
		id, err := a.id("id")
		if err != nil {
			return "", err
		}
		relType := domain.RelTypeParent
		if raw := a.str("reltype"); raw != "" {
			relType, _ = domain.ParseRelType(raw)
		}
		added, err := s.relations.Link(ctx, id, a.str("parent_uid"), relType)
		if err != nil {
			return "", err
		}
		if !added {
			return "Already linked", nil
		}
		return "Linked", nil
	case "pim_unlink":
		id, err := a.id("id")
		if err != nil {
			return "", err
		}
		if err := s.relations.Unlink(ctx, id, a.str("parent_uid"), a.flag("delete_after")); err != nil {
			return "", err
		}
		return "Unlinked", nil
	case "pim_delete":
		id, err := a.id("id")
		if err != nil {
			return "", err
		}
		n, err := s.relations.DeleteWithChildren(ctx, id)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Deleted %d entries", n), nil
	case "pim_update_progress":
		return s.updateProgress(ctx, a)
	case "pim_move_to_collection":
		id, err := a.id("id")
		if err != nil {
			return "", err
		}
		collectionID, err := a.id("collection_id")
		if err != nil {
			return "", err
		}
		if err := s.collections.MoveToCollection(ctx, id, collectionID); err != nil {
			return "", err
		}
		return "Moved", nil
	case "pim_list_collections":
		cols, err := s.collections.List(ctx)
		if err != nil {
			return "", err
		}
		return toJSON(cols)
	case "pim_export_ics":
		ids, err := a.ids("ids")
		if err != nil {
			return "", err
		}
		var sb strings.Builder
		if _, err := s.entries.Export(ctx, &sb, ids); err != nil {
			return "", err
		}
		return sb.String(), nil
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

type listRow struct {
	ID         int64      `json:"id"`
	UID        string     `json:"uid"`
	Kind       string     `json:"kind"`
	Summary    string     `json:"summary"`
	Status     string     `json:"status,omitempty"`
	Due        *time.Time `json:"due,omitempty"`
	Percent    *int       `json:"percent,omitempty"`
	Categories []string   `json:"categories,omitempty"`
	Collection string     `json:"collection"`
	Subtasks   int        `json:"subtasks,omitempty"`
	Subnotes   int        `json:"subnotes,omitempty"`
}

type listGroup struct {
	Key  string    `json:"key,omitempty"`
	Rows []listRow `json:"rows"`
}

func (s *MCPServer) listEntries(ctx context.Context, a args) (string, error) {
	m, ok := domain.ParseModule(strings.ToUpper(a.str("module")))
	if !ok {
		return "", fmt.Errorf("module %q: %w", a.str("module"), domain.ErrInvalidInput)
	}

	settings := domain.NewListSettings(m)
	settings.SearchText = a.str("search")
	settings.SearchCategories = a.list("categories")
	settings.ExcludeDone = a.flag("exclude_done")
	settings.GroupBy, _ = domain.ParseGroupBy(strings.ToUpper(a.str("group_by")))
	for _, w := range a.list("due") {
		switch strings.ToLower(w) {
		case "overdue":
			settings.FilterOverdue = true
		case "today":
			settings.FilterDueToday = true
		case "tomorrow":
			settings.FilterDueTomorrow = true
		case "future":
			settings.FilterDueFuture = true
		case "none":
			settings.FilterNoDatesSet = true
		}
	}

	rows, err := s.storage.QueryList(ctx, query.BuildList(m, settings, s.now(), s.loc))
	if err != nil {
		return "", err
	}

	var out []listGroup
	for _, g := range service.GroupEntries(rows, settings.GroupBy, m, s.loc) {
		lg := listGroup{Key: g.Key, Rows: make([]listRow, 0, len(g.Rows))}
		for _, r := range g.Rows {
			lg.Rows = append(lg.Rows, listRow{
				ID:         r.ID,
				UID:        r.UID,
				Kind:       r.Kind().String(),
				Summary:    r.Summary,
				Status:     string(r.Status),
				Due:        r.Due,
				Percent:    r.Percent,
				Categories: r.Categories,
				Collection: r.CollectionDisplayName,
				Subtasks:   r.NumSubtasks,
				Subnotes:   r.NumSubnotes,
			})
		}
		out = append(out, lg)
	}
	return toJSON(out)
}

func (s *MCPServer) createEntry(ctx context.Context, a args) (string, error) {
	var o *domain.ICalObject
	switch m, _ := domain.ParseModule(strings.ToUpper(a.str("module"))); m {
	case domain.ModuleJournal:
		o = domain.NewJournal(s.now())
	case domain.ModuleNote:
		o = domain.NewNote(s.now())
	case domain.ModuleTodo:
		o = domain.NewTodo(s.now())
	default:
		return "", fmt.Errorf("module %q: %w", a.str("module"), domain.ErrInvalidInput)
	}
	o.Summary = a.str("summary")
	o.Description = a.str("description")
	if _, ok := a["collection_id"]; ok {
		id, err := a.id("collection_id")
		if err != nil {
			return "", err
		}
		o.CollectionID = id
	}

	created, err := s.entries.InsertQuickItem(ctx, o, a.list("categories"), a.str("parent_uid"))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created %s %d (uid %s)", created.Module, created.ID, created.UID), nil
}

func (s *MCPServer) updateProgress(ctx context.Context, a args) (string, error) {
	id, err := a.id("id")
	if err != nil {
		return "", err
	}
	percent, err := a.id("percent")
	if err != nil {
		return "", err
	}

	ref := domain.RefID(id)
	if raw := a.str("occurrence"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return "", fmt.Errorf("occurrence %q: %w", raw, domain.ErrInvalidInput)
		}
		ref = domain.RefOccurrence(id, t)
	}

	o, err := s.entries.UpdateProgress(ctx, ref, int(percent))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Entry %d is %s", o.ID, o.Status), nil
}

func toJSON(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(data), nil
}

// args reads tool arguments. JSON numbers arrive as float64; clients also
// send numbers as strings.
type args map[string]interface{}

func (a args) str(key string) string {
	switch v := a[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (a args) flag(key string) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func (a args) id(key string) (int64, error) {
	switch v := a[key].(type) {
	case float64:
		return int64(v), nil
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a number: %w", key, domain.ErrInvalidInput)
		}
		return id, nil
	case nil:
		return 0, fmt.Errorf("%s is required: %w", key, domain.ErrInvalidInput)
	}
	return 0, fmt.Errorf("%s must be a number: %w", key, domain.ErrInvalidInput)
}

func (a args) list(key string) []string {
	var raw []string
	switch v := a[key].(type) {
	case string:
		raw = strings.Split(v, ",")
	case []interface{}:
		for _, item := range v {
			raw = append(raw, fmt.Sprintf("%v", item))
		}
	}
	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (a args) ids(key string) ([]int64, error) {
	var out []int64
	for _, s := range a.list(key) {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a number: %w", key, s, domain.ErrInvalidInput)
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s is required: %w", key, domain.ErrInvalidInput)
	}
	return out, nil
}
