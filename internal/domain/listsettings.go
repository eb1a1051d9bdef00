package domain

import (
	"fmt"

	"github.com/tazhate/pimstore/internal/prefs"
)

type GroupBy string

const (
	GroupByNone           GroupBy = ""
	GroupByStatus         GroupBy = "STATUS"
	GroupByClassification GroupBy = "CLASSIFICATION"
	GroupByPriority       GroupBy = "PRIORITY"
	GroupByDate           GroupBy = "DATE"
	GroupByStart          GroupBy = "START"
	GroupByDue            GroupBy = "DUE"
)

func ParseGroupBy(s string) (GroupBy, bool) {
	switch g := GroupBy(s); g {
	case GroupByNone, GroupByStatus, GroupByClassification, GroupByPriority, GroupByDate, GroupByStart, GroupByDue:
		return g, true
	}
	return GroupByNone, false
}

type OrderBy string

const (
	OrderByDefault        OrderBy = ""
	OrderByStart          OrderBy = "START"
	OrderByDue            OrderBy = "DUE"
	OrderByCompleted      OrderBy = "COMPLETED"
	OrderByCreated        OrderBy = "CREATED"
	OrderByLastModified   OrderBy = "LAST_MODIFIED"
	OrderBySummary        OrderBy = "SUMMARY"
	OrderByPriority       OrderBy = "PRIORITY"
	OrderByStatus         OrderBy = "STATUS"
	OrderByClassification OrderBy = "CLASSIFICATION"
)

func ParseOrderBy(s string) (OrderBy, bool) {
	switch o := OrderBy(s); o {
	case OrderByDefault, OrderByStart, OrderByDue, OrderByCompleted, OrderByCreated,
		OrderByLastModified, OrderBySummary, OrderByPriority, OrderByStatus, OrderByClassification:
		return o, true
	}
	return OrderByDefault, false
}

type SortOrder string

const (
	SortAscending  SortOrder = "ASC"
	SortDescending SortOrder = "DESC"
)

func ParseSortOrder(s string) (SortOrder, bool) {
	switch o := SortOrder(s); o {
	case SortAscending, SortDescending:
		return o, true
	}
	return SortAscending, false
}

type ViewMode string

const (
	ViewModeList    ViewMode = "LIST"
	ViewModeGrid    ViewMode = "GRID"
	ViewModeCompact ViewMode = "COMPACT"
	ViewModeKanban  ViewMode = "KANBAN"
)

func ParseViewMode(s string) (ViewMode, bool) {
	switch v := ViewMode(s); v {
	case ViewModeList, ViewModeGrid, ViewModeCompact, ViewModeKanban:
		return v, true
	}
	return ViewModeList, false
}

// Preference keys of a list namespace.
const (
	KeySearchCategories     = "search_categories"
	KeySearchOrganizers     = "search_organizers"
	KeySearchStatus         = "search_status"
	KeySearchClassification = "search_classification"
	KeySearchCollections    = "search_collections"
	KeySearchAccounts       = "search_accounts"
	KeyExcludeDone          = "exclude_done"
	KeyFilterOverdue        = "filter_overdue"
	KeyFilterDueToday       = "filter_due_today"
	KeyFilterDueTomorrow    = "filter_due_tomorrow"
	KeyFilterDueFuture      = "filter_due_future"
	KeyFilterNoDatesSet     = "filter_no_dates_set"
	KeyGroupBy              = "group_by"
	KeyOrderBy              = "order_by"
	KeySortOrder            = "sort_order"
	KeyOrderBy2             = "order_by_2"
	KeySortOrder2           = "sort_order_2"
	KeyViewMode             = "view_mode"
	KeyShowAllSubentries    = "show_all_subentries"
)

// SettingKeys enumerates every persisted key.
var SettingKeys = []string{
	KeySearchCategories, KeySearchOrganizers, KeySearchStatus, KeySearchClassification,
	KeySearchCollections, KeySearchAccounts, KeyExcludeDone, KeyFilterOverdue,
	KeyFilterDueToday, KeyFilterDueTomorrow, KeyFilterDueFuture, KeyFilterNoDatesSet,
	KeyGroupBy, KeyOrderBy, KeySortOrder, KeyOrderBy2, KeySortOrder2, KeyViewMode,
	KeyShowAllSubentries,
}

// ListSettings is the filter, sort and view configuration of one module's
// list. SearchText is transient and never persisted.
type ListSettings struct {
	Module     Module
	SearchText string

	SearchCategories     []string
	SearchOrganizers     []string
	SearchStatus         []Status
	SearchClassification []Classification
	SearchCollections    []string
	SearchAccounts       []string

	ExcludeDone       bool
	FilterOverdue     bool
	FilterDueToday    bool
	FilterDueTomorrow bool
	FilterDueFuture   bool
	FilterNoDatesSet  bool

	GroupBy    GroupBy
	OrderBy    OrderBy
	SortOrder  SortOrder
	OrderBy2   OrderBy
	SortOrder2 SortOrder
	ViewMode   ViewMode

	// ShowAllSubentries lists entries that are children of another module's
	// entries as top-level rows too.
	ShowAllSubentries bool
}

// NewListSettings returns the compiled-in defaults for m.
func NewListSettings(m Module) *ListSettings {
	s := &ListSettings{Module: m}
	s.Reset()
	return s
}

// Namespace is the preference namespace of the module's list.
func (s *ListSettings) Namespace() string {
	return fmt.Sprintf("list_%s", s.Module)
}

// Reset restores the defaults of every dimension except the module.
func (s *ListSettings) Reset() {
	*s = ListSettings{
		Module:     s.Module,
		SortOrder:  SortAscending,
		SortOrder2: SortAscending,
		ViewMode:   ViewModeList,
	}
}

// Load resets s and overlays persisted values. Values of the wrong type and
// unknown enum values fall back to defaults.
func (s *ListSettings) Load(store prefs.Store) error {
	s.Reset()
	values, err := store.Load(s.Namespace())
	if err != nil {
		return fmt.Errorf("load list settings: %w", err)
	}
	s.ApplyValues(values)
	return nil
}

// Save persists every key of s.
func (s *ListSettings) Save(store prefs.Store) error {
	if err := store.Save(s.Namespace(), s.Values()); err != nil {
		return fmt.Errorf("save list settings: %w", err)
	}
	return nil
}

// ApplyValues overlays values on s.
func (s *ListSettings) ApplyValues(values prefs.Values) {
	s.SearchCategories = values.StringSet(KeySearchCategories)
	s.SearchOrganizers = values.StringSet(KeySearchOrganizers)
	s.SearchCollections = values.StringSet(KeySearchCollections)
	s.SearchAccounts = values.StringSet(KeySearchAccounts)

	s.SearchStatus = nil
	for _, raw := range values.StringSet(KeySearchStatus) {
		if st, ok := ParseStatus(raw); ok {
			s.SearchStatus = append(s.SearchStatus, st)
		}
	}
	s.SearchClassification = nil
	for _, raw := range values.StringSet(KeySearchClassification) {
		if c, ok := ParseClassification(raw); ok {
			s.SearchClassification = append(s.SearchClassification, c)
		}
	}

	s.ExcludeDone = values.Bool(KeyExcludeDone, false)
	s.FilterOverdue = values.Bool(KeyFilterOverdue, false)
	s.FilterDueToday = values.Bool(KeyFilterDueToday, false)
	s.FilterDueTomorrow = values.Bool(KeyFilterDueTomorrow, false)
	s.FilterDueFuture = values.Bool(KeyFilterDueFuture, false)
	s.FilterNoDatesSet = values.Bool(KeyFilterNoDatesSet, false)
	s.ShowAllSubentries = values.Bool(KeyShowAllSubentries, false)

	s.GroupBy, _ = ParseGroupBy(values.String(KeyGroupBy, string(GroupByNone)))
	s.OrderBy, _ = ParseOrderBy(values.String(KeyOrderBy, string(OrderByDefault)))
	s.SortOrder, _ = ParseSortOrder(values.String(KeySortOrder, string(SortAscending)))
	s.OrderBy2, _ = ParseOrderBy(values.String(KeyOrderBy2, string(OrderByDefault)))
	s.SortOrder2, _ = ParseSortOrder(values.String(KeySortOrder2, string(SortAscending)))
	s.ViewMode, _ = ParseViewMode(values.String(KeyViewMode, string(ViewModeList)))
}

// Values renders s as preference values, one entry per SettingKeys element.
func (s *ListSettings) Values() prefs.Values {
	statuses := make([]string, 0, len(s.SearchStatus))
	for _, st := range s.SearchStatus {
		statuses = append(statuses, string(st))
	}
	classes := make([]string, 0, len(s.SearchClassification))
	for _, c := range s.SearchClassification {
		classes = append(classes, string(c))
	}

	return prefs.Values{
		KeySearchCategories:     orEmpty(s.SearchCategories),
		KeySearchOrganizers:     orEmpty(s.SearchOrganizers),
		KeySearchStatus:         statuses,
		KeySearchClassification: classes,
		KeySearchCollections:    orEmpty(s.SearchCollections),
		KeySearchAccounts:       orEmpty(s.SearchAccounts),
		KeyExcludeDone:          s.ExcludeDone,
		KeyFilterOverdue:        s.FilterOverdue,
		KeyFilterDueToday:       s.FilterDueToday,
		KeyFilterDueTomorrow:    s.FilterDueTomorrow,
		KeyFilterDueFuture:      s.FilterDueFuture,
		KeyFilterNoDatesSet:     s.FilterNoDatesSet,
		KeyGroupBy:              string(s.GroupBy),
		KeyOrderBy:              string(s.OrderBy),
		KeySortOrder:            string(s.SortOrder),
		KeyOrderBy2:             string(s.OrderBy2),
		KeySortOrder2:           string(s.SortOrder2),
		KeyViewMode:             string(s.ViewMode),
		KeyShowAllSubentries:    s.ShowAllSubentries,
	}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *ListSettings) Clone() *ListSettings {
	c := *s
	c.SearchCategories = append([]string(nil), s.SearchCategories...)
	c.SearchOrganizers = append([]string(nil), s.SearchOrganizers...)
	c.SearchStatus = append([]Status(nil), s.SearchStatus...)
	c.SearchClassification = append([]Classification(nil), s.SearchClassification...)
	c.SearchCollections = append([]string(nil), s.SearchCollections...)
	c.SearchAccounts = append([]string(nil), s.SearchAccounts...)
	return &c
}

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return append([]string(nil), list...)
}

// StoredListSetting is a named preset of a module's list settings.
type StoredListSetting struct {
	ID       int64
	Module   Module
	Name     string
	Settings *ListSettings
}
