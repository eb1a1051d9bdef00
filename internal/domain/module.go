package domain

// Module is one of the three kinds of entries the app manages.
type Module string

const (
	ModuleJournal Module = "JOURNAL"
	ModuleNote    Module = "NOTE"
	ModuleTodo    Module = "TODO"
)

// Modules lists every module in display order.
var Modules = []Module{ModuleJournal, ModuleNote, ModuleTodo}

// Component is the iCalendar component an entry is stored as.
type Component string

const (
	ComponentJournal Component = "VJOURNAL"
	ComponentTodo    Component = "VTODO"
)

// ModuleRules holds everything that differs between modules.
type ModuleRules struct {
	Component Component
	// DefaultOrder is used when the user picked no explicit order.
	DefaultOrder []OrderTerm
	// Statuses are the status values that make sense for the module,
	// in their natural progression.
	Statuses []Status
}

// OrderTerm is one ORDER BY element.
type OrderTerm struct {
	By    OrderBy
	Order SortOrder
}

var moduleRules = map[Module]ModuleRules{
	ModuleJournal: {
		Component: ComponentJournal,
		DefaultOrder: []OrderTerm{
			{By: OrderByStart, Order: SortAscending},
			{By: OrderByCreated, Order: SortAscending},
		},
		Statuses: journalStatuses,
	},
	ModuleNote: {
		Component: ComponentJournal,
		DefaultOrder: []OrderTerm{
			{By: OrderByLastModified, Order: SortDescending},
			{By: OrderByCreated, Order: SortAscending},
		},
		Statuses: journalStatuses,
	},
	ModuleTodo: {
		Component: ComponentTodo,
		DefaultOrder: []OrderTerm{
			{By: OrderByDue, Order: SortAscending},
			{By: OrderByCreated, Order: SortAscending},
		},
		Statuses: todoStatuses,
	},
}

// ParseModule returns the module for s and whether s named one.
func ParseModule(s string) (Module, bool) {
	m := Module(s)
	_, ok := moduleRules[m]
	return m, ok
}

func (m Module) Valid() bool {
	_, ok := moduleRules[m]
	return ok
}

// Rules returns the module's rules. Unknown modules get the journal rules.
func (m Module) Rules() ModuleRules {
	if r, ok := moduleRules[m]; ok {
		return r
	}
	return moduleRules[ModuleJournal]
}

func (m Module) Component() Component {
	return m.Rules().Component
}

// AllowsStatus reports whether st is meaningful for entries of the module.
func (m Module) AllowsStatus(st Status) bool {
	for _, s := range m.Rules().Statuses {
		if s == st {
			return true
		}
	}
	return false
}
