package domain

const (
	LocalCollectionID int64 = 1
	LocalAccountType        = "LOCAL"
	LocalAccountName        = "LOCAL"
)

// Collection groups entries. Remote collections belong to a sync account.
type Collection struct {
	ID               int64
	URL              string
	DisplayName      string
	Description      string
	Color            *int
	SupportsVJournal bool
	SupportsVTodo    bool
	AccountName      string
	AccountType      string
	ReadOnly         bool
}

// Account identifies an external sync account.
type Account struct {
	Name string
	Type string
}

func (c *Collection) IsRemote() bool {
	return c.AccountType != LocalAccountType
}

func (c *Collection) Account() Account {
	return Account{Name: c.AccountName, Type: c.AccountType}
}

func (c *Collection) Supports(comp Component) bool {
	switch comp {
	case ComponentJournal:
		return c.SupportsVJournal
	case ComponentTodo:
		return c.SupportsVTodo
	default:
		return false
	}
}

// Writeable reports whether entries of module m may be stored in c.
func (c *Collection) Writeable(m Module) bool {
	return !c.ReadOnly && c.Supports(m.Component())
}
