package domain

import "time"

// ICal4List is one row of the denormalized list view.
type ICal4List struct {
	ID             int64
	UID            string
	Module         Module
	Component      Component
	Summary        string
	Description    string
	DTStart        *time.Time
	DTStartTZ      string
	Due            *time.Time
	DueTZ          string
	Completed      *time.Time
	Status         Status
	Classification Classification
	Priority       *int
	Percent        *int
	RRule          string
	RecurID        string
	Created        time.Time
	LastModified   time.Time

	CollectionID          int64
	CollectionDisplayName string
	CollectionColor       *int
	AccountName           string
	AccountType           string
	IsReadOnly            bool

	IsChildOfJournal bool
	IsChildOfNote    bool
	IsChildOfTodo    bool
	NumSubtasks      int
	NumSubnotes      int
	Categories       []string
}

func (r *ICal4List) Kind() Kind {
	switch {
	case r.RecurID != "":
		return KindException
	case r.RRule != "":
		return KindSeries
	default:
		return KindPlain
	}
}
