package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TZAllDay marks a date without time of day.
const TZAllDay = "ALLDAY"

type Status string

const (
	StatusNone        Status = ""
	StatusDraft       Status = "DRAFT"
	StatusFinal       Status = "FINAL"
	StatusCancelled   Status = "CANCELLED"
	StatusNeedsAction Status = "NEEDS-ACTION"
	StatusInProcess   Status = "IN-PROCESS"
	StatusCompleted   Status = "COMPLETED"
)

var (
	journalStatuses = []Status{StatusDraft, StatusFinal, StatusCancelled}
	todoStatuses    = []Status{StatusNeedsAction, StatusInProcess, StatusCompleted, StatusCancelled}
)

// ParseStatus normalizes s. The second result is false when s is not a
// status known for any module.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusDraft, StatusFinal, StatusCancelled, StatusNeedsAction, StatusInProcess, StatusCompleted:
		return st, true
	}
	return StatusNone, false
}

// StatusRank orders statuses of a module along their progression. Values the
// module does not know, including an empty status, rank -1.
func StatusRank(m Module, st Status) int {
	for i, s := range m.Rules().Statuses {
		if s == st {
			return i
		}
	}
	return -1
}

type Classification string

const (
	ClassificationNone         Classification = ""
	ClassificationPublic       Classification = "PUBLIC"
	ClassificationPrivate      Classification = "PRIVATE"
	ClassificationConfidential Classification = "CONFIDENTIAL"
)

var classifications = []Classification{ClassificationPublic, ClassificationPrivate, ClassificationConfidential}

func ParseClassification(s string) (Classification, bool) {
	c := Classification(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range classifications {
		if c == known {
			return c, true
		}
	}
	return ClassificationNone, false
}

// ClassificationRank returns -1 for unknown or empty values.
func ClassificationRank(c Classification) int {
	for i, known := range classifications {
		if c == known {
			return i
		}
	}
	return -1
}

// Kind tells plain entries, recurring series and their exceptions apart.
type Kind int

const (
	KindPlain Kind = iota
	KindSeries
	KindException
)

func (k Kind) String() string {
	switch k {
	case KindSeries:
		return "series"
	case KindException:
		return "exception"
	default:
		return "plain"
	}
}

// ICalObject is one journal, note or task.
type ICalObject struct {
	ID          int64
	UID         string
	Component   Component
	Module      Module
	Summary     string
	Description string
	Location    string

	DTStart           *time.Time
	DTStartTimezone   string
	DTEnd             *time.Time
	DTEndTimezone     string
	Due               *time.Time
	DueTimezone       string
	Completed         *time.Time
	CompletedTimezone string

	Status         Status
	Classification Classification
	Priority       *int
	Percent        *int

	// Sequence is bumped on every local change.
	Sequence int64

	RRule           string
	ExDates         []time.Time
	RecurID         string
	RecurIDTimezone string

	CollectionID int64
	Dirty        bool

	Created      time.Time
	LastModified time.Time
	DTStamp      time.Time
}

func NewUID() string {
	return uuid.NewString()
}

func newObject(m Module, now time.Time) *ICalObject {
	return &ICalObject{
		UID:            NewUID(),
		Component:      m.Component(),
		Module:         m,
		Classification: ClassificationPublic,
		CollectionID:   LocalCollectionID,
		Dirty:          true,
		Created:        now,
		LastModified:   now,
		DTStamp:        now,
	}
}

func NewJournal(now time.Time) *ICalObject {
	o := newObject(ModuleJournal, now)
	o.Status = StatusFinal
	day := startOfDay(now, time.UTC)
	o.DTStart = &day
	o.DTStartTimezone = TZAllDay
	return o
}

func NewNote(now time.Time) *ICalObject {
	o := newObject(ModuleNote, now)
	o.Status = StatusFinal
	return o
}

func NewTodo(now time.Time) *ICalObject {
	o := newObject(ModuleTodo, now)
	o.Status = StatusNeedsAction
	zero := 0
	o.Percent = &zero
	return o
}

// Kind is derived from the presence of RecurID and RRule. An entry carrying
// both is an exception.
func (o *ICalObject) Kind() Kind {
	switch {
	case o.RecurID != "":
		return KindException
	case o.RRule != "":
		return KindSeries
	default:
		return KindPlain
	}
}

// Touch records a local modification.
func (o *ICalObject) Touch(now time.Time) {
	o.Sequence++
	o.LastModified = now
	o.DTStamp = now
	o.Dirty = true
}

// SetUpdatedProgress moves percent, status and completion time together.
func (o *ICalObject) SetUpdatedProgress(percent int, now time.Time) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	switch {
	case percent == 0:
		o.Percent = nil
		o.Status = StatusNeedsAction
		o.Completed = nil
		o.CompletedTimezone = ""
	case percent == 100:
		o.Percent = &percent
		o.Status = StatusCompleted
		completed := now.UTC()
		o.Completed = &completed
		o.CompletedTimezone = ""
	default:
		o.Percent = &percent
		o.Status = StatusInProcess
		o.Completed = nil
		o.CompletedTimezone = ""
	}
	o.Touch(now)
}

// IsDone reports whether a task is fully completed.
func (o *ICalObject) IsDone() bool {
	return o.Percent != nil && *o.Percent == 100
}

// Clone returns a deep copy.
func (o *ICalObject) Clone() *ICalObject {
	c := *o
	c.DTStart = cloneTime(o.DTStart)
	c.DTEnd = cloneTime(o.DTEnd)
	c.Due = cloneTime(o.Due)
	c.Completed = cloneTime(o.Completed)
	c.Priority = cloneInt(o.Priority)
	c.Percent = cloneInt(o.Percent)
	c.ExDates = append([]time.Time(nil), o.ExDates...)
	return &c
}

// Location resolves a timezone label. Empty labels and ALLDAY map to
// fallback; unknown zone names too.
func Location(tz string, fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	if tz == "" || tz == TZAllDay {
		return fallback
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fallback
	}
	return loc
}

const (
	recurIDDateLayout     = "20060102"
	recurIDDateTimeLayout = "20060102T150405Z"
)

// FormatRecurID renders an occurrence start the way RECURRENCE-ID values are
// written: a date for all-day series, a UTC date-time otherwise.
func FormatRecurID(t time.Time, tz string) string {
	if tz == TZAllDay {
		return t.Format(recurIDDateLayout)
	}
	return t.UTC().Format(recurIDDateTimeLayout)
}

// ParseRecurID reverses FormatRecurID.
func ParseRecurID(s string) (time.Time, bool) {
	if t, err := time.Parse(recurIDDateTimeLayout, s); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation(recurIDDateLayout, s, time.UTC); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}
