package domain

import "time"

// Child records below are owned by exactly one ICalObject and go away with it.

type Category struct {
	ID           int64
	ICalObjectID int64
	Text         string
}

type Resource struct {
	ID           int64
	ICalObjectID int64
	Text         string
}

type Attendee struct {
	ID           int64
	ICalObjectID int64
	CalAddress   string
	CommonName   string
	Role         string
	PartStat     string
}

type Organizer struct {
	ID           int64
	ICalObjectID int64
	CalAddress   string
	CommonName   string
}

type Comment struct {
	ID           int64
	ICalObjectID int64
	Text         string
}

type Attachment struct {
	ID           int64
	ICalObjectID int64
	URI          string
	FmtType      string
	Filename     string
}

type Alarm struct {
	ID           int64
	ICalObjectID int64
	Action       string
	Description  string
	// TriggerRelativeDuration is an ISO-8601 duration such as "-PT15M".
	TriggerRelativeDuration string
	TriggerTime             *time.Time
}

type RelType string

const (
	RelTypeParent  RelType = "PARENT"
	RelTypeChild   RelType = "CHILD"
	RelTypeSibling RelType = "SIBLING"
	// RelTypeSeries points an exception at the UID of its series.
	RelTypeSeries  RelType = "X-SERIES"
)

func ParseRelType(s string) (RelType, bool) {
	switch RelType(s) {
	case RelTypeParent, RelTypeChild, RelTypeSibling, RelTypeSeries:
		return RelType(s), true
	case "":
		return RelTypeParent, true
	}
	return "", false
}

// Relation is an edge owned by ICalObjectID that points at the entry with
// UID Text. (child, PARENT, parentUID) is the child-to-parent edge.
type Relation struct {
	ID           int64
	ICalObjectID int64
	Text         string
	RelType      RelType
}

// ICalEntity is an entry together with all of its child records.
type ICalEntity struct {
	Object      *ICalObject
	Categories  []Category
	Resources   []Resource
	Attendees   []Attendee
	Organizer   *Organizer
	Comments    []Comment
	Attachments []Attachment
	Alarms      []Alarm
	Relations   []Relation
}

// CategoryTexts returns the category names in stored order.
func (e *ICalEntity) CategoryTexts() []string {
	out := make([]string, 0, len(e.Categories))
	for _, c := range e.Categories {
		out = append(out, c.Text)
	}
	return out
}

// ParentUIDs returns the UIDs this entry is linked to as a child.
// SeriesUID returns the target of the series edge, if any.
func (e *ICalEntity) SeriesUID() string {
	for _, r := range e.Relations {
		if r.RelType == RelTypeSeries {
			return r.Text
		}
	}
	return ""
}

func (e *ICalEntity) ParentUIDs() []string {
	var out []string
	for _, r := range e.Relations {
		if r.RelType == RelTypeParent {
			out = append(out, r.Text)
		}
	}
	return out
}
