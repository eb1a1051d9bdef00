package caldav

import (
	"strconv"
	"strings"

	"github.com/emersion/go-ical"

	"github.com/tazhate/pimstore/internal/domain"
)

// Calendar represents a calendar collection on the server
type Calendar struct {
	Path        string
	DisplayName string
	Description string
	Color       string // #RRGGBB or #RRGGBBAA, when the server reports one
	URL         string
	Components  []string // supported component set, e.g. VTODO
}

// Collection maps the calendar to a stored collection. Account fields are
// left for the caller.
func (c Calendar) Collection() domain.Collection {
	name := c.DisplayName
	if name == "" {
		name = strings.Trim(c.Path[strings.LastIndex(strings.TrimRight(c.Path, "/"), "/")+1:], "/")
	}
	return domain.Collection{
		URL:              c.URL,
		DisplayName:      name,
		Description:      c.Description,
		Color:            parseColor(c.Color),
		SupportsVJournal: supports(c.Components, ical.CompJournal),
		SupportsVTodo:    supports(c.Components, ical.CompToDo),
	}
}

// parseColor reads #RRGGBB and #RRGGBBAA as an opaque RGB integer.
func parseColor(s string) *int {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 8 {
		s = s[:6]
	}
	if len(s) != 6 {
		return nil
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return nil
	}
	color := int(v)
	return &color
}
