package ics

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/tazhate/pimstore/internal/domain"
)

// Decode reads every VJOURNAL and VTODO of every calendar in r. Components
// of other types are skipped. now fills in missing timestamps.
func Decode(r io.Reader, now time.Time) ([]*domain.ICalEntity, error) {
	dec := ical.NewDecoder(r)

	var out []*domain.ICalEntity
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode calendar: %w", err)
		}

		for _, comp := range cal.Children {
			if comp.Name != ical.CompToDo && comp.Name != ical.CompJournal {
				continue
			}
			e, err := componentToEntity(comp, now)
			if err != nil {
				log.Printf("ics: skip %s: %v", comp.Name, err)
				continue
			}
			out = append(out, e)
		}
	}
	return out, nil
}

// DecodeString is Decode over a string.
func DecodeString(s string, now time.Time) ([]*domain.ICalEntity, error) {
	return Decode(strings.NewReader(s), now)
}

func componentToEntity(comp *ical.Component, now time.Time) (*domain.ICalEntity, error) {
	uid, err := comp.Props.Text(ical.PropUID)
	if err != nil || uid == "" {
		return nil, fmt.Errorf("missing UID: %w", domain.ErrInvalidInput)
	}

	o := &domain.ICalObject{
		UID:          uid,
		CollectionID: domain.LocalCollectionID,
		Created:      now,
		LastModified: now,
		DTStamp:      now,
	}

	o.Summary = text(comp, ical.PropSummary)
	o.Description = text(comp, ical.PropDescription)
	o.Location = text(comp, ical.PropLocation)
	o.Status, _ = domain.ParseStatus(text(comp, ical.PropStatus))
	o.Classification, _ = domain.ParseClassification(text(comp, ical.PropClass))
	o.Priority = intProp(comp, ical.PropPriority)
	o.Percent = intProp(comp, ical.PropPercentComplete)
	if seq := intProp(comp, ical.PropSequence); seq != nil {
		o.Sequence = int64(*seq)
	}
	if prop := comp.Props.Get(ical.PropRecurrenceRule); prop != nil {
		o.RRule = strings.TrimSpace(prop.Value)
	}

	o.DTStart, o.DTStartTimezone = timeProp(comp, ical.PropDateTimeStart)
	o.DTEnd, o.DTEndTimezone = timeProp(comp, ical.PropDateTimeEnd)
	o.Due, o.DueTimezone = timeProp(comp, ical.PropDue)
	o.Completed, o.CompletedTimezone = timeProp(comp, ical.PropCompleted)

	if t, _ := timeProp(comp, ical.PropCreated); t != nil {
		o.Created = *t
	}
	if t, _ := timeProp(comp, ical.PropLastModified); t != nil {
		o.LastModified = *t
	}
	if t, _ := timeProp(comp, ical.PropDateTimeStamp); t != nil {
		o.DTStamp = *t
	}

	for _, prop := range comp.Props[ical.PropExceptionDates] {
		for _, v := range strings.Split(prop.Value, ",") {
			single := ical.Prop{Name: prop.Name, Params: prop.Params, Value: strings.TrimSpace(v)}
			if t, err := single.DateTime(time.UTC); err == nil {
				o.ExDates = append(o.ExDates, t.UTC())
			}
		}
	}

	if prop := comp.Props.Get(ical.PropRecurrenceID); prop != nil {
		allDay := prop.ValueType() == ical.ValueDate
		t, err := prop.DateTime(time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse RECURRENCE-ID: %w", err)
		}
		tz := ""
		if allDay {
			tz = domain.TZAllDay
		}
		o.RecurID = domain.FormatRecurID(t, tz)
		o.RecurIDTimezone = prop.Params.Get(ical.ParamTimezoneID)
	}

	switch comp.Name {
	case ical.CompToDo:
		o.Module = domain.ModuleTodo
	case ical.CompJournal:
		// Journals carry a date; entries without one are notes.
		if o.DTStart != nil {
			o.Module = domain.ModuleJournal
		} else {
			o.Module = domain.ModuleNote
		}
	}
	o.Component = o.Module.Component()
	o.Dirty = false

	e := &domain.ICalEntity{Object: o}

	for _, prop := range comp.Props[ical.PropCategories] {
		list, err := prop.TextList()
		if err != nil {
			continue
		}
		for _, c := range list {
			if c = strings.TrimSpace(c); c != "" {
				e.Categories = append(e.Categories, domain.Category{Text: c})
			}
		}
	}
	for _, prop := range comp.Props[ical.PropResources] {
		list, err := prop.TextList()
		if err != nil {
			continue
		}
		for _, r := range list {
			if r = strings.TrimSpace(r); r != "" {
				e.Resources = append(e.Resources, domain.Resource{Text: r})
			}
		}
	}
	for _, prop := range comp.Props[ical.PropComment] {
		if t, err := prop.Text(); err == nil {
			e.Comments = append(e.Comments, domain.Comment{Text: t})
		}
	}
	for _, prop := range comp.Props[ical.PropAttendee] {
		e.Attendees = append(e.Attendees, domain.Attendee{
			CalAddress: prop.Value,
			CommonName: prop.Params.Get(ical.ParamCommonName),
			Role:       prop.Params.Get(ical.ParamRole),
			PartStat:   prop.Params.Get(ical.ParamParticipationStatus),
		})
	}
	if prop := comp.Props.Get(ical.PropOrganizer); prop != nil {
		e.Organizer = &domain.Organizer{
			CalAddress: prop.Value,
			CommonName: prop.Params.Get(ical.ParamCommonName),
		}
	}
	for _, prop := range comp.Props[ical.PropAttach] {
		e.Attachments = append(e.Attachments, domain.Attachment{
			URI:      prop.Value,
			FmtType:  prop.Params.Get(ical.ParamFormatType),
			Filename: prop.Params.Get("FILENAME"),
		})
	}
	for _, prop := range comp.Props[ical.PropRelatedTo] {
		relType, ok := domain.ParseRelType(strings.ToUpper(prop.Params.Get(ical.ParamRelationshipType)))
		if !ok || prop.Value == "" {
			continue
		}
		e.Relations = append(e.Relations, domain.Relation{Text: prop.Value, RelType: relType})
	}
	if o.RecurID != "" && e.SeriesUID() == "" {
		e.Relations = append(e.Relations, domain.Relation{Text: o.UID, RelType: domain.RelTypeSeries})
	}
	for _, child := range comp.Children {
		if child.Name == ical.CompAlarm {
			e.Alarms = append(e.Alarms, componentToAlarm(child))
		}
	}

	return e, nil
}

func componentToAlarm(comp *ical.Component) domain.Alarm {
	a := domain.Alarm{
		Action:      text(comp, ical.PropAction),
		Description: text(comp, ical.PropDescription),
	}
	if a.Action == "" {
		a.Action = "DISPLAY"
	}
	if prop := comp.Props.Get(ical.PropTrigger); prop != nil {
		if prop.ValueType() == ical.ValueDateTime {
			if t, err := prop.DateTime(time.UTC); err == nil {
				a.TriggerTime = &t
			}
		} else {
			a.TriggerRelativeDuration = prop.Value
		}
	}
	return a
}

func text(comp *ical.Component, name string) string {
	s, err := comp.Props.Text(name)
	if err != nil {
		return ""
	}
	return s
}

func intProp(comp *ical.Component, name string) *int {
	prop := comp.Props.Get(name)
	if prop == nil {
		return nil
	}
	n, err := prop.Int()
	if err != nil {
		return nil
	}
	return &n
}

// timeProp returns the value in UTC and its timezone label: ALLDAY for
// dates, the TZID for zoned values, empty for UTC and floating values.
func timeProp(comp *ical.Component, name string) (*time.Time, string) {
	prop := comp.Props.Get(name)
	if prop == nil {
		return nil, ""
	}
	t, err := prop.DateTime(time.UTC)
	if err != nil {
		return nil, ""
	}
	t = t.UTC()

	switch {
	case prop.ValueType() == ical.ValueDate:
		return &t, domain.TZAllDay
	case prop.Params.Get(ical.ParamTimezoneID) != "":
		return &t, prop.Params.Get(ical.ParamTimezoneID)
	default:
		return &t, ""
	}
}
