// Package ics converts entries to and from iCalendar data.
package ics

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/emersion/go-ical"

	"github.com/tazhate/pimstore/internal/domain"
)

const ProductID = "-//pimstore//pimstore//EN"

// Encode writes entries as one VCALENDAR.
func Encode(w io.Writer, entries []*domain.ICalEntity) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)

	for _, e := range entries {
		comp, err := entityToComponent(e)
		if err != nil {
			return err
		}
		cal.Children = append(cal.Children, comp)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

// EncodeString is Encode into a string.
func EncodeString(entries []*domain.ICalEntity) (string, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, entries); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func entityToComponent(e *domain.ICalEntity) (*ical.Component, error) {
	o := e.Object
	var comp *ical.Component
	switch o.Module.Component() {
	case domain.ComponentTodo:
		comp = ical.NewComponent(ical.CompToDo)
	case domain.ComponentJournal:
		comp = ical.NewComponent(ical.CompJournal)
	default:
		return nil, fmt.Errorf("encode %s: %w", o.UID, domain.ErrUnsupportedComponent)
	}

	comp.Props.SetText(ical.PropUID, o.UID)
	comp.Props.SetDateTime(ical.PropDateTimeStamp, o.DTStamp.UTC())
	comp.Props.SetDateTime(ical.PropCreated, o.Created.UTC())
	comp.Props.SetDateTime(ical.PropLastModified, o.LastModified.UTC())
	setRaw(comp, ical.PropSequence, strconv.FormatInt(o.Sequence, 10))

	if o.Summary != "" {
		comp.Props.SetText(ical.PropSummary, o.Summary)
	}
	if o.Description != "" {
		comp.Props.SetText(ical.PropDescription, o.Description)
	}
	if o.Location != "" {
		comp.Props.SetText(ical.PropLocation, o.Location)
	}
	if o.Status != domain.StatusNone {
		comp.Props.SetText(ical.PropStatus, string(o.Status))
	}
	if o.Classification != domain.ClassificationNone {
		comp.Props.SetText(ical.PropClass, string(o.Classification))
	}
	if o.Priority != nil {
		setRaw(comp, ical.PropPriority, strconv.Itoa(*o.Priority))
	}
	if o.Percent != nil && o.Module == domain.ModuleTodo {
		setRaw(comp, ical.PropPercentComplete, strconv.Itoa(*o.Percent))
	}

	setTime(comp, ical.PropDateTimeStart, o.DTStart, o.DTStartTimezone)
	setTime(comp, ical.PropDateTimeEnd, o.DTEnd, o.DTEndTimezone)
	if o.Module == domain.ModuleTodo {
		setTime(comp, ical.PropDue, o.Due, o.DueTimezone)
		if o.Completed != nil {
			comp.Props.SetDateTime(ical.PropCompleted, o.Completed.UTC())
		}
	}

	if o.RRule != "" {
		setRaw(comp, ical.PropRecurrenceRule, o.RRule)
	}
	for _, ex := range o.ExDates {
		prop := ical.NewProp(ical.PropExceptionDates)
		setPropTime(prop, ex, o.DTStartTimezone)
		comp.Props.Add(prop)
	}
	if o.RecurID != "" {
		prop := ical.NewProp(ical.PropRecurrenceID)
		prop.Value = o.RecurID
		if len(o.RecurID) == len("20060102") {
			prop.SetValueType(ical.ValueDate)
		}
		comp.Props.Set(prop)
	}

	if len(e.Categories) > 0 {
		prop := ical.NewProp(ical.PropCategories)
		prop.SetTextList(e.CategoryTexts())
		comp.Props.Set(prop)
	}
	if len(e.Resources) > 0 {
		texts := make([]string, 0, len(e.Resources))
		for _, r := range e.Resources {
			texts = append(texts, r.Text)
		}
		prop := ical.NewProp(ical.PropResources)
		prop.SetTextList(texts)
		comp.Props.Set(prop)
	}
	for _, c := range e.Comments {
		prop := ical.NewProp(ical.PropComment)
		prop.SetText(c.Text)
		comp.Props.Add(prop)
	}
	for _, a := range e.Attendees {
		prop := ical.NewProp(ical.PropAttendee)
		prop.Value = a.CalAddress
		setParam(prop, ical.ParamCommonName, a.CommonName)
		setParam(prop, ical.ParamRole, a.Role)
		setParam(prop, ical.ParamParticipationStatus, a.PartStat)
		comp.Props.Add(prop)
	}
	if e.Organizer != nil {
		prop := ical.NewProp(ical.PropOrganizer)
		prop.Value = e.Organizer.CalAddress
		setParam(prop, ical.ParamCommonName, e.Organizer.CommonName)
		comp.Props.Set(prop)
	}
	for _, a := range e.Attachments {
		prop := ical.NewProp(ical.PropAttach)
		prop.Value = a.URI
		setParam(prop, ical.ParamFormatType, a.FmtType)
		setParam(prop, "FILENAME", a.Filename)
		comp.Props.Add(prop)
	}
	for _, r := range e.Relations {
		prop := ical.NewProp(ical.PropRelatedTo)
		prop.Value = r.Text
		prop.Params.Set(ical.ParamRelationshipType, string(r.RelType))
		comp.Props.Add(prop)
	}
	for _, a := range e.Alarms {
		comp.Children = append(comp.Children, alarmToComponent(a))
	}

	return comp, nil
}

func alarmToComponent(a domain.Alarm) *ical.Component {
	alarm := ical.NewComponent(ical.CompAlarm)
	alarm.Props.SetText(ical.PropAction, a.Action)
	desc := a.Description
	if desc == "" {
		desc = "Reminder"
	}
	alarm.Props.SetText(ical.PropDescription, desc)

	trigger := ical.NewProp(ical.PropTrigger)
	if a.TriggerTime != nil {
		trigger.SetDateTime(a.TriggerTime.UTC())
	} else {
		trigger.Value = a.TriggerRelativeDuration
	}
	alarm.Props.Set(trigger)
	return alarm
}

func setTime(comp *ical.Component, name string, t *time.Time, tz string) {
	if t == nil {
		return
	}
	prop := ical.NewProp(name)
	setPropTime(prop, *t, tz)
	comp.Props.Set(prop)
}

// setPropTime writes a DATE for all-day values, a zoned DATE-TIME for known
// zones and UTC otherwise.
func setPropTime(prop *ical.Prop, t time.Time, tz string) {
	switch {
	case tz == domain.TZAllDay:
		prop.SetDate(t.UTC())
	case tz != "":
		prop.SetDateTime(t.In(domain.Location(tz, time.UTC)))
	default:
		prop.SetDateTime(t.UTC())
	}
}

// setRaw stores value verbatim with the property's default value type.
// SetText would mark INTEGER and RECUR values as TEXT and escape them.
func setRaw(comp *ical.Component, name, value string) {
	prop := ical.NewProp(name)
	prop.Value = value
	comp.Props.Set(prop)
}

func setParam(prop *ical.Prop, name, value string) {
	if value != "" {
		prop.Params.Set(name, value)
	}
}
