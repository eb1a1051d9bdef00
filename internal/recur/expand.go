// Package recur computes the occurrences of recurring series.
package recur

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/tazhate/pimstore/internal/domain"
)

// DefaultMaxOccurrences caps a single expansion.
const DefaultMaxOccurrences = 5000

var ErrNoAnchor = errors.New("series has neither start nor due date")

// Config controls an expansion.
type Config struct {
	// Location resolves floating and all-day series. Nil means UTC.
	Location       *time.Location
	From           time.Time
	To             time.Time
	MaxOccurrences int
}

// Anchor returns the time the recurrence is counted from and its timezone
// label. Tasks without a start date recur on their due date.
func Anchor(series *domain.ICalObject) (time.Time, string, error) {
	switch {
	case series.DTStart != nil:
		return *series.DTStart, series.DTStartTimezone, nil
	case series.Due != nil:
		return *series.Due, series.DueTimezone, nil
	}
	return time.Time{}, "", ErrNoAnchor
}

// Parse validates an RRULE value. A leading "RRULE:" is accepted.
func Parse(raw string) (*rrule.RRule, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "RRULE:")
	r, err := rrule.StrToRRule(raw)
	if err != nil {
		return nil, fmt.Errorf("parse rrule: %w", err)
	}
	return r, nil
}

func buildSet(series *domain.ICalObject, loc *time.Location) (*rrule.Set, string, error) {
	if series.RRule == "" {
		return nil, "", fmt.Errorf("expand %s: not a recurring series: %w", series.UID, domain.ErrInvalidInput)
	}
	start, tz, err := Anchor(series)
	if err != nil {
		return nil, "", err
	}
	r, err := Parse(series.RRule)
	if err != nil {
		return nil, "", err
	}

	zone := domain.Location(tz, loc)
	if tz == domain.TZAllDay {
		zone = time.UTC
	}
	r.DTStart(start.In(zone))

	set := &rrule.Set{}
	set.RRule(r)
	for _, ex := range series.ExDates {
		set.ExDate(ex.In(zone))
	}
	return set, tz, nil
}

// Expand lists the occurrences of series that start in [cfg.From, cfg.To].
// Occurrences that have a stored exception are reported as materialized.
func Expand(series *domain.ICalObject, exceptions []*domain.ICalObject, cfg Config) ([]domain.Occurrence, error) {
	if cfg.To.Before(cfg.From) {
		return nil, errors.New("expand: range end is before range start")
	}
	if cfg.MaxOccurrences <= 0 {
		cfg.MaxOccurrences = DefaultMaxOccurrences
	}

	set, tz, err := buildSet(series, cfg.Location)
	if err != nil {
		return nil, err
	}

	byRecurID := make(map[string]int64, len(exceptions))
	for _, ex := range exceptions {
		if ex.UID == series.UID && ex.RecurID != "" {
			byRecurID[ex.RecurID] = ex.ID
		}
	}

	var dueOffset *time.Duration
	if series.DTStart != nil && series.Due != nil {
		d := series.Due.Sub(*series.DTStart)
		dueOffset = &d
	}

	starts := set.Between(cfg.From, cfg.To, true)
	if len(starts) > cfg.MaxOccurrences {
		starts = starts[:cfg.MaxOccurrences]
	}

	out := make([]domain.Occurrence, 0, len(starts))
	for _, start := range starts {
		occ := domain.Occurrence{
			SeriesID:  series.ID,
			SeriesUID: series.UID,
			RecurID:   domain.FormatRecurID(start, tz),
			Start:     start.UTC(),
		}
		if dueOffset != nil {
			due := occ.Start.Add(*dueOffset)
			occ.Due = &due
		}
		if id, ok := byRecurID[occ.RecurID]; ok {
			if err := occ.Materialize(id); err != nil {
				return nil, err
			}
		}
		out = append(out, occ)
	}
	return out, nil
}

// At returns the occurrence of series starting exactly at t.
func At(series *domain.ICalObject, t time.Time, loc *time.Location) (domain.Occurrence, error) {
	occs, err := Expand(series, nil, Config{Location: loc, From: t, To: t, MaxOccurrences: 1})
	if err != nil {
		return domain.Occurrence{}, err
	}
	if len(occs) == 0 {
		return domain.Occurrence{}, fmt.Errorf("no occurrence of %s at %s: %w", series.UID, t.Format(time.RFC3339), domain.ErrNotFound)
	}
	return occs[0], nil
}
