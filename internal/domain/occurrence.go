package domain

import (
	"fmt"
	"time"
)

// OccurrenceState tracks a single occurrence of a series. Virtual occurrences
// are computed from the series; the first mutation turns one into a
// Materialized standalone row. There is no way back.
type OccurrenceState int

const (
	OccurrenceVirtual OccurrenceState = iota
	OccurrenceMaterialized
)

func (s OccurrenceState) String() string {
	if s == OccurrenceMaterialized {
		return "materialized"
	}
	return "virtual"
}

// Occurrence is one computed instance of a recurring series.
type Occurrence struct {
	SeriesID  int64
	SeriesUID string
	RecurID   string
	Start     time.Time
	Due       *time.Time
	State     OccurrenceState
	// ExceptionID is set once the occurrence is materialized.
	ExceptionID int64
}

// Materialize moves a virtual occurrence to the materialized state.
func (o *Occurrence) Materialize(exceptionID int64) error {
	if o.State == OccurrenceMaterialized {
		if o.ExceptionID != exceptionID {
			return fmt.Errorf("occurrence %s already materialized as %d", o.RecurID, o.ExceptionID)
		}
		return nil
	}
	o.State = OccurrenceMaterialized
	o.ExceptionID = exceptionID
	return nil
}

// EntryRef points at a stored entry, or at one occurrence of a stored series
// when Occurrence is set.
type EntryRef struct {
	ID         int64
	Occurrence *time.Time
}

func RefID(id int64) EntryRef {
	return EntryRef{ID: id}
}

func RefOccurrence(seriesID int64, start time.Time) EntryRef {
	return EntryRef{ID: seriesID, Occurrence: &start}
}
