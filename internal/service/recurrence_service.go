package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tazhate/pimstore/internal/domain"
	"github.com/tazhate/pimstore/internal/recur"
	"github.com/tazhate/pimstore/internal/storage"
)

type RecurrenceService struct {
	storage  *storage.Storage
	notifier ChangeNotifier
	loc      *time.Location
	now      Clock
}

func NewRecurrenceService(s *storage.Storage, n ChangeNotifier, loc *time.Location, now Clock) *RecurrenceService {
	if loc == nil {
		loc = time.UTC
	}
	return &RecurrenceService{storage: s, notifier: notifierOrNop(n), loc: loc, now: clockOrNow(now)}
}

func getSeries(ctx context.Context, st *storage.Storage, id int64) (*domain.ICalObject, error) {
	series, err := mustGet(ctx, st, id)
	if err != nil {
		return nil, err
	}
	if series.Kind() != domain.KindSeries {
		return nil, fmt.Errorf("entry %d is not a recurring series: %w", id, domain.ErrInvalidInput)
	}
	return series, nil
}

// Occurrences lists the occurrences of a series starting in [from, to].
func (s *RecurrenceService) Occurrences(ctx context.Context, seriesID int64, from, to time.Time) ([]domain.Occurrence, error) {
	series, err := getSeries(ctx, s.storage, seriesID)
	if err != nil {
		return nil, err
	}
	exceptions, err := s.storage.ListExceptions(ctx, series.UID)
	if err != nil {
		return nil, err
	}
	return recur.Expand(series, exceptions, recur.Config{Location: s.loc, From: from, To: to})
}

// SeriesOf returns the series the exception id belongs to.
func (s *RecurrenceService) SeriesOf(ctx context.Context, id int64) (*domain.ICalObject, error) {
	ex, err := mustGet(ctx, s.storage, id)
	if err != nil {
		return nil, err
	}
	if ex.Kind() != domain.KindException {
		return nil, fmt.Errorf("entry %d is not an exception: %w", id, domain.ErrInvalidInput)
	}
	series, err := seriesOf(ctx, s.storage, ex)
	if err != nil {
		return nil, err
	}
	if series == nil {
		return nil, fmt.Errorf("series of entry %d: %w", id, domain.ErrNotFound)
	}
	return series, nil
}

// seriesOf follows the series edge of ex. Rows stored without one fall back
// to the shared UID.
func seriesOf(ctx context.Context, st *storage.Storage, ex *domain.ICalObject) (*domain.ICalObject, error) {
	series, err := st.SeriesOf(ctx, ex.ID)
	if err != nil || series != nil {
		return series, err
	}
	return st.GetObjectByUID(ctx, ex.UID)
}

// Materialize returns the stored exception for the occurrence of seriesID
// starting at start, creating it on first use. The series itself is never
// modified. The bool reports whether a row was created.
func (s *RecurrenceService) Materialize(ctx context.Context, seriesID int64, start time.Time) (*domain.ICalObject, bool, error) {
	var ex *domain.ICalObject
	var created bool
	err := s.storage.WithTx(ctx, func(tx *storage.Storage) error {
		var err error
		ex, created, err = s.materialize(ctx, tx, seriesID, start)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		s.notifier.NotifyChanged()
	}
	return ex, created, nil
}

func (s *RecurrenceService) materialize(ctx context.Context, tx *storage.Storage, seriesID int64, start time.Time) (*domain.ICalObject, bool, error) {
	series, err := getSeries(ctx, tx, seriesID)
	if err != nil {
		return nil, false, err
	}
	if err := checkWriteable(ctx, tx, series); err != nil {
		return nil, false, err
	}

	occ, err := recur.At(series, start, s.loc)
	if err != nil {
		return nil, false, err
	}

	existing, err := tx.GetException(ctx, series.UID, occ.RecurID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	now := s.now()
	ex := series.Clone()
	ex.ID = 0
	ex.RRule = ""
	ex.ExDates = nil
	ex.RecurID = occ.RecurID
	ex.Sequence = 0
	ex.Dirty = true
	ex.Created = now
	ex.LastModified = now
	ex.DTStamp = now

	if series.DTStart != nil {
		st := occ.Start
		ex.DTStart = &st
		ex.RecurIDTimezone = series.DTStartTimezone
		if series.DTEnd != nil {
			end := occ.Start.Add(series.DTEnd.Sub(*series.DTStart))
			ex.DTEnd = &end
		}
		ex.Due = occ.Due
	} else {
		due := occ.Start
		ex.Due = &due
		ex.RecurIDTimezone = series.DueTimezone
	}

	if err := tx.InsertObject(ctx, ex); err != nil {
		return nil, false, err
	}
	if err := tx.CopyChildRecords(ctx, series.ID, ex.ID); err != nil {
		return nil, false, err
	}
	if err := tx.CopyParentRelations(ctx, series.ID, ex.ID); err != nil {
		return nil, false, err
	}
	if _, err := tx.InsertRelation(ctx, &domain.Relation{ICalObjectID: ex.ID, Text: series.UID, RelType: domain.RelTypeSeries}); err != nil {
		return nil, false, err
	}
	if err := occ.Materialize(ex.ID); err != nil {
		return nil, false, err
	}

	log.Printf("Materialized occurrence %s of %s as entry %d", occ.RecurID, series.UID, ex.ID)
	return ex, true, nil
}

// UnlinkFromSeries turns exceptions into standalone entries with their own
// UID. Each series gains an EXDATE for the detached occurrence so it is not
// generated again. With deleteSeriesAfter the affected series and their
// remaining exceptions are deleted afterwards.
func (s *RecurrenceService) UnlinkFromSeries(ctx context.Context, exceptionIDs []int64, deleteSeriesAfter bool) (int, error) {
	var unlinked int
	err := s.storage.WithTx(ctx, func(tx *storage.Storage) error {
		now := s.now()
		affected := make(map[int64]bool)

		for _, id := range exceptionIDs {
			ex, err := mustGet(ctx, tx, id)
			if err != nil {
				return err
			}
			if ex.Kind() != domain.KindException {
				return fmt.Errorf("entry %d is not an exception: %w", id, domain.ErrInvalidInput)
			}
			if err := checkWriteable(ctx, tx, ex); err != nil {
				return err
			}

			series, err := seriesOf(ctx, tx, ex)
			if err != nil {
				return err
			}
			if series != nil {
				if _, err := tx.DeleteRelation(ctx, ex.ID, series.UID, domain.RelTypeSeries); err != nil {
					return err
				}
				if t, ok := domain.ParseRecurID(ex.RecurID); ok {
					series.ExDates = append(series.ExDates, t)
				}
				series.Touch(now)
				if err := tx.UpdateObject(ctx, series); err != nil {
					return err
				}
				affected[series.ID] = true
			}

			ex.UID = domain.NewUID()
			ex.RecurID = ""
			ex.RecurIDTimezone = ""
			ex.Touch(now)
			if err := tx.UpdateObject(ctx, ex); err != nil {
				return err
			}
			unlinked++
		}

		if !deleteSeriesAfter {
			return nil
		}
		for seriesID := range affected {
			series, err := tx.GetObject(ctx, seriesID)
			if err != nil {
				return err
			}
			if series == nil {
				continue
			}
			rest, err := tx.ListExceptions(ctx, series.UID)
			if err != nil {
				return err
			}
			for _, r := range rest {
				if _, err := tx.DeleteObject(ctx, r.ID); err != nil {
					return err
				}
			}
			if _, err := tx.DeleteObject(ctx, series.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if unlinked > 0 {
		s.notifier.NotifyChanged()
	}
	return unlinked, nil
}
