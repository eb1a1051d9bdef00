package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tazhate/pimstore/internal/domain"
	"github.com/tazhate/pimstore/internal/storage"
)

// EntryService applies user edits to entries. Edits aimed at an occurrence
// of a series land on that occurrence's exception, which is created first
// when needed.
type EntryService struct {
	storage    *storage.Storage
	recurrence *RecurrenceService
	relations  *RelationService
	notifier   ChangeNotifier
	now        Clock
}

func NewEntryService(s *storage.Storage, rec *RecurrenceService, rel *RelationService, n ChangeNotifier, now Clock) *EntryService {
	return &EntryService{
		storage:    s,
		recurrence: rec,
		relations:  rel,
		notifier:   notifierOrNop(n),
		now:        clockOrNow(now),
	}
}

// resolve returns the row a mutation of ref must be applied to.
func (s *EntryService) resolve(ctx context.Context, tx *storage.Storage, ref domain.EntryRef) (*domain.ICalObject, error) {
	if ref.Occurrence != nil {
		ex, _, err := s.recurrence.materialize(ctx, tx, ref.ID, *ref.Occurrence)
		return ex, err
	}
	o, err := mustGet(ctx, tx, ref.ID)
	if err != nil {
		return nil, err
	}
	if err := checkWriteable(ctx, tx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// mutate runs fn on the resolved row and stores the result.
func (s *EntryService) mutate(ctx context.Context, ref domain.EntryRef, fn func(o *domain.ICalObject, now time.Time) error) (*domain.ICalObject, error) {
	var out *domain.ICalObject
	err := s.storage.WithTx(ctx, func(tx *storage.Storage) error {
		o, err := s.resolve(ctx, tx, ref)
		if err != nil {
			return err
		}
		now := s.now()
		if err := fn(o, now); err != nil {
			return err
		}
		if err := tx.UpdateObject(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyChanged()
	return out, nil
}

// UpdateProgress sets the completion percentage of a task. Status and
// completion time follow.
func (s *EntryService) UpdateProgress(ctx context.Context, ref domain.EntryRef, percent int) (*domain.ICalObject, error) {
	return s.mutate(ctx, ref, func(o *domain.ICalObject, now time.Time) error {
		o.SetUpdatedProgress(percent, now)
		return nil
	})
}

// UpdateStatus sets a status valid for the entry's module.
func (s *EntryService) UpdateStatus(ctx context.Context, ref domain.EntryRef, status domain.Status) (*domain.ICalObject, error) {
	return s.mutate(ctx, ref, func(o *domain.ICalObject, now time.Time) error {
		return applyStatus(o, status, now)
	})
}

func applyStatus(o *domain.ICalObject, status domain.Status, now time.Time) error {
	if status != domain.StatusNone && !o.Module.AllowsStatus(status) {
		return fmt.Errorf("status %q for %s: %w", status, o.Module, domain.ErrInvalidInput)
	}
	if o.Module == domain.ModuleTodo {
		switch status {
		case domain.StatusCompleted:
			o.SetUpdatedProgress(100, now)
			return nil
		case domain.StatusNeedsAction:
			o.SetUpdatedProgress(0, now)
			return nil
		}
	}
	o.Status = status
	o.Touch(now)
	return nil
}

// UpdateDue moves the due date; nil clears it.
func (s *EntryService) UpdateDue(ctx context.Context, ref domain.EntryRef, due *time.Time, tz string) (*domain.ICalObject, error) {
	return s.mutate(ctx, ref, func(o *domain.ICalObject, now time.Time) error {
		if o.Module != domain.ModuleTodo {
			return fmt.Errorf("due date on %s: %w", o.Module, domain.ErrInvalidInput)
		}
		if due == nil {
			o.Due = nil
			o.DueTimezone = ""
		} else {
			d := due.UTC()
			o.Due = &d
			o.DueTimezone = tz
		}
		o.Touch(now)
		return nil
	})
}

// InsertQuickItem stores a new entry with categories, optionally linked
// below parentUID.
func (s *EntryService) InsertQuickItem(ctx context.Context, o *domain.ICalObject, categories []string, parentUID string) (*domain.ICalObject, error) {
	if !o.Module.Valid() {
		return nil, fmt.Errorf("insert entry: unknown module %q: %w", o.Module, domain.ErrInvalidInput)
	}
	if o.UID == "" {
		o.UID = domain.NewUID()
	}
	if o.CollectionID == 0 {
		o.CollectionID = domain.LocalCollectionID
	}
	o.Component = o.Module.Component()
	o.Summary = strings.TrimSpace(o.Summary)

	err := s.storage.WithTx(ctx, func(tx *storage.Storage) error {
		c, err := tx.GetCollection(ctx, o.CollectionID)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("collection %d: %w", o.CollectionID, domain.ErrNotFound)
		}
		if c.ReadOnly {
			return fmt.Errorf("collection %d: %w", c.ID, domain.ErrReadOnly)
		}
		if !c.Supports(o.Component) {
			return fmt.Errorf("collection %d: %w", c.ID, domain.ErrUnsupportedComponent)
		}

		e := &domain.ICalEntity{Object: o}
		for _, cat := range uniqueTrimmed(categories) {
			e.Categories = append(e.Categories, domain.Category{Text: cat})
		}
		if parentUID != "" {
			e.Relations = append(e.Relations, domain.Relation{Text: parentUID, RelType: domain.RelTypeParent})
		}
		return tx.InsertEntity(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyChanged()
	return o, nil
}

// Delete removes each entry with its children. Entries already gone are
// skipped.
func (s *EntryService) Delete(ctx context.Context, ids []int64) (int, error) {
	total := 0
	for _, id := range ids {
		n, err := s.relations.DeleteWithChildren(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// bulk applies fn to every writeable entry in ids within one transaction.
// Missing and read-only entries are skipped. It returns the number of
// changed entries.
func (s *EntryService) bulk(ctx context.Context, ids []int64, fn func(tx *storage.Storage, o *domain.ICalObject, now time.Time) (bool, error)) (int, error) {
	var changed int
	err := s.storage.WithTx(ctx, func(tx *storage.Storage) error {
		now := s.now()
		for _, id := range ids {
			o, err := tx.GetObject(ctx, id)
			if err != nil {
				return err
			}
			if o == nil {
				continue
			}
			if err := checkWriteable(ctx, tx, o); err != nil {
				if errors.Is(err, domain.ErrReadOnly) {
					log.Printf("bulk update: skip read-only entry %d", id)
					continue
				}
				return err
			}

			seq := o.Sequence
			ok, err := fn(tx, o, now)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if o.Sequence == seq {
				o.Touch(now)
			}
			if err := tx.UpdateObject(ctx, o); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if changed > 0 {
		s.notifier.NotifyChanged()
	}
	return changed, nil
}

// UpdateCategories adds and removes category texts on every entry in ids.
func (s *EntryService) UpdateCategories(ctx context.Context, ids []int64, add, remove []string) (int, error) {
	add, remove = uniqueTrimmed(add), uniqueTrimmed(remove)
	return s.bulk(ctx, ids, func(tx *storage.Storage, o *domain.ICalObject, _ time.Time) (bool, error) {
		existing, err := tx.ListCategories(ctx, o.ID)
		if err != nil {
			return false, err
		}
		have := make(map[string]bool, len(existing))
		for _, c := range existing {
			have[c.Text] = true
		}

		changed := false
		for _, text := range remove {
			if have[text] {
				if err := tx.DeleteCategory(ctx, o.ID, text); err != nil {
					return false, err
				}
				delete(have, text)
				changed = true
			}
		}
		for _, text := range add {
			if !have[text] {
				if err := tx.InsertCategory(ctx, &domain.Category{ICalObjectID: o.ID, Text: text}); err != nil {
					return false, err
				}
				have[text] = true
				changed = true
			}
		}
		return changed, nil
	})
}

// UpdateResources is UpdateCategories for resources.
func (s *EntryService) UpdateResources(ctx context.Context, ids []int64, add, remove []string) (int, error) {
	add, remove = uniqueTrimmed(add), uniqueTrimmed(remove)
	return s.bulk(ctx, ids, func(tx *storage.Storage, o *domain.ICalObject, _ time.Time) (bool, error) {
		existing, err := tx.ListResources(ctx, o.ID)
		if err != nil {
			return false, err
		}
		have := make(map[string]bool, len(existing))
		for _, r := range existing {
			have[r.Text] = true
		}

		changed := false
		for _, text := range remove {
			if have[text] {
				if err := tx.DeleteResource(ctx, o.ID, text); err != nil {
					return false, err
				}
				delete(have, text)
				changed = true
			}
		}
		for _, text := range add {
			if !have[text] {
				if err := tx.InsertResource(ctx, &domain.Resource{ICalObjectID: o.ID, Text: text}); err != nil {
					return false, err
				}
				have[text] = true
				changed = true
			}
		}
		return changed, nil
	})
}

// SetStatus sets status on every entry whose module allows it.
func (s *EntryService) SetStatus(ctx context.Context, ids []int64, status domain.Status) (int, error) {
	return s.bulk(ctx, ids, func(_ *storage.Storage, o *domain.ICalObject, now time.Time) (bool, error) {
		if status != domain.StatusNone && !o.Module.AllowsStatus(status) {
			return false, nil
		}
		if o.Status == status {
			return false, nil
		}
		if err := applyStatus(o, status, now); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (s *EntryService) SetClassification(ctx context.Context, ids []int64, c domain.Classification) (int, error) {
	if _, ok := domain.ParseClassification(string(c)); !ok && c != domain.ClassificationNone {
		return 0, fmt.Errorf("classification %q: %w", c, domain.ErrInvalidInput)
	}
	return s.bulk(ctx, ids, func(_ *storage.Storage, o *domain.ICalObject, _ time.Time) (bool, error) {
		if o.Classification == c {
			return false, nil
		}
		o.Classification = c
		return true, nil
	})
}

// SetPriority sets priority 0-9 on every entry; nil clears it.
func (s *EntryService) SetPriority(ctx context.Context, ids []int64, priority *int) (int, error) {
	if priority != nil && (*priority < 0 || *priority > 9) {
		return 0, fmt.Errorf("priority %d: %w", *priority, domain.ErrInvalidInput)
	}
	return s.bulk(ctx, ids, func(_ *storage.Storage, o *domain.ICalObject, _ time.Time) (bool, error) {
		if samePriority(o.Priority, priority) {
			return false, nil
		}
		if priority == nil {
			o.Priority = nil
		} else {
			p := *priority
			o.Priority = &p
		}
		return true, nil
	})
}

func samePriority(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func uniqueTrimmed(list []string) []string {
	seen := make(map[string]bool, len(list))
	var out []string
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
