package service

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/tazhate/pimstore/internal/domain"
	"github.com/tazhate/pimstore/internal/ics"
	"github.com/tazhate/pimstore/internal/storage"
)

// Export writes the entries with ids as iCalendar data. A series is
// exported with its exceptions.
func (s *EntryService) Export(ctx context.Context, w io.Writer, ids []int64) (int, error) {
	var entities []*domain.ICalEntity
	seen := make(map[int64]bool)

	add := func(id int64) error {
		if seen[id] {
			return nil
		}
		seen[id] = true
		e, err := s.storage.GetEntity(ctx, id)
		if err != nil {
			return err
		}
		if e != nil {
			entities = append(entities, e)
		}
		return nil
	}

	for _, id := range ids {
		o, err := s.storage.GetObject(ctx, id)
		if err != nil {
			return 0, err
		}
		if o == nil {
			continue
		}
		if err := add(o.ID); err != nil {
			return 0, err
		}
		if o.Kind() != domain.KindSeries {
			continue
		}
		exceptions, err := s.storage.ListExceptions(ctx, o.UID)
		if err != nil {
			return 0, err
		}
		for _, ex := range exceptions {
			if err := add(ex.ID); err != nil {
				return 0, err
			}
		}
	}

	if len(entities) == 0 {
		return 0, fmt.Errorf("export: %w", domain.ErrNotFound)
	}
	if err := ics.Encode(w, entities); err != nil {
		return 0, err
	}
	return len(entities), nil
}

// Import stores the journals, notes and tasks in r into collectionID.
// Entries whose UID and recurrence id already exist are skipped.
func (s *EntryService) Import(ctx context.Context, r io.Reader, collectionID int64) (int, error) {
	entities, err := ics.Decode(r, s.now())
	if err != nil {
		return 0, err
	}

	var imported int
	err = s.storage.WithTx(ctx, func(tx *storage.Storage) error {
		c, err := tx.GetCollection(ctx, collectionID)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("collection %d: %w", collectionID, domain.ErrNotFound)
		}
		if c.ReadOnly {
			return fmt.Errorf("collection %d: %w", collectionID, domain.ErrReadOnly)
		}

		for _, e := range entities {
			o := e.Object
			if !c.Supports(o.Component) {
				log.Printf("Import: skip %s, collection does not take %s", o.UID, o.Component)
				continue
			}

			var existing *domain.ICalObject
			if o.RecurID != "" {
				existing, err = tx.GetException(ctx, o.UID, o.RecurID)
			} else {
				existing, err = tx.GetObjectByUID(ctx, o.UID)
			}
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}

			o.CollectionID = collectionID
			if err := tx.InsertEntity(ctx, e); err != nil {
				return err
			}
			imported++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if imported > 0 {
		s.notifier.NotifyChanged()
	}
	return imported, nil
}
