package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/tazhate/pimstore/internal/domain"
	"github.com/tazhate/pimstore/internal/storage"
)

type RelationService struct {
	storage  *storage.Storage
	notifier ChangeNotifier
	now      Clock
}

func NewRelationService(s *storage.Storage, n ChangeNotifier, now Clock) *RelationService {
	return &RelationService{storage: s, notifier: notifierOrNop(n), now: clockOrNow(now)}
}

// checkWriteable fails with ErrReadOnly when o lives in a read-only
// collection.
func checkWriteable(ctx context.Context, st *storage.Storage, o *domain.ICalObject) error {
	c, err := st.GetCollection(ctx, o.CollectionID)
	if err != nil {
		return fmt.Errorf("get collection: %w", err)
	}
	if c == nil {
		return fmt.Errorf("collection %d: %w", o.CollectionID, domain.ErrNotFound)
	}
	if c.ReadOnly {
		return fmt.Errorf("entry %d: %w", o.ID, domain.ErrReadOnly)
	}
	return nil
}

// mustGet loads id or fails with ErrNotFound.
func mustGet(ctx context.Context, st *storage.Storage, id int64) (*domain.ICalObject, error) {
	o, err := st.GetObject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	if o == nil {
		return nil, fmt.Errorf("entry %d: %w", id, domain.ErrNotFound)
	}
	return o, nil
}

// Link makes childID a relative of the entry with parentUID. Linking twice
// is a no-op; the result reports whether an edge was added.
func (s *RelationService) Link(ctx context.Context, childID int64, parentUID string, relType domain.RelType) (bool, error) {
	parentUID = strings.TrimSpace(parentUID)
	if parentUID == "" {
		return false, fmt.Errorf("link: empty parent uid: %w", domain.ErrInvalidInput)
	}
	if relType == "" {
		relType = domain.RelTypeParent
	}
	if relType == domain.RelTypeSeries {
		return false, fmt.Errorf("link: series edges are managed by recurrence: %w", domain.ErrInvalidInput)
	}

	var added bool
	err := s.storage.WithTx(ctx, func(tx *storage.Storage) error {
		child, err := mustGet(ctx, tx, childID)
		if err != nil {
			return err
		}
		if child.UID == parentUID {
			return fmt.Errorf("link %d to itself: %w", childID, domain.ErrInvalidInput)
		}
		if err := checkWriteable(ctx, tx, child); err != nil {
			return err
		}

		added, err = tx.InsertRelation(ctx, &domain.Relation{ICalObjectID: child.ID, Text: parentUID, RelType: relType})
		if err != nil {
			return err
		}
		if !added {
			return nil
		}
		child.Touch(s.now())
		return tx.UpdateObject(ctx, child)
	})
	if err != nil {
		return false, err
	}
	if added {
		s.notifier.NotifyChanged()
	}
	return added, nil
}

// Unlink removes the child-to-parent edge. The child itself stays unless
// deleteAfter is set, in which case it is deleted together with its own
// children.
func (s *RelationService) Unlink(ctx context.Context, childID int64, parentUID string, deleteAfter bool) error {
	err := s.storage.WithTx(ctx, func(tx *storage.Storage) error {
		child, err := mustGet(ctx, tx, childID)
		if err != nil {
			return err
		}
		if err := checkWriteable(ctx, tx, child); err != nil {
			return err
		}

		removed, err := tx.DeleteRelation(ctx, child.ID, parentUID, domain.RelTypeParent)
		if err != nil {
			return err
		}

		if deleteAfter {
			_, err := deleteTree(ctx, tx, child.ID)
			return err
		}
		if !removed {
			return nil
		}
		child.Touch(s.now())
		return tx.UpdateObject(ctx, child)
	})
	if err != nil {
		return err
	}
	s.notifier.NotifyChanged()
	return nil
}

// DeleteWithChildren deletes id, everything linked below it and, for a
// series, its exceptions. It is all or nothing and returns the number of
// deleted entries.
func (s *RelationService) DeleteWithChildren(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.storage.WithTx(ctx, func(tx *storage.Storage) error {
		var err error
		n, err = deleteTree(ctx, tx, id)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.notifier.NotifyChanged()
	return n, nil
}

func deleteTree(ctx context.Context, tx *storage.Storage, id int64) (int, error) {
	root, err := mustGet(ctx, tx, id)
	if err != nil {
		return 0, err
	}
	d := &treeDeleter{tx: tx, seen: make(map[int64]bool)}
	if err := d.visit(ctx, root); err != nil {
		return 0, err
	}
	return d.deleted, nil
}

type treeDeleter struct {
	tx      *storage.Storage
	seen    map[int64]bool
	deleted int
}

// visit deletes the subtree of o depth-first, children before their parent.
// seen guards against relation cycles.
func (d *treeDeleter) visit(ctx context.Context, o *domain.ICalObject) error {
	if d.seen[o.ID] {
		return nil
	}
	d.seen[o.ID] = true

	if err := checkWriteable(ctx, d.tx, o); err != nil {
		return err
	}

	var below []*domain.ICalObject
	// Children link to the UID an exception shares with its series, so they
	// belong to the series.
	if o.Kind() != domain.KindException {
		childIDs, err := d.tx.ChildIDs(ctx, o.UID)
		if err != nil {
			return err
		}
		for _, cid := range childIDs {
			c, err := d.tx.GetObject(ctx, cid)
			if err != nil {
				return err
			}
			if c != nil {
				below = append(below, c)
			}
		}
	}
	if o.Kind() == domain.KindSeries {
		exceptions, err := d.tx.ListExceptions(ctx, o.UID)
		if err != nil {
			return err
		}
		below = append(below, exceptions...)
	}

	for _, c := range below {
		if err := d.visit(ctx, c); err != nil {
			return err
		}
	}

	ok, err := d.tx.DeleteObject(ctx, o.ID)
	if err != nil {
		return err
	}
	if ok {
		d.deleted++
	}
	return nil
}

// PruneDangling removes relation edges pointing at UIDs that no longer
// exist.
func (s *RelationService) PruneDangling(ctx context.Context) (int, error) {
	n, err := s.storage.PruneDanglingRelations(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("Pruned %d dangling relations", n)
		s.notifier.NotifyChanged()
	}
	return n, nil
}
