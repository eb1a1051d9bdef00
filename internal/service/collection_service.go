package service

import (
	"context"
	"fmt"
	"log"

	"github.com/tazhate/pimstore/internal/domain"
	"github.com/tazhate/pimstore/internal/storage"
)

// AccountDirectory supplies the sync accounts that currently exist and the
// collections each of them offers.
type AccountDirectory interface {
	Accounts(ctx context.Context) ([]domain.Account, error)
	Collections(ctx context.Context, account domain.Account) ([]domain.Collection, error)
}

type CollectionService struct {
	storage         *storage.Storage
	notifier        ChangeNotifier
	now             Clock
	testAccountType string
}

// NewCollectionService returns the service. Collections of testAccountType
// survive pruning whatever the directory says.
func NewCollectionService(s *storage.Storage, n ChangeNotifier, now Clock, testAccountType string) *CollectionService {
	return &CollectionService{
		storage:         s,
		notifier:        notifierOrNop(n),
		now:             clockOrNow(now),
		testAccountType: testAccountType,
	}
}

func (s *CollectionService) List(ctx context.Context) ([]*domain.Collection, error) {
	return s.storage.AllCollections(ctx)
}

func (s *CollectionService) Writeable(ctx context.Context, m domain.Module) ([]*domain.Collection, error) {
	return s.storage.AllWriteableCollections(ctx, m)
}

// PruneDeletedAccounts deletes the remote collections, and the entries in
// them, whose account is not in accounts. The local collection and
// collections of the test account type are kept.
func (s *CollectionService) PruneDeletedAccounts(ctx context.Context, accounts []domain.Account) (int, error) {
	known := make(map[domain.Account]bool, len(accounts))
	for _, a := range accounts {
		known[a] = true
	}

	var pruned int
	err := s.storage.WithTx(ctx, func(tx *storage.Storage) error {
		remote, err := tx.AllRemoteCollections(ctx)
		if err != nil {
			return err
		}
		for _, c := range remote {
			if c.ID == domain.LocalCollectionID || c.AccountType == s.testAccountType {
				continue
			}
			if known[c.Account()] {
				continue
			}
			if err := tx.DeleteCollection(ctx, c.ID); err != nil {
				return err
			}
			log.Printf("Pruned collection %q of removed account %s (%s)", c.DisplayName, c.AccountName, c.AccountType)
			pruned++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune collections: %w", err)
	}
	if pruned > 0 {
		s.notifier.NotifyChanged()
	}
	return pruned, nil
}

// RefreshFromDirectory creates or updates the collections the directory
// reports, then prunes collections of accounts it no longer lists.
func (s *CollectionService) RefreshFromDirectory(ctx context.Context, dir AccountDirectory) (int, error) {
	accounts, err := dir.Accounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}

	var upserted int
	for _, account := range accounts {
		found, err := dir.Collections(ctx, account)
		if err != nil {
			log.Printf("Error listing collections of %s: %v", account.Name, err)
			continue
		}
		err = s.storage.WithTx(ctx, func(tx *storage.Storage) error {
			for i := range found {
				c := found[i]
				c.AccountName = account.Name
				c.AccountType = account.Type

				existing, err := tx.GetCollectionByURL(ctx, account, c.URL)
				if err != nil {
					return err
				}
				if existing == nil {
					if err := tx.CreateCollection(ctx, &c); err != nil {
						return err
					}
				} else {
					c.ID = existing.ID
					if err := tx.UpdateCollection(ctx, &c); err != nil {
						return err
					}
				}
				upserted++
			}
			return nil
		})
		if err != nil {
			return upserted, fmt.Errorf("store collections of %s: %w", account.Name, err)
		}
	}

	if _, err := s.PruneDeletedAccounts(ctx, accounts); err != nil {
		return upserted, err
	}
	if upserted > 0 {
		s.notifier.NotifyChanged()
	}
	return upserted, nil
}

// MoveToCollection reassigns an entry to another collection. A series moves
// together with its exceptions; exceptions cannot be moved on their own.
func (s *CollectionService) MoveToCollection(ctx context.Context, id, collectionID int64) error {
	err := s.storage.WithTx(ctx, func(tx *storage.Storage) error {
		o, err := mustGet(ctx, tx, id)
		if err != nil {
			return err
		}
		if o.Kind() == domain.KindException {
			return fmt.Errorf("move exception %d: %w", id, domain.ErrInvalidInput)
		}
		if o.CollectionID == collectionID {
			return nil
		}
		if err := checkWriteable(ctx, tx, o); err != nil {
			return err
		}

		target, err := tx.GetCollection(ctx, collectionID)
		if err != nil {
			return err
		}
		if target == nil {
			return fmt.Errorf("collection %d: %w", collectionID, domain.ErrNotFound)
		}
		if target.ReadOnly {
			return fmt.Errorf("collection %d: %w", collectionID, domain.ErrReadOnly)
		}
		if !target.Supports(o.Component) {
			return fmt.Errorf("collection %d: %w", collectionID, domain.ErrUnsupportedComponent)
		}

		moving := []*domain.ICalObject{o}
		if o.Kind() == domain.KindSeries {
			exceptions, err := tx.ListExceptions(ctx, o.UID)
			if err != nil {
				return err
			}
			moving = append(moving, exceptions...)
		}

		now := s.now()
		for _, m := range moving {
			m.CollectionID = collectionID
			m.Touch(now)
			if err := tx.UpdateObject(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.NotifyChanged()
	return nil
}
