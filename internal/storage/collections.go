package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tazhate/pimstore/internal/domain"
)

const collectionColumns = `id, url, display_name, description, color, supports_vjournal,
	supports_vtodo, account_name, account_type, read_only`

func scanCollection(row rowScanner) (*domain.Collection, error) {
	var c domain.Collection
	var color sql.NullInt64
	err := row.Scan(&c.ID, &c.URL, &c.DisplayName, &c.Description, &color, &c.SupportsVJournal,
		&c.SupportsVTodo, &c.AccountName, &c.AccountType, &c.ReadOnly)
	if err != nil {
		return nil, err
	}
	c.Color = intFromNull(color)
	return &c, nil
}

func (s *Storage) CreateCollection(ctx context.Context, c *domain.Collection) error {
	id, err := s.insertRow(ctx, "collection", `
		INSERT INTO collections (url, display_name, description, color, supports_vjournal,
			supports_vtodo, account_name, account_type, read_only)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.URL, c.DisplayName, c.Description, nullableInt(c.Color), c.SupportsVJournal,
		c.SupportsVTodo, c.AccountName, c.AccountType, c.ReadOnly)
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

func (s *Storage) UpdateCollection(ctx context.Context, c *domain.Collection) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE collections SET url = ?, display_name = ?, description = ?, color = ?,
			supports_vjournal = ?, supports_vtodo = ?, account_name = ?, account_type = ?, read_only = ?
		WHERE id = ?
	`, c.URL, c.DisplayName, c.Description, nullableInt(c.Color), c.SupportsVJournal,
		c.SupportsVTodo, c.AccountName, c.AccountType, c.ReadOnly, c.ID)
	if err != nil {
		return fmt.Errorf("update collection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Storage) GetCollection(ctx context.Context, id int64) (*domain.Collection, error) {
	c, err := scanCollection(s.q.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	return c, nil
}

func (s *Storage) GetCollectionByURL(ctx context.Context, account domain.Account, url string) (*domain.Collection, error) {
	c, err := scanCollection(s.q.QueryRowContext(ctx, `
		SELECT `+collectionColumns+` FROM collections
		WHERE account_name = ? AND account_type = ? AND url = ?
	`, account.Name, account.Type, url))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get collection by url: %w", err)
	}
	return c, nil
}

func (s *Storage) listCollections(ctx context.Context, where string, args ...any) ([]*domain.Collection, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+collectionColumns+` FROM collections `+where+` ORDER BY account_name, display_name, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var out []*domain.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Storage) AllCollections(ctx context.Context) ([]*domain.Collection, error) {
	return s.listCollections(ctx, "")
}

// AllRemoteCollections returns every collection bound to a sync account.
func (s *Storage) AllRemoteCollections(ctx context.Context) ([]*domain.Collection, error) {
	return s.listCollections(ctx, `WHERE account_type <> ?`, domain.LocalAccountType)
}

// AllWriteableCollections returns the collections that accept new entries
// of module m.
func (s *Storage) AllWriteableCollections(ctx context.Context, m domain.Module) ([]*domain.Collection, error) {
	column := "supports_vjournal"
	if m.Component() == domain.ComponentTodo {
		column = "supports_vtodo"
	}
	return s.listCollections(ctx, `WHERE read_only = 0 AND `+column+` = 1`)
}

// DeleteCollection removes the collection and every entry in it.
func (s *Storage) DeleteCollection(ctx context.Context, id int64) error {
	if id == domain.LocalCollectionID {
		return fmt.Errorf("delete collection: local collection cannot be removed: %w", domain.ErrInvalidInput)
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}
