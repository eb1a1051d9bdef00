package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tazhate/pimstore/internal/domain"
)

// InsertRelation adds the edge unless an identical one exists. It reports
// whether a row was written.
func (s *Storage) InsertRelation(ctx context.Context, r *domain.Relation) (bool, error) {
	if r.RelType == "" {
		r.RelType = domain.RelTypeParent
	}
	res, err := s.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO relatedto (icalobject_id, text, reltype) VALUES (?, ?, ?)
	`, r.ICalObjectID, r.Text, string(r.RelType))
	if err != nil {
		return false, fmt.Errorf("insert relation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert relation: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return false, fmt.Errorf("get last insert id: %w", err)
	}
	return true, nil
}

func (s *Storage) DeleteRelation(ctx context.Context, objectID int64, uid string, relType domain.RelType) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		DELETE FROM relatedto WHERE icalobject_id = ? AND text = ? AND reltype = ?
	`, objectID, uid, string(relType))
	if err != nil {
		return false, fmt.Errorf("delete relation: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Storage) ListRelations(ctx context.Context, objectID int64) ([]domain.Relation, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, icalobject_id, text, reltype FROM relatedto WHERE icalobject_id = ? ORDER BY id
	`, objectID)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	defer rows.Close()

	var out []domain.Relation
	for rows.Next() {
		var r domain.Relation
		var relType string
		if err := rows.Scan(&r.ID, &r.ICalObjectID, &r.Text, &relType); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		r.RelType = domain.RelType(relType)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ChildIDs returns the ids of the entries linked as children of uid.
func (s *Storage) ChildIDs(ctx context.Context, uid string) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT DISTINCT icalobject_id FROM relatedto WHERE text = ? AND reltype = ? ORDER BY icalobject_id
	`, uid, string(domain.RelTypeParent))
	if err != nil {
		return nil, fmt.Errorf("list child ids: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan child id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CopyParentRelations links dst to every parent src is linked to.
func (s *Storage) CopyParentRelations(ctx context.Context, src, dst int64) error {
	if _, err := s.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO relatedto (icalobject_id, text, reltype)
		SELECT ?, text, reltype FROM relatedto WHERE icalobject_id = ? AND reltype = ?
	`, dst, src, string(domain.RelTypeParent)); err != nil {
		return fmt.Errorf("copy parent relations: %w", err)
	}
	return nil
}

// SeriesOf returns the series the exception exceptionID is linked to, or
// nil when it has no series edge or the series is gone.
func (s *Storage) SeriesOf(ctx context.Context, exceptionID int64) (*domain.ICalObject, error) {
	o, err := scanObject(s.q.QueryRowContext(ctx, `
		SELECT `+objectColumns+` FROM icalobjects
		WHERE recurid IS NULL AND uid = (
			SELECT text FROM relatedto WHERE icalobject_id = ? AND reltype = ? ORDER BY id LIMIT 1
		)
	`, exceptionID, string(domain.RelTypeSeries)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get series of %d: %w", exceptionID, err)
	}
	return o, nil
}

// PruneDanglingRelations removes edges whose target UID is not stored as a
// plain entry or series.
func (s *Storage) PruneDanglingRelations(ctx context.Context) (int, error) {
	res, err := s.q.ExecContext(ctx, `
		DELETE FROM relatedto WHERE NOT EXISTS (
			SELECT 1 FROM icalobjects o WHERE o.uid = relatedto.text AND o.recurid IS NULL
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("prune dangling relations: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
