package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tazhate/pimstore/internal/domain"
)

const objectColumns = `id, uid, component, module, summary, description, location,
	dtstart, dtstart_timezone, dtend, dtend_timezone, due, due_timezone,
	completed, completed_timezone, status, classification, priority, percent,
	sequence, rrule, exdate, recurid, recurid_timezone, collection_id, dirty,
	created, last_modified, dtstamp`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObject(row rowScanner) (*domain.ICalObject, error) {
	var o domain.ICalObject
	var component, module, status, classification, exdate string
	var dtstart, dtend, due, completed, priority, percent sql.NullInt64
	var recurid sql.NullString
	var created, lastModified, dtstamp int64

	err := row.Scan(&o.ID, &o.UID, &component, &module, &o.Summary, &o.Description, &o.Location,
		&dtstart, &o.DTStartTimezone, &dtend, &o.DTEndTimezone, &due, &o.DueTimezone,
		&completed, &o.CompletedTimezone, &status, &classification, &priority, &percent,
		&o.Sequence, &o.RRule, &exdate, &recurid, &o.RecurIDTimezone, &o.CollectionID, &o.Dirty,
		&created, &lastModified, &dtstamp)
	if err != nil {
		return nil, err
	}

	o.Component = domain.Component(component)
	o.Module = domain.Module(module)
	o.DTStart = fromMillis(dtstart)
	o.DTEnd = fromMillis(dtend)
	o.Due = fromMillis(due)
	o.Completed = fromMillis(completed)
	o.Status = statusOf(status)
	o.Classification = classificationOf(classification)
	o.Priority = intFromNull(priority)
	o.Percent = intFromNull(percent)
	o.ExDates = decodeExDates(exdate)
	o.RecurID = recurid.String
	o.Created = time.UnixMilli(created).UTC()
	o.LastModified = time.UnixMilli(lastModified).UTC()
	o.DTStamp = time.UnixMilli(dtstamp).UTC()
	return &o, nil
}

func (s *Storage) InsertObject(ctx context.Context, o *domain.ICalObject) error {
	if o.CollectionID == 0 {
		o.CollectionID = domain.LocalCollectionID
	}
	if o.Component == "" {
		o.Component = o.Module.Component()
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO icalobjects (uid, component, module, summary, description, location,
			dtstart, dtstart_timezone, dtend, dtend_timezone, due, due_timezone,
			completed, completed_timezone, status, classification, priority, percent,
			sequence, rrule, exdate, recurid, recurid_timezone, collection_id, dirty,
			created, last_modified, dtstamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.UID, string(o.Component), string(o.Module), o.Summary, o.Description, o.Location,
		toMillis(o.DTStart), o.DTStartTimezone, toMillis(o.DTEnd), o.DTEndTimezone,
		toMillis(o.Due), o.DueTimezone, toMillis(o.Completed), o.CompletedTimezone,
		string(o.Status), string(o.Classification), nullableInt(o.Priority), nullableInt(o.Percent),
		o.Sequence, o.RRule, encodeExDates(o.ExDates), nullableString(o.RecurID), o.RecurIDTimezone,
		o.CollectionID, o.Dirty, o.Created.UnixMilli(), o.LastModified.UnixMilli(), o.DTStamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert object: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	o.ID = id
	return nil
}

// UpdateObject writes every column of o. It returns domain.ErrNotFound when
// the row is gone.
func (s *Storage) UpdateObject(ctx context.Context, o *domain.ICalObject) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE icalobjects SET uid = ?, component = ?, module = ?, summary = ?, description = ?, location = ?,
			dtstart = ?, dtstart_timezone = ?, dtend = ?, dtend_timezone = ?, due = ?, due_timezone = ?,
			completed = ?, completed_timezone = ?, status = ?, classification = ?, priority = ?, percent = ?,
			sequence = ?, rrule = ?, exdate = ?, recurid = ?, recurid_timezone = ?, collection_id = ?, dirty = ?,
			created = ?, last_modified = ?, dtstamp = ?
		WHERE id = ?
	`, o.UID, string(o.Component), string(o.Module), o.Summary, o.Description, o.Location,
		toMillis(o.DTStart), o.DTStartTimezone, toMillis(o.DTEnd), o.DTEndTimezone,
		toMillis(o.Due), o.DueTimezone, toMillis(o.Completed), o.CompletedTimezone,
		string(o.Status), string(o.Classification), nullableInt(o.Priority), nullableInt(o.Percent),
		o.Sequence, o.RRule, encodeExDates(o.ExDates), nullableString(o.RecurID), o.RecurIDTimezone,
		o.CollectionID, o.Dirty, o.Created.UnixMilli(), o.LastModified.UnixMilli(), o.DTStamp.UnixMilli(),
		o.ID)
	if err != nil {
		return fmt.Errorf("update object: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update object: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Storage) GetObject(ctx context.Context, id int64) (*domain.ICalObject, error) {
	o, err := scanObject(s.q.QueryRowContext(ctx,
		`SELECT `+objectColumns+` FROM icalobjects WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	return o, nil
}

// GetObjectByUID returns the series or plain entry with uid, never an
// exception.
func (s *Storage) GetObjectByUID(ctx context.Context, uid string) (*domain.ICalObject, error) {
	o, err := scanObject(s.q.QueryRowContext(ctx,
		`SELECT `+objectColumns+` FROM icalobjects WHERE uid = ? AND recurid IS NULL`, uid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get object by uid: %w", err)
	}
	return o, nil
}

func (s *Storage) GetException(ctx context.Context, uid, recurID string) (*domain.ICalObject, error) {
	o, err := scanObject(s.q.QueryRowContext(ctx,
		`SELECT `+objectColumns+` FROM icalobjects WHERE uid = ? AND recurid = ?`, uid, recurID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get exception: %w", err)
	}
	return o, nil
}

// ListExceptions returns the materialized occurrences of the series uid.
func (s *Storage) ListExceptions(ctx context.Context, uid string) ([]*domain.ICalObject, error) {
	return s.listObjects(ctx,
		`SELECT `+objectColumns+` FROM icalobjects WHERE uid = ? AND recurid IS NOT NULL ORDER BY recurid`, uid)
}

// ListSeries returns every recurring series of module m.
func (s *Storage) ListSeries(ctx context.Context, m domain.Module) ([]*domain.ICalObject, error) {
	return s.listObjects(ctx,
		`SELECT `+objectColumns+` FROM icalobjects
		 WHERE module = ? AND rrule <> '' AND recurid IS NULL ORDER BY id`, string(m))
}

func (s *Storage) ListObjectsByCollection(ctx context.Context, collectionID int64) ([]*domain.ICalObject, error) {
	return s.listObjects(ctx,
		`SELECT `+objectColumns+` FROM icalobjects WHERE collection_id = ? ORDER BY id`, collectionID)
}

func (s *Storage) ListObjectsByIDs(ctx context.Context, ids []int64) ([]*domain.ICalObject, error) {
	var out []*domain.ICalObject
	for _, id := range ids {
		o, err := s.GetObject(ctx, id)
		if err != nil {
			return nil, err
		}
		if o != nil {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Storage) listObjects(ctx context.Context, query string, args ...any) ([]*domain.ICalObject, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()

	var out []*domain.ICalObject
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// DeleteObject removes the row and, through foreign keys, its child
// records. It reports whether a row was deleted.
func (s *Storage) DeleteObject(ctx context.Context, id int64) (bool, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM icalobjects WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete object: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete object: %w", err)
	}
	return n > 0, nil
}

func (s *Storage) CountObjects(ctx context.Context) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM icalobjects`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count objects: %w", err)
	}
	return n, nil
}

// GetEntity loads an object with all of its child records.
func (s *Storage) GetEntity(ctx context.Context, id int64) (*domain.ICalEntity, error) {
	o, err := s.GetObject(ctx, id)
	if err != nil || o == nil {
		return nil, err
	}

	e := &domain.ICalEntity{Object: o}
	if e.Categories, err = s.ListCategories(ctx, id); err != nil {
		return nil, err
	}
	if e.Resources, err = s.ListResources(ctx, id); err != nil {
		return nil, err
	}
	if e.Attendees, err = s.ListAttendees(ctx, id); err != nil {
		return nil, err
	}
	if e.Organizer, err = s.GetOrganizer(ctx, id); err != nil {
		return nil, err
	}
	if e.Comments, err = s.ListComments(ctx, id); err != nil {
		return nil, err
	}
	if e.Attachments, err = s.ListAttachments(ctx, id); err != nil {
		return nil, err
	}
	if e.Alarms, err = s.ListAlarms(ctx, id); err != nil {
		return nil, err
	}
	if e.Relations, err = s.ListRelations(ctx, id); err != nil {
		return nil, err
	}
	return e, nil
}

// InsertEntity stores the object and every child record it carries.
func (s *Storage) InsertEntity(ctx context.Context, e *domain.ICalEntity) error {
	return s.WithTx(ctx, func(tx *Storage) error {
		if err := tx.InsertObject(ctx, e.Object); err != nil {
			return err
		}
		id := e.Object.ID
		for i := range e.Categories {
			e.Categories[i].ICalObjectID = id
			if err := tx.InsertCategory(ctx, &e.Categories[i]); err != nil {
				return err
			}
		}
		for i := range e.Resources {
			e.Resources[i].ICalObjectID = id
			if err := tx.InsertResource(ctx, &e.Resources[i]); err != nil {
				return err
			}
		}
		for i := range e.Attendees {
			e.Attendees[i].ICalObjectID = id
			if err := tx.InsertAttendee(ctx, &e.Attendees[i]); err != nil {
				return err
			}
		}
		if e.Organizer != nil {
			e.Organizer.ICalObjectID = id
			if err := tx.InsertOrganizer(ctx, e.Organizer); err != nil {
				return err
			}
		}
		for i := range e.Comments {
			e.Comments[i].ICalObjectID = id
			if err := tx.InsertComment(ctx, &e.Comments[i]); err != nil {
				return err
			}
		}
		for i := range e.Attachments {
			e.Attachments[i].ICalObjectID = id
			if err := tx.InsertAttachment(ctx, &e.Attachments[i]); err != nil {
				return err
			}
		}
		for i := range e.Alarms {
			e.Alarms[i].ICalObjectID = id
			if err := tx.InsertAlarm(ctx, &e.Alarms[i]); err != nil {
				return err
			}
		}
		for i := range e.Relations {
			e.Relations[i].ICalObjectID = id
			if _, err := tx.InsertRelation(ctx, &e.Relations[i]); err != nil {
				return err
			}
		}
		return nil
	})
}
