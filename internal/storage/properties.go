package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tazhate/pimstore/internal/domain"
)

func (s *Storage) insertRow(ctx context.Context, what, query string, args ...any) (int64, error) {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", what, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

func (s *Storage) InsertCategory(ctx context.Context, c *domain.Category) error {
	id, err := s.insertRow(ctx, "category",
		`INSERT INTO categories (icalobject_id, text) VALUES (?, ?)`, c.ICalObjectID, c.Text)
	c.ID = id
	return err
}

func (s *Storage) ListCategories(ctx context.Context, objectID int64) ([]domain.Category, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, icalobject_id, text FROM categories WHERE icalobject_id = ? ORDER BY id`, objectID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.ICalObjectID, &c.Text); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Storage) DeleteCategory(ctx context.Context, objectID int64, text string) error {
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM categories WHERE icalobject_id = ? AND text = ?`, objectID, text); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

func (s *Storage) InsertResource(ctx context.Context, r *domain.Resource) error {
	id, err := s.insertRow(ctx, "resource",
		`INSERT INTO resources (icalobject_id, text) VALUES (?, ?)`, r.ICalObjectID, r.Text)
	r.ID = id
	return err
}

func (s *Storage) ListResources(ctx context.Context, objectID int64) ([]domain.Resource, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, icalobject_id, text FROM resources WHERE icalobject_id = ? ORDER BY id`, objectID)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	var out []domain.Resource
	for rows.Next() {
		var r domain.Resource
		if err := rows.Scan(&r.ID, &r.ICalObjectID, &r.Text); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Storage) DeleteResource(ctx context.Context, objectID int64, text string) error {
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM resources WHERE icalobject_id = ? AND text = ?`, objectID, text); err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	return nil
}

func (s *Storage) InsertAttendee(ctx context.Context, a *domain.Attendee) error {
	id, err := s.insertRow(ctx, "attendee",
		`INSERT INTO attendees (icalobject_id, caladdress, cn, role, partstat) VALUES (?, ?, ?, ?, ?)`,
		a.ICalObjectID, a.CalAddress, a.CommonName, a.Role, a.PartStat)
	a.ID = id
	return err
}

func (s *Storage) ListAttendees(ctx context.Context, objectID int64) ([]domain.Attendee, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, icalobject_id, caladdress, cn, role, partstat
		FROM attendees WHERE icalobject_id = ? ORDER BY id
	`, objectID)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()

	var out []domain.Attendee
	for rows.Next() {
		var a domain.Attendee
		if err := rows.Scan(&a.ID, &a.ICalObjectID, &a.CalAddress, &a.CommonName, &a.Role, &a.PartStat); err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertOrganizer replaces the organizer of the object; there is at most one.
func (s *Storage) InsertOrganizer(ctx context.Context, o *domain.Organizer) error {
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM organizers WHERE icalobject_id = ?`, o.ICalObjectID); err != nil {
		return fmt.Errorf("replace organizer: %w", err)
	}
	id, err := s.insertRow(ctx, "organizer",
		`INSERT INTO organizers (icalobject_id, caladdress, cn) VALUES (?, ?, ?)`,
		o.ICalObjectID, o.CalAddress, o.CommonName)
	o.ID = id
	return err
}

func (s *Storage) GetOrganizer(ctx context.Context, objectID int64) (*domain.Organizer, error) {
	var o domain.Organizer
	err := s.q.QueryRowContext(ctx, `
		SELECT id, icalobject_id, caladdress, cn FROM organizers WHERE icalobject_id = ? LIMIT 1
	`, objectID).Scan(&o.ID, &o.ICalObjectID, &o.CalAddress, &o.CommonName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organizer: %w", err)
	}
	return &o, nil
}

func (s *Storage) InsertComment(ctx context.Context, c *domain.Comment) error {
	id, err := s.insertRow(ctx, "comment",
		`INSERT INTO comments (icalobject_id, text) VALUES (?, ?)`, c.ICalObjectID, c.Text)
	c.ID = id
	return err
}

func (s *Storage) ListComments(ctx context.Context, objectID int64) ([]domain.Comment, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, icalobject_id, text FROM comments WHERE icalobject_id = ? ORDER BY id`, objectID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var out []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.ICalObjectID, &c.Text); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Storage) InsertAttachment(ctx context.Context, a *domain.Attachment) error {
	id, err := s.insertRow(ctx, "attachment",
		`INSERT INTO attachments (icalobject_id, uri, fmttype, filename) VALUES (?, ?, ?, ?)`,
		a.ICalObjectID, a.URI, a.FmtType, a.Filename)
	a.ID = id
	return err
}

func (s *Storage) ListAttachments(ctx context.Context, objectID int64) ([]domain.Attachment, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, icalobject_id, uri, fmttype, filename FROM attachments WHERE icalobject_id = ? ORDER BY id
	`, objectID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var out []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.ID, &a.ICalObjectID, &a.URI, &a.FmtType, &a.Filename); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Storage) InsertAlarm(ctx context.Context, a *domain.Alarm) error {
	if a.Action == "" {
		a.Action = "DISPLAY"
	}
	id, err := s.insertRow(ctx, "alarm", `
		INSERT INTO alarms (icalobject_id, action, description, trigger_relative_duration, trigger_time)
		VALUES (?, ?, ?, ?, ?)
	`, a.ICalObjectID, a.Action, a.Description, a.TriggerRelativeDuration, toMillis(a.TriggerTime))
	a.ID = id
	return err
}

func (s *Storage) ListAlarms(ctx context.Context, objectID int64) ([]domain.Alarm, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, icalobject_id, action, description, trigger_relative_duration, trigger_time
		FROM alarms WHERE icalobject_id = ? ORDER BY id
	`, objectID)
	if err != nil {
		return nil, fmt.Errorf("list alarms: %w", err)
	}
	defer rows.Close()

	var out []domain.Alarm
	for rows.Next() {
		var a domain.Alarm
		var trigger sql.NullInt64
		if err := rows.Scan(&a.ID, &a.ICalObjectID, &a.Action, &a.Description, &a.TriggerRelativeDuration, &trigger); err != nil {
			return nil, fmt.Errorf("scan alarm: %w", err)
		}
		a.TriggerTime = fromMillis(trigger)
		out = append(out, a)
	}
	return out, rows.Err()
}

// CopyChildRecords duplicates every child record of src onto dst, except
// relations.
func (s *Storage) CopyChildRecords(ctx context.Context, src, dst int64) error {
	statements := []string{
		`INSERT INTO categories (icalobject_id, text) SELECT ?, text FROM categories WHERE icalobject_id = ?`,
		`INSERT INTO resources (icalobject_id, text) SELECT ?, text FROM resources WHERE icalobject_id = ?`,
		`INSERT INTO attendees (icalobject_id, caladdress, cn, role, partstat)
		 SELECT ?, caladdress, cn, role, partstat FROM attendees WHERE icalobject_id = ?`,
		`INSERT INTO organizers (icalobject_id, caladdress, cn)
		 SELECT ?, caladdress, cn FROM organizers WHERE icalobject_id = ?`,
		`INSERT INTO comments (icalobject_id, text) SELECT ?, text FROM comments WHERE icalobject_id = ?`,
		`INSERT INTO attachments (icalobject_id, uri, fmttype, filename)
		 SELECT ?, uri, fmttype, filename FROM attachments WHERE icalobject_id = ?`,
		`INSERT INTO alarms (icalobject_id, action, description, trigger_relative_duration, trigger_time)
		 SELECT ?, action, description, trigger_relative_duration, trigger_time FROM alarms WHERE icalobject_id = ?`,
	}
	for _, stmt := range statements {
		if _, err := s.q.ExecContext(ctx, stmt, dst, src); err != nil {
			return fmt.Errorf("copy child records: %w", err)
		}
	}
	return nil
}
