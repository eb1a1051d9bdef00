package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/tazhate/pimstore/internal/domain"
	"github.com/tazhate/pimstore/internal/query"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Storage is the entity store. A Storage handed out by WithTx runs every
// statement inside that transaction.
type Storage struct {
	db *sql.DB
	q  querier
	tx bool
}

const txTimeout = 30 * time.Second

const driverName = "sqlite3_pimstore"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc(query.FoldFunc, foldCase, true)
		},
	})
}

// foldCase lower-cases text values and passes everything else, NULL
// included, through unchanged.
func foldCase(v any) any {
	switch s := v.(type) {
	case string:
		return strings.ToLower(s)
	case []byte:
		return strings.ToLower(string(s))
	}
	return v
}

func New(dbPath string) (*Storage, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open(driverName, dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases alive
	// across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db, q: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// WithTx runs fn in a single transaction. fn must use the Storage it is
// given. Nested calls join the outer transaction.
func (s *Storage) WithTx(ctx context.Context, fn func(tx *Storage) error) error {
	if s.tx {
		return fn(s)
	}

	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Storage{db: s.db, q: sqlTx, tx: true}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS collections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			color INTEGER,
			supports_vjournal INTEGER NOT NULL DEFAULT 1,
			supports_vtodo INTEGER NOT NULL DEFAULT 1,
			account_name TEXT NOT NULL DEFAULT '',
			account_type TEXT NOT NULL DEFAULT 'LOCAL',
			read_only INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_collections_account ON collections(account_name, account_type)`,
		`INSERT OR IGNORE INTO collections (id, display_name, account_name, account_type)
		 VALUES (1, 'Local', 'LOCAL', 'LOCAL')`,
		`CREATE TABLE IF NOT EXISTS icalobjects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL,
			component TEXT NOT NULL,
			module TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			dtstart INTEGER,
			dtstart_timezone TEXT NOT NULL DEFAULT '',
			dtend INTEGER,
			dtend_timezone TEXT NOT NULL DEFAULT '',
			due INTEGER,
			due_timezone TEXT NOT NULL DEFAULT '',
			completed INTEGER,
			completed_timezone TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			classification TEXT NOT NULL DEFAULT '',
			priority INTEGER,
			percent INTEGER,
			sequence INTEGER NOT NULL DEFAULT 0,
			rrule TEXT NOT NULL DEFAULT '',
			exdate TEXT NOT NULL DEFAULT '',
			recurid TEXT,
			recurid_timezone TEXT NOT NULL DEFAULT '',
			collection_id INTEGER NOT NULL DEFAULT 1,
			dirty INTEGER NOT NULL DEFAULT 1,
			created INTEGER NOT NULL,
			last_modified INTEGER NOT NULL,
			dtstamp INTEGER NOT NULL,
			FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_icalobjects_uid_recurid ON icalobjects(uid, IFNULL(recurid, ''))`,
		`CREATE INDEX IF NOT EXISTS idx_icalobjects_module ON icalobjects(module)`,
		`CREATE INDEX IF NOT EXISTS idx_icalobjects_collection ON icalobjects(collection_id)`,
		`CREATE INDEX IF NOT EXISTS idx_icalobjects_due ON icalobjects(due)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			icalobject_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			FOREIGN KEY (icalobject_id) REFERENCES icalobjects(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_categories_object ON categories(icalobject_id)`,
		`CREATE INDEX IF NOT EXISTS idx_categories_text ON categories(text)`,
		`CREATE TABLE IF NOT EXISTS resources (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			icalobject_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			FOREIGN KEY (icalobject_id) REFERENCES icalobjects(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_resources_object ON resources(icalobject_id)`,
		`CREATE TABLE IF NOT EXISTS attendees (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			icalobject_id INTEGER NOT NULL,
			caladdress TEXT NOT NULL,
			cn TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT '',
			partstat TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (icalobject_id) REFERENCES icalobjects(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attendees_object ON attendees(icalobject_id)`,
		`CREATE TABLE IF NOT EXISTS organizers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			icalobject_id INTEGER NOT NULL,
			caladdress TEXT NOT NULL,
			cn TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (icalobject_id) REFERENCES icalobjects(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_organizers_object ON organizers(icalobject_id)`,
		`CREATE TABLE IF NOT EXISTS comments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			icalobject_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			FOREIGN KEY (icalobject_id) REFERENCES icalobjects(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_object ON comments(icalobject_id)`,
		`CREATE TABLE IF NOT EXISTS attachments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			icalobject_id INTEGER NOT NULL,
			uri TEXT NOT NULL DEFAULT '',
			fmttype TEXT NOT NULL DEFAULT '',
			filename TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (icalobject_id) REFERENCES icalobjects(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attachments_object ON attachments(icalobject_id)`,
		`CREATE TABLE IF NOT EXISTS alarms (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			icalobject_id INTEGER NOT NULL,
			action TEXT NOT NULL DEFAULT 'DISPLAY',
			description TEXT NOT NULL DEFAULT '',
			trigger_relative_duration TEXT NOT NULL DEFAULT '',
			trigger_time INTEGER,
			FOREIGN KEY (icalobject_id) REFERENCES icalobjects(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alarms_object ON alarms(icalobject_id)`,
		`CREATE TABLE IF NOT EXISTS relatedto (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			icalobject_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			reltype TEXT NOT NULL DEFAULT 'PARENT',
			FOREIGN KEY (icalobject_id) REFERENCES icalobjects(id) ON DELETE CASCADE
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_relatedto_edge ON relatedto(icalobject_id, text, reltype)`,
		`CREATE INDEX IF NOT EXISTS idx_relatedto_text ON relatedto(text)`,
		`CREATE TABLE IF NOT EXISTS stored_list_settings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			module TEXT NOT NULL,
			name TEXT NOT NULL,
			data TEXT NOT NULL DEFAULT '{}',
			UNIQUE (module, name)
		)`,
		`DROP VIEW IF EXISTS ical4list`,
		`CREATE VIEW ical4list AS
		 SELECT o.id, o.uid, o.module, o.component, o.summary, o.description,
			o.dtstart, o.dtstart_timezone, o.due, o.due_timezone, o.completed,
			o.status, o.classification, o.priority, o.percent, o.rrule, o.recurid,
			o.created, o.last_modified, o.collection_id,
			c.display_name AS collection_display_name,
			c.color AS collection_color,
			c.account_name, c.account_type,
			c.read_only AS is_read_only,
			` + childOfColumn("JOURNAL") + ` AS is_child_of_journal,
			` + childOfColumn("NOTE") + ` AS is_child_of_note,
			` + childOfColumn("TODO") + ` AS is_child_of_todo,
			` + subEntryCount("TODO") + ` AS num_subtasks,
			` + subEntryCount("NOTE") + ` AS num_subnotes,
			(SELECT GROUP_CONCAT(cat.text, char(31)) FROM categories cat WHERE cat.icalobject_id = o.id) AS categories
		 FROM icalobjects o
		 JOIN collections c ON c.id = o.collection_id`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("exec migration: %w", err)
			}
		}
	}
	return nil
}

// childOfColumn is 1 when o is linked as a child of an entry of module.
func childOfColumn(module string) string {
	return `EXISTS (SELECT 1 FROM relatedto r
			JOIN icalobjects p ON p.uid = r.text AND p.recurid IS NULL
			WHERE r.icalobject_id = o.id AND r.reltype = 'PARENT' AND p.module = '` + module + `')`
}

// subEntryCount counts entries of module linked as children of o.
// Children of a series belong to the series row alone, and a series below
// o counts once however many exceptions it has.
func subEntryCount(module string) string {
	return `CASE WHEN o.recurid IS NOT NULL THEN 0 ELSE
			(SELECT COUNT(DISTINCT ch.id) FROM relatedto r
			JOIN icalobjects ch ON ch.id = r.icalobject_id
			WHERE r.text = o.uid AND r.reltype = 'PARENT' AND ch.recurid IS NULL
			AND ch.module = '` + module + `') END`
}

func toMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64).UTC()
	return &t
}

func nullableInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func intFromNull(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	i := int(n.Int64)
	return &i
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func encodeExDates(list []time.Time) string {
	parts := make([]string, 0, len(list))
	for _, t := range list {
		parts = append(parts, strconv.FormatInt(t.UnixMilli(), 10))
	}
	return strings.Join(parts, ",")
}

func decodeExDates(s string) []time.Time {
	if s == "" {
		return nil
	}
	var out []time.Time
	for _, part := range strings.Split(s, ",") {
		ms, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, time.UnixMilli(ms).UTC())
	}
	return out
}

// statusOf and classificationOf keep stored values that are not recognised
// as they are; ranking code puts them in the unknown bucket.
func statusOf(s string) domain.Status {
	if st, ok := domain.ParseStatus(s); ok {
		return st
	}
	return domain.Status(s)
}

func classificationOf(s string) domain.Classification {
	if c, ok := domain.ParseClassification(s); ok {
		return c
	}
	return domain.Classification(s)
}
