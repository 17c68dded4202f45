package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/student-map/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection, and sources save concurrently.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS map_points (
	source     TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	latitude   REAL NOT NULL,
	longitude  REAL NOT NULL,
	attributes TEXT NOT NULL,
	loaded_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (source, seq)
);

CREATE TABLE IF NOT EXISTS exports (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL DEFAULT '',
	center_lat    REAL NOT NULL,
	center_lon    REAL NOT NULL,
	radius_meters REAL NOT NULL,
	record_count  INTEGER NOT NULL,
	filename      TEXT NOT NULL,
	sink          TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_exports_session ON exports(session_id);
CREATE INDEX IF NOT EXISTS idx_exports_created_at ON exports(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot replaces the stored records of source in one transaction.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, source string, records []model.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin snapshot")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM map_points WHERE source = ?`, source); err != nil {
		return eris.Wrapf(err, "sqlite: clear snapshot %s", source)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO map_points (source, seq, latitude, longitude, attributes, loaded_at) VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare snapshot insert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for i, r := range records {
		attrs, err := json.Marshal(r.Attributes)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal attributes")
		}
		if _, err := stmt.ExecContext(ctx, source, i, r.Latitude, r.Longitude, string(attrs), now); err != nil {
			return eris.Wrapf(err, "sqlite: insert point %s/%d", source, i)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit snapshot")
}

// LoadSnapshot returns the stored records of source in load order.
// A source that was never saved yields no records.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, source string) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT latitude, longitude, attributes FROM map_points WHERE source = ? ORDER BY seq`,
		source,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load snapshot %s", source)
	}
	defer rows.Close() //nolint:errcheck

	var records []model.Record
	for rows.Next() {
		r := model.Record{Source: source}
		var attrs string
		if err := rows.Scan(&r.Latitude, &r.Longitude, &attrs); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan point")
		}
		if err := json.Unmarshal([]byte(attrs), &r.Attributes); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal attributes")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: iterate points")
}

// RecordExport inserts e, assigning an id and timestamp when missing.
func (s *SQLiteStore) RecordExport(ctx context.Context, e *model.ExportEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exports (id, session_id, center_lat, center_lon, radius_meters, record_count, filename, sink, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Center.Lat, e.Center.Lon, e.RadiusMeters, e.RecordCount, e.Filename, e.Sink, e.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert export")
}

// ListExports returns export events, newest first.
func (s *SQLiteStore) ListExports(ctx context.Context, filter ExportFilter) ([]model.ExportEvent, error) {
	query := `SELECT id, session_id, center_lat, center_lon, radius_meters, record_count, filename, sink, created_at FROM exports WHERE 1=1`
	var args []any
	if filter.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list exports")
	}
	defer rows.Close() //nolint:errcheck

	var events []model.ExportEvent
	for rows.Next() {
		var e model.ExportEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Center.Lat, &e.Center.Lon, &e.RadiusMeters,
			&e.RecordCount, &e.Filename, &e.Sink, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan export")
		}
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: iterate exports")
}
