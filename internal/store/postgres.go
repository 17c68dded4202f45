package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/student-map/internal/db"
	"github.com/sells-group/student-map/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var pointColumns = []string{"source", "seq", "latitude", "longitude", "attributes", "loaded_at"}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// attributes is JSON rather than JSONB so field order survives the round trip.
const postgresMigration = `
CREATE TABLE IF NOT EXISTS map_points (
	source     TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	latitude   DOUBLE PRECISION NOT NULL,
	longitude  DOUBLE PRECISION NOT NULL,
	attributes JSON NOT NULL,
	loaded_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source, seq)
);

CREATE TABLE IF NOT EXISTS exports (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	session_id    TEXT NOT NULL DEFAULT '',
	center_lat    DOUBLE PRECISION NOT NULL,
	center_lon    DOUBLE PRECISION NOT NULL,
	radius_meters DOUBLE PRECISION NOT NULL,
	record_count  INTEGER NOT NULL,
	filename      TEXT NOT NULL,
	sink          TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_exports_session ON exports(session_id);
CREATE INDEX IF NOT EXISTS idx_exports_created_at ON exports(created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveSnapshot replaces the stored records of source. Rows go in through COPY
// inside the same transaction as the delete.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, source string, records []model.Record) error {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(records))
	for i, r := range records {
		attrs, err := json.Marshal(r.Attributes)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal attributes")
		}
		rows = append(rows, []any{source, int32(i), r.Latitude, r.Longitude, string(attrs), now})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin snapshot")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM map_points WHERE source = $1`, source); err != nil {
		return eris.Wrapf(err, "postgres: clear snapshot %s", source)
	}
	if _, err := db.CopyFrom(ctx, tx, "map_points", pointColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: copy snapshot %s", source)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit snapshot")
}

// LoadSnapshot returns the stored records of source in load order.
func (s *PostgresStore) LoadSnapshot(ctx context.Context, source string) ([]model.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT latitude, longitude, attributes FROM map_points WHERE source = $1 ORDER BY seq`,
		source,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load snapshot %s", source)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		r := model.Record{Source: source}
		var attrs []byte
		if err := rows.Scan(&r.Latitude, &r.Longitude, &attrs); err != nil {
			return nil, eris.Wrap(err, "postgres: scan point")
		}
		if err := json.Unmarshal(attrs, &r.Attributes); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal attributes")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: iterate points")
}

// RecordExport inserts e, assigning an id and timestamp when missing.
func (s *PostgresStore) RecordExport(ctx context.Context, e *model.ExportEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO exports (id, session_id, center_lat, center_lon, radius_meters, record_count, filename, sink, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.SessionID, e.Center.Lat, e.Center.Lon, e.RadiusMeters, e.RecordCount, e.Filename, e.Sink, e.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert export")
}

// ListExports returns export events, newest first.
func (s *PostgresStore) ListExports(ctx context.Context, filter ExportFilter) ([]model.ExportEvent, error) {
	query := `SELECT id, session_id, center_lat, center_lon, radius_meters, record_count, filename, sink, created_at FROM exports WHERE true`
	args := []any{}
	argIdx := 1

	if filter.SessionID != "" {
		query += fmt.Sprintf(` AND session_id = $%d`, argIdx)
		args = append(args, filter.SessionID)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list exports")
	}
	defer rows.Close()

	var events []model.ExportEvent
	for rows.Next() {
		var e model.ExportEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Center.Lat, &e.Center.Lon, &e.RadiusMeters,
			&e.RecordCount, &e.Filename, &e.Sink, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan export")
		}
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "postgres: iterate exports")
}
