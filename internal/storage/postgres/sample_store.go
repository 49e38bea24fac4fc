// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/statuswatch/internal/store"
)

// DefaultTable holds poll samples when no table is configured.
const DefaultTable = "progress_samples"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// SampleStoreConfig controls the Postgres connection pool used for samples.
type SampleStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// SampleStore implements store.SampleRepository using Postgres.
type SampleStore struct {
	pool  querier
	table string
}

var _ store.SampleRepository = (*SampleStore)(nil)

// NewSampleStore creates a Postgres-backed SampleStore using the provided config.
func NewSampleStore(ctx context.Context, cfg SampleStoreConfig) (*SampleStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &SampleStore{pool: pool, table: table}, nil
}

// NewSampleStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewSampleStoreWithPool(pool querier, table string) (*SampleStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &SampleStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		return DefaultTable, nil
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *SampleStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the database is reachable.
func (s *SampleStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the samples table and its run index when missing.
func (s *SampleStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	run_id      UUID        NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL,
	view        TEXT        NOT NULL,
	outcome     TEXT        NOT NULL,
	count       BIGINT      NOT NULL,
	target      BIGINT      NOT NULL,
	elapsed_ms  BIGINT      NOT NULL,
	file        TEXT        NOT NULL DEFAULT '',
	eta_ms      BIGINT      NOT NULL DEFAULT 0,
	eta_known   BOOLEAN     NOT NULL DEFAULT FALSE,
	latency_ms  BIGINT      NOT NULL,
	complete    BOOLEAN     NOT NULL DEFAULT FALSE,
	note        TEXT        NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS %[1]s_run_idx ON %[1]s (run_id, recorded_at);`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create samples table: %w", err)
	}
	return nil
}

// InsertSample appends one sample row.
func (s *SampleStore) InsertSample(ctx context.Context, rec store.SampleRecord) error {
	if rec.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	recorded_at,
	view,
	outcome,
	count,
	target,
	elapsed_ms,
	file,
	eta_ms,
	eta_known,
	latency_ms,
	complete,
	note
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)`, s.table)

	args := []any{
		rec.RunID,
		rec.RecordedAt,
		rec.View,
		rec.Outcome,
		rec.Count,
		rec.Target,
		rec.ElapsedMs,
		rec.File,
		rec.ETAMs,
		rec.ETAKnown,
		rec.LatencyMs,
		rec.Complete,
		rec.Note,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

const sampleColumns = `run_id, recorded_at, view, outcome, count, target, elapsed_ms, file, eta_ms, eta_known, latency_ms, complete, note`

// ListSamples returns the samples of a run, oldest first.
func (s *SampleStore) ListSamples(ctx context.Context, runID uuid.UUID, limit, offset int) ([]store.SampleRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE run_id = $1
		ORDER BY recorded_at ASC
		LIMIT $2 OFFSET $3;
	`, sampleColumns, s.table)
	rows, err := s.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	var records []store.SampleRecord
	for rows.Next() {
		rec, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sample row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sample rows: %w", err)
	}
	return records, nil
}

// LatestSample returns the newest sample of a run or store.ErrNotFound.
func (s *SampleStore) LatestSample(ctx context.Context, runID uuid.UUID) (store.SampleRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE run_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1;
	`, sampleColumns, s.table)
	rec, err := scanSample(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.SampleRecord{}, store.ErrNotFound
		}
		return store.SampleRecord{}, fmt.Errorf("get latest sample: %w", err)
	}
	return rec, nil
}

func scanSample(row pgx.Row) (store.SampleRecord, error) {
	var rec store.SampleRecord
	err := row.Scan(
		&rec.RunID,
		&rec.RecordedAt,
		&rec.View,
		&rec.Outcome,
		&rec.Count,
		&rec.Target,
		&rec.ElapsedMs,
		&rec.File,
		&rec.ETAMs,
		&rec.ETAKnown,
		&rec.LatencyMs,
		&rec.Complete,
		&rec.Note,
	)
	return rec, err
}
