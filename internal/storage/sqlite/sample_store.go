// Package sqlite provides a file-backed sample history for runs without a
// Postgres server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/statuswatch/internal/store"
)

// DefaultTable holds poll samples when no table is configured.
const DefaultTable = "progress_samples"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// SampleStore implements store.SampleRepository on SQLite. Timestamps are
// stored as Unix nanoseconds.
type SampleStore struct {
	db    *sql.DB
	table string
}

var _ store.SampleRepository = (*SampleStore)(nil)

// Open opens (or creates) the database at path. ":memory:" gives a private
// in-memory database.
func Open(ctx context.Context, path, table string) (*SampleStore, error) {
	if path == "" {
		return nil, errors.New("db.dsn is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SampleStore{db: db, table: table}, nil
}

// Close releases the database handle.
func (s *SampleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is usable.
func (s *SampleStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// EnsureSchema creates the samples table and its run index when missing.
func (s *SampleStore) EnsureSchema(ctx context.Context) error {
	table := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run_id      TEXT    NOT NULL,
		recorded_at INTEGER NOT NULL,
		view        TEXT    NOT NULL,
		outcome     TEXT    NOT NULL,
		count       INTEGER NOT NULL,
		target      INTEGER NOT NULL,
		elapsed_ms  INTEGER NOT NULL,
		file        TEXT    NOT NULL DEFAULT '',
		eta_ms      INTEGER NOT NULL DEFAULT 0,
		eta_known   INTEGER NOT NULL DEFAULT 0,
		latency_ms  INTEGER NOT NULL,
		complete    INTEGER NOT NULL DEFAULT 0,
		note        TEXT    NOT NULL DEFAULT ''
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("create samples table: %w", err)
	}
	index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_run_idx ON %[1]s (run_id, recorded_at)`, s.table)
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("create samples index: %w", err)
	}
	return nil
}

// InsertSample appends one sample row.
func (s *SampleStore) InsertSample(ctx context.Context, rec store.SampleRecord) error {
	if rec.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`, s.table, sampleColumns)
	_, err := s.db.ExecContext(ctx, query,
		rec.RunID.String(),
		rec.RecordedAt.UTC().UnixNano(),
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
	)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

const sampleColumns = `run_id, recorded_at, view, outcome, count, target, elapsed_ms, file, eta_ms, eta_known, latency_ms, complete, note`

// ListSamples returns the samples of a run, oldest first. Rows recorded at the
// same instant keep insertion order.
func (s *SampleStore) ListSamples(ctx context.Context, runID uuid.UUID, limit, offset int) ([]store.SampleRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE run_id = ? ORDER BY recorded_at ASC, rowid ASC LIMIT ? OFFSET ?`,
		sampleColumns, s.table)
	rows, err := s.db.QueryContext(ctx, query, runID.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE run_id = ? ORDER BY recorded_at DESC, rowid DESC LIMIT 1`,
		sampleColumns, s.table)
	rec, err := scanSample(s.db.QueryRowContext(ctx, query, runID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.SampleRecord{}, store.ErrNotFound
		}
		return store.SampleRecord{}, fmt.Errorf("get latest sample: %w", err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSample(row scanner) (store.SampleRecord, error) {
	var (
		rec        store.SampleRecord
		runID      string
		recordedAt int64
	)
	err := row.Scan(
		&runID,
		&recordedAt,
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
	if err != nil {
		return store.SampleRecord{}, err
	}
	id, err := uuid.Parse(runID)
	if err != nil {
		return store.SampleRecord{}, fmt.Errorf("parse run id %q: %w", runID, err)
	}
	rec.RunID = id
	rec.RecordedAt = time.Unix(0, recordedAt).UTC()
	return rec, nil
}
