package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/statuswatch/internal/store"
)

var sampleCols = []string{
	"run_id", "recorded_at", "view", "outcome", "count", "target", "elapsed_ms",
	"file", "eta_ms", "eta_known", "latency_ms", "complete", "note",
}

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *SampleStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewSampleStoreWithPool(mock, "")
	require.NoError(t, err)
	return mock, s
}

func testRecord(runID uuid.UUID, at time.Time, count int64) store.SampleRecord {
	return store.SampleRecord{
		RunID:      runID,
		RecordedAt: at,
		View:       "recording",
		Outcome:    "ok",
		Count:      count,
		Target:     100,
		ElapsedMs:  count * 200,
		ETAMs:      (100 - count) * 200,
		ETAKnown:   count > 0,
		LatencyMs:  12,
	}
}

func recordRow(rec store.SampleRecord) []any {
	return []any{
		rec.RunID, rec.RecordedAt, rec.View, rec.Outcome, rec.Count, rec.Target, rec.ElapsedMs,
		rec.File, rec.ETAMs, rec.ETAKnown, rec.LatencyMs, rec.Complete, rec.Note,
	}
}

func TestInsertSampleInsertsRow(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	rec := testRecord(uuid.New(), time.Unix(1700000000, 0).UTC(), 25)

	mock.ExpectExec("INSERT INTO progress_samples").
		WithArgs(recordRow(rec)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.InsertSample(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSampleWrapsErrors(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	rec := testRecord(uuid.New(), time.Unix(1700000000, 0).UTC(), 1)
	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO progress_samples").
		WithArgs(recordRow(rec)...).
		WillReturnError(boom)

	err := s.InsertSample(context.Background(), rec)
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Error(t, s.InsertSample(context.Background(), store.SampleRecord{}))
}

func TestListSamplesScansRows(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	runID := uuid.New()
	base := time.Unix(1700000000, 0).UTC()
	first := testRecord(runID, base, 1)
	second := testRecord(runID, base.Add(500*time.Millisecond), 2)
	second.File = "x.txt"

	mock.ExpectQuery(`FROM progress_samples\s+WHERE run_id = \$1\s+ORDER BY recorded_at ASC`).
		WithArgs(runID, 50, 0).
		WillReturnRows(pgxmock.NewRows(sampleCols).AddRow(recordRow(first)...).AddRow(recordRow(second)...))

	got, err := s.ListSamples(context.Background(), runID, 50, 0)
	require.NoError(t, err)
	require.Equal(t, []store.SampleRecord{first, second}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestSampleNotFound(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	runID := uuid.New()
	mock.ExpectQuery(`ORDER BY recorded_at DESC`).
		WithArgs(runID).
		WillReturnRows(pgxmock.NewRows(sampleCols))

	_, err := s.LatestSample(context.Background(), runID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestSampleReturnsRow(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	rec := testRecord(uuid.New(), time.Unix(1700000000, 0).UTC(), 100)
	rec.Complete = true
	mock.ExpectQuery(`ORDER BY recorded_at DESC`).
		WithArgs(rec.RunID).
		WillReturnRows(pgxmock.NewRows(sampleCols).AddRow(recordRow(rec)...))

	got, err := s.LatestSample(context.Background(), rec.RunID)
	require.NoError(t, err)
	require.Equal(t, rec, got)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS progress_samples`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTableNameValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewSampleStoreWithPool(mock, "samples; DROP TABLE x")
	require.Error(t, err)
	_, err = NewSampleStoreWithPool(nil, "")
	require.Error(t, err)

	_, err = NewSampleStore(context.Background(), SampleStoreConfig{})
	require.Error(t, err)
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	mock.ExpectPing()
	require.NoError(t, s.Ping(context.Background()))

	boom := errors.New("down")
	mock.ExpectPing().WillReturnError(boom)
	require.ErrorIs(t, s.Ping(context.Background()), boom)
	require.NoError(t, mock.ExpectationsWereMet())
}
