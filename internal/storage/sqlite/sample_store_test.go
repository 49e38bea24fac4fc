package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/statuswatch/internal/store"
)

func newTestStore(t *testing.T) *SampleStore {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
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

func TestInsertAndListSamples(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	runID := uuid.New()
	other := uuid.New()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	second := testRecord(runID, base.Add(500*time.Millisecond), 2)
	second.File = "x.txt"
	first := testRecord(runID, base, 1)
	failed := store.SampleRecord{
		RunID:      runID,
		RecordedAt: base.Add(time.Second),
		View:       "recording",
		Outcome:    "http_status",
		Note:       "status 503",
	}

	for _, rec := range []store.SampleRecord{second, first, testRecord(other, base, 9), failed} {
		require.NoError(t, s.InsertSample(ctx, rec))
	}

	got, err := s.ListSamples(ctx, runID, 10, 0)
	require.NoError(t, err)
	require.Equal(t, []store.SampleRecord{first, second, failed}, got)

	page, err := s.ListSamples(ctx, runID, 1, 1)
	require.NoError(t, err)
	require.Equal(t, []store.SampleRecord{second}, page)

	empty, err := s.ListSamples(ctx, uuid.New(), 10, 0)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestLatestSample(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	runID := uuid.New()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.LatestSample(ctx, runID)
	require.ErrorIs(t, err, store.ErrNotFound)

	done := testRecord(runID, base.Add(time.Second), 100)
	done.Complete = true
	require.NoError(t, s.InsertSample(ctx, testRecord(runID, base, 99)))
	require.NoError(t, s.InsertSample(ctx, done))

	got, err := s.LatestSample(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, done, got)
}

func TestInsertSampleRequiresRunID(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.Error(t, s.InsertSample(context.Background(), store.SampleRecord{}))
}

func TestOpenValidatesInput(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "", "")
	require.Error(t, err)

	_, err = Open(context.Background(), ":memory:", "samples; DROP TABLE x")
	require.ErrorContains(t, err, "invalid table name")
}

func TestSamplesSurviveReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	runID := uuid.New()
	rec := testRecord(runID, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), 5)

	s, err := Open(ctx, path, "history")
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(ctx))
	require.NoError(t, s.InsertSample(ctx, rec))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path, "history")
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	require.NoError(t, reopened.EnsureSchema(ctx))
	require.NoError(t, reopened.Ping(ctx))

	got, err := reopened.LatestSample(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, rec, got)
}
