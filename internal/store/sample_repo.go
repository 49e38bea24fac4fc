// Package store declares interfaces for persisting poll samples.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("sample record not found")

// SampleRecord models one row of the samples table.
type SampleRecord struct {
	// RunID groups all samples of one watch session.
	RunID uuid.UUID
	// RecordedAt is the UTC time the poll was issued.
	RecordedAt time.Time
	// View is calculating or recording.
	View string
	// Outcome is "ok" or a poll failure kind.
	Outcome string
	Count   int64
	Target  int64
	// ElapsedMs is the job time reported by the device.
	ElapsedMs int64
	// File is empty for views without a file field.
	File string
	// ETAMs is only meaningful when ETAKnown is set.
	ETAMs    int64
	ETAKnown bool
	// LatencyMs is the wall time of the status request.
	LatencyMs int64
	Complete  bool
	// Note carries the failure text for failed polls.
	Note string
}

// SampleRepository persists poll samples.
type SampleRepository interface {
	// InsertSample appends one sample.
	InsertSample(ctx context.Context, rec SampleRecord) error
	// ListSamples returns the samples of a run ordered by RecordedAt, with
	// limit/offset paging.
	ListSamples(ctx context.Context, runID uuid.UUID, limit, offset int) ([]SampleRecord, error)
	// LatestSample returns the most recent sample of a run or ErrNotFound.
	LatestSample(ctx context.Context, runID uuid.UUID) (SampleRecord, error)
}
