package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/statuswatch/internal/progress"
	"github.com/JakeFAU/statuswatch/internal/store"
)

// StoreSink persists samples via a store.SampleRepository.
type StoreSink struct {
	repo   store.SampleRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.SampleRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume inserts the batch in order. It respects ctx deadlines and stops at
// the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Sample) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for i, sample := range batch {
		if err := s.repo.InsertSample(ctx, ToRecord(sample)); err != nil {
			s.logger.Warn("sample insert failed",
				zap.String("run_id", sample.RunID.String()),
				zap.Int("skipped", len(batch)-i),
				zap.Error(err),
			)
			return fmt.Errorf("insert sample: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

// ToRecord maps a sample onto its persisted form. Durations are stored in
// whole milliseconds.
func ToRecord(sample progress.Sample) store.SampleRecord {
	return store.SampleRecord{
		RunID:      sample.RunID,
		RecordedAt: sample.TS,
		View:       sample.View,
		Outcome:    string(sample.Outcome),
		Count:      sample.Count,
		Target:     sample.Target,
		ElapsedMs:  sample.Elapsed.Milliseconds(),
		File:       sample.File,
		ETAMs:      sample.ETA.Milliseconds(),
		ETAKnown:   sample.ETAKnown,
		LatencyMs:  sample.Latency.Milliseconds(),
		Complete:   sample.Complete,
		Note:       sample.Note,
	}
}
