package sinks

import (
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/statuswatch/internal/progress"
)

// newSample returns a successful recording sample of a fresh run.
func newSample(count int64) progress.Sample {
	return progress.Sample{
		RunID:   uuid.New(),
		TS:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		View:    progress.Recording.Name,
		Target:  100,
		Count:   count,
		Outcome: progress.OutcomeOK,
		Latency: 20 * time.Millisecond,
	}
}
