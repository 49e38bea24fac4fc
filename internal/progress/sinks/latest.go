package sinks

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/JakeFAU/statuswatch/internal/progress"
)

// LatestSink keeps the newest successful sample and the newest failure per run
// in memory. The run of the most recently consumed sample is the current run.
type LatestSink struct {
	mu      sync.RWMutex
	current uuid.UUID
	runs    map[uuid.UUID]*runState
}

type runState struct {
	latest  progress.Sample
	hasOK   bool
	failure progress.Sample
	failed  bool
}

// NewLatestSink returns an empty LatestSink.
func NewLatestSink() *LatestSink {
	return &LatestSink{runs: make(map[uuid.UUID]*runState)}
}

// Consume records the batch. Samples older than the stored one for the same
// run are ignored.
func (s *LatestSink) Consume(_ context.Context, batch []progress.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sample := range batch {
		state := s.runs[sample.RunID]
		if state == nil {
			state = &runState{}
			s.runs[sample.RunID] = state
		}
		s.current = sample.RunID
		if sample.OK() {
			if !state.hasOK || !sample.TS.Before(state.latest.TS) {
				state.latest = sample
				state.hasOK = true
			}
			continue
		}
		if !state.failed || !sample.TS.Before(state.failure.TS) {
			state.failure = sample
			state.failed = true
		}
	}
	return nil
}

// Current returns the run ID of the most recent sample, or uuid.Nil before any
// sample arrived.
func (s *LatestSink) Current() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Latest returns the newest successful sample of the current run.
func (s *LatestSink) Latest() (progress.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestLocked(s.current)
}

// LatestFor returns the newest successful sample of runID.
func (s *LatestSink) LatestFor(runID uuid.UUID) (progress.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestLocked(runID)
}

// LastFailure returns the newest failed sample of runID.
func (s *LatestSink) LastFailure(runID uuid.UUID) (progress.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := s.runs[runID]
	if state == nil || !state.failed {
		return progress.Sample{}, false
	}
	return state.failure, true
}

func (s *LatestSink) latestLocked(runID uuid.UUID) (progress.Sample, bool) {
	state := s.runs[runID]
	if state == nil || !state.hasOK {
		return progress.Sample{}, false
	}
	return state.latest, true
}

// Close implements the Sink interface; the recorded samples stay readable.
func (s *LatestSink) Close(context.Context) error {
	return nil
}
