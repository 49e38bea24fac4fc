package sinks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/statuswatch/internal/duration"
	"github.com/JakeFAU/statuswatch/internal/progress"
)

// CompletionSubject labels completion notices.
const CompletionSubject = "run.completed"

// Publisher delivers a payload to a message topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// CompletionNotice is published once per run when the target is reached.
type CompletionNotice struct {
	RunID       string    `json:"run_id"`
	View        string    `json:"view"`
	Target      int64     `json:"target"`
	Count       int64     `json:"count"`
	ElapsedMs   int64     `json:"elapsed_ms"`
	Elapsed     string    `json:"elapsed"`
	CompletedAt time.Time `json:"completed_at"`
}

// NotifySink publishes a CompletionNotice for the first complete sample of
// each run. Failed publishes are returned so the hub logs them; the run is
// retried on the next complete sample.
type NotifySink struct {
	publisher Publisher
	logger    *zap.Logger

	mu       sync.Mutex
	notified map[uuid.UUID]struct{}
}

// NewNotifySink constructs a NotifySink.
func NewNotifySink(publisher Publisher, logger *zap.Logger) *NotifySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifySink{
		publisher: publisher,
		logger:    logger,
		notified:  make(map[uuid.UUID]struct{}),
	}
}

// Consume publishes notices for complete samples of runs not yet announced.
func (s *NotifySink) Consume(ctx context.Context, batch []progress.Sample) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	for _, sample := range batch {
		if !sample.Complete || !s.claim(sample.RunID) {
			continue
		}
		notice := NewCompletionNotice(sample)
		id, err := s.publisher.Publish(ctx, CompletionSubject, notice)
		if err != nil {
			s.release(sample.RunID)
			return fmt.Errorf("publish completion: %w", err)
		}
		s.logger.Info("completion published",
			zap.String("run_id", notice.RunID),
			zap.String("message_id", id),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *NotifySink) Close(context.Context) error {
	return nil
}

func (s *NotifySink) claim(runID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notified[runID]; ok {
		return false
	}
	s.notified[runID] = struct{}{}
	return true
}

func (s *NotifySink) release(runID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notified, runID)
}

// NewCompletionNotice builds the notice for a complete sample.
func NewCompletionNotice(sample progress.Sample) CompletionNotice {
	return CompletionNotice{
		RunID:       sample.RunID.String(),
		View:        sample.View,
		Target:      sample.Target,
		Count:       sample.Count,
		ElapsedMs:   sample.Elapsed.Milliseconds(),
		Elapsed:     duration.Format(sample.Elapsed),
		CompletedAt: sample.TS,
	}
}
