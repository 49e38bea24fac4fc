package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/statuswatch/internal/progress"
)

// LogSink emits structured logs for every sample. It is useful during
// development or when no durable store is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each sample in the batch using structured fields. Failed polls
// are logged at warn level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Sample) error {
	for _, sample := range batch {
		fields := []zap.Field{
			zap.String("run_id", sample.RunID.String()),
			zap.String("view", sample.View),
			zap.String("outcome", string(sample.Outcome)),
			zap.Int64("count", sample.Count),
			zap.Int64("target", sample.Target),
			zap.Duration("elapsed", sample.Elapsed),
			zap.Duration("latency", sample.Latency),
			zap.Bool("complete", sample.Complete),
		}
		if sample.File != "" {
			fields = append(fields, zap.String("file", sample.File))
		}
		if sample.ETAKnown {
			fields = append(fields, zap.Duration("eta", sample.ETA))
		}
		if !sample.OK() {
			fields = append(fields, zap.String("note", sample.Note))
			s.logger.Warn("progress sample", fields...)
			continue
		}
		s.logger.Info("progress sample", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
