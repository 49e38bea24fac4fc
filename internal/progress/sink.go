package progress

import "context"

// Sink consumes batches of samples. Implementations must be safe for
// repeated calls and honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Sample) error
	Close(ctx context.Context) error
}

// Emitter publishes individual samples; Hub satisfies this interface so the
// poller stays agnostic about how samples are buffered or persisted.
type Emitter interface {
	Emit(sample Sample)
}
