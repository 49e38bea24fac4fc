package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome records how a poll ended: OutcomeOK or one of the FailureKind values.
type Outcome string

// OutcomeOK marks a poll that decoded and rendered a status.
const OutcomeOK Outcome = "ok"

// Sample captures the result of a single status poll.
type Sample struct {
	// RunID identifies one watch session; all samples of a session share it.
	RunID uuid.UUID
	// TS is the UTC time the poll was issued.
	TS time.Time
	// View is the view name the poll belonged to.
	View string
	// Target is the item count at which the job is complete.
	Target int64
	// Count is the reported number of finished items.
	Count int64
	// Elapsed is the job time reported by the device.
	Elapsed time.Duration
	// File is the item currently being processed, if the view reports one.
	File string
	// ETA is the estimated remaining job time; only meaningful when ETAKnown.
	ETA      time.Duration
	ETAKnown bool
	// Outcome is OutcomeOK or the failure classification.
	Outcome Outcome
	// Latency is the wall time spent fetching and decoding.
	Latency time.Duration
	// Complete is set on the sample whose count reached the target.
	Complete bool
	// Note carries the error text of failed polls.
	Note string
}

// OK reports whether the sample holds a decoded status.
func (s Sample) OK() bool {
	return s.Outcome == OutcomeOK
}

// Validate performs coarse validation on Sample payloads.
func (s Sample) Validate() error {
	if s.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if s.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch s.Outcome {
	case OutcomeOK:
		if s.Count < 0 {
			return errors.New("count must be >= 0")
		}
	case Outcome(FailureTransport), Outcome(FailureHTTPStatus), Outcome(FailureDecode), Outcome(FailureMissingField):
		if s.Complete {
			return errors.New("failed sample cannot be complete")
		}
	default:
		return fmt.Errorf("unknown outcome %q", s.Outcome)
	}
	if s.Latency < 0 {
		return errors.New("latency must be >= 0")
	}
	return nil
}

// EstimateRemaining projects the time left from the average time per item:
// elapsed/count per item, times the items still missing. The estimate is
// unknown until at least one item has finished; a count past the target
// yields zero.
func EstimateRemaining(elapsedMillis float64, count, target int64) (float64, bool) {
	if count <= 0 {
		return 0, false
	}
	remaining := target - count
	if remaining <= 0 {
		return 0, true
	}
	perItem := elapsedMillis / float64(count)
	return perItem * float64(remaining), true
}

func millisToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
