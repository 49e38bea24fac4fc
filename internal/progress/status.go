package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// FailureKind classifies why a poll produced no usable status.
type FailureKind string

// Poll failure classes.
const (
	FailureTransport    FailureKind = "transport"
	FailureHTTPStatus   FailureKind = "http_status"
	FailureDecode       FailureKind = "decode"
	FailureMissingField FailureKind = "missing_field"
)

// PollError carries a classified poll failure.
type PollError struct {
	Kind FailureKind
	Err  error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// FailureKindOf extracts the classification from err, or "" when err is not a
// PollError.
func FailureKindOf(err error) FailureKind {
	var pollErr *PollError
	if errors.As(err, &pollErr) {
		return pollErr.Kind
	}
	return ""
}

// Status is the decoded status document.
type Status struct {
	Count         int64
	ElapsedMillis float64
	File          string
}

// DecodeStatus reads a status document for view. The count and time fields
// are required; the file field may be absent.
func DecodeStatus(view View, r io.Reader) (Status, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return Status{}, &PollError{Kind: FailureDecode, Err: fmt.Errorf("decode status: %w", err)}
	}
	if doc == nil {
		return Status{}, &PollError{Kind: FailureDecode, Err: errors.New("status document is null")}
	}

	count, err := requiredNumber(doc, view.CountField)
	if err != nil {
		return Status{}, err
	}
	if count != math.Trunc(count) || count < 0 {
		return Status{}, &PollError{
			Kind: FailureDecode,
			Err:  fmt.Errorf("field %q must be a non-negative integer, got %v", view.CountField, count),
		}
	}
	elapsed, err := requiredNumber(doc, view.TimeField)
	if err != nil {
		return Status{}, err
	}

	status := Status{Count: int64(count), ElapsedMillis: elapsed}
	if view.FileField != "" {
		switch v := doc[view.FileField].(type) {
		case nil:
		case string:
			status.File = v
		default:
			return Status{}, &PollError{
				Kind: FailureDecode,
				Err:  fmt.Errorf("field %q must be a string, got %T", view.FileField, v),
			}
		}
	}
	return status, nil
}

func requiredNumber(doc map[string]any, field string) (float64, error) {
	raw, ok := doc[field]
	if !ok || raw == nil {
		return 0, &PollError{Kind: FailureMissingField, Err: fmt.Errorf("field %q is missing", field)}
	}
	num, ok := raw.(json.Number)
	if !ok {
		return 0, &PollError{Kind: FailureDecode, Err: fmt.Errorf("field %q must be a number, got %T", field, raw)}
	}
	val, err := num.Float64()
	if err != nil {
		return 0, &PollError{Kind: FailureDecode, Err: fmt.Errorf("field %q: %w", field, err)}
	}
	return val, nil
}
