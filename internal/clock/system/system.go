// Package system provides a real clock implementation.
package system

import "time"

// Clock implements progress.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current local time including its monotonic reading, so
// differences between two calls are immune to wall clock steps. Convert with
// UTC() before persisting.
func (Clock) Now() time.Time {
	return time.Now()
}
