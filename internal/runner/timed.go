package runner

import (
	"context"
	"time"
)

// Outcome is the result of one timed operation.
type Outcome struct {
	Duration time.Duration
	Err      error
}

// Success reports whether the operation completed without error.
func (o Outcome) Success() bool { return o.Err == nil }

// Timed runs fn and measures its wall-clock duration on the monotonic clock.
// Errors are captured in the outcome, never propagated.
func Timed(ctx context.Context, fn func(context.Context) error) Outcome {
	start := time.Now()
	err := fn(ctx)
	return Outcome{Duration: time.Since(start), Err: err}
}
