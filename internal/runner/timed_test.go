package runner

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTimedMeasuresDuration(t *testing.T) {
	out := Timed(context.Background(), func(context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	if !out.Success() {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.Duration < 5*time.Millisecond {
		t.Fatalf("duration = %s, want >= 5ms", out.Duration)
	}
}

func TestTimedCapturesError(t *testing.T) {
	want := errors.New("failed")
	out := Timed(context.Background(), func(context.Context) error { return want })
	if out.Success() || !errors.Is(out.Err, want) {
		t.Fatalf("outcome = %+v, want failure with %v", out, want)
	}
	if out.Duration < 0 {
		t.Fatalf("negative duration %s", out.Duration)
	}
}
