package runner

import (
	"context"
	"testing"
	"time"
)

func TestPoissonArrivalNextDelayUsesSampler(t *testing.T) {
	ctrl := &poissonArrival{sample: func() float64 { return 1 }}
	ctrl.SetRate(200)
	delay := ctrl.nextDelay()
	expected := time.Second / 200
	if delay != expected {
		t.Fatalf("expected delay %s, got %s", expected, delay)
	}
}

func TestPoissonArrivalReserveChainsSlots(t *testing.T) {
	ctrl := &poissonArrival{sample: func() float64 { return 1 }}
	ctrl.SetRate(100)
	now := time.Now()
	for i := 1; i <= 3; i++ {
		if got, want := ctrl.reserve(now), time.Duration(i)*10*time.Millisecond; got != want {
			t.Fatalf("reserve %d = %s, want %s", i, got, want)
		}
	}
	// a caller arriving after the schedule has drained starts a fresh gap
	later := now.Add(time.Second)
	if got := ctrl.reserve(later); got != 10*time.Millisecond {
		t.Fatalf("reserve after idle = %s, want 10ms", got)
	}
}

func TestPoissonArrivalWaitCancelledContext(t *testing.T) {
	ctrl := &poissonArrival{sample: func() float64 { return 1 }}
	ctrl.SetRate(0.000001)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ctrl.Wait(ctx); err == nil {
		t.Fatalf("expected context error when cancelled")
	}
}

func TestArrivalWithoutRateDoesNotBlock(t *testing.T) {
	for _, model := range []ArrivalModel{ArrivalModelUniform, ArrivalModelPoisson} {
		opts := Options{ArrivalModel: model}
		opts.normalize()
		ctrl := newArrivalController(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		for i := 0; i < 1000; i++ {
			if err := ctrl.Wait(ctx); err != nil {
				t.Fatalf("%s: Wait %d: %v", model, i, err)
			}
		}
		cancel()
	}
}

func TestUniformArrivalSetRate(t *testing.T) {
	opts := Options{RatePerSecond: 10}
	opts.normalize()
	ctrl := newArrivalController(opts).(*uniformArrival)
	ctrl.SetRate(40)
	if got := ctrl.limiter.Burst(); got != 40 {
		t.Fatalf("burst = %d, want 40", got)
	}
	ctrl.SetRate(0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	for i := 0; i < 100; i++ {
		if err := ctrl.Wait(ctx); err != nil {
			t.Fatalf("unlimited Wait %d: %v", i, err)
		}
	}
}
