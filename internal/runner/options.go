package runner

import (
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rstmdb/rstmload/internal/metrics"
	"github.com/rstmdb/rstmload/internal/workload"
)

// ArrivalModel selects how paced operations are spaced.
type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// Options configure the Runner.
type Options struct {
	Dialer Dialer // opens one session per worker (required)

	Machine    string          // machine name; a unique name is generated when empty
	Version    uint32          // machine version, default 1
	Definition json.RawMessage // machine definition; the default ring when empty
	Event      string          // event applied to every instance, default NEXT

	Instances   int // total instances across all workers
	Events      int // APPLY_EVENT calls per instance
	Workers     int // number of workers; defaults to Concurrency
	Concurrency int // workers allowed to run at once

	RatePerSecond  int          // operations per second across the run (0 means unlimited)
	ArrivalModel   ArrivalModel // pacing model when RatePerSecond > 0
	PoissonSampler func() float64
	RandomSeed     int64
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests

	Collector *metrics.Collector // optional; a fresh collector is used when nil
	Tracer    trace.Tracer       // optional; instance lifecycles become spans
	Logger    *zap.Logger
	LogErrors bool // log every failed operation at warn level

	Now func() time.Time // clock for event timestamps
}

func (o *Options) normalize() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Workers <= 0 {
		o.Workers = o.Concurrency
	}
	if o.Version == 0 {
		o.Version = workload.DefaultVersion
	}
	if o.Event == "" {
		o.Event = workload.DefaultEvent
	}
	if o.Machine == "" {
		o.Machine = workload.MachineName()
	}
	if len(o.Definition) == 0 {
		// the default definition always encodes
		o.Definition, _ = workload.DefaultDefinition().JSON()
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.RandomSeed == 0 {
		o.RandomSeed = time.Now().UnixNano()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			return rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
	if o.Collector == nil {
		o.Collector = metrics.NewCollector()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}
