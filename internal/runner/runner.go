package runner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rstmdb/rstmload/internal/clientmetrics"
	"github.com/rstmdb/rstmload/internal/metrics"
)

// Result captures execution summary.
type Result struct {
	Machine          string
	Assignments      []Assignment
	Reports          []metrics.Report
	Summary          metrics.Summary
	ConnectionErrors []*ConnectionError
	Wire             clientmetrics.Snapshot
}

// Runner coordinates the setup phase and the bounded fan-out of workers.
type Runner struct {
	opt     Options
	limiter *Limiter
	arrival arrivalController
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{
		opt:     opt,
		limiter: NewLimiter(opt.Concurrency),
		arrival: newArrivalController(opt),
	}
}

// Collector exposes the live statistics for progress and dashboard readers.
func (r *Runner) Collector() *metrics.Collector { return r.opt.Collector }

// Limiter exposes the concurrency limiter so callers can show active workers.
func (r *Runner) Limiter() *Limiter { return r.limiter }

// Machine returns the machine name registered for the run.
func (r *Runner) Machine() string { return r.opt.Machine }

// Run registers the machine, runs every worker and returns the aggregated
// result. It returns an error only for invalid parameters or a failed setup;
// worker connection failures are reported in Result.ConnectionErrors.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	log := r.opt.Logger
	if r.opt.Dialer == nil {
		return Result{}, fmt.Errorf("%w: dialer is required", ErrInvalidConfiguration)
	}
	assignments, err := Partition(r.opt.Instances, r.opt.Workers, r.opt.Events)
	if err != nil {
		return Result{}, err
	}

	if err := r.setup(ctx); err != nil {
		return Result{}, err
	}
	log.Info("machine registered",
		zap.String("machine", r.opt.Machine),
		zap.Uint32("version", r.opt.Version),
		zap.Int("workers", len(assignments)),
		zap.Int("concurrency", r.opt.Concurrency),
	)

	var (
		mu       sync.Mutex
		connErrs []*ConnectionError
		wire     clientmetrics.Snapshot
		wg       sync.WaitGroup
	)

	r.opt.Collector.MarkStart(time.Now())
	wg.Add(len(assignments))
	for _, a := range assignments {
		w := newWorker(&r.opt, a, r.arrival)
		go func() {
			defer wg.Done()
			err := r.limiter.Do(ctx, func(ctx context.Context) error {
				snap, err := w.run(ctx)
				mu.Lock()
				wire.Add(snap)
				mu.Unlock()
				return err
			})
			if err == nil {
				return
			}
			if ce, ok := err.(*ConnectionError); ok {
				mu.Lock()
				connErrs = append(connErrs, ce)
				mu.Unlock()
				return
			}
			log.Debug("worker not started", zap.Int("worker", w.assignment.Worker), zap.Error(err))
		}()
	}
	wg.Wait()
	r.opt.Collector.MarkEnd(time.Now())
	sort.Slice(connErrs, func(i, j int) bool { return connErrs[i].Worker < connErrs[j].Worker })

	return Result{
		Machine:          r.opt.Machine,
		Assignments:      assignments,
		Reports:          r.opt.Collector.Reports(),
		Summary:          r.opt.Collector.Summary(),
		ConnectionErrors: connErrs,
		Wire:             wire,
	}, nil
}

// setup registers the machine on a dedicated session.
func (r *Runner) setup(ctx context.Context) error {
	client, err := r.opt.Dialer.Dial(ctx)
	if err != nil {
		return &SetupError{Op: "connect", Err: err}
	}
	defer client.Close()
	if err := client.PutMachine(ctx, r.opt.Machine, r.opt.Version, r.opt.Definition); err != nil {
		return &SetupError{Op: "put_machine", Err: err}
	}
	return nil
}
