package runner

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rstmdb/rstmload/internal/clientmetrics"
	"github.com/rstmdb/rstmload/internal/metrics"
	"github.com/rstmdb/rstmload/internal/tracing"
	"github.com/rstmdb/rstmload/internal/workload"
)

// worker runs the instance lifecycle for one assignment over one session.
type worker struct {
	opt        *Options
	assignment Assignment
	pacer      arrivalController
	log        *zap.Logger
}

func newWorker(opt *Options, a Assignment, pacer arrivalController) *worker {
	return &worker{
		opt:        opt,
		assignment: a,
		pacer:      pacer,
		log:        opt.Logger.With(zap.Int("worker", a.Worker)),
	}
}

// run processes every item of the assignment. The only error it returns is a
// *ConnectionError; operation failures are recorded, not returned.
func (w *worker) run(ctx context.Context) (clientmetrics.Snapshot, error) {
	client, err := w.opt.Dialer.Dial(ctx)
	if err != nil {
		w.log.Warn("connection failed", zap.Int("items", w.assignment.Items), zap.Error(err))
		return clientmetrics.Snapshot{}, &ConnectionError{Worker: w.assignment.Worker, Items: w.assignment.Items, Err: err}
	}

	for i := 0; i < w.assignment.Items; i++ {
		if ctx.Err() != nil {
			w.log.Debug("stopping early", zap.Int("completed", i), zap.Error(ctx.Err()))
			break
		}
		w.runItem(ctx, client, i)
	}

	// read before Close, which resets the connection clock
	var wire clientmetrics.Snapshot
	if r, ok := client.(wireReporter); ok {
		wire = r.Metrics()
	}
	if err := client.Close(); err != nil {
		w.log.Debug("close failed", zap.Error(err))
	}
	return wire, nil
}

func (w *worker) runItem(ctx context.Context, client Client, index int) {
	id := workload.InstanceID(w.assignment.Worker, index)

	var span trace.Span
	if w.opt.Tracer != nil {
		ctx, span = tracing.StartInstanceSpan(ctx, w.opt.Tracer, id)
	}
	applied, err := w.lifecycle(ctx, client, id, index)
	if span != nil {
		tracing.EndSpan(span, err, attribute.Int("rstmdb.events_applied", applied))
	}
}

// lifecycle returns the number of events applied and the first failure seen.
func (w *worker) lifecycle(ctx context.Context, client Client, id string, index int) (int, error) {
	initial := map[string]any{"worker": w.assignment.Worker, "index": index}
	createErr := w.do(ctx, metrics.KindCreate, id, func(ctx context.Context) error {
		return client.CreateInstance(ctx, w.opt.Machine, w.opt.Version, id, initial)
	})
	if createErr != nil {
		return 0, createErr
	}

	var firstErr error
	applied := 0
	for e := 0; e < w.assignment.EventsPerItem; e++ {
		payload := map[string]any{"timestamp": unixSeconds(w.opt)}
		err := w.do(ctx, metrics.KindApplyEvent, id, func(ctx context.Context) error {
			return client.ApplyEvent(ctx, id, w.opt.Event, payload)
		})
		if err != nil {
			firstErr = err
			break
		}
		applied++
	}

	getErr := w.do(ctx, metrics.KindGet, id, func(ctx context.Context) error {
		return client.GetInstance(ctx, id)
	})
	deleteErr := w.do(ctx, metrics.KindDelete, id, func(ctx context.Context) error {
		return client.DeleteInstance(ctx, id)
	})
	if firstErr == nil {
		firstErr = errors.Join(getErr, deleteErr)
	}
	return applied, firstErr
}

// do paces, times and records one operation.
func (w *worker) do(ctx context.Context, kind metrics.Kind, id string, fn func(context.Context) error) error {
	if err := w.pacer.Wait(ctx); err != nil {
		return err
	}
	outcome := Timed(ctx, fn)
	w.opt.Collector.Record(kind, outcome.Duration, outcome.Err)
	if !outcome.Success() && w.opt.LogErrors {
		w.log.Warn("operation failed",
			zap.Stringer("op", kind),
			zap.String("instance_id", id),
			zap.Duration("latency", outcome.Duration),
			zap.Error(outcome.Err),
		)
	}
	return outcome.Err
}

func unixSeconds(opt *Options) float64 {
	return float64(opt.Now().UnixNano()) / 1e9
}
