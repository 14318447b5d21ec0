package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rstmdb/rstmload/internal/metrics"
)

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	collector *metrics.Collector
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(collector *metrics.Collector, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and ends the progress line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, ProgressLine(p.collector.Snapshots()))
		case <-p.done:
			return
		}
	}
}

// ProgressLine renders one carriage-return prefixed status line from live
// bucket snapshots.
func ProgressLine(snaps []metrics.Snapshot) string {
	var total, errs int64
	var rate float64
	for _, s := range snaps {
		total += s.Count
		errs += s.Errors
		rate += s.Throughput
	}
	line := fmt.Sprintf("\rOps: %d | Errors: %d | Ops/s: %.1f", total, errs, rate)
	if busiest, ok := busiestSnapshot(snaps); ok {
		line += fmt.Sprintf(" | %s p99 %.1fms", busiest.Operation, float64(busiest.P99)/float64(time.Millisecond))
	}
	return line
}

func busiestSnapshot(snaps []metrics.Snapshot) (metrics.Snapshot, bool) {
	var best metrics.Snapshot
	found := false
	for _, s := range snaps {
		if s.Count == 0 {
			continue
		}
		if !found || s.Count > best.Count {
			best = s
			found = true
		}
	}
	return best, found
}
