package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Kind identifies the operation a sample belongs to.
type Kind int

const (
	KindCreate Kind = iota
	KindApplyEvent
	KindGet
	KindDelete
	numKinds
)

var kindNames = [numKinds]string{
	KindCreate:     "create_instance",
	KindApplyEvent: "apply_event",
	KindGet:        "get_instance",
	KindDelete:     "delete_instance",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "unknown"
	}
	return kindNames[k]
}

// Kinds returns every operation kind in report order.
func Kinds() []Kind {
	return []Kind{KindCreate, KindApplyEvent, KindGet, KindDelete}
}

// Bucket accumulates the outcomes of one operation kind. It is shared by all
// workers; each bucket has its own lock.
type Bucket struct {
	kind Kind

	mu            sync.Mutex
	count         int64
	errors        int64
	latencies     []time.Duration
	hist          *hdrhistogram.Histogram
	errorsByLabel map[string]int64
	start         time.Time
	end           time.Time
}

func newBucket(kind Kind) *Bucket {
	return &Bucket{
		kind: kind,
		// Track latencies from 1µs up to 60s with 3 significant figures.
		hist:          hdrhistogram.New(1, 60_000_000, 3),
		errorsByLabel: make(map[string]int64),
	}
}

// Kind returns the operation kind of the bucket.
func (b *Bucket) Kind() Kind { return b.kind }

// Record adds one outcome. A non-nil err counts as a failure and stores no latency.
func (b *Bucket) Record(latency time.Duration, err error) {
	var label string
	if err != nil {
		label = ErrorLabel(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.count++
	if err != nil {
		b.errors++
		b.errorsByLabel[label]++
		return
	}

	b.latencies = append(b.latencies, latency)
	us := latency.Microseconds()
	if us < b.hist.LowestTrackableValue() {
		us = b.hist.LowestTrackableValue()
	}
	if us > b.hist.HighestTrackableValue() {
		us = b.hist.HighestTrackableValue()
	}
	_ = b.hist.RecordValue(us)
}

// MarkStart sets the start of the measurement window.
func (b *Bucket) MarkStart(t time.Time) {
	b.mu.Lock()
	b.start = t
	b.mu.Unlock()
}

// MarkEnd sets the end of the measurement window.
func (b *Bucket) MarkEnd(t time.Time) {
	b.mu.Lock()
	b.end = t
	b.mu.Unlock()
}

// LatencyReport holds latency statistics of successful samples in milliseconds.
type LatencyReport struct {
	Min  float64 `json:"min"`
	Mean float64 `json:"mean"`
	P50  float64 `json:"p50"`
	P90  float64 `json:"p90"`
	P99  float64 `json:"p99"`
	Max  float64 `json:"max"`
}

// Report summarises a bucket after the run.
type Report struct {
	Operation      string         `json:"operation"`
	Count          int64          `json:"count"`
	Errors         int64          `json:"errors"`
	Throughput     float64        `json:"throughput"`
	Latency        *LatencyReport `json:"latency_ms,omitempty"`
	ErrorBreakdown []ErrorCount   `json:"error_breakdown,omitempty"`
}

// Report computes the bucket's report. It does not modify the bucket.
func (b *Bucket) Report() Report {
	b.mu.Lock()
	sorted := append([]time.Duration(nil), b.latencies...)
	r := Report{
		Operation:      b.kind.String(),
		Count:          b.count,
		Errors:         b.errors,
		ErrorBreakdown: SortErrorCounts(b.errorsByLabel),
	}
	elapsed := b.end.Sub(b.start)
	b.mu.Unlock()

	if len(sorted) == 0 {
		return r
	}
	if elapsed > 0 {
		r.Throughput = float64(len(sorted)) / elapsed.Seconds()
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	r.Latency = summarize(sorted)
	return r
}

// summarize computes latency statistics over ascending latencies. Below 100
// samples p99 is the maximum.
func summarize(sorted []time.Duration) *LatencyReport {
	n := len(sorted)
	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	p99 := sorted[n-1]
	if n >= 100 {
		p99 = sorted[n*99/100]
	}

	return &LatencyReport{
		Min:  ms(sorted[0]),
		Mean: ms(sum) / float64(n),
		P50:  ms(sorted[n/2]),
		P90:  ms(sorted[n*9/10]),
		P99:  ms(p99),
		Max:  ms(sorted[n-1]),
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Snapshot is an approximate, in-flight view of a bucket used for live
// progress. Quantiles come from the HDR histogram.
type Snapshot struct {
	Operation  string
	Count      int64
	Errors     int64
	P50        time.Duration
	P99        time.Duration
	Throughput float64

	ErrorBreakdown []ErrorCount
}

// Snapshot returns the live view of the bucket as of now.
func (b *Bucket) Snapshot(now time.Time) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Snapshot{
		Operation:      b.kind.String(),
		Count:          b.count,
		Errors:         b.errors,
		ErrorBreakdown: SortErrorCounts(b.errorsByLabel),
	}
	if b.hist.TotalCount() > 0 {
		s.P50 = time.Duration(b.hist.ValueAtQuantile(50)) * time.Microsecond
		s.P99 = time.Duration(b.hist.ValueAtQuantile(99)) * time.Microsecond
	}
	end := now
	if !b.end.IsZero() {
		end = b.end
	}
	if !b.start.IsZero() {
		if elapsed := end.Sub(b.start); elapsed > 0 {
			s.Throughput = float64(b.count-b.errors) / elapsed.Seconds()
		}
	}
	return s
}

// Collector holds one bucket per operation kind.
type Collector struct {
	buckets [numKinds]*Bucket

	mu    sync.Mutex
	start time.Time
	end   time.Time
}

func NewCollector() *Collector {
	c := &Collector{}
	for _, k := range Kinds() {
		c.buckets[k] = newBucket(k)
	}
	return c
}

// Bucket returns the bucket for kind.
func (c *Collector) Bucket(kind Kind) *Bucket {
	return c.buckets[kind]
}

// Record adds an outcome to the bucket of kind.
func (c *Collector) Record(kind Kind, latency time.Duration, err error) {
	c.buckets[kind].Record(latency, err)
}

// MarkStart sets a shared start time on every bucket.
func (c *Collector) MarkStart(t time.Time) {
	c.mu.Lock()
	c.start = t
	c.mu.Unlock()
	for _, b := range c.buckets {
		b.MarkStart(t)
	}
}

// MarkEnd sets a shared end time on every bucket.
func (c *Collector) MarkEnd(t time.Time) {
	c.mu.Lock()
	c.end = t
	c.mu.Unlock()
	for _, b := range c.buckets {
		b.MarkEnd(t)
	}
}

// Elapsed returns the measurement window, or the time since start while the
// run is in progress.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.start.IsZero() {
		return 0
	}
	if c.end.IsZero() {
		return time.Since(c.start)
	}
	return c.end.Sub(c.start)
}

// Reports returns one report per kind in report order.
func (c *Collector) Reports() []Report {
	reports := make([]Report, 0, numKinds)
	for _, k := range Kinds() {
		reports = append(reports, c.buckets[k].Report())
	}
	return reports
}

// Snapshots returns the live view of every bucket in report order.
func (c *Collector) Snapshots() []Snapshot {
	now := time.Now()
	snaps := make([]Snapshot, 0, numKinds)
	for _, k := range Kinds() {
		snaps = append(snaps, c.buckets[k].Snapshot(now))
	}
	return snaps
}

// Summary aggregates all kinds.
type Summary struct {
	TotalOperations int64         `json:"total_operations"`
	TotalErrors     int64         `json:"total_errors"`
	Successful      int64         `json:"successful"`
	Throughput      float64       `json:"throughput"`
	Duration        time.Duration `json:"-"`
	DurationSeconds float64       `json:"duration_seconds"`
	ErrorBreakdown  []ErrorCount  `json:"error_breakdown,omitempty"`
}

// Summary computes the aggregate across all buckets. Throughput counts
// successful operations over the shared window.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	elapsed := c.end.Sub(c.start)
	c.mu.Unlock()

	var s Summary
	labels := make(map[string]int64)
	for _, b := range c.buckets {
		b.mu.Lock()
		s.TotalOperations += b.count
		s.TotalErrors += b.errors
		for label, n := range b.errorsByLabel {
			labels[label] += n
		}
		b.mu.Unlock()
	}
	s.Successful = s.TotalOperations - s.TotalErrors
	s.ErrorBreakdown = SortErrorCounts(labels)
	if elapsed > 0 {
		s.Duration = elapsed
		s.DurationSeconds = elapsed.Seconds()
		s.Throughput = float64(s.Successful) / elapsed.Seconds()
	}
	return s
}
