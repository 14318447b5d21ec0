// Package metrics accumulates per-operation outcomes of a load run and turns
// them into reports.
//
// # Collector
//
// A [Collector] owns one [Bucket] per operation [Kind]. Workers record every
// attempted operation into the bucket of its kind:
//
//	collector := metrics.NewCollector()
//	collector.MarkStart(time.Now())
//
//	collector.Record(metrics.KindApplyEvent, latency, err)
//
//	collector.MarkEnd(time.Now())
//	for _, r := range collector.Reports() {
//		fmt.Println(r.Operation, r.Count, r.Errors)
//	}
//	summary := collector.Summary()
//
// A nil error is a success and contributes a latency sample; a non-nil error
// increments the error count and the error breakdown instead. For every bucket
// count == errors + number of stored latencies.
//
// # Reports
//
// [Bucket.Report] sorts the successful latencies and indexes them directly:
// p50 is element n/2, p90 element floor(n*0.9) and p99 element floor(n*0.99),
// except that with fewer than 100 samples p99 is the maximum. A bucket with no
// successful samples has no latency section.
//
// # Live snapshots
//
// Each bucket also feeds an HDR histogram so that [Bucket.Snapshot] can report
// approximate quantiles while the run is still going. Final reports never use
// the histogram.
//
// # Thread Safety
//
// Each bucket has its own mutex; there is no lock shared across kinds.
package metrics
