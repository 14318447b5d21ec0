// Package runner drives the rstmdb load workload.
//
// A run registers one state machine, splits the requested instances across
// workers and lets a bounded number of workers proceed at once. Each worker
// owns a single connection and walks its instances through the lifecycle
//
//	CREATE_INSTANCE -> APPLY_EVENT x N -> GET_INSTANCE -> DELETE_INSTANCE
//
// timing every operation and recording it into a [metrics.Collector].
//
// # Basic Usage
//
//	r := runner.New(runner.Options{
//		Dialer:      dialer,
//		Instances:   100,
//		Events:      10,
//		Concurrency: 10,
//	})
//	result, err := r.Run(ctx)
//
// # Failure Handling
//
// A failed CREATE_INSTANCE skips the item. A failed APPLY_EVENT ends the event
// sequence for that item but GET_INSTANCE and DELETE_INSTANCE are still
// attempted. A worker that cannot connect contributes nothing and is reported
// as a [ConnectionError]; the run carries on. A failure while registering the
// machine is fatal and returned as a [SetupError].
//
// # Pacing
//
// When RatePerSecond is set every operation waits for the arrival controller
// first. [ArrivalModelUniform] spaces operations evenly, [ArrivalModelPoisson]
// draws exponential gaps. The wait is not part of the recorded latency.
package runner
