package runner

import "fmt"

// SetupError is a fatal failure before any worker starts.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string { return fmt.Sprintf("setup %s: %v", e.Op, e.Err) }

func (e *SetupError) Unwrap() error { return e.Err }

// ConnectionError reports a worker that could not open its session. The
// worker's items are not attempted and the run continues without them.
type ConnectionError struct {
	Worker int
	Items  int
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("worker %d: connect: %v", e.Worker, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
