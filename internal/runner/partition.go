package runner

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration reports parameters that cannot be partitioned.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Assignment is the share of work given to one worker.
type Assignment struct {
	Worker        int
	Items         int
	EventsPerItem int
}

// Partition splits total items across workers as evenly as possible. The
// first total%workers workers get one extra item. Workers left with no items
// are omitted, so the result may be shorter than workers.
func Partition(total, workers, eventsPerItem int) ([]Assignment, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfiguration, workers)
	}
	if total < 0 {
		return nil, fmt.Errorf("%w: instances must not be negative, got %d", ErrInvalidConfiguration, total)
	}
	if eventsPerItem < 0 {
		return nil, fmt.Errorf("%w: events must not be negative, got %d", ErrInvalidConfiguration, eventsPerItem)
	}

	base := total / workers
	remainder := total % workers
	out := make([]Assignment, 0, min(total, workers))
	for w := 0; w < workers; w++ {
		items := base
		if w < remainder {
			items++
		}
		if items == 0 {
			continue
		}
		out = append(out, Assignment{Worker: w, Items: items, EventsPerItem: eventsPerItem})
	}
	return out, nil
}
