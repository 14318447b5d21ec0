package runner

import (
	"context"
	"encoding/json"

	"github.com/rstmdb/rstmload/internal/clientmetrics"
)

// Client is the subset of an RCP session the runner drives. Every call
// reports only success or failure.
type Client interface {
	PutMachine(ctx context.Context, machine string, version uint32, definition json.RawMessage) error
	CreateInstance(ctx context.Context, machine string, version uint32, instanceID string, initialCtx map[string]any) error
	ApplyEvent(ctx context.Context, instanceID, event string, payload map[string]any) error
	GetInstance(ctx context.Context, instanceID string) error
	DeleteInstance(ctx context.Context, instanceID string) error
	Close() error
}

// Dialer opens a new authenticated session.
type Dialer interface {
	Dial(ctx context.Context) (Client, error)
}

// DialerFunc adapts a function to a Dialer.
type DialerFunc func(ctx context.Context) (Client, error)

func (f DialerFunc) Dial(ctx context.Context) (Client, error) { return f(ctx) }

// wireReporter is implemented by clients that count frames and bytes.
type wireReporter interface {
	Metrics() clientmetrics.Snapshot
}
