// Package clientmetrics tracks wire-level counters for a single RCP connection.
package clientmetrics

import (
	"sync/atomic"
	"time"
)

// ClientMetrics counts frames and bytes moved over one connection. All
// methods are safe for concurrent use; the writer and reader goroutines of a
// client update it independently.
type ClientMetrics struct {
	connectedAt atomic.Int64 // unix nanos, 0 when disconnected
	framesSent  atomic.Int64
	framesRecv  atomic.Int64
	bytesSent   atomic.Int64
	bytesRecv   atomic.Int64
	errors      atomic.Int64
}

// New creates a new ClientMetrics instance.
func New() *ClientMetrics {
	return &ClientMetrics{}
}

// MarkConnected records the connection time.
func (m *ClientMetrics) MarkConnected() {
	m.connectedAt.Store(time.Now().UnixNano())
}

// Reset clears the connection time.
func (m *ClientMetrics) Reset() {
	m.connectedAt.Store(0)
}

// FrameSent records one outgoing frame of n bytes.
func (m *ClientMetrics) FrameSent(n int) {
	m.framesSent.Add(1)
	m.bytesSent.Add(int64(n))
}

// FrameReceived records one incoming frame of n bytes.
func (m *ClientMetrics) FrameReceived(n int) {
	m.framesRecv.Add(1)
	m.bytesRecv.Add(int64(n))
}

// IncrementErrors counts a transport or protocol failure.
func (m *ClientMetrics) IncrementErrors() {
	m.errors.Add(1)
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	ConnectionDuration time.Duration
	FramesSent         int64
	FramesReceived     int64
	BytesSent          int64
	BytesReceived      int64
	Errors             int64
}

// Snapshot returns the current counter values.
func (m *ClientMetrics) Snapshot() Snapshot {
	var d time.Duration
	if at := m.connectedAt.Load(); at != 0 {
		d = time.Since(time.Unix(0, at))
	}
	return Snapshot{
		ConnectionDuration: d,
		FramesSent:         m.framesSent.Load(),
		FramesReceived:     m.framesRecv.Load(),
		BytesSent:          m.bytesSent.Load(),
		BytesReceived:      m.bytesRecv.Load(),
		Errors:             m.errors.Load(),
	}
}

// Add accumulates another snapshot's counters into s. Connection durations
// are summed, which gives total connection time across sessions.
func (s *Snapshot) Add(o Snapshot) {
	s.ConnectionDuration += o.ConnectionDuration
	s.FramesSent += o.FramesSent
	s.FramesReceived += o.FramesReceived
	s.BytesSent += o.BytesSent
	s.BytesReceived += o.BytesReceived
	s.Errors += o.Errors
}
