package clientmetrics

import (
	"sync"
	"testing"
)

func TestClientMetricsCounters(t *testing.T) {
	m := New()
	m.MarkConnected()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.FrameSent(100)
			m.FrameReceived(40)
		}()
	}
	wg.Wait()
	m.IncrementErrors()

	s := m.Snapshot()
	if s.FramesSent != 10 || s.FramesReceived != 10 {
		t.Fatalf("frames = %d/%d, want 10/10", s.FramesSent, s.FramesReceived)
	}
	if s.BytesSent != 1000 || s.BytesReceived != 400 {
		t.Fatalf("bytes = %d/%d, want 1000/400", s.BytesSent, s.BytesReceived)
	}
	if s.Errors != 1 {
		t.Fatalf("errors = %d, want 1", s.Errors)
	}
	if s.ConnectionDuration < 0 {
		t.Fatalf("negative connection duration %s", s.ConnectionDuration)
	}

	m.Reset()
	if d := m.Snapshot().ConnectionDuration; d != 0 {
		t.Fatalf("connection duration after reset = %s, want 0", d)
	}
}

func TestSnapshotAdd(t *testing.T) {
	total := Snapshot{FramesSent: 1, BytesSent: 10}
	total.Add(Snapshot{FramesSent: 2, BytesSent: 5, Errors: 1})
	if total.FramesSent != 3 || total.BytesSent != 15 || total.Errors != 1 {
		t.Fatalf("unexpected sum %+v", total)
	}
}
