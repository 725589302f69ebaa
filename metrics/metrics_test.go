package metrics

import "testing"

func TestNewPopulatesAllCounters(t *testing.T) {
	m := New()

	if m.ConnectionsOpened == nil || m.ConnectionsClosed == nil || m.ActiveConnections == nil {
		t.Fatal("connection counters must be non-nil")
	}
	if m.FramesReceived == nil || m.FramesSent == nil || m.FramesDropped == nil {
		t.Fatal("frame counters must be non-nil")
	}
	if m.TransfersStarted == nil || m.TransfersCompleted == nil || m.TransfersFailed == nil {
		t.Fatal("transfer counters must be non-nil")
	}
	if m.AuthSuccesses == nil || m.AuthFailures == nil || m.GuestLogins == nil {
		t.Fatal("auth counters must be non-nil")
	}
}

func TestIncrementingCountersDoesNotPanic(t *testing.T) {
	m := New()
	m.ConnectionsOpened.Inc(1)
	m.ActiveConnections.Inc(1)
	m.ActiveConnections.Dec(1)
	m.FramesReceived.WithValues("data").Inc(1)
	m.FramesDropped.WithValues("bad_crc").Inc(1)
}
