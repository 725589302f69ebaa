package dialtone

import (
	"testing"
	"time"

	"github.com/iconidentify/dialtone/internal/frame"
	"github.com/iconidentify/dialtone/internal/seq"
)

func TestHandleInitSetsCountersAndEstablishes(t *testing.T) {
	cs := NewConnectionState()

	initRaw := frame.EncodeControl(0x15, 0x10, frame.TypeInit)
	fr, err := frame.Parse(initRaw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cs.HandleInit(fr)

	if cs.State() != StateEstablished {
		t.Fatalf("state = %s, want ESTABLISHED", cs.State())
	}
	if cs.NextTX != seq.Min {
		t.Fatalf("NextTX = %#02x, want %#02x", cs.NextTX, seq.Min)
	}
	if cs.ExpectedRX != seq.Next(0x15) {
		t.Fatalf("ExpectedRX = %#02x, want %#02x", cs.ExpectedRX, seq.Next(0x15))
	}
}

func TestClassifyInOrderDuplicateGap(t *testing.T) {
	cs := NewConnectionState()
	cs.ExpectedRX = 0x20

	if got := cs.Classify(0x20); got != AcceptInOrder {
		t.Fatalf("Classify(expected) = %v, want AcceptInOrder", got)
	}
	if got := cs.Classify(0x1F); got != AcceptDuplicate {
		t.Fatalf("Classify(before expected) = %v, want AcceptDuplicate", got)
	}
	if got := cs.Classify(0x25); got != AcceptGap {
		t.Fatalf("Classify(ahead of expected) = %v, want AcceptGap", got)
	}
}

func TestProcessAckRemovesContiguousUnacked(t *testing.T) {
	cs := NewConnectionState()
	for _, tx := range []byte{0x10, 0x11, 0x12} {
		cs.Enqueue(tx, []byte{tx})
	}
	if cs.UnackedLen() != 3 {
		t.Fatalf("UnackedLen = %d, want 3", cs.UnackedLen())
	}

	cs.ProcessAck(0x11)

	if cs.UnackedLen() != 1 {
		t.Fatalf("UnackedLen after ack = %d, want 1", cs.UnackedLen())
	}
	if cs.LastAckedTX != 0x11 {
		t.Fatalf("LastAckedTX = %#02x, want 0x11", cs.LastAckedTX)
	}
}

func TestWindowNeverExceeded(t *testing.T) {
	cs := NewConnectionState()
	cs.Window = 4

	for i := 0; i < cs.Window; i++ {
		if cs.Room() <= 0 {
			t.Fatalf("ran out of room before filling window, at i=%d", i)
		}
		tx := cs.AssignTX()
		cs.Enqueue(tx, []byte{tx})
	}

	if cs.Room() != 0 {
		t.Fatalf("Room() = %d, want 0 once window is full", cs.Room())
	}
	if cs.UnackedLen() > cs.Window {
		t.Fatalf("UnackedLen() = %d exceeds Window %d", cs.UnackedLen(), cs.Window)
	}
}

func TestSequenceWrapAtMax(t *testing.T) {
	cs := NewConnectionState()
	cs.NextTX = seq.Max

	tx := cs.AssignTX()
	if tx != seq.Max {
		t.Fatalf("first AssignTX = %#02x, want Max", tx)
	}
	if cs.NextTX != seq.Min {
		t.Fatalf("NextTX after wrap = %#02x, want Min", cs.NextTX)
	}
}

func TestRetransmitExhaustionSignalled(t *testing.T) {
	cs := NewConnectionState()
	cs.MaxRetries = 1
	cs.RetransmitInterval = 0

	cs.Enqueue(0x10, []byte{0x10})

	_, ok := cs.DueForRetransmit(time.Now())
	if !ok {
		t.Fatalf("first retransmit round should still be ok")
	}
	_, ok = cs.DueForRetransmit(time.Now())
	if ok {
		t.Fatalf("second retransmit round should exceed MaxRetries=1")
	}
}

func TestRetransmitFromNakReturnsInOrderPrefix(t *testing.T) {
	cs := NewConnectionState()
	for _, tx := range []byte{0x10, 0x11, 0x12} {
		cs.Enqueue(tx, []byte{tx})
	}

	got := cs.RetransmitFrom(0x11)
	if len(got) != 2 {
		t.Fatalf("RetransmitFrom(0x11) returned %d frames, want 2", len(got))
	}
	if got[0][0] != 0x11 || got[1][0] != 0x12 {
		t.Fatalf("RetransmitFrom returned wrong frames: %v", got)
	}
}
