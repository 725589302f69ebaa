package dialtone

import "testing"

func TestPacerFIFOOrder(t *testing.T) {
	cs := NewConnectionState()
	cs.Window = 100

	var sent [][]byte
	sender := func(payload []byte) error {
		tx := cs.AssignTX()
		cs.Enqueue(tx, payload)
		sent = append(sent, payload)
		return nil
	}

	p := NewPacer(cs, sender, 10)
	if err := p.Enqueue([]byte("c1"), []byte("c2"), []byte("c3")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	p.Tick()

	if len(sent) != 3 {
		t.Fatalf("sent %d chunks, want 3", len(sent))
	}
	for i, want := range [][]byte{[]byte("c1"), []byte("c2"), []byte("c3")} {
		if string(sent[i]) != string(want) {
			t.Fatalf("sent[%d] = %q, want %q", i, sent[i], want)
		}
	}
}

func TestPacerBurstCap(t *testing.T) {
	cs := NewConnectionState()
	cs.Window = 100

	sent := 0
	sender := func(payload []byte) error {
		tx := cs.AssignTX()
		cs.Enqueue(tx, payload)
		sent++
		return nil
	}

	p := NewPacer(cs, sender, 2)
	for i := 0; i < 5; i++ {
		_ = p.Enqueue([]byte{byte(i)})
	}

	released := p.Tick()
	if released != 2 {
		t.Fatalf("Tick released %d, want burst cap 2", released)
	}
	if sent != 2 {
		t.Fatalf("sent %d, want 2", sent)
	}
	if p.Pending() != 3 {
		t.Fatalf("Pending() = %d, want 3 remaining", p.Pending())
	}
}

func TestPacerRespectsWindow(t *testing.T) {
	cs := NewConnectionState()
	cs.Window = 1

	sender := func(payload []byte) error {
		tx := cs.AssignTX()
		cs.Enqueue(tx, payload)
		return nil
	}

	p := NewPacer(cs, sender, 10)
	_ = p.Enqueue([]byte("a"), []byte("b"), []byte("c"))

	released := p.Tick()
	if released != 1 {
		t.Fatalf("Tick released %d, want 1 (window=1)", released)
	}

	// window still full (nothing acked yet): a second tick releases nothing
	if released := p.Tick(); released != 0 {
		t.Fatalf("second Tick released %d, want 0 while window is full", released)
	}

	cs.ProcessAck(cs.NextTX) // ack everything sent so far
	if released := p.Tick(); released != 1 {
		t.Fatalf("Tick after ack released %d, want 1", released)
	}
}

func TestPacerDropsOnClose(t *testing.T) {
	cs := NewConnectionState()
	cs.Window = 100
	sender := func(payload []byte) error { return nil }

	p := NewPacer(cs, sender, 10)
	_ = p.Enqueue([]byte("a"), []byte("b"))
	p.Close()

	if err := p.Enqueue([]byte("c")); err != ErrPacerClosed {
		t.Fatalf("Enqueue after Close = %v, want ErrPacerClosed", err)
	}
	if p.Pending() != 0 {
		t.Fatalf("Pending() after Close = %d, want 0", p.Pending())
	}
}
