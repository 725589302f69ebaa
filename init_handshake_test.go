package dialtone

import (
	"testing"

	"github.com/iconidentify/dialtone/internal/frame"
)

func TestBuildInitAckIsControlFrame(t *testing.T) {
	cs := NewConnectionState()
	raw := BuildInitAck(cs)

	fr, err := frame.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !fr.IsControl() {
		t.Fatal("expected a control frame")
	}
	if fr.Type != frame.TypeInit {
		t.Fatalf("type = %v, want TypeInit", fr.Type)
	}
}

func TestBuildNakNamesExpectedRX(t *testing.T) {
	cs := NewConnectionState()
	cs.ExpectedRX = 0x22

	raw := BuildNak(cs)
	fr, err := frame.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if fr.RX != 0x22 {
		t.Fatalf("RX = %#02x, want 0x22", fr.RX)
	}
	if fr.Type != frame.TypeNak {
		t.Fatalf("type = %v, want TypeNak", fr.Type)
	}
}
