package seq

import "testing"

func TestNextWraps(t *testing.T) {
	if got := Next(Max); got != Min {
		t.Fatalf("Next(Max) = %#02x, want Min (%#02x)", got, Min)
	}
	if got := Next(0x20); got != 0x21 {
		t.Fatalf("Next(0x20) = %#02x, want 0x21", got)
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		n    byte
		want bool
	}{
		{0x00, false},
		{0x0F, false},
		{0x10, true},
		{0x7F, true},
		{0x80, false},
		{0xFF, false},
	}
	for _, c := range cases {
		if got := Valid(c.n); got != c.want {
			t.Fatalf("Valid(%#02x) = %v, want %v", c.n, got, c.want)
		}
	}
}

func TestAfterAroundWrap(t *testing.T) {
	if !After(Min, Max) {
		t.Fatalf("expected Min to be considered after Max (wrap)")
	}
	if After(Max, Min) {
		t.Fatalf("did not expect Max to be considered after Min")
	}
	if !After(0x21, 0x20) {
		t.Fatalf("expected simple successor to be After")
	}
	if After(0x20, 0x20) {
		t.Fatalf("a value must not be After itself")
	}
}

func TestGTE(t *testing.T) {
	if !GTE(0x20, 0x20) {
		t.Fatalf("GTE must be reflexive")
	}
	if !GTE(0x21, 0x20) {
		t.Fatalf("GTE(0x21, 0x20) should hold")
	}
	if GTE(0x20, 0x21) {
		t.Fatalf("GTE(0x20, 0x21) should not hold")
	}
}

func TestAddWraps(t *testing.T) {
	if got := Add(Max, 1); got != Min {
		t.Fatalf("Add(Max, 1) = %#02x, want Min", got)
	}
	if got := Add(Min, Span); got != Min {
		t.Fatalf("Add(Min, Span) = %#02x, want Min (full lap)", got)
	}
	if got := Add(0x10, 16); got != 0x20 {
		t.Fatalf("Add(0x10, 16) = %#02x, want 0x20", got)
	}
}
