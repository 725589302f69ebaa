package crc

import "testing"

func TestChecksumKnownVectors(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want uint16
	}{
		{"empty", []byte{}, 0x0000},
		{"ascii-123456789", []byte("123456789"), 0xBB3D},
		{"single-byte", []byte{0x01}, 0xC0C1},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Checksum(c.in); got != c.want {
				t.Fatalf("Checksum(%v) = %#04x, want %#04x", c.in, got, c.want)
			}
		})
	}
}

func TestUpdateMatchesChecksumAcrossSplits(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")

	whole := Checksum(data)

	for split := 0; split <= len(data); split++ {
		crc := Update(0, data[:split])
		crc = Update(crc, data[split:])
		if crc != whole {
			t.Fatalf("split at %d: got %#04x, want %#04x", split, crc, whole)
		}
	}
}

func TestChecksumDeterministic(t *testing.T) {
	data := []byte{0x10, 0x20, 0x7F, 0x00, 0xFF}
	a := Checksum(data)
	b := Checksum(data)
	if a != b {
		t.Fatalf("checksum not deterministic: %#04x != %#04x", a, b)
	}
}
