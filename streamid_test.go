package dialtone

import "testing"

func TestStreamIDBytesByCasePattern(t *testing.T) {
	cases := []struct {
		token string
		want  int
	}{
		{"LO", 2}, // both upper
		{"lo", 4}, // both lower
		{"Kk", 3}, // upper-then-lower
		{"kK", 0}, // lower-then-upper
		{"XS", 2},
		{"xs", 4},
		{"Tj", 3},
		{"tJ", 0},
	}
	for _, c := range cases {
		if got := StreamIDBytes(c.token); got != c.want {
			t.Errorf("StreamIDBytes(%q) = %d, want %d", c.token, got, c.want)
		}
	}
}

func TestStreamIDBytesRejectsNonTwoCharTokens(t *testing.T) {
	if got := StreamIDBytes("9B"); got != 0 {
		t.Errorf("StreamIDBytes(9B) = %d, want 0 (digit is not uppercase, so this reads as lower-then-upper)", got)
	}
	if got := StreamIDBytes(""); got != 0 {
		t.Errorf("StreamIDBytes(empty) = %d, want 0", got)
	}
	if got := StreamIDBytes("ABC"); got != 0 {
		t.Errorf("StreamIDBytes(3-char) = %d, want 0", got)
	}
}
