package dialtone

import "unicode"

// StreamIDBytes returns the number of little-endian stream-identifier bytes
// that belong between a token and its payload, as a function of the
// token's letter-case pattern (spec.md §4.4):
//
//	both upper       -> 2
//	both lower       -> 4
//	upper-then-lower -> 3
//	lower-then-upper -> 0
//
// This is an unusual, easily-misremembered wire rule, which is exactly why
// spec.md §9 calls for keeping it isolated in one helper. Dialtone itself
// never interprets the bytes this returns; it only tells a caller (the
// dispatcher, a keyword handler) how many bytes to reserve, and the pacer
// preserves whatever it is given untouched.
func StreamIDBytes(token string) int {
	if len(token) != 2 {
		return 0
	}
	upperFirst := unicode.IsUpper(rune(token[0]))
	upperSecond := unicode.IsUpper(rune(token[1]))

	switch {
	case upperFirst && upperSecond:
		return 2
	case !upperFirst && !upperSecond:
		return 4
	case upperFirst && !upperSecond:
		return 3
	default: // lower-then-upper
		return 0
	}
}
