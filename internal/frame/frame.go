// Package frame implements the P3 wire framing codec: pure functions over
// byte buffers, no I/O, no state beyond an internal buffer pool. It mirrors
// the pool-acquire/decode-header/decode-payload split used for HTTP/2
// frames, but the header layout, length semantics and CRC are P3's, not
// HTTP/2's.
//
// Wire layout (spec.md §3):
//
//	offset 0       magic byte (fixed)
//	offset 1..2    CRC-16, big-endian
//	offset 3..4    payload length, big-endian
//	offset 5       TX sequence
//	offset 6       RX sequence
//	offset 7       frame type
//	offset 8..     payload (length bytes)
//	offset 8+len   optional trailing 0x0D
//
// Resolved ambiguity: spec.md §3's prose invariant ("raw.length == 6 +
// payloadLen") undercounts the explicit offset table above by two bytes. The
// offset table is authoritative here; HeaderSize is 8, and CRC is computed
// over the length/TX/RX/type/payload span (offset 3 through the last
// payload byte), matching the CRC description in spec.md §4.1.
package frame

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/iconidentify/dialtone/internal/crc"
)

// Magic is the fixed first byte of every P3 frame.
const Magic byte = 0x5A

// HeaderSize is the number of header bytes preceding the payload.
const HeaderSize = 8

// TrailingCR is the optional, tolerated-on-ingress/never-emitted trailer.
const TrailingCR byte = 0x0D

// ShortControlPayloadLen is the declared payload length of a short control
// frame (heartbeat/ack/nak/INIT): it carries status only, no token.
const ShortControlPayloadLen = 3

// ShortControlFrameSize is the total wire size of a short control frame
// with no trailing CR.
const ShortControlFrameSize = HeaderSize + ShortControlPayloadLen

// Frame types. The protocol's own wire values are not specified in the
// surviving documentation; these are this implementation's resolution of
// that gap (recorded in DESIGN.md), used consistently by codec and state
// machine alike.
const (
	TypeData      byte = 0x01 // carries a two-byte ASCII token
	TypeInit      byte = 0x02 // handshake
	TypeHeartbeat byte = 0x03
	TypeAck       byte = 0x04 // explicit ack, RX-only
	TypeNak       byte = 0x05 // request retransmit from RX
)

// FrameError is the codec's error taxonomy (spec.md §7): framing errors are
// always recovered locally by the caller, never surfaced to handlers.
type FrameError struct {
	Kind string
}

func (e *FrameError) Error() string { return "frame: " + e.Kind }

var (
	// ErrNotAFrame is returned when the magic byte does not match.
	ErrNotAFrame = &FrameError{Kind: "not a frame (bad magic)"}
	// ErrTooShort is returned when raw is shorter than a header.
	ErrTooShort = &FrameError{Kind: "too short"}
	// ErrLengthMismatch is returned when the declared length disagrees
	// with the actual buffer size.
	ErrLengthMismatch = &FrameError{Kind: "length mismatch"}
	// ErrBadCRC is returned when the computed CRC does not match the wire CRC.
	ErrBadCRC = &FrameError{Kind: "bad crc"}
)

// Frame is a parsed, immutable P3 frame. Created by Parse; read-only
// thereafter; the caller discards it after dispatch.
type Frame struct {
	Raw        []byte // owned, full wire bytes including header and trailer
	TX         byte
	RX         byte
	Type       byte
	PayloadLen uint16
	CRCValid   bool
	TrailingCR bool
}

// Payload returns the frame's payload bytes (a view into Raw).
func (f *Frame) Payload() []byte {
	return f.Raw[HeaderSize : HeaderSize+int(f.PayloadLen)]
}

// IsControl reports whether f is a short control frame: payload length 3,
// no token, does not consume a TX slot.
func (f *Frame) IsControl() bool {
	return f.PayloadLen == ShortControlPayloadLen && f.Type != TypeData
}

var framePool = sync.Pool{
	New: func() interface{} { return &Frame{} },
}

// Acquire returns a Frame from the pool.
func Acquire() *Frame { return framePool.Get().(*Frame) }

// Release resets fr and returns it to the pool.
func Release(fr *Frame) {
	fr.Raw = nil
	fr.TX, fr.RX, fr.Type, fr.PayloadLen = 0, 0, 0, 0
	fr.CRCValid, fr.TrailingCR = false, false
	framePool.Put(fr)
}

// crcSpan returns the byte range over which the CRC is computed: from the
// length field through the last payload byte, excluding any trailing CR.
func crcSpan(raw []byte) []byte {
	return raw[3:len(effectiveRaw(raw))]
}

// effectiveRaw strips a single trailing 0x0D, if present and consistent
// with the declared length, from raw.
func effectiveRaw(raw []byte) []byte {
	if len(raw) > 0 && raw[len(raw)-1] == TrailingCR {
		declared := HeaderSize + int(binary.BigEndian.Uint16(raw[3:5]))
		if len(raw)-1 == declared {
			return raw[:len(raw)-1]
		}
	}
	return raw
}

// Parse decodes raw into a Frame. raw is retained by the returned Frame
// (not copied); the caller must not mutate it afterwards.
func Parse(raw []byte) (*Frame, error) {
	if len(raw) < HeaderSize {
		return nil, ErrTooShort
	}
	if raw[0] != Magic {
		return nil, ErrNotAFrame
	}

	body := effectiveRaw(raw)
	trailingCR := len(body) != len(raw)

	if len(body) < HeaderSize {
		return nil, ErrTooShort
	}

	declared := binary.BigEndian.Uint16(body[3:5])
	if len(body) != HeaderSize+int(declared) {
		return nil, ErrLengthMismatch
	}

	wireCRC := binary.BigEndian.Uint16(body[1:3])
	computed := crc.Checksum(body[3:])

	fr := Acquire()
	fr.Raw = raw
	fr.TX = body[5]
	fr.RX = body[6]
	fr.Type = body[7]
	fr.PayloadLen = declared
	fr.TrailingCR = trailingCR
	fr.CRCValid = wireCRC == computed

	return fr, nil
}

// StampCRC recomputes and writes the CRC into raw's header. raw must
// already have its length/TX/RX/type/payload bytes set. Idempotent: calling
// it twice in a row writes the same bytes.
func StampCRC(raw []byte) error {
	body := effectiveRaw(raw)
	if len(body) < HeaderSize {
		return ErrTooShort
	}
	sum := crc.Checksum(body[3:])
	binary.BigEndian.PutUint16(body[1:3], sum)
	return nil
}

// ExtractToken returns the two-character ASCII token carried by a data
// frame's payload, "9B" for a short control frame, or "" if neither applies.
func ExtractToken(fr *Frame) string {
	if fr.IsControl() {
		return "9B"
	}
	if fr.Type == TypeData && fr.PayloadLen >= 2 {
		p := fr.Payload()
		return string(p[0:2])
	}
	return ""
}

// Encode builds a complete, CRC-stamped wire frame for (tx, rx, typ,
// payload). trailingCR controls whether a 0x0D trailer is appended; per
// spec.md §6 the egress side should never set it.
func Encode(tx, rx, typ byte, payload []byte, trailingCR bool) []byte {
	raw := make([]byte, HeaderSize+len(payload), HeaderSize+len(payload)+1)
	raw[0] = Magic
	binary.BigEndian.PutUint16(raw[3:5], uint16(len(payload)))
	raw[5] = tx
	raw[6] = rx
	raw[7] = typ
	copy(raw[HeaderSize:], payload)

	_ = StampCRC(raw)

	if trailingCR {
		raw = append(raw, TrailingCR)
	}
	return raw
}

// EncodeControl builds a short control frame (heartbeat/ack/nak/init-ack):
// payload length 3, carrying the current TX/RX/type as status only.
func EncodeControl(tx, rx, typ byte) []byte {
	return Encode(tx, rx, typ, make([]byte, ShortControlPayloadLen), false)
}

// Scanner extracts complete frames out of a growing byte stream, keeping
// the unconsumed tail for the next Feed call. Boundaries are determined
// solely by the declared length field, per spec.md §4.1.
type Scanner struct {
	buf []byte
}

// Feed appends data to the scanner's internal buffer and returns every
// complete frame now available, draining the buffer down to its unconsumed
// tail.
func (s *Scanner) Feed(data []byte) ([]*Frame, error) {
	s.buf = append(s.buf, data...)

	var out []*Frame
	for {
		fr, consumed, err := s.next()
		if err != nil {
			return out, err
		}
		if fr == nil {
			break
		}
		out = append(out, fr)
		s.buf = s.buf[consumed:]
	}
	return out, nil
}

// next attempts to pull one frame off the front of the buffer. It returns
// (nil, 0, nil) when more bytes are needed.
func (s *Scanner) next() (*Frame, int, error) {
	buf := s.buf
	if len(buf) == 0 {
		return nil, 0, nil
	}
	if buf[0] != Magic {
		return nil, 0, ErrNotAFrame
	}
	if len(buf) < HeaderSize {
		return nil, 0, nil
	}

	declared := int(binary.BigEndian.Uint16(buf[3:5]))
	total := HeaderSize + declared

	if len(buf) < total {
		return nil, 0, nil // need more bytes
	}

	consumed := total
	// tolerate (but do not require) a trailing CR immediately following.
	if len(buf) > total && buf[total] == TrailingCR {
		consumed++
	}

	// copy out: s.buf's backing array is reused by future Feed calls, and
	// Frame.Raw must remain valid after that.
	owned := make([]byte, consumed)
	copy(owned, buf[:consumed])

	fr, err := Parse(owned)
	if err != nil {
		if err == ErrLengthMismatch {
			return nil, 0, fmt.Errorf("frame: scanner desynced: %w", err)
		}
		return nil, 0, err
	}
	return fr, consumed, nil
}
