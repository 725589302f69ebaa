package dialtone

import (
	"sync/atomic"
	"time"

	"github.com/iconidentify/dialtone/internal/frame"
	"github.com/iconidentify/dialtone/internal/seq"
)

// State is a connection's position in the INIT/ESTABLISHED/CLOSING/CLOSED
// lifecycle (spec.md §4.3).
type State int32

const (
	StateInit State = iota
	StateEstablished
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateEstablished:
		return "ESTABLISHED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DefaultWindow is the maximum number of outstanding unacked data frames
// (spec.md §3).
const DefaultWindow = 16

// DefaultRetransmitInterval and DefaultMaxRetries bound the per-unacked-
// entry retransmit timer (spec.md §4.3).
const (
	DefaultRetransmitInterval = 7 * time.Second
	DefaultMaxRetries         = 3
)

// unackedFrame is one outstanding, TX-assigned data frame awaiting ack.
type unackedFrame struct {
	tx      byte
	raw     []byte
	sentAt  time.Time
	retries int
}

// ConnectionState owns the per-connection sequence counters, the unacked
// queue, and the INIT/ESTABLISHED/CLOSING/CLOSED state (spec.md §3).
//
// It is exclusively owned and mutated by its connection's single worker
// goroutine (spec.md §5) — the one exception is the State field, read and
// written with sync/atomic so a separate goroutine (e.g. a listener-wide
// Shutdown) can request closing without hopping onto the connection's
// worker first, mirroring the atomic connState field pattern used for
// HTTP/2 connection state in serverConn.go.
type ConnectionState struct {
	state int32 // atomic, holds a State

	NextTX      byte
	ExpectedRX  byte
	LastAckedTX byte
	PeerRX      byte

	Window             int
	RetransmitInterval time.Duration
	MaxRetries         int

	unacked      []*unackedFrame
	LastActivity time.Time
}

// NewConnectionState returns a ConnectionState in StateInit, ready for a
// handshake.
func NewConnectionState() *ConnectionState {
	return &ConnectionState{
		state:              int32(StateInit),
		NextTX:             seq.Min,
		ExpectedRX:         seq.Min,
		Window:             DefaultWindow,
		RetransmitInterval: DefaultRetransmitInterval,
		MaxRetries:         DefaultMaxRetries,
		LastActivity:       time.Now(),
	}
}

// State returns the current lifecycle state.
func (cs *ConnectionState) State() State {
	return State(atomic.LoadInt32(&cs.state))
}

// setState transitions the connection; safe to call from any goroutine.
func (cs *ConnectionState) setState(s State) {
	atomic.StoreInt32(&cs.state, int32(s))
}

// RequestClose asks the connection to begin closing. Safe to call from a
// goroutine other than the connection's worker (e.g. listener Shutdown);
// the worker observes the new state on its next iteration.
func (cs *ConnectionState) RequestClose() {
	cs.setState(StateClosing)
}

// HandleInit processes an inbound INIT frame (spec.md §4.3): resets
// counters, records the peer's reported TX/RX as a starting point, and
// transitions to ESTABLISHED.
func (cs *ConnectionState) HandleInit(fr *frame.Frame) {
	cs.NextTX = seq.Min
	cs.ExpectedRX = seq.Next(fr.TX)
	cs.PeerRX = fr.RX
	cs.LastAckedTX = fr.RX
	cs.LastActivity = time.Now()
	cs.setState(StateEstablished)
}

// ProcessAck applies the RX field of any inbound frame as a cumulative
// implicit (or explicit) ack: every unacked entry with TX <= rx (wrap-
// aware) is removed and its retransmit timer stops (spec.md §4.3 step 2).
func (cs *ConnectionState) ProcessAck(rx byte) {
	cs.PeerRX = rx

	kept := cs.unacked[:0]
	for _, u := range cs.unacked {
		if seq.GTE(rx, u.tx) {
			cs.LastAckedTX = u.tx
			continue
		}
		kept = append(kept, u)
	}
	cs.unacked = kept
}

// AcceptKind classifies an inbound data frame's TX relative to ExpectedRX.
type AcceptKind int

const (
	// AcceptInOrder: TX == ExpectedRX — accept and advance.
	AcceptInOrder AcceptKind = iota
	// AcceptDuplicate: TX already consumed — re-ack, discard payload.
	AcceptDuplicate
	// AcceptGap: TX is ahead of ExpectedRX — NAK naming ExpectedRX, discard.
	AcceptGap
)

// Classify implements spec.md §4.3 step 4's three-way branch, without
// mutating state — callers decide whether/how to advance via Advance.
func (cs *ConnectionState) Classify(tx byte) AcceptKind {
	switch {
	case tx == cs.ExpectedRX:
		return AcceptInOrder
	case seq.After(cs.ExpectedRX, tx):
		return AcceptDuplicate
	default:
		return AcceptGap
	}
}

// Advance accepts an in-order data frame, moving ExpectedRX past it.
func (cs *ConnectionState) Advance() {
	cs.ExpectedRX = seq.Next(cs.ExpectedRX)
	cs.LastActivity = time.Now()
}

// Room reports how many more data frames can be sent before the window is
// exhausted.
func (cs *ConnectionState) Room() int {
	r := cs.Window - len(cs.unacked)
	if r < 0 {
		return 0
	}
	return r
}

// UnackedLen reports the current outstanding-unacked count (invariant 4,
// spec.md §8: must never exceed Window).
func (cs *ConnectionState) UnackedLen() int {
	return len(cs.unacked)
}

// AssignTX hands out the next TX sequence for a data frame and advances
// NextTX, wrapping per spec.md §3/§4.3. Control frames must not call this.
func (cs *ConnectionState) AssignTX() byte {
	tx := cs.NextTX
	cs.NextTX = seq.Next(cs.NextTX)
	return tx
}

// Enqueue records raw (an already-encoded, CRC-stamped data frame assigned
// tx) as outstanding and (re)starts its retransmit clock.
func (cs *ConnectionState) Enqueue(tx byte, raw []byte) {
	cs.unacked = append(cs.unacked, &unackedFrame{tx: tx, raw: raw, sentAt: time.Now()})
	cs.LastActivity = time.Now()
}

// DueForRetransmit returns the raw bytes of every unacked frame whose
// retransmit timer has fired, bumping each entry's retry counter and reset
// send time. If any entry exceeds MaxRetries, ok is false and the caller
// must transition the connection to CLOSING (spec.md §4.3 Timers).
func (cs *ConnectionState) DueForRetransmit(now time.Time) (due [][]byte, ok bool) {
	ok = true
	for _, u := range cs.unacked {
		if now.Sub(u.sentAt) < cs.RetransmitInterval {
			continue
		}
		u.retries++
		if u.retries > cs.MaxRetries {
			ok = false
			continue
		}
		u.sentAt = now
		due = append(due, u.raw)
	}
	return due, ok
}

// RetransmitFrom returns the in-order prefix of unacked starting at (and
// including) fromTX, for NAK-driven retransmission (spec.md §4.3 Controls).
func (cs *ConnectionState) RetransmitFrom(fromTX byte) [][]byte {
	var out [][]byte
	started := false
	for _, u := range cs.unacked {
		if !started {
			if u.tx != fromTX {
				continue
			}
			started = true
		}
		out = append(out, u.raw)
	}
	return out
}

// Touch records outbound or inbound activity, resetting the idle clock.
func (cs *ConnectionState) Touch() {
	cs.LastActivity = time.Now()
}

// IdleFor reports how long the connection has been idle.
func (cs *ConnectionState) IdleFor(now time.Time) time.Duration {
	return now.Sub(cs.LastActivity)
}
