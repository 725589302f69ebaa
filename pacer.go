package dialtone

import "errors"

// ErrPacerClosed is returned by Enqueue once the owning connection has
// closed: per spec.md §4.4, remaining chunks are dropped and the call
// reports failure rather than retrying.
var ErrPacerClosed = errors.New("dialtone: pacer closed")

// Sender transmits one data-frame payload of the given token-dispatch type
// and returns the TX sequence assigned, or an error if the connection
// cannot accept more frames right now. Implemented by the per-connection
// worker (server_conn.go); kept as a function value here so Pacer stays
// unit-testable without a real net.Conn.
type Sender func(payload []byte) error

// Pacer is the outbound chunker (spec.md §4.4): it holds a FIFO of already-
// sized application chunks and releases them onto the connection as the
// sliding window allows, capped at a configurable burst per tick.
//
// A Pacer is owned by one connection's worker goroutine, same as
// ConnectionState; it borrows the connection only to check Room().
type Pacer struct {
	conn     *ConnectionState
	send     Sender
	burstCap int

	queue  [][]byte
	closed bool
}

// NewPacer constructs a Pacer bound to conn, releasing frames via send, at
// most burstCap per Tick.
func NewPacer(conn *ConnectionState, send Sender, burstCap int) *Pacer {
	if burstCap <= 0 {
		burstCap = 1
	}
	return &Pacer{conn: conn, send: send, burstCap: burstCap}
}

// Enqueue appends chunks to the FIFO, preserving order both within this
// call and relative to chunks already queued (spec.md §4.4 FIFO contract).
// Chunks are opaque payloads, already including any stream-identifier
// prefix the caller computed via StreamIDBytes — Pacer never reorders or
// reinterprets them.
func (p *Pacer) Enqueue(chunks ...[]byte) error {
	if p.closed {
		return ErrPacerClosed
	}
	p.queue = append(p.queue, chunks...)
	return nil
}

// Pending reports how many chunks are still queued.
func (p *Pacer) Pending() int {
	return len(p.queue)
}

// Tick releases as many queued chunks as the burst cap and the connection's
// window allow, in FIFO order, and reports how many were released. It must
// be called from the connection's worker goroutine, same as any other
// ConnectionState access.
func (p *Pacer) Tick() int {
	if p.closed {
		return 0
	}

	released := 0
	for released < p.burstCap && len(p.queue) > 0 && p.conn.Room() > 0 {
		chunk := p.queue[0]
		if err := p.send(chunk); err != nil {
			break
		}
		p.queue = p.queue[1:]
		released++
	}
	return released
}

// Close drops any remaining queued chunks (spec.md §4.4: "on connection
// close, remaining chunks are dropped").
func (p *Pacer) Close() {
	p.closed = true
	p.queue = nil
}
