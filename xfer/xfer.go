// Package xfer implements the XFER file-transfer sub-protocol (spec.md
// §4.7): a server-initiated handshake (prelude, tj/tf, wait for xG) followed
// by block-streamed data (F9) and a completion marker (fX).
package xfer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/opencontainers/go-digest"
	"github.com/rs/xid"

	"github.com/iconidentify/dialtone/fdo"
)

// State is a transfer's position in spec.md §3's XFER state machine.
type State int

const (
	StatePreludeSent State = iota
	StateAwaitingGo
	StateStreaming
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePreludeSent:
		return "PRELUDE_SENT"
	case StateAwaitingGo:
		return "AWAITING_GO"
	case StateStreaming:
		return "STREAMING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Block markers (spec.md §4.7).
const (
	MarkerStart byte = 'b'
	MarkerData  byte = 'd'
	MarkerEnd   byte = 'e'
)

// Escape scheme constants. spec.md §4.7 names the scheme (DL_ESC/DL_XOR)
// but not its byte values; this implementation's resolution (recorded in
// DESIGN.md) picks an escape byte distinct from any marker and an XOR mask
// that keeps escaped bytes printable-adjacent, matching the flavor of the
// historical wire's own escaping.
const (
	escByte byte = 0x1B
	xorMask byte = 0x20
)

// DefaultBlockSize is the data-phase block size (spec.md §4.7) absent an
// explicit override.
const DefaultBlockSize = 1024

// DefaultBurstCap is the per-transfer burst budget, independent of the
// pacer's own general burst cap (spec.md §4.7 step 4).
const DefaultBurstCap = 8

// Enqueuer is the subset of Pacer that XFER needs: FIFO submission of
// already-sized application chunks. Defined locally (rather than importing
// the root package's concrete Pacer) to keep xfer import-cycle-free from
// dialtone, which in turn wires xfer's Service into its core dispatch.
type Enqueuer interface {
	Enqueue(chunks ...[]byte) error
}

// Transfer is one in-flight (or completed) file send (spec.md §3).
type Transfer struct {
	ID        string
	Filename  string
	Payload   []byte
	Cursor    int
	BlockSize int
	State     State
	Burst     int // per-tick remaining burst budget, reset each Tick
}

// ErrUnknownTransfer is returned when a token names a transfer ID the
// registry has no record of (already completed, or never started).
var ErrUnknownTransfer = errors.New("xfer: unknown transfer")

// ErrNotAwaitingGo is returned when an xG token arrives for a transfer not
// in StateAwaitingGo.
var ErrNotAwaitingGo = errors.New("xfer: xG received outside AWAITING_GO")

// Registry tracks in-flight transfers for one connection, keyed by
// transfer ID. A Registry is owned by one connection's Session; Service
// methods lock it so a teardown running on the same worker never races a
// concurrently-delivered token (defensive, even though spec.md §5 says
// per-connection work is single-threaded — registries outlive individual
// dispatch calls and Close may be invoked from connection teardown).
type Registry struct {
	mu        sync.Mutex
	transfers map[string]*Transfer
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{transfers: make(map[string]*Transfer)}
}

func (r *Registry) put(t *Transfer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers[t.ID] = t
}

func (r *Registry) get(id string) (*Transfer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[id]
	return t, ok
}

func (r *Registry) delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.transfers, id)
}

// only reports how many transfers remain registered.
func (r *Registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transfers)
}

// Count reports how many transfers are currently tracked.
func (r *Registry) Count() int { return r.count() }

// CloseAll transitions every tracked transfer to StateFailed and empties
// the registry — called from connection teardown (spec.md §5 "cancels
// pending transfers").
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.transfers {
		t.State = StateFailed
	}
	r.transfers = make(map[string]*Transfer)
}

// Service drives the XFER handshake and data phase for one connection.
type Service struct {
	Registry *Registry
	Compiler fdo.Compiler
}

// NewService builds a Service backed by registry and compiler.
func NewService(registry *Registry, compiler fdo.Compiler) *Service {
	return &Service{Registry: registry, Compiler: compiler}
}

// Begin starts a new server-to-client transfer (spec.md §4.7 steps 1-2):
// compiles a prelude describing the file, enqueues it, then enqueues the
// tj/tf tokens and parks the new Transfer in AWAITING_GO.
func (s *Service) Begin(pacer Enqueuer, filename string, payload []byte, blockSize int) (*Transfer, error) {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	preludeSource := fmt.Sprintf("XFER name=%q size=%d digest=%s", filename, len(payload), digest.FromBytes(payload))
	prelude, err := s.Compiler.Compile(preludeSource)
	if err != nil {
		return nil, fmt.Errorf("xfer: prelude compile: %w", err)
	}
	if err := pacer.Enqueue(prelude); err != nil {
		return nil, fmt.Errorf("xfer: enqueue prelude: %w", err)
	}

	t := &Transfer{
		ID:        xid.New().String(),
		Filename:  filename,
		Payload:   payload,
		BlockSize: blockSize,
		State:     StateAwaitingGo,
	}
	s.Registry.put(t)

	begin := append([]byte("tj"), []byte(t.ID)...)
	followup := append([]byte("tf"), []byte(t.ID)...)
	if err := pacer.Enqueue(begin, followup); err != nil {
		t.State = StateFailed
		s.Registry.delete(t.ID)
		return nil, fmt.Errorf("xfer: enqueue begin/followup: %w", err)
	}

	return t, nil
}

// HandleGo processes a client xG token: transitions transferID to
// STREAMING and emits its first burst of data blocks (spec.md §4.7 step 3).
func (s *Service) HandleGo(pacer Enqueuer, transferID string) error {
	t, ok := s.Registry.get(transferID)
	if !ok {
		return ErrUnknownTransfer
	}
	if t.State != StateAwaitingGo {
		return ErrNotAwaitingGo
	}
	t.State = StateStreaming
	return s.Tick(pacer, t)
}

// Tick emits up to DefaultBurstCap more data blocks for an in-STREAMING
// transfer, honoring its own burst budget independent of the pacer's
// (spec.md §4.7 step 4). It transitions to DONE and emits fX once the
// payload is exhausted.
func (s *Service) Tick(pacer Enqueuer, t *Transfer) error {
	if t.State != StateStreaming {
		return nil
	}

	var chunks [][]byte
	sent := 0
	for sent < DefaultBurstCap && t.Cursor < len(t.Payload) {
		end := t.Cursor + t.BlockSize
		if end > len(t.Payload) {
			end = len(t.Payload)
		}
		block := t.Payload[t.Cursor:end]
		marker := MarkerData
		if t.Cursor == 0 {
			marker = MarkerStart
		}
		chunks = append(chunks, buildDataChunk(marker, block))
		t.Cursor = end
		sent++
	}

	if len(chunks) > 0 {
		if err := pacer.Enqueue(chunks...); err != nil {
			t.State = StateFailed
			s.Registry.delete(t.ID)
			return fmt.Errorf("xfer: streaming enqueue: %w", err)
		}
	}

	if t.Cursor >= len(t.Payload) {
		end := buildDataChunk(MarkerEnd, nil)
		done := append([]byte("fX"), []byte(t.ID)...)
		if err := pacer.Enqueue(end, done); err != nil {
			t.State = StateFailed
			s.Registry.delete(t.ID)
			return fmt.Errorf("xfer: completion enqueue: %w", err)
		}
		t.State = StateDone
		s.Registry.delete(t.ID)
	}

	return nil
}

// Fail transitions transferID to FAILED (spec.md §4.7 step 6: socket loss
// mid-stream, no retry at this layer) and releases it from the registry.
func (s *Service) Fail(transferID string) {
	if t, ok := s.Registry.get(transferID); ok {
		t.State = StateFailed
	}
	s.Registry.delete(transferID)
}

// buildDataChunk prefixes the F9 token and marker byte, then the escaped
// block payload.
func buildDataChunk(marker byte, block []byte) []byte {
	out := make([]byte, 0, 3+len(block)*2)
	out = append(out, []byte("F9")...)
	out = append(out, marker)
	out = append(out, EscapeBlock(block)...)
	return out
}

// EscapeBlock applies the DL_ESC/DL_XOR scheme to data: any byte equal to
// the escape byte or one of the three block markers is replaced by
// escByte, data^xorMask; everything else passes through unchanged.
func EscapeBlock(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		if needsEscape(b) {
			out = append(out, escByte, b^xorMask)
			continue
		}
		out = append(out, b)
	}
	return out
}

// UnescapeBlock reverses EscapeBlock.
func UnescapeBlock(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == escByte && i+1 < len(data) {
			out = append(out, data[i+1]^xorMask)
			i++
			continue
		}
		out = append(out, data[i])
	}
	return out
}

func needsEscape(b byte) bool {
	switch b {
	case escByte, MarkerStart, MarkerData, MarkerEnd:
		return true
	default:
		return false
	}
}

// RunLengthEncode applies the optional RLE compaction (spec.md §4.7): a
// run of 4 or more identical bytes is replaced by escByte, 'R', the byte,
// and the run length as a single byte (runs longer than 255 are split).
// Applied before EscapeBlock is not required — callers choose whether to
// RLE-compact or raw-escape; the two are independent.
func RunLengthEncode(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); {
		j := i + 1
		for j < len(data) && data[j] == data[i] && j-i < 255 {
			j++
		}
		runLen := j - i
		if runLen >= 4 {
			out = append(out, escByte, 'R', data[i], byte(runLen))
		} else {
			out = append(out, data[i:j]...)
		}
		i = j
	}
	return out
}

// RunLengthDecode reverses RunLengthEncode.
func RunLengthDecode(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == escByte && i+3 < len(data) && data[i+1] == 'R' {
			b := data[i+2]
			n := int(data[i+3])
			for k := 0; k < n; k++ {
				out = append(out, b)
			}
			i += 3
			continue
		}
		out = append(out, data[i])
	}
	return out
}
