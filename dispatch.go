package dialtone

import (
	"errors"
	"fmt"

	"github.com/iconidentify/dialtone/internal/frame"
)

// MaxReassemblySize bounds how much a single multi-frame reassembly may
// accumulate before the dispatcher gives up on it (spec.md §4.5: "maximum
// accumulation size is bounded to prevent memory exhaustion").
const MaxReassemblySize = 64 * 1024

// ErrReassemblyTooLarge is returned by reassemblyBuffer.Append once a
// stream's accumulated payload would exceed MaxReassemblySize.
var ErrReassemblyTooLarge = errors.New("dialtone: reassembly exceeds maximum accumulation size")

// reassemblyBuffer accumulates the frames of one multi-frame token stream,
// keyed by token+stream-id in Session.reassembl. A buffer's lifetime runs
// from the first frame carrying its stream id to the frame whose payload
// ends with the token's end-of-stream marker (tokens.go).
type reassemblyBuffer struct {
	token    string
	streamID string
	data     []byte
}

// Append adds b to the buffer, rejecting growth past MaxReassemblySize.
func (r *reassemblyBuffer) Append(b []byte) error {
	if len(r.data)+len(b) > MaxReassemblySize {
		return ErrReassemblyTooLarge
	}
	r.data = append(r.data, b...)
	return nil
}

// Bytes returns the accumulated payload so far.
func (r *reassemblyBuffer) Bytes() []byte { return r.data }

// Handler processes one fully-reassembled token payload. Handlers never see
// partial frames — the dispatcher reassembles multi-frame tokens first.
type Handler interface {
	Handle(sess *Session, token string, payload []byte) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(sess *Session, token string, payload []byte) error

func (f HandlerFunc) Handle(sess *Session, token string, payload []byte) error {
	return f(sess, token, payload)
}

// Registry maps a two-character token to the Handler responsible for it.
// Tokens the core itself owns (LO, D*, XS, LG, the tj/tf/xG/F9/fX XFER
// flow) are never looked up here; Dispatcher routes those internally before
// consulting Registry, matching spec.md §4.5's "core-handled vs delegated"
// split.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds token to h, replacing any previous binding.
func (r *Registry) Register(token string, h Handler) {
	r.handlers[token] = h
}

// Lookup returns the handler bound to token, if any.
func (r *Registry) Lookup(token string) (Handler, bool) {
	h, ok := r.handlers[token]
	return h, ok
}

// Core is implemented by whatever owns the tokens the dispatcher does not
// delegate: login/logout/teardown (auth.go, teardown.go) and the XFER state
// machine (xfer package, reached through an adapter registered the same way
// a keyword handler would be).
type Core interface {
	HandleCore(sess *Session, token string, payload []byte) error
}

// Dispatcher implements spec.md §4.5: extract the token from a data frame,
// reassemble it if it spans multiple frames, then route it either to Core
// (for the tokens core.go owns) or to a Registry handler.
//
// A Dispatcher is owned by one connection's worker goroutine, same as
// ConnectionState and Session.
type Dispatcher struct {
	core     Core
	registry *Registry
	coreSet  map[string]bool
}

// NewDispatcher builds a Dispatcher that sends LO/D*/XS/LG and the XFER
// tokens to core, and everything else through registry.
func NewDispatcher(core Core, registry *Registry) *Dispatcher {
	return &Dispatcher{
		core:     core,
		registry: registry,
		coreSet: map[string]bool{
			TokenLogout:       true,
			TokenDStar:        true,
			TokenXS:           true,
			TokenLogin:        true,
			TokenXferBegin:    true,
			TokenXferFollowup: true,
			TokenXferGo:       true,
			TokenXferData:     true,
			TokenXferDone:     true,
		},
	}
}

// Dispatch routes one parsed data frame. fr must not be a control frame —
// callers (server_conn.go) handle ACK/NAK/heartbeat/INIT before reaching
// here, since those never carry a token.
func (d *Dispatcher) Dispatch(sess *Session, fr *frame.Frame) error {
	token := frame.ExtractToken(fr)
	if token == "" {
		return fmt.Errorf("dialtone: data frame carries no recognizable token")
	}
	payload := fr.Payload()
	if len(payload) > 2 {
		payload = payload[2:] // strip the token itself; stream-id bytes, if any, remain
	} else {
		payload = nil
	}

	marker, multiFrame := endOfStreamMarker[token]
	if !multiFrame {
		return d.route(sess, token, payload)
	}

	complete, full, err := d.reassemble(sess, token, payload, marker)
	if err != nil {
		return &DispatchError{Token: token, Err: err}
	}
	if !complete {
		return nil
	}
	return d.route(sess, token, full)
}

// reassemble appends chunk to the in-progress buffer for token (session-
// scoped; spec.md §4.5 keys this by token+stream-id, but today only one
// multi-frame token exists so the token alone is a sufficient key). It
// reports complete=true once chunk ends with marker, returning the full
// accumulated payload with the marker stripped.
func (d *Dispatcher) reassemble(sess *Session, token string, chunk []byte, marker byte) (complete bool, full []byte, err error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.reassembl == nil {
		return false, nil, fmt.Errorf("session torn down")
	}

	buf, ok := sess.reassembl[token]
	if !ok {
		buf = &reassemblyBuffer{token: token}
		sess.reassembl[token] = buf
	}

	ended := len(chunk) > 0 && chunk[len(chunk)-1] == marker
	body := chunk
	if ended {
		body = chunk[:len(chunk)-1]
	}
	if err := buf.Append(body); err != nil {
		delete(sess.reassembl, token)
		return false, nil, err
	}
	if !ended {
		return false, nil, nil
	}

	delete(sess.reassembl, token)
	return true, buf.Bytes(), nil
}

// route sends a fully-assembled (token, payload) to Core when coreSet names
// it, otherwise to whatever Registry has bound to the token. An unbound,
// non-core token is reported but never panics the connection (spec.md §7).
func (d *Dispatcher) route(sess *Session, token string, payload []byte) error {
	if d.coreSet[token] {
		if d.core == nil {
			return &DispatchError{Token: token, Err: fmt.Errorf("no core handler installed")}
		}
		if err := d.core.HandleCore(sess, token, payload); err != nil {
			return &DispatchError{Token: token, Err: err}
		}
		return nil
	}

	h, ok := d.registry.Lookup(token)
	if !ok {
		return &DispatchError{Token: token, Err: fmt.Errorf("no handler registered")}
	}
	if err := d.safeHandle(h, sess, token, payload); err != nil {
		return &DispatchError{Token: token, Err: err}
	}
	return nil
}

// safeHandle recovers a panicking handler into an error, so one bad keyword
// handler cannot take down the connection (spec.md §4.5/§7).
func (d *Dispatcher) safeHandle(h Handler, sess *Session, token string, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Handle(sess, token, payload)
}
