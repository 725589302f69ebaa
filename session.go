package dialtone

import (
	"sync"

	"github.com/rs/xid"
)

// GuestPrefix marks an ephemeral guest screenname (spec.md §4.6). Exported
// so that other packages (and tests) can recognize guest identities without
// reaching into auth internals — this is the "reflection-accessed private
// helper becomes a public, testable surface" design note from spec.md §9,
// applied to the marker as well as the generator.
const GuestPrefix = "~"

// Session is the per-connection mutable context (spec.md §3): identity,
// auth state, and the registries XFER and the token dispatcher attach to.
// A Session is owned by exactly one connection's worker goroutine.
type Session struct {
	ID          string
	DisplayName string
	Authed      bool
	Ephemeral   bool

	// transientPassword is only ever set for an ephemeral guest and is
	// cleared on teardown (spec.md §4.6).
	transientPassword string

	mu        sync.Mutex
	reassembl map[string]*reassemblyBuffer
}

// NewSession allocates a session with a freshly generated ID. XFER
// transfers are tracked separately, by session ID, in an xfer.Registry —
// keeping that dependency out of Session avoids an import cycle between
// this package and xfer, which itself dispatches through a Pacer.
func NewSession() *Session {
	return &Session{
		ID:        xid.New().String(),
		reassembl: make(map[string]*reassemblyBuffer),
	}
}

// SetTransientCredentials stores a guest password for the session's
// lifetime only.
func (s *Session) SetTransientCredentials(password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transientPassword = password
}

// TransientPassword returns the guest password, if any.
func (s *Session) TransientPassword() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transientPassword
}

// Teardown clears transient auth material. Called once the connection
// begins CLOSING.
func (s *Session) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transientPassword = ""
	s.reassembl = nil
}
