package dialtone

import (
	"fmt"

	"github.com/iconidentify/dialtone/xfer"
)

// Enqueuer is the chunk-submission surface core.go needs from a Pacer.
// Pacer already satisfies this structurally.
type Enqueuer interface {
	Enqueue(chunks ...[]byte) error
}

// ForceOffReason is carried on an XS (force-off) frame.
type ForceOffReason string

// Core implements the Dispatcher's Core interface (dispatch.go): it owns
// every token spec.md §4.5 says the dispatcher must not delegate — LO,
// D*, XS, the login handshake, and the XFER control tokens.
type Core struct {
	Conn  *ConnectionState
	Pacer Enqueuer
	Auth  *AuthHandler
	Xfer  *xfer.Service

	// OnForceOff, if set, is invoked with the reason whenever this
	// connection is forced off (auth failure or an explicit XS), letting
	// the caller log or emit metrics without core.go depending on logging.
	OnForceOff func(reason string)
}

// NewCore wires the pieces a connection needs to handle its own core
// tokens. xferSvc may be nil if XFER is disabled for this deployment; its
// tokens will then report an error rather than panic.
func NewCore(conn *ConnectionState, pacer Enqueuer, auth *AuthHandler, xferSvc *xfer.Service) *Core {
	return &Core{Conn: conn, Pacer: pacer, Auth: auth, Xfer: xferSvc}
}

// HandleCore implements the Dispatcher's Core interface.
func (c *Core) HandleCore(sess *Session, token string, payload []byte) error {
	switch token {
	case TokenLogout:
		return c.handleLogout(sess)
	case TokenDStar:
		return c.handleDStar(sess)
	case TokenXS:
		return c.handleForceOff(sess, string(payload))
	case TokenLogin:
		return c.handleLogin(sess, payload)
	case TokenXferGo:
		return c.handleXferGo(payload)
	case TokenXferBegin, TokenXferFollowup, TokenXferData, TokenXferDone:
		// Server-initiated tokens; nothing to do if the client echoes one
		// back. Not an error — some clients ack these informationally.
		return nil
	default:
		return fmt.Errorf("dialtone: core received unexpected token %q", token)
	}
}

// handleLogout implements spec.md §4.5's LO contract: emit a clean goodbye
// frame, then transition to CLOSING. The connection worker (server_conn.go)
// is responsible for draining the pacer/unacked queue before closing the
// socket, since only it can sequence that against outbound writes.
func (c *Core) handleLogout(sess *Session) error {
	if c.Pacer != nil {
		_ = c.Pacer.Enqueue(buildGoodbyeChunk())
	}
	c.Conn.RequestClose()
	sess.Teardown()
	return nil
}

// handleDStar implements the "clean disconnect" teardown token
// (TOKEN_DSTAR in the surviving source, spec.md §4.5): same effect as
// logout, no goodbye message.
func (c *Core) handleDStar(sess *Session) error {
	c.Conn.RequestClose()
	sess.Teardown()
	return nil
}

// handleForceOff implements "force-off with message" (TOKEN_XS): the
// connection is closing regardless of who initiated it — our own auth
// failure path reaches this through forceOff directly rather than through
// a received XS token, since XS inbound means the *client* is reporting
// being forced off by something upstream of us and we mirror the same
// teardown.
func (c *Core) handleForceOff(sess *Session, reason string) error {
	if c.OnForceOff != nil {
		c.OnForceOff(reason)
	}
	c.Conn.RequestClose()
	sess.Teardown()
	return nil
}

// handleLogin implements spec.md §4.6: run the auth handshake, and on
// failure force the session off instead of leaving it half-authenticated.
func (c *Core) handleLogin(sess *Session, payload []byte) error {
	outcome := c.Auth.Login(sess, payload)
	if outcome.Accepted {
		return nil
	}

	if c.OnForceOff != nil {
		c.OnForceOff(outcome.FailReason)
	}
	if err := c.Pacer.Enqueue(buildForceOffChunk(outcome.FailReason)); err != nil {
		// The pacer is already gone (connection closing); nothing more to
		// do but still transition state below.
	}
	c.Conn.RequestClose()
	return nil
}

// handleXferGo routes a client's xG token to the XFER service. payload is
// the transfer ID the client is acknowledging.
func (c *Core) handleXferGo(payload []byte) error {
	if c.Xfer == nil {
		return fmt.Errorf("dialtone: XFER disabled, dropping xG")
	}
	return c.Xfer.HandleGo(c.Pacer, string(payload))
}

// buildForceOffChunk builds the XS payload chunk carrying reason.
func buildForceOffChunk(reason string) []byte {
	return append([]byte(TokenXS), []byte(reason)...)
}

// buildGoodbyeChunk builds the clean goodbye chunk spec.md §4.5 requires
// on logout: the LO token echoed back with no payload, acknowledging the
// client's request to end the session.
func buildGoodbyeChunk() []byte {
	return []byte(TokenLogout)
}
