package dialtone

import (
	"fmt"
	"strings"

	"github.com/valyala/fastrand"
)

// Username and password bounds (spec.md §4.6 step 1).
const (
	MinUsernameLen = 1
	MaxUsernameLen = 16
	MinPasswordLen = 1
	MaxPasswordLen = 8
)

// GuestPasswordMinLen and GuestPasswordMaxLen bound the random password
// issued to an ephemeral guest (spec.md §4.6).
const (
	GuestPasswordMinLen = 12
	GuestPasswordMaxLen = 16
)

// guestPasswordAlphabet is alphanumeric plus a small punctuation set, per
// spec.md §4.6. Filtering out ASCII look-alike characters isn't required,
// so this does not filter any of them out.
const guestPasswordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%"

// CredentialChecker is the pluggable authenticator spec.md §4.6 calls for:
// case-insensitive on username, case-sensitive on password. Implementations
// must be safe for concurrent use across connections.
type CredentialChecker interface {
	Authenticate(username, password string) bool
}

// StaticCredentialChecker is a fixed, in-memory username/password list —
// the simplest CredentialChecker, suitable for small deployments and tests.
// Usernames are stored lower-cased to implement the case-insensitive match.
type StaticCredentialChecker struct {
	users map[string]string
}

// NewStaticCredentialChecker builds a checker from a username->password map.
func NewStaticCredentialChecker(users map[string]string) *StaticCredentialChecker {
	normalized := make(map[string]string, len(users))
	for u, p := range users {
		normalized[strings.ToLower(u)] = p
	}
	return &StaticCredentialChecker{users: normalized}
}

// Authenticate implements CredentialChecker.
func (c *StaticCredentialChecker) Authenticate(username, password string) bool {
	want, ok := c.users[strings.ToLower(username)]
	if !ok {
		return false
	}
	return want == password
}

// GuestPolicy controls whether (and how) ephemeral guest sessions are
// issued when no credentials are presented, or presented credentials fail
// but the deployment wants to degrade to guest access instead of refusing.
type GuestPolicy struct {
	Allowed bool
}

// AuthOutcome is the result of processing a login token.
type AuthOutcome struct {
	Accepted    bool
	DisplayName string
	Ephemeral   bool
	FailReason  string
}

// AuthHandler implements the login-token half of spec.md §4.6.
type AuthHandler struct {
	checker CredentialChecker
	guests  GuestPolicy
}

// NewAuthHandler builds an AuthHandler. checker may be nil only if
// guests.Allowed is true and every connecting client is expected to be a
// guest (e.g. a test harness); a nil checker with guests disallowed always
// rejects.
func NewAuthHandler(checker CredentialChecker, guests GuestPolicy) *AuthHandler {
	return &AuthHandler{checker: checker, guests: guests}
}

// Login processes a login-token payload of "username\x00password" (the
// wire encoding of credential fields is not specified further by spec.md
// §4.6; this implementation uses a single NUL separator, the simplest
// framing consistent with "username, password" both being present in one
// token payload). It returns the outcome the caller (core.go) uses to
// either mark the session authenticated or force it off.
func (a *AuthHandler) Login(sess *Session, payload []byte) AuthOutcome {
	username, password, ok := splitCredentials(payload)
	if !ok {
		return a.fallbackOrReject(sess, "malformed credentials")
	}

	if len(username) < MinUsernameLen || len(username) > MaxUsernameLen {
		return a.fallbackOrReject(sess, "invalid username length")
	}
	if len(password) < MinPasswordLen || len(password) > MaxPasswordLen {
		return a.fallbackOrReject(sess, "invalid password length")
	}

	if a.checker != nil && a.checker.Authenticate(username, password) {
		sess.Authed = true
		sess.DisplayName = username
		sess.Ephemeral = false
		return AuthOutcome{Accepted: true, DisplayName: username}
	}

	return a.fallbackOrReject(sess, "authentication failed")
}

// fallbackOrReject issues an ephemeral guest identity when the policy
// allows it, otherwise reports failure with reason.
func (a *AuthHandler) fallbackOrReject(sess *Session, reason string) AuthOutcome {
	if !a.guests.Allowed {
		return AuthOutcome{Accepted: false, FailReason: reason}
	}

	name := IssueGuestName()
	password := GenerateGuestPassword()

	sess.Authed = true
	sess.DisplayName = name
	sess.Ephemeral = true
	sess.SetTransientCredentials(password)

	return AuthOutcome{Accepted: true, DisplayName: name, Ephemeral: true}
}

// splitCredentials divides payload at its first NUL byte into
// (username, password). ok is false if there is no separator, or either
// side is empty.
func splitCredentials(payload []byte) (username, password string, ok bool) {
	for i, b := range payload {
		if b == 0x00 {
			username = string(payload[:i])
			password = string(payload[i+1:])
			return username, password, username != "" && password != ""
		}
	}
	return "", "", false
}

// IssueGuestName generates a fresh ephemeral screenname, prefixed with
// GuestPrefix and suffixed with a short random numeric tag so concurrent
// guests don't collide.
func IssueGuestName() string {
	return fmt.Sprintf("%sGuest%04d", GuestPrefix, fastrand.Uint32n(10000))
}

// GenerateGuestPassword returns a random alphanumeric-plus-punctuation
// password of length GuestPasswordMinLen..GuestPasswordMaxLen (spec.md
// §4.6), drawn via valyala/fastrand — a fast, non-cryptographic generator
// appropriate here since these are throwaway, session-lifetime-only guest
// credentials, not long-lived secrets.
func GenerateGuestPassword() string {
	span := GuestPasswordMaxLen - GuestPasswordMinLen + 1
	n := GuestPasswordMinLen + int(fastrand.Uint32n(uint32(span)))

	b := make([]byte, n)
	for i := range b {
		b[i] = guestPasswordAlphabet[fastrand.Uint32n(uint32(len(guestPasswordAlphabet)))]
	}
	return string(b)
}
