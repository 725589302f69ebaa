package dialtone

// Tokens handled directly by the core (spec.md §4.5) rather than delegated
// to a registered handler. Literal two-character values are this
// implementation's resolution of the gap left by the surviving spec (which
// names several only by their source-code constant, e.g. TOKEN_DSTAR) —
// see DESIGN.md.
const (
	TokenLogout = "LO" // clean logout: -> CLOSING, goodbye frame, drain then close
	TokenDStar  = "D*" // clean disconnect instruction
	TokenXS     = "XS" // force-off with message (teardown, and auth failure)
	TokenLogin  = "LG" // initial auth handshake: username/password

	TokenKeyword = "Kk" // multi-frame text command, see keyword package

	TokenXferBegin    = "tj" // XFER: prelude -> begin
	TokenXferFollowup = "tf" // XFER: begin -> follow-up
	TokenXferGo       = "xG" // XFER: client ready for data phase
	TokenXferData     = "F9" // XFER: one streamed data block
	TokenXferDone     = "fX" // XFER: completion marker
)

// EndOfStreamMarker, by token, ends multi-frame reassembly (spec.md §4.5).
// Only TokenKeyword reassembles today; expressed as a lookup so adding a
// second multi-frame token later doesn't require touching the dispatcher.
var endOfStreamMarker = map[string]byte{
	TokenKeyword: 0x00,
}
