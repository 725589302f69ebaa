package dialtone

import "github.com/iconidentify/dialtone/internal/frame"

// BuildInitAck returns the control frame a server sends back once it has
// processed a client's INIT (spec.md §4.3): a short control frame
// carrying the server's freshly-reset TX/RX as status.
func BuildInitAck(cs *ConnectionState) []byte {
	return frame.EncodeControl(cs.NextTX, cs.ExpectedRX, frame.TypeInit)
}

// BuildHeartbeat returns the periodic keepalive control frame (spec.md
// §4.3 Timers).
func BuildHeartbeat(cs *ConnectionState) []byte {
	return frame.EncodeControl(cs.NextTX, cs.ExpectedRX, frame.TypeHeartbeat)
}

// BuildAck returns an explicit ack control frame naming ExpectedRX.
func BuildAck(cs *ConnectionState) []byte {
	return frame.EncodeControl(cs.NextTX, cs.ExpectedRX, frame.TypeAck)
}

// BuildNak returns a NAK control frame requesting retransmission starting
// at ExpectedRX (spec.md §4.3 step 4's gap branch).
func BuildNak(cs *ConnectionState) []byte {
	return frame.EncodeControl(cs.NextTX, cs.ExpectedRX, frame.TypeNak)
}
