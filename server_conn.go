package dialtone

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iconidentify/dialtone/config"
	"github.com/iconidentify/dialtone/events"
	"github.com/iconidentify/dialtone/internal/frame"
	"github.com/iconidentify/dialtone/metrics"
	"github.com/iconidentify/dialtone/xfer"
)

// tickInterval drives the periodic retransmit/heartbeat/idle sweep. One
// shared ticker per connection, checked against each timer's own deadline,
// collapsed into a single select branch since P3's timers are all coarse
// (seconds) rather than needing one *time.Timer per purpose.
const tickInterval = 1 * time.Second

// serverConn is one connection's worker: a goroutine each for reading and
// writing raw bytes, and the connection's own goroutine running dispatch,
// state-machine updates and pacer ticks — the single logical worker
// spec.md §5 requires. Built on the same bufio reader/writer plus buffered-
// channel, atomic-state pattern as the HTTP/2 connection handler, with the
// frame model swapped for P3's.
type serverConn struct {
	c net.Conn

	br *bufio.Reader
	bw *bufio.Writer

	cs         *ConnectionState
	sess       *Session
	dispatcher *Dispatcher
	pacer      *Pacer
	core       *Core

	cfg     config.Config
	log     *logrus.Entry
	metrics *metrics.Metrics
	events  *events.Publisher

	incoming chan *frame.Frame
	outgoing chan []byte
	readErr  chan error
	shutdown chan string
}

// newServerConn wires one connection's full stack: state machine, session,
// registry-backed dispatcher, core token handling, XFER service, pacer.
func newServerConn(c net.Conn, cfg config.Config, reg *Registry, auth *AuthHandler, xferSvc *xfer.Service, m *metrics.Metrics, ev *events.Publisher, log *logrus.Logger) *serverConn {
	cs := NewConnectionState()
	cs.Window = cfg.Window
	cs.RetransmitInterval = cfg.RetransmitInterval
	cs.MaxRetries = cfg.MaxRetries

	sess := NewSession()

	sc := &serverConn{
		c:        c,
		br:       bufio.NewReader(c),
		bw:       bufio.NewWriter(c),
		cs:       cs,
		sess:     sess,
		cfg:      cfg,
		metrics:  m,
		events:   ev,
		incoming: make(chan *frame.Frame, 64),
		outgoing: make(chan []byte, 64),
		readErr:  make(chan error, 1),
		shutdown: make(chan string, 1),
	}
	sc.log = log.WithFields(logrus.Fields{"session_id": sess.ID, "remote_addr": c.RemoteAddr().String()})

	core := NewCore(cs, nil, auth, xferSvc)
	core.OnForceOff = func(reason string) {
		sc.log.WithField("reason", reason).Warn("forcing connection off")
	}
	sc.core = core

	sc.pacer = NewPacer(cs, sc.send, 8)
	core.Pacer = sc.pacer

	sc.dispatcher = NewDispatcher(core, reg)

	return sc
}

// Serve runs the connection until it closes, logging and recovering a
// panic so one connection's bug never takes the listener down.
func (sc *serverConn) Serve() (err error) {
	defer func() {
		if r := recover(); r != nil {
			sc.log.WithField("panic", r).Error("serverConn panicked: " + string(debug.Stack()))
		}
	}()
	defer sc.c.Close()

	if sc.metrics != nil {
		sc.metrics.ConnectionsOpened.Inc(1)
		sc.metrics.ActiveConnections.Inc(1)
		defer sc.metrics.ActiveConnections.Dec(1)
	}
	if sc.events != nil {
		sc.events.Publish(events.LifecycleEvent{Kind: events.KindConnectionOpened, SessionID: sc.sess.ID, RemoteAddr: sc.c.RemoteAddr().String()})
	}

	go sc.writeLoop()
	go sc.readLoop()

	err = sc.workerLoop()

	if sc.metrics != nil {
		sc.metrics.ConnectionsClosed.Inc(1)
	}
	if sc.events != nil {
		sc.events.Publish(events.LifecycleEvent{Kind: events.KindConnectionClosed, SessionID: sc.sess.ID, Detail: errString(err)})
	}
	return err
}

func errString(err error) string {
	if err == nil {
		return "closed"
	}
	return err.Error()
}

// readLoop pulls raw bytes off the socket, feeds them through the frame
// scanner, and forwards complete frames to the worker. It never touches
// ConnectionState directly (spec.md §5's single-worker rule).
func (sc *serverConn) readLoop() {
	defer close(sc.incoming)

	var scanner frame.Scanner
	buf := make([]byte, 4096)

	for {
		n, err := sc.c.Read(buf)
		if n > 0 {
			frames, scanErr := scanner.Feed(buf[:n])
			for _, fr := range frames {
				sc.incoming <- fr
			}
			if scanErr != nil {
				sc.readErr <- scanErr
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				sc.readErr <- err
			}
			return
		}
	}
}

// writeLoop drains outgoing, writing and flushing each chunk, simplified
// since P3 frames are small and dialtone does not batch writes across
// ticks.
func (sc *serverConn) writeLoop() {
	for raw := range sc.outgoing {
		if _, err := sc.bw.Write(raw); err != nil {
			sc.log.WithError(err).Warn("write failed")
			return
		}
		if err := sc.bw.Flush(); err != nil {
			sc.log.WithError(err).Warn("flush failed")
			return
		}
		if sc.metrics != nil {
			sc.metrics.FramesSent.WithValues("data").Inc(1)
		}
	}
}

// requestShutdown asks this connection to force itself off, the way
// Server.Shutdown broadcasts to every live session (spec.md §4.6 force-off
// framing reused at the listener level). Safe to call from any goroutine:
// it only ever hands reason to the connection's own worker over a
// buffered channel, never touching the pacer or ConnectionState directly.
func (sc *serverConn) requestShutdown(reason string) {
	select {
	case sc.shutdown <- reason:
	default:
		// Already shutting down (or about to); nothing more to signal.
	}
}

// send implements the Sender type the Pacer calls: assigns a TX, frames
// and CRC-stamps payload, records it as unacked, and pushes it to the
// writer goroutine.
func (sc *serverConn) send(payload []byte) error {
	if sc.cs.State() == StateClosed {
		return ErrPacerClosed
	}
	tx := sc.cs.AssignTX()
	raw := frame.Encode(tx, sc.cs.ExpectedRX, frame.TypeData, payload, false)
	sc.cs.Enqueue(tx, raw)

	select {
	case sc.outgoing <- raw:
		return nil
	default:
		return fmt.Errorf("dialtone: outgoing queue full")
	}
}

// workerLoop is the single logical worker spec.md §5 requires: frame
// ingress, state-machine updates, dispatch and pacer ticks all happen
// here, never concurrently with one another for this connection.
func (sc *serverConn) workerLoop() error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var closingDeadline time.Time

	for {
		switch sc.cs.State() {
		case StateClosed:
			sc.teardown()
			return nil
		case StateClosing:
			if closingDeadline.IsZero() {
				closingDeadline = time.Now().Add(sc.cfg.CloseDrainTimeout)
			}
			if sc.drained() || time.Now().After(closingDeadline) {
				sc.teardown()
				return nil
			}
			// Still draining: fall through to the select below so pending
			// pacer chunks and unacked retransmits keep moving until the
			// queue empties or the grace period expires.
		}

		select {
		case fr, ok := <-sc.incoming:
			if !ok {
				sc.teardown()
				return nil
			}
			sc.handleFrame(fr)
			frame.Release(fr)

		case err := <-sc.readErr:
			sc.teardown()
			return err

		case reason := <-sc.shutdown:
			if sc.cs.State() != StateClosing && sc.cs.State() != StateClosed {
				_ = sc.pacer.Enqueue(buildForceOffChunk(reason))
			}
			sc.cs.RequestClose()

		case <-ticker.C:
			sc.onTick()
		}
	}
}

// drained reports whether CLOSING has nothing left to send: the pacer's
// FIFO is empty and every previously sent data frame has been acked.
func (sc *serverConn) drained() bool {
	return sc.pacer.Pending() == 0 && sc.cs.UnackedLen() == 0
}

// handleFrame processes one inbound frame: control frames only update
// ack/retransmit state; data frames also run the three-way accept
// classification and, once accepted, the token dispatcher.
func (sc *serverConn) handleFrame(fr *frame.Frame) {
	if sc.metrics != nil {
		sc.metrics.FramesReceived.WithValues(frameKindLabel(fr.Type)).Inc(1)
	}

	if !fr.CRCValid {
		if sc.metrics != nil {
			sc.metrics.FramesDropped.WithValues("bad_crc").Inc(1)
		}
		return // spec.md §9: silent drop, rely on sender's retransmit timer
	}

	// spec.md §4.3: in INIT, only a well-formed INIT frame is processed;
	// anything else is dropped and counted since TX/RX aren't negotiated
	// yet and there is no ExpectedRX to ack/classify against.
	if sc.cs.State() == StateInit && fr.Type != frame.TypeInit {
		if sc.metrics != nil {
			sc.metrics.FramesDropped.WithValues("before_init").Inc(1)
		}
		return
	}

	sc.cs.ProcessAck(fr.RX)
	sc.cs.Touch()

	switch fr.Type {
	case frame.TypeInit:
		sc.cs.HandleInit(fr)
		sc.enqueueRaw(BuildInitAck(sc.cs))
	case frame.TypeHeartbeat:
		// status-only, already applied via ProcessAck/Touch above.
	case frame.TypeAck:
		// RX already applied via ProcessAck above.
	case frame.TypeNak:
		for _, raw := range sc.cs.RetransmitFrom(fr.RX) {
			sc.enqueueRaw(raw)
		}
	case frame.TypeData:
		sc.handleDataFrame(fr)
	}
}

func frameKindLabel(t byte) string {
	switch t {
	case frame.TypeData:
		return "data"
	case frame.TypeInit:
		return "init"
	case frame.TypeHeartbeat:
		return "heartbeat"
	case frame.TypeAck:
		return "ack"
	case frame.TypeNak:
		return "nak"
	default:
		return "unknown"
	}
}

func (sc *serverConn) handleDataFrame(fr *frame.Frame) {
	switch sc.cs.Classify(fr.TX) {
	case AcceptDuplicate:
		if sc.metrics != nil {
			sc.metrics.FramesDropped.WithValues("duplicate").Inc(1)
		}
		sc.enqueueRaw(BuildAck(sc.cs))
		return
	case AcceptGap:
		if sc.metrics != nil {
			sc.metrics.FramesDropped.WithValues("gap").Inc(1)
		}
		sc.enqueueRaw(BuildNak(sc.cs))
		return
	}

	sc.cs.Advance()
	if err := sc.dispatcher.Dispatch(sc.sess, fr); err != nil {
		sc.log.WithError(err).Debug("dispatch error")
	}
}

// enqueueRaw writes a pre-built control frame straight to the writer
// goroutine, bypassing the pacer (control frames don't consume window).
func (sc *serverConn) enqueueRaw(raw []byte) {
	select {
	case sc.outgoing <- raw:
	default:
		sc.log.Warn("outgoing queue full, dropping control frame")
	}
}

// onTick runs the periodic sweep: retransmit due frames, send a heartbeat
// if idle past HeartbeatInterval, and force-close if idle past
// IdleTimeout.
func (sc *serverConn) onTick() {
	now := time.Now()

	due, ok := sc.cs.DueForRetransmit(now)
	for _, raw := range due {
		sc.enqueueRaw(raw)
		if sc.metrics != nil {
			sc.metrics.RetransmitsSent.Inc(1)
		}
	}
	if !ok {
		sc.log.Warn("retransmit retries exhausted, closing")
		sc.cs.RequestClose()
		return
	}

	idle := sc.cs.IdleFor(now)
	if sc.cfg.IdleTimeout > 0 && idle > sc.cfg.IdleTimeout {
		sc.log.Warn("idle timeout exceeded, closing")
		sc.cs.RequestClose()
		return
	}
	if sc.cfg.HeartbeatInterval > 0 && idle > sc.cfg.HeartbeatInterval {
		sc.enqueueRaw(BuildHeartbeat(sc.cs))
	}

	sc.pacer.Tick()
}

// teardown cancels pending transfers, drops the pacer queue, tears down
// the session, marks the connection CLOSED, and stops the outgoing
// channel (spec.md §5 Cancellation & timeouts).
func (sc *serverConn) teardown() {
	sc.pacer.Close()
	sc.sess.Teardown()
	if sc.core.Xfer != nil {
		sc.core.Xfer.Registry.CloseAll()
	}
	sc.cs.setState(StateClosed)
	close(sc.outgoing)
}
