// Package events provides dialtone's internal lifecycle event sink:
// connection opened/closed, auth outcomes, and transfer state changes are
// published here for anything that wants to observe them (structured
// logging today, admin broadcast or audit trail later) without the core
// packages depending on those consumers directly.
package events

import (
	"fmt"
	"time"

	goevents "github.com/docker/go-events"
	"github.com/sirupsen/logrus"
)

// Kind identifies the category of a LifecycleEvent.
type Kind string

const (
	KindConnectionOpened Kind = "connection_opened"
	KindConnectionClosed Kind = "connection_closed"
	KindAuthSucceeded    Kind = "auth_succeeded"
	KindAuthFailed       Kind = "auth_failed"
	KindGuestIssued      Kind = "guest_issued"
	KindTransferStarted  Kind = "transfer_started"
	KindTransferDone     Kind = "transfer_done"
	KindTransferFailed   Kind = "transfer_failed"
)

// LifecycleEvent is the payload published through a Sink. It satisfies
// goevents.Event (an empty interface) by construction.
type LifecycleEvent struct {
	Kind       Kind
	SessionID  string
	RemoteAddr string
	Detail     string
	At         time.Time
}

func (e LifecycleEvent) String() string {
	return fmt.Sprintf("[%s] session=%s remote=%s %s", e.Kind, e.SessionID, e.RemoteAddr, e.Detail)
}

// Publisher wraps a goevents.Sink with typed helpers so callers never
// build a LifecycleEvent by hand at every call site.
type Publisher struct {
	sink goevents.Sink
}

// NewPublisher wraps sink.
func NewPublisher(sink goevents.Sink) *Publisher {
	return &Publisher{sink: sink}
}

// Publish writes ev to the underlying sink, logging (rather than
// propagating) a write failure — a lost lifecycle event must never affect
// connection handling.
func (p *Publisher) Publish(ev LifecycleEvent) {
	if p == nil || p.sink == nil {
		return
	}
	if err := p.sink.Write(ev); err != nil {
		logrus.WithError(err).Warn("events: failed to publish lifecycle event")
	}
}

// Close closes the underlying sink.
func (p *Publisher) Close() error {
	if p == nil || p.sink == nil {
		return nil
	}
	return p.sink.Close()
}

// loggingSink is a goevents.Sink that logs every event via logrus — the
// default subscriber wired in when no other consumer is configured.
type loggingSink struct {
	logger *logrus.Logger
}

// NewLoggingSink returns a Sink that logs each LifecycleEvent at Info
// level (Warn for the *_failed kinds) via logger.
func NewLoggingSink(logger *logrus.Logger) goevents.Sink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &loggingSink{logger: logger}
}

func (s *loggingSink) Write(ev goevents.Event) error {
	le, ok := ev.(LifecycleEvent)
	if !ok {
		return fmt.Errorf("events: unexpected event type %T", ev)
	}

	entry := s.logger.WithFields(logrus.Fields{
		"kind":        le.Kind,
		"session_id":  le.SessionID,
		"remote_addr": le.RemoteAddr,
	})

	switch le.Kind {
	case KindAuthFailed, KindConnectionClosed, KindTransferFailed:
		entry.Warn(le.Detail)
	default:
		entry.Info(le.Detail)
	}
	return nil
}

func (s *loggingSink) Close() error { return nil }

// NewBroadcastPublisher builds a Publisher backed by a goevents.Broadcaster
// fanning out to every sink given — useful once more than one consumer
// (logging plus, say, an admin websocket) needs the same event stream.
func NewBroadcastPublisher(sinks ...goevents.Sink) *Publisher {
	b := goevents.NewBroadcaster(sinks...)
	return NewPublisher(b)
}
