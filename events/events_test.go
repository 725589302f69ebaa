package events

import (
	"errors"
	"testing"
	"time"

	goevents "github.com/docker/go-events"
)

type capturingSink struct {
	got []goevents.Event
	err error
}

func (c *capturingSink) Write(ev goevents.Event) error {
	c.got = append(c.got, ev)
	return c.err
}
func (c *capturingSink) Close() error { return nil }

func TestPublisherWritesLifecycleEvent(t *testing.T) {
	sink := &capturingSink{}
	p := NewPublisher(sink)

	ev := LifecycleEvent{Kind: KindConnectionOpened, SessionID: "abc", At: time.Now()}
	p.Publish(ev)

	if len(sink.got) != 1 {
		t.Fatalf("got %d events, want 1", len(sink.got))
	}
	if sink.got[0].(LifecycleEvent).Kind != KindConnectionOpened {
		t.Fatalf("kind mismatch: %+v", sink.got[0])
	}
}

func TestPublisherSwallowsSinkError(t *testing.T) {
	sink := &capturingSink{err: errors.New("boom")}
	p := NewPublisher(sink)

	// must not panic even though the sink always errors
	p.Publish(LifecycleEvent{Kind: KindAuthFailed})
}

func TestLoggingSinkRejectsWrongEventType(t *testing.T) {
	sink := NewLoggingSink(nil)
	err := sink.Write("not a lifecycle event")
	if err == nil {
		t.Fatal("expected an error for a non-LifecycleEvent")
	}
}

func TestLoggingSinkAcceptsLifecycleEvent(t *testing.T) {
	sink := NewLoggingSink(nil)
	err := sink.Write(LifecycleEvent{Kind: KindTransferDone, Detail: "ok"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
}
