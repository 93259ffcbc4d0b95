package bus

import (
	"context"
	"testing"
	"time"

	"cav-go/internal/cav"
)

func TestBus_PublishAndSubscribe(t *testing.T) {
	b := New(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ev := cav.AuditEvent{
		ID:        "evt-1",
		Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		EventType: cav.EventLoginFailed,
		Category:  cav.CategoryAuthentication,
		Severity:  cav.SeverityMedium,
		Details:   map[string]any{"attemptedUser": "bob"},
	}
	if err := b.PublishEvent(ctx, ev); err != nil {
		t.Fatalf("PublishEvent() error = %v", err)
	}

	select {
	case msg := <-messages:
		defer msg.Ack()
		if got := msg.Metadata.Get(MetaEventType); got != string(cav.EventLoginFailed) {
			t.Errorf("event_type metadata = %q", got)
		}
		decoded, err := DecodeEvent(msg)
		if err != nil {
			t.Fatalf("DecodeEvent() error = %v", err)
		}
		if decoded.ID != ev.ID || decoded.DetailString("attemptedUser") != "bob" {
			t.Errorf("decoded = %+v", decoded)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	b := New(nil)
	defer b.Close()
	if err := b.PublishEvent(context.Background(), cav.AuditEvent{ID: "evt-1", EventType: cav.EventLogout}); err != nil {
		t.Errorf("PublishEvent() error = %v", err)
	}
}
