// Package bus carries appended audit events to in-process consumers over a
// watermill Go channel pub/sub.
package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"cav-go/internal/cav"
)

// AuditEventsTopic is the topic every appended audit event is published on.
const AuditEventsTopic = "audit.events"

// Metadata keys set on published messages.
const (
	MetaEventType = "event_type"
	MetaCategory  = "category"
	MetaSeverity  = "severity"
)

// Bus publishes audit events. Delivery is best effort: with no subscriber
// the event is dropped.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// New creates a Bus logging through logger. A nil logger discards output.
func New(logger *slog.Logger) *Bus {
	var adapter watermill.LoggerAdapter = watermill.NopLogger{}
	if logger != nil {
		adapter = watermill.NewSlogLogger(logger)
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, adapter),
		logger: adapter,
	}
}

// PublishEvent publishes ev on AuditEventsTopic. It has the cav.Listener
// signature and is registered with AuditLog.Subscribe.
func (b *Bus) PublishEvent(ctx context.Context, ev cav.AuditEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", ev.ID, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetaEventType, string(ev.EventType))
	msg.Metadata.Set(MetaCategory, string(ev.Category))
	msg.Metadata.Set(MetaSeverity, string(ev.Severity))
	msg.SetContext(ctx)

	if err := b.pubsub.Publish(AuditEventsTopic, msg); err != nil {
		return fmt.Errorf("publishing event %s: %w", ev.ID, err)
	}
	return nil
}

// Attach subscribes the bus to log and returns the unsubscribe function.
func (b *Bus) Attach(log *cav.AuditLog) (unsubscribe func()) {
	return log.Subscribe(b.PublishEvent)
}

// Subscribe returns a channel of audit event messages. The channel closes
// when ctx is done or the bus is closed. Each message must be acked.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, AuditEventsTopic)
}

// Close stops delivery and closes every subscription channel.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// DecodeEvent returns the audit event carried by msg.
func DecodeEvent(msg *message.Message) (cav.AuditEvent, error) {
	var ev cav.AuditEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return cav.AuditEvent{}, fmt.Errorf("decoding message %s: %w", msg.UUID, err)
	}
	return ev, nil
}
