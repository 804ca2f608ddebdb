package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"complyflow/internal/domain"
	"complyflow/internal/reminder"
)

const TopicCreated = "notifications.created"

// Bus carries notifications from producers to the inbox over an in-process
// watermill channel. Messages published with no subscriber are dropped.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, watermill.NewSlogLogger(logger)),
		logger: logger,
	}
}

// Record publishes n; it lets the bus stand in for an inbox as a reminder sink.
func (b *Bus) Record(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.SetContext(ctx)
	return b.pubsub.Publish(TopicCreated, msg)
}

// Relay subscribes and forwards every published notification to sink until
// ctx is done. The returned channel closes when forwarding stops.
func (b *Bus) Relay(ctx context.Context, sink reminder.Sink) (<-chan struct{}, error) {
	messages, err := b.pubsub.Subscribe(ctx, TopicCreated)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", TopicCreated, err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range messages {
			var n domain.Notification
			if err := json.Unmarshal(msg.Payload, &n); err != nil {
				b.logger.Warn("drop malformed notification", "message_uuid", msg.UUID, "error", err)
				msg.Ack()
				continue
			}
			if err := sink.Record(ctx, n); err != nil {
				b.logger.Warn("relay notification failed", "notification_id", n.ID, "error", err)
			}
			msg.Ack()
		}
	}()
	return done, nil
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}
