// Package messaging carries room deliveries between the sync channels and
// the connection hub, and publishes activity events to EventBridge.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

const deliveriesTopic = "room.deliveries"

// Delivery is one encoded server event addressed to a set of connections.
type Delivery struct {
	RoomID        string          `json:"roomId,omitempty"`
	ConnectionIDs []string        `json:"connectionIds"`
	Payload       json.RawMessage `json:"payload"`
}

// Handler consumes deliveries on the subscriber side.
type Handler func(Delivery)

// RoomBus moves deliveries from room handlers to whichever process holds the
// addressed connections. The in-process gochannel backend blocks each
// publish until the subscriber acks, so deliveries from one room lane reach
// the hub in the order they were published.
type RoomBus struct {
	pubsub *gochannel.GoChannel
	logger *zap.Logger
}

// NewRoomBus creates an in-process bus.
func NewRoomBus(logger *zap.Logger) *RoomBus {
	return &RoomBus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            256,
				Persistent:                     false,
				BlockPublishUntilSubscriberAck: true,
			},
			NewZapLoggerAdapter(logger.Named("watermill")),
		),
		logger: logger,
	}
}

// Publish sends d to the subscriber.
func (b *RoomBus) Publish(ctx context.Context, d Delivery) error {
	if len(d.ConnectionIDs) == 0 {
		return nil
	}
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode delivery: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.SetContext(ctx)
	if d.RoomID != "" {
		msg.Metadata.Set("room_id", d.RoomID)
	}
	if err := b.pubsub.Publish(deliveriesTopic, msg); err != nil {
		return fmt.Errorf("failed to publish delivery: %w", err)
	}
	return nil
}

// Subscribe registers handle and processes deliveries until ctx is done or
// the bus is closed. The returned channel is closed when processing stops.
func (b *RoomBus) Subscribe(ctx context.Context, handle Handler) (<-chan struct{}, error) {
	messages, err := b.pubsub.Subscribe(ctx, deliveriesTopic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to deliveries: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range messages {
			var d Delivery
			if err := json.Unmarshal(msg.Payload, &d); err != nil {
				b.logger.Error("Dropping undecodable delivery",
					zap.String("messageID", msg.UUID),
					zap.Error(err),
				)
				msg.Ack()
				continue
			}
			handle(d)
			msg.Ack()
		}
	}()
	return done, nil
}

// Close shuts the bus down; pending subscribers drain and stop.
func (b *RoomBus) Close() error {
	return b.pubsub.Close()
}
