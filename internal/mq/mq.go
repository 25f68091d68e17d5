package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/storefront/apiserver/config"
	"github.com/storefront/apiserver/types"
)

const attrEventType = "type"

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ publishes catalog events to one channel on a backend.
type MQ struct {
	backend Backend
	channel string
}

// New constructs an MQ bound to channel on the provided backend.
func New(backend Backend, channel string) *MQ {
	return &MQ{backend: backend, channel: channel}
}

// Open connects the backend selected by cfg.Backend. It returns (nil, nil)
// when messaging is disabled.
func Open(ctx context.Context, cfg config.MQConfig) (*MQ, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "rabbitmq":
		backend, err = NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		backend, err = NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return New(backend, cfg.Channel), nil
}

// PublishEvent encodes event as JSON and publishes it on the bound channel.
func (m *MQ) PublishEvent(ctx context.Context, event types.Event) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return m.backend.Publish(ctx, m.channel, data, map[string]string{attrEventType: event.Type})
}

// SubscribeEvents decodes events from the bound channel until ctx is done.
// Payloads that are not valid events are acknowledged and dropped.
func (m *MQ) SubscribeEvents(ctx context.Context, handle func(ctx context.Context, event types.Event) error) error {
	return m.backend.Subscribe(ctx, m.channel, func(ctx context.Context, msg Message) error {
		var event types.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return nil
		}
		if event.Type == "" {
			event.Type = msg.Attributes[attrEventType]
		}
		return handle(ctx, event)
	})
}

// Channel returns the channel events are published on.
func (m *MQ) Channel() string {
	return m.channel
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}
