package messaging

import (
	"context"
)

// Broker carries engine decisions to out-of-process consumers. Channels
// are named after audit event types, so subscribing to delay.propagate
// yields exactly the propagation stream.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Message is the envelope for schedule events published outside the
// outbox path.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
