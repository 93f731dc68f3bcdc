package worker

import (
	"context"
	"log"

	"github.com/TechieJoe/laundromart-Order/internal/consumer"
)

// InMemoryBus stands in for the broker when no RabbitMQ URL is configured,
// handing messages straight to the notification dispatcher.
type InMemoryBus struct {
	dispatcher *consumer.NotificationDispatcher
}

func NewInMemoryBus(dispatcher *consumer.NotificationDispatcher) *InMemoryBus {
	return &InMemoryBus{dispatcher: dispatcher}
}

// Publish implements the Publisher interface.
func (b *InMemoryBus) Publish(ctx context.Context, id string, topic string, payload []byte) error {
	log.Printf("[Bus] Relaying message %s directly to dispatcher...", id)
	return b.dispatcher.HandleMessage(ctx, id, payload)
}
