package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/TechieJoe/laundromart-Order/internal/store"
)

// Publisher hands a notification event to the message broker.
type Publisher interface {
	Publish(ctx context.Context, id string, topic string, payload []byte) error
}

// OutboxProcessor relays pending notification events from the store to the
// broker. Delivery is at-least-once: an event is deleted only after a
// successful publish, so a crash in between republishes on the next tick.
type OutboxProcessor struct {
	source    store.OutboxSource
	publisher Publisher
	interval  time.Duration
	batchSize int
}

func NewOutboxProcessor(source store.OutboxSource, pub Publisher) *OutboxProcessor {
	return &OutboxProcessor{
		source:    source,
		publisher: pub,
		interval:  1 * time.Second,
		batchSize: 10,
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

func (p *OutboxProcessor) ProcessBatch(ctx context.Context) {
	events, err := p.source.FetchPendingOutbox(ctx, p.batchSize)
	if err != nil {
		log.Printf("[Processor] Failed to fetch events: %v", err)
		return
	}
	if len(events) == 0 {
		return
	}

	log.Printf("[Processor] Processing batch of %d events", len(events))

	for _, event := range events {
		var payload struct {
			EventType string `json:"event_type"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			log.Printf("[Processor] Invalid payload for event %s: %v", event.ID, err)
			continue
		}

		if err := p.publisher.Publish(ctx, event.ID, payload.EventType, event.Payload); err != nil {
			log.Printf("[Processor] Failed to publish event %s: %v", event.ID, err)
			// Retried next tick.
			continue
		}

		if err := p.source.DeleteOutbox(ctx, event.ID); err != nil {
			log.Printf("[Processor] Failed to delete event %s: %v", event.ID, err)
			// Republished next tick; the consumer's dedupe table absorbs it.
		}
	}
}
