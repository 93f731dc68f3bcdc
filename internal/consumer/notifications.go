package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/TechieJoe/laundromart-Order/internal/store"
)

// NotificationDispatcher delivers order notification events to users. The
// broker guarantees at-least-once delivery, so every message id is run
// through the dedupe store before any work happens.
type NotificationDispatcher struct {
	dedupe store.DedupeStore
}

func NewNotificationDispatcher(dedupe store.DedupeStore) *NotificationDispatcher {
	return &NotificationDispatcher{dedupe: dedupe}
}

type notificationEvent struct {
	EventType string `json:"event_type"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// HandleMessage processes one broker delivery. Duplicates are skipped and
// acknowledged; malformed payloads are dropped rather than requeued so a
// poison message cannot loop forever.
func (d *NotificationDispatcher) HandleMessage(ctx context.Context, messageID string, payload []byte) error {
	first, err := d.dedupe.MarkProcessed(ctx, messageID)
	if err != nil {
		return fmt.Errorf("failed to check idempotency: %w", err)
	}
	if !first {
		log.Printf("[Notifications] SKIPPING duplicate message %s", messageID)
		return nil
	}

	var event notificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Printf("[Notifications] dropping malformed payload %s: %v", messageID, err)
		return nil
	}

	switch event.EventType {
	case "order.created":
		log.Printf("[Notifications] order %s placed, awaiting payment", event.Reference)
	case "order.status_changed":
		log.Printf("[Notifications] order %s is now %s", event.Reference, event.Status)
	default:
		log.Printf("[Notifications] ignoring event type %q for %s", event.EventType, event.Reference)
	}

	log.Printf("[Notifications] COMPLETED message %s", messageID)
	return nil
}
