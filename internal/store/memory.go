package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TechieJoe/laundromart-Order/internal/model"
)

// Memory is a mutex-guarded in-memory store with the same conditional-update
// semantics as Postgres. It backs the tests and brokerless local runs.
type Memory struct {
	mu        sync.Mutex
	orders    map[string]*model.Order // keyed by reference
	outbox    []model.OutboxEvent
	processed map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		orders:    make(map[string]*model.Order),
		processed: make(map[string]bool),
	}
}

func (s *Memory) Insert(ctx context.Context, order *model.Order) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.Reference]; exists {
		return nil, ErrDuplicateReference
	}
	cp := *order
	s.orders[order.Reference] = &cp
	s.appendOutboxLocked(order.Reference, "order.created", order.Status)
	return order, nil
}

func (s *Memory) SetStatusByReference(ctx context.Context, reference string, status model.OrderStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.orders[reference]
	if !exists {
		return 0, nil
	}
	order.Status = status
	s.appendOutboxLocked(reference, "order.status_changed", status)
	return 1, nil
}

func (s *Memory) SetStatusByReferenceUnless(ctx context.Context, reference string, status, unless model.OrderStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.orders[reference]
	if !exists || order.Status == unless {
		return 0, nil
	}
	order.Status = status
	s.appendOutboxLocked(reference, "order.status_changed", status)
	return 1, nil
}

func (s *Memory) FindByReference(ctx context.Context, reference string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.orders[reference]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *order
	return &cp, nil
}

func (s *Memory) FindByUser(ctx context.Context, userID string) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orders []model.Order
	for _, order := range s.orders {
		if order.UserID == userID {
			orders = append(orders, *order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (s *Memory) appendOutboxLocked(reference, eventType string, status model.OrderStatus) {
	payload, err := json.Marshal(map[string]any{
		"event_type": eventType,
		"reference":  reference,
		"status":     status,
		"timestamp":  time.Now().Unix(),
	})
	if err != nil {
		panic(fmt.Sprintf("marshal outbox payload: %v", err))
	}
	s.outbox = append(s.outbox, model.OutboxEvent{
		ID:        uuid.New().String(),
		Reference: reference,
		Payload:   payload,
		Status:    "pending",
		CreatedAt: time.Now(),
	})
}

func (s *Memory) FetchPendingOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []model.OutboxEvent
	for _, e := range s.outbox {
		if e.Status != "pending" {
			continue
		}
		events = append(events, e)
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

func (s *Memory) DeleteOutbox(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.outbox {
		if e.ID == id {
			s.outbox = append(s.outbox[:i], s.outbox[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Memory) MarkProcessed(ctx context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processed[messageID] {
		return false, nil
	}
	s.processed[messageID] = true
	return true, nil
}
