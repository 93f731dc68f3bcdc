package store

import (
	"context"
	"errors"

	"github.com/TechieJoe/laundromart-Order/internal/model"
)

var (
	ErrDuplicateReference = errors.New("order reference already exists")
	ErrNotFound           = errors.New("order not found")
)

// OrderStore is the durable home of orders. All mutations after insert are
// single atomic conditional updates keyed by reference; there is no
// read-modify-write path, which is what makes racing webhook/poll
// reconciliation safe without locks.
type OrderStore interface {
	Insert(ctx context.Context, order *model.Order) (*model.Order, error)
	// SetStatusByReference applies status unconditionally and reports the
	// number of rows touched.
	SetStatusByReference(ctx context.Context, reference string, status model.OrderStatus) (int64, error)
	// SetStatusByReferenceUnless applies status only when the current status
	// differs from unless, as one indivisible update.
	SetStatusByReferenceUnless(ctx context.Context, reference string, status, unless model.OrderStatus) (int64, error)
	FindByReference(ctx context.Context, reference string) (*model.Order, error)
	// FindByUser returns the user's orders newest first.
	FindByUser(ctx context.Context, userID string) ([]model.Order, error)
}

// OutboxSource feeds the notification relay. Events are appended by the
// store inside the same transaction as the mutation that produced them.
type OutboxSource interface {
	FetchPendingOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	DeleteOutbox(ctx context.Context, id string) error
}

// DedupeStore remembers which broker messages were already handled.
// MarkProcessed returns true exactly once per message id.
type DedupeStore interface {
	MarkProcessed(ctx context.Context, messageID string) (bool, error)
}
