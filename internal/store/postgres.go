package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/TechieJoe/laundromart-Order/internal/model"
)

// Postgres persists orders and their notification outbox in PostgreSQL.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// Insert stores the order and an "order.created" outbox event in a single
// transaction.
func (s *Postgres) Insert(ctx context.Context, order *model.Order) (*model.Order, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	items, err := json.Marshal(order.LineItems)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal line items: %w", err)
	}
	meta, err := json.Marshal(order.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, order_id, reference, user_id, email, line_items, grand_total, metadata, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, order.ID, order.OrderID, order.Reference, order.UserID, order.Email,
		items, order.GrandTotal.String(), meta, string(order.Status), order.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateReference
		}
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	if err := insertOutbox(ctx, tx, order.Reference, "order.created", order.Status); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return order, nil
}

func (s *Postgres) SetStatusByReference(ctx context.Context, reference string, status model.OrderStatus) (int64, error) {
	return s.setStatus(ctx, reference, status, "UPDATE orders SET status = $2 WHERE reference = $1", reference, string(status))
}

func (s *Postgres) SetStatusByReferenceUnless(ctx context.Context, reference string, status, unless model.OrderStatus) (int64, error) {
	return s.setStatus(ctx, reference, status,
		"UPDATE orders SET status = $2 WHERE reference = $1 AND status <> $3",
		reference, string(status), string(unless))
}

// setStatus runs the given single-statement update and, when a row was
// touched, records an "order.status_changed" outbox event in the same
// transaction. The update itself is one indivisible statement; concurrent
// reconciliations never observe a half-applied state.
func (s *Postgres) setStatus(ctx context.Context, reference string, status model.OrderStatus, sql string, args ...any) (int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update order status: %w", err)
	}

	affected := tag.RowsAffected()
	if affected > 0 {
		if err := insertOutbox(ctx, tx, reference, "order.status_changed", status); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return affected, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, reference, eventType string, status model.OrderStatus) error {
	payload, err := json.Marshal(map[string]any{
		"event_type": eventType,
		"reference":  reference,
		"status":     status,
		"timestamp":  time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (id, reference, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New().String(), reference, payload, "pending", time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

func (s *Postgres) FindByReference(ctx context.Context, reference string) (*model.Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, order_id, reference, user_id, email, line_items, grand_total::text, metadata, status, created_at
		FROM orders
		WHERE reference = $1
	`, reference)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch order: %w", err)
	}
	return order, nil
}

func (s *Postgres) FindByUser(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, reference, user_id, email, line_items, grand_total::text, metadata, status, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o          model.Order
		items      []byte
		meta       []byte
		grandTotal string
		status     string
	)
	if err := row.Scan(&o.ID, &o.OrderID, &o.Reference, &o.UserID, &o.Email,
		&items, &grandTotal, &meta, &status, &o.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.LineItems); err != nil {
		return nil, fmt.Errorf("failed to unmarshal line items: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &o.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	total, err := decimal.NewFromString(grandTotal)
	if err != nil {
		return nil, fmt.Errorf("failed to parse grand total: %w", err)
	}
	o.GrandTotal = total
	o.Status = model.OrderStatus(status)
	return &o, nil
}

func (s *Postgres) FetchPendingOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, reference, payload, status, created_at
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox events: %w", err)
	}
	defer rows.Close()

	var events []model.OutboxEvent
	for rows.Next() {
		var e model.OutboxEvent
		if err := rows.Scan(&e.ID, &e.Reference, &e.Payload, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outbox events: %w", err)
	}
	return events, nil
}

func (s *Postgres) DeleteOutbox(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, "DELETE FROM outbox WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete outbox event: %w", err)
	}
	return nil
}

// MarkProcessed records a broker message id, returning true only on first
// sight. The insert-or-ignore is a single statement so duplicate deliveries
// racing each other still dispatch exactly once.
func (s *Postgres) MarkProcessed(ctx context.Context, messageID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO processed_messages (message_id, processed_at)
		VALUES ($1, $2)
		ON CONFLICT (message_id) DO NOTHING
	`, messageID, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to record processed message: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
