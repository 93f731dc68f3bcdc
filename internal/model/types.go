package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusSuccessful OrderStatus = "successful"
	OrderStatusFailed     OrderStatus = "failed"
)

// Action is a single service applied to a line item, e.g. {type:"basic", price:500}.
type Action struct {
	Type  string          `json:"type"`
	Price decimal.Decimal `json:"price"`
}

// LineItem is one entry of an order. Total is computed server-side as the
// sum of action prices multiplied by quantity; client-supplied totals are
// never trusted.
type LineItem struct {
	Item     string          `json:"item"`
	Actions  []Action        `json:"actions"`
	Quantity int             `json:"quantity"`
	Total    decimal.Decimal `json:"total"`
}

// Order is the sole persistent entity. Reference is the correlation key
// shared with the payment gateway; it is unique across all orders and every
// reconciliation operation keys on it.
type Order struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"orderId"`
	Reference  string          `json:"reference"`
	UserID     string          `json:"userId"`
	Email      string          `json:"email"`
	LineItems  []LineItem      `json:"orders"`
	GrandTotal decimal.Decimal `json:"grandTotal"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Status     OrderStatus     `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Notification is the user-facing projection of an order.
type Notification struct {
	Message   string               `json:"message"`
	Status    string               `json:"status"`
	CreatedAt time.Time            `json:"createdAt"`
	Metadata  NotificationMetadata `json:"metadata"`
}

type NotificationMetadata struct {
	Orders     []LineItem      `json:"orders"`
	GrandTotal decimal.Decimal `json:"grandTotal"`
}

// OutboxEvent is a pending notification message, written in the same
// transaction as the order mutation that produced it.
type OutboxEvent struct {
	ID        string    `json:"id"`
	Reference string    `json:"reference"`
	Payload   []byte    `json:"payload"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
