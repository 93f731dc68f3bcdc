package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/TechieJoe/laundromart-Order/internal/auth"
	"github.com/TechieJoe/laundromart-Order/internal/gateway"
	"github.com/TechieJoe/laundromart-Order/internal/model"
	"github.com/TechieJoe/laundromart-Order/internal/store"
)

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrEmptyOrder            = errors.New("order has no line items")
	ErrInvalidTotals         = errors.New("invalid order totals")
	ErrGatewayInitialization = errors.New("failed to initialize transaction")
)

// Verifier exchanges a bearer credential for a verified identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*auth.Identity, error)
}

// Gateway is the payment gateway capability: open a checkout session and
// query a transaction's settlement status, both keyed by reference.
type Gateway interface {
	Initialize(ctx context.Context, req gateway.InitializeRequest) (string, error)
	Verify(ctx context.Context, reference string) (*gateway.VerifyResult, error)
}

// OrderService owns every order status transition. Creation, client polling
// and webhook delivery may race on the same reference; all three funnel into
// single-statement conditional updates on the store, so no path here ever
// reads then writes.
type OrderService struct {
	store    store.OrderStore
	verifier Verifier
	gateway  Gateway
}

func NewOrderService(st store.OrderStore, verifier Verifier, gw Gateway) *OrderService {
	return &OrderService{store: st, verifier: verifier, gateway: gw}
}

// CreateOrderInput is the validated creation request. OrderID and Reference
// are optional; fresh identifiers are assigned when absent.
type CreateOrderInput struct {
	LineItems  []model.LineItem
	GrandTotal decimal.Decimal
	Metadata   map[string]any
	OrderID    string
	Reference  string
}

type CreateOrderResult struct {
	AuthorizationURL string       `json:"authorizationUrl"`
	OrderID          string       `json:"orderId"`
	Reference        string       `json:"reference"`
	Order            *model.Order `json:"order"`
}

// CreateOrder verifies the caller, persists a pending order and opens a
// gateway checkout session. A gateway failure after the insert is reported
// to the caller but the pending row stays put; reconciliation recovers it
// later.
func (s *OrderService) CreateOrder(ctx context.Context, token string, in CreateOrderInput) (*CreateOrderResult, error) {
	identity, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return nil, ErrUnauthorized
	}

	if len(in.LineItems) == 0 {
		return nil, ErrEmptyOrder
	}

	items, computedTotal := computeTotals(in.LineItems)
	if !in.GrandTotal.IsPositive() || !in.GrandTotal.Equal(computedTotal) {
		return nil, ErrInvalidTotals
	}

	orderID := in.OrderID
	if orderID == "" {
		orderID = uuid.New().String()
	}
	reference := in.Reference
	if reference == "" {
		reference = newReference()
	}

	order := &model.Order{
		ID:         uuid.New().String(),
		OrderID:    orderID,
		Reference:  reference,
		UserID:     identity.UserID,
		Email:      identity.Email,
		LineItems:  items,
		GrandTotal: in.GrandTotal,
		Metadata:   in.Metadata,
		Status:     model.OrderStatusPending,
		CreatedAt:  time.Now(),
	}

	saved, err := s.store.Insert(ctx, order)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateReference) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	authorizationURL, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Email:     saved.Email,
		Amount:    saved.GrandTotal,
		Reference: saved.Reference,
		Metadata: map[string]any{
			"sourceApp": "laundromart",
			"userId":    saved.UserID,
			"orderId":   saved.OrderID,
		},
	})
	if err != nil {
		log.Printf("[Order] gateway init failed for ref=%s: %v", saved.Reference, err)
		return nil, ErrGatewayInitialization
	}
	log.Printf("[Order] gateway init success for ref=%s", saved.Reference)

	return &CreateOrderResult{
		AuthorizationURL: authorizationURL,
		OrderID:          saved.OrderID,
		Reference:        saved.Reference,
		Order:            saved,
	}, nil
}

// computeTotals fills in each line's server-computed total and returns the
// sum over all lines.
func computeTotals(items []model.LineItem) ([]model.LineItem, decimal.Decimal) {
	out := make([]model.LineItem, len(items))
	grand := decimal.Zero
	for i, item := range items {
		lineUnit := decimal.Zero
		for _, action := range item.Actions {
			lineUnit = lineUnit.Add(action.Price)
		}
		item.Total = lineUnit.Mul(decimal.NewFromInt(int64(item.Quantity)))
		out[i] = item
		grand = grand.Add(item.Total)
	}
	return out, grand
}

// VerifyOutcome reports a poll reconciliation: Status is true only when the
// gateway settled the transaction successfully; Data is the raw gateway
// payload when one was returned.
type VerifyOutcome struct {
	Status bool           `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
}

// VerifyPayment asks the gateway for the transaction's settlement status and
// updates the order to match. Polling is an explicit request for a definitive
// answer, so anything other than an explicit success is recorded as failed.
// Both branches update unconditionally; the result always reflects the
// gateway's last-known truth and repeated calls are idempotent.
func (s *OrderService) VerifyPayment(ctx context.Context, reference string) (*VerifyOutcome, error) {
	res, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		log.Printf("[Order] verify query failed for ref=%s: %v", reference, err)
		return &VerifyOutcome{Status: false}, nil
	}
	if res == nil {
		return &VerifyOutcome{Status: false}, nil
	}

	if res.Status == gateway.StatusSuccess {
		if _, err := s.store.SetStatusByReference(ctx, reference, model.OrderStatusSuccessful); err != nil {
			return nil, fmt.Errorf("failed to mark order successful: %w", err)
		}
		return &VerifyOutcome{Status: true, Data: res.Raw}, nil
	}

	if _, err := s.store.SetStatusByReference(ctx, reference, model.OrderStatusFailed); err != nil {
		return nil, fmt.Errorf("failed to mark order failed: %w", err)
	}
	return &VerifyOutcome{Status: false, Data: res.Raw}, nil
}

// WebhookEvent is the inbound gateway event envelope.
type WebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

// WebhookResult is always acknowledged to the event source, success or not;
// the gateway redelivers on anything else.
type WebhookResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ProcessWebhook applies a gateway event to the matching order. Webhooks are
// a stream that includes non-terminal lifecycle events, so unrecognized
// statuses are ignored rather than treated as failures, and a "failed" event
// never downgrades an order already marked successful. Errors are logged and
// folded into the acknowledgment; nothing propagates to the event source.
func (s *OrderService) ProcessWebhook(ctx context.Context, event WebhookEvent) WebhookResult {
	reference := event.Data.Reference
	status := event.Data.Status

	if reference == "" || status == "" {
		log.Printf("[Order] invalid webhook payload")
		return WebhookResult{Success: false, Message: "Invalid payload"}
	}

	var err error
	switch status {
	case gateway.StatusSuccess:
		_, err = s.store.SetStatusByReference(ctx, reference, model.OrderStatusSuccessful)
	case gateway.StatusFailed:
		_, err = s.store.SetStatusByReferenceUnless(ctx, reference, model.OrderStatusFailed, model.OrderStatusSuccessful)
	default:
		log.Printf("[Order] ignoring webhook status %q for ref=%s", status, reference)
		return WebhookResult{Success: true}
	}
	if err != nil {
		log.Printf("[Order] webhook processing failed for ref=%s: %v", reference, err)
		return WebhookResult{Success: false, Message: "Webhook processing failed"}
	}

	log.Printf("[Order] processed webhook for ref=%s: %s", reference, status)
	return WebhookResult{Success: true}
}

// GetOrders projects the caller's orders, newest first, into user-facing
// notifications. Read-only.
func (s *OrderService) GetOrders(ctx context.Context, token string) ([]model.Notification, error) {
	identity, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return nil, ErrUnauthorized
	}

	orders, err := s.store.FindByUser(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch orders: %w", err)
	}

	notifications := make([]model.Notification, 0, len(orders))
	for _, order := range orders {
		notifications = append(notifications, ProjectNotification(order))
	}
	return notifications, nil
}

// ProjectNotification renders one order as a notification. Missing fields
// get display defaults; the "completed" status default is presentation only
// and distinct from the stored "pending" default.
func ProjectNotification(order model.Order) model.Notification {
	id := order.OrderID
	if id == "" {
		id = order.Reference
	}
	described := string(order.Status)
	if described == "" {
		described = "processed"
	}
	displayStatus := string(order.Status)
	if displayStatus == "" {
		displayStatus = "completed"
	}
	items := order.LineItems
	if items == nil {
		items = []model.LineItem{}
	}

	return model.Notification{
		Message:   fmt.Sprintf("Your order (%s) was %s.", id, described),
		Status:    displayStatus,
		CreatedAt: order.CreatedAt,
		Metadata: model.NotificationMetadata{
			Orders:     items,
			GrandTotal: order.GrandTotal,
		},
	}
}

// newReference mirrors the gateway correlation key format: 16 random bytes,
// hex encoded.
func newReference() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	return hex.EncodeToString(buf)
}
