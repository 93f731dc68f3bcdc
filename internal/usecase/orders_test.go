package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/TechieJoe/laundromart-Order/internal/auth"
	"github.com/TechieJoe/laundromart-Order/internal/gateway"
	"github.com/TechieJoe/laundromart-Order/internal/model"
	"github.com/TechieJoe/laundromart-Order/internal/store"
)

type fakeVerifier struct {
	identity *auth.Identity
	fail     bool
}

func (f *fakeVerifier) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	if f.fail || token == "" {
		return nil, auth.ErrUnauthenticated
	}
	return f.identity, nil
}

type fakeGateway struct {
	mu        sync.Mutex
	initCalls []gateway.InitializeRequest
	failInit  bool

	verifyStatus string
	noPayload    bool
}

func (f *fakeGateway) Initialize(ctx context.Context, req gateway.InitializeRequest) (string, error) {
	f.mu.Lock()
	f.initCalls = append(f.initCalls, req)
	f.mu.Unlock()
	if f.failInit {
		return "", gateway.ErrInitializationFailed
	}
	return "https://checkout.paystack.com/abc123", nil
}

func (f *fakeGateway) Verify(ctx context.Context, reference string) (*gateway.VerifyResult, error) {
	if f.noPayload {
		return nil, nil
	}
	return &gateway.VerifyResult{
		Status: f.verifyStatus,
		Raw:    map[string]any{"reference": reference, "status": f.verifyStatus},
	}, nil
}

type OrderServiceSuite struct {
	suite.Suite
	store    *store.Memory
	verifier *fakeVerifier
	gateway  *fakeGateway
	svc      *OrderService
	ctx      context.Context
}

func (s *OrderServiceSuite) SetupTest() {
	s.store = store.NewMemory()
	s.verifier = &fakeVerifier{identity: &auth.Identity{
		UserID: "user-1",
		Email:  "dasha@example.com",
		Name:   "Dasha",
	}}
	s.gateway = &fakeGateway{verifyStatus: gateway.StatusSuccess}
	s.svc = NewOrderService(s.store, s.verifier, s.gateway)
	s.ctx = context.Background()
}

func washOrder() CreateOrderInput {
	return CreateOrderInput{
		LineItems: []model.LineItem{{
			Item:     "wash",
			Actions:  []model.Action{{Type: "basic", Price: decimal.NewFromInt(500)}},
			Quantity: 2,
		}},
		GrandTotal: decimal.NewFromInt(1000),
	}
}

func (s *OrderServiceSuite) TestCreateOrderDefaults() {
	result, err := s.svc.CreateOrder(s.ctx, "token", washOrder())
	s.NoError(err)
	s.Equal("https://checkout.paystack.com/abc123", result.AuthorizationURL)
	s.NotEmpty(result.OrderID)
	s.NotEmpty(result.Reference)

	stored, err := s.store.FindByReference(s.ctx, result.Reference)
	s.NoError(err)
	s.Equal(model.OrderStatusPending, stored.Status)
	s.Equal("user-1", stored.UserID)
	s.Equal("dasha@example.com", stored.Email)
	s.True(stored.GrandTotal.Equal(decimal.NewFromInt(1000)))
	s.True(stored.LineItems[0].Total.Equal(decimal.NewFromInt(1000)), "line total is server-computed")

	s.Len(s.gateway.initCalls, 1)
	s.Equal(result.Reference, s.gateway.initCalls[0].Reference)
	s.Equal(int64(100000), s.gateway.initCalls[0].Amount.Mul(decimal.NewFromInt(100)).IntPart())

	// identifiers are fresh on every call when not supplied
	second, err := s.svc.CreateOrder(s.ctx, "token", washOrder())
	s.NoError(err)
	s.NotEqual(result.OrderID, second.OrderID)
	s.NotEqual(result.Reference, second.Reference)
}

func (s *OrderServiceSuite) TestCreateOrderUnauthorized() {
	s.verifier.fail = true

	_, err := s.svc.CreateOrder(s.ctx, "token", washOrder())
	s.ErrorIs(err, ErrUnauthorized)

	orders, err := s.store.FindByUser(s.ctx, "user-1")
	s.NoError(err)
	s.Empty(orders, "no partial state on auth failure")
}

func (s *OrderServiceSuite) TestCreateOrderEmptyLineItems() {
	in := washOrder()
	in.LineItems = nil

	_, err := s.svc.CreateOrder(s.ctx, "token", in)
	s.ErrorIs(err, ErrEmptyOrder)
}

func (s *OrderServiceSuite) TestCreateOrderTotalMismatch() {
	in := washOrder()
	in.GrandTotal = decimal.NewFromInt(900)

	_, err := s.svc.CreateOrder(s.ctx, "token", in)
	s.ErrorIs(err, ErrInvalidTotals)

	in.GrandTotal = decimal.NewFromInt(-1000)
	_, err = s.svc.CreateOrder(s.ctx, "token", in)
	s.ErrorIs(err, ErrInvalidTotals)
}

func (s *OrderServiceSuite) TestCreateOrderGatewayFailureKeepsPendingRow() {
	s.gateway.failInit = true

	_, err := s.svc.CreateOrder(s.ctx, "token", washOrder())
	s.ErrorIs(err, ErrGatewayInitialization)

	orders, err := s.store.FindByUser(s.ctx, "user-1")
	s.NoError(err)
	s.Len(orders, 1)
	s.Equal(model.OrderStatusPending, orders[0].Status, "row is recoverable via later reconciliation")
}

func (s *OrderServiceSuite) TestCreateOrderDuplicateReferenceRejected() {
	in := washOrder()
	in.Reference = "client-ref-1"

	_, err := s.svc.CreateOrder(s.ctx, "token", in)
	s.NoError(err)

	_, err = s.svc.CreateOrder(s.ctx, "token", in)
	s.ErrorIs(err, store.ErrDuplicateReference)
}

func (s *OrderServiceSuite) createPending() string {
	result, err := s.svc.CreateOrder(s.ctx, "token", washOrder())
	s.Require().NoError(err)
	return result.Reference
}

func (s *OrderServiceSuite) statusOf(reference string) model.OrderStatus {
	order, err := s.store.FindByReference(s.ctx, reference)
	s.Require().NoError(err)
	return order.Status
}

func (s *OrderServiceSuite) TestVerifyPaymentSuccessIsIdempotent() {
	ref := s.createPending()
	s.gateway.verifyStatus = gateway.StatusSuccess

	for i := 0; i < 2; i++ {
		outcome, err := s.svc.VerifyPayment(s.ctx, ref)
		s.NoError(err)
		s.True(outcome.Status)
		s.Equal(gateway.StatusSuccess, outcome.Data["status"])
	}
	s.Equal(model.OrderStatusSuccessful, s.statusOf(ref))
}

func (s *OrderServiceSuite) TestVerifyPaymentUnknownStatusFails() {
	ref := s.createPending()
	s.gateway.verifyStatus = "abandoned"

	outcome, err := s.svc.VerifyPayment(s.ctx, ref)
	s.NoError(err)
	s.False(outcome.Status)
	s.Equal(model.OrderStatusFailed, s.statusOf(ref), "polling demands a definitive answer")
}

func (s *OrderServiceSuite) TestVerifyPaymentNoPayloadDoesNotMutate() {
	ref := s.createPending()
	s.gateway.noPayload = true

	outcome, err := s.svc.VerifyPayment(s.ctx, ref)
	s.NoError(err)
	s.False(outcome.Status)
	s.Nil(outcome.Data)
	s.Equal(model.OrderStatusPending, s.statusOf(ref))
}

func webhook(reference, status string) WebhookEvent {
	var e WebhookEvent
	e.Event = "charge." + status
	e.Data.Reference = reference
	e.Data.Status = status
	return e
}

func (s *OrderServiceSuite) TestWebhookSuccess() {
	ref := s.createPending()

	result := s.svc.ProcessWebhook(s.ctx, webhook(ref, gateway.StatusSuccess))
	s.True(result.Success)
	s.Equal(model.OrderStatusSuccessful, s.statusOf(ref))
}

func (s *OrderServiceSuite) TestWebhookFailed() {
	ref := s.createPending()

	result := s.svc.ProcessWebhook(s.ctx, webhook(ref, gateway.StatusFailed))
	s.True(result.Success)
	s.Equal(model.OrderStatusFailed, s.statusOf(ref))
}

func (s *OrderServiceSuite) TestWebhookUnknownStatusIgnored() {
	ref := s.createPending()

	result := s.svc.ProcessWebhook(s.ctx, webhook(ref, "processing"))
	s.True(result.Success, "non-terminal events are acknowledged")
	s.Equal(model.OrderStatusPending, s.statusOf(ref), "stream events never downgrade an order")
}

func (s *OrderServiceSuite) TestWebhookInvalidPayload() {
	ref := s.createPending()

	result := s.svc.ProcessWebhook(s.ctx, webhook("", gateway.StatusSuccess))
	s.False(result.Success)
	s.Equal("Invalid payload", result.Message)

	result = s.svc.ProcessWebhook(s.ctx, webhook(ref, ""))
	s.False(result.Success)
	s.Equal("Invalid payload", result.Message)
	s.Equal(model.OrderStatusPending, s.statusOf(ref))
}

func (s *OrderServiceSuite) TestWebhookFailedDoesNotOverwriteSuccessful() {
	ref := s.createPending()

	s.svc.ProcessWebhook(s.ctx, webhook(ref, gateway.StatusSuccess))
	result := s.svc.ProcessWebhook(s.ctx, webhook(ref, gateway.StatusFailed))

	s.True(result.Success)
	s.Equal(model.OrderStatusSuccessful, s.statusOf(ref), "successful is terminal for the webhook path")
}

func (s *OrderServiceSuite) TestPollRecoversAfterWebhookFailure() {
	ref := s.createPending()
	s.svc.ProcessWebhook(s.ctx, webhook(ref, gateway.StatusFailed))
	s.Equal(model.OrderStatusFailed, s.statusOf(ref))

	s.gateway.verifyStatus = gateway.StatusSuccess
	outcome, err := s.svc.VerifyPayment(s.ctx, ref)
	s.NoError(err)
	s.True(outcome.Status)
	s.Equal(model.OrderStatusSuccessful, s.statusOf(ref), "poll reflects the gateway's ground truth")
}

func (s *OrderServiceSuite) TestConcurrentPollAndWebhook() {
	ref := s.createPending()
	s.gateway.verifyStatus = gateway.StatusSuccess

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.svc.VerifyPayment(s.ctx, ref)
			s.NoError(err)
		}()
		go func() {
			defer wg.Done()
			s.svc.ProcessWebhook(s.ctx, webhook(ref, gateway.StatusSuccess))
		}()
	}
	wg.Wait()

	s.Equal(model.OrderStatusSuccessful, s.statusOf(ref), "same ground truth, any arrival order")
}

func (s *OrderServiceSuite) TestGetOrdersEmpty() {
	notifications, err := s.svc.GetOrders(s.ctx, "token")
	s.NoError(err)
	s.Empty(notifications)
	s.NotNil(notifications)
}

func (s *OrderServiceSuite) TestGetOrdersUnauthorized() {
	s.verifier.fail = true
	_, err := s.svc.GetOrders(s.ctx, "token")
	s.ErrorIs(err, ErrUnauthorized)
}

func (s *OrderServiceSuite) TestGetOrdersNewestFirst() {
	base := time.Now()
	for i, status := range []model.OrderStatus{model.OrderStatusSuccessful, model.OrderStatusPending, model.OrderStatusFailed} {
		_, err := s.store.Insert(s.ctx, &model.Order{
			ID:         uuid.New().String(),
			OrderID:    fmt.Sprintf("ord-%d", i+1),
			Reference:  fmt.Sprintf("ref-%d", i+1),
			UserID:     "user-1",
			GrandTotal: decimal.NewFromInt(1000),
			Status:     status,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		s.Require().NoError(err)
	}

	notifications, err := s.svc.GetOrders(s.ctx, "token")
	s.NoError(err)
	s.Len(notifications, 3)
	s.Equal("Your order (ord-3) was failed.", notifications[0].Message)
	s.Equal("Your order (ord-2) was pending.", notifications[1].Message)
	s.Equal("Your order (ord-1) was successful.", notifications[2].Message)
	s.True(notifications[0].CreatedAt.After(notifications[2].CreatedAt))
}

func (s *OrderServiceSuite) TestProjectionDefaults() {
	n := ProjectNotification(model.Order{
		Reference:  "ref-only",
		GrandTotal: decimal.NewFromInt(250),
	})
	s.Equal("Your order (ref-only) was processed.", n.Message)
	s.Equal("completed", n.Status, "display default, not the storage default")
	s.NotNil(n.Metadata.Orders)
	s.Empty(n.Metadata.Orders)
	s.True(n.Metadata.GrandTotal.Equal(decimal.NewFromInt(250)))
}

func TestOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceSuite))
}
