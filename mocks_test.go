package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"goflare.io/checkout/gateway"
	"goflare.io/checkout/models"
	"goflare.io/checkout/models/enum"
)

const testWebhookSecret = "whsec_checkout_test"

// fakeGateway keeps sessions in memory and verifies signatures with
// testWebhookSecret.
type fakeGateway struct {
	mu         sync.Mutex
	sessions   map[string]*gateway.Session
	created    []*gateway.SessionParams
	expired    []string
	createErr  error
	retrieveFn func(id string) (*gateway.Session, error)
	seq        int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: map[string]*gateway.Session{}}
}

func (g *fakeGateway) CreateSession(_ context.Context, p *gateway.SessionParams) (*gateway.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, p)
	if g.createErr != nil {
		return nil, g.createErr
	}

	g.seq++
	var total int64
	for _, item := range p.LineItems {
		total += item.UnitAmount * item.Quantity
	}
	s := &gateway.Session{
		ID:            fmt.Sprintf("cs_test_%d", g.seq),
		URL:           fmt.Sprintf("https://checkout.test/%d", g.seq),
		Status:        stripe.CheckoutSessionStatusOpen,
		PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
		AmountTotal:   total,
		Metadata:      p.Metadata,
	}
	g.sessions[s.ID] = s
	copied := *s
	return &copied, nil
}

func (g *fakeGateway) RetrieveSession(_ context.Context, id string) (*gateway.Session, error) {
	if g.retrieveFn != nil {
		return g.retrieveFn(id)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (g *fakeGateway) ExpireSession(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expired = append(g.expired, id)
	if s, ok := g.sessions[id]; ok && s.Status == stripe.CheckoutSessionStatusOpen {
		s.Status = stripe.CheckoutSessionStatusExpired
	}
	return nil
}

func (g *fakeGateway) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, testWebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", models.ErrInvalidSignature, err)
	}
	return event, nil
}

func (g *fakeGateway) pay(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.sessions[id]
	s.Status = stripe.CheckoutSessionStatusComplete
	s.PaymentStatus = stripe.CheckoutSessionPaymentStatusPaid
}

func (g *fakeGateway) session(id string) *gateway.Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	copied := *g.sessions[id]
	return &copied
}

// fakeOrders is an in-memory order.Service enforcing the pending-only
// transitions of the real store.
type fakeOrders struct {
	mu        sync.Mutex
	orders    map[string]*models.Order
	createErr error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: map[string]*models.Order{}}
}

func (f *fakeOrders) put(o *models.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *o
	f.orders[o.ID] = &copied
}

func (f *fakeOrders) Create(_ context.Context, o *models.Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	if o.Status == "" {
		o.Status = enum.OrderStatusPending
	}
	o.CreatedAt = time.Now()
	f.put(o)
	return nil
}

func (f *fakeOrders) GetByID(_ context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (f *fakeOrders) GetBySessionID(_ context.Context, sessionID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.GatewaySessionID == sessionID {
			copied := *o
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeOrders) LockBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	return f.GetBySessionID(ctx, sessionID)
}

func (f *fakeOrders) transition(id string, to enum.OrderStatus) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if o.Status != enum.OrderStatusPending {
		return nil, models.ErrInvalidState
	}
	o.Status = to
	copied := *o
	return &copied, nil
}

func (f *fakeOrders) Complete(_ context.Context, id string) (*models.Order, error) {
	return f.transition(id, enum.OrderStatusCompleted)
}

func (f *fakeOrders) Fail(_ context.Context, id string) (*models.Order, error) {
	return f.transition(id, enum.OrderStatusFailed)
}

func (f *fakeOrders) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stale []*models.Order
	for _, o := range f.orders {
		if o.Status == enum.OrderStatusPending && o.CreatedAt.Before(cutoff) && len(stale) < limit {
			copied := *o
			stale = append(stale, &copied)
		}
	}
	return stale, nil
}

func (f *fakeOrders) ListByUser(_ context.Context, userID string) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []*models.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			copied := *o
			list = append(list, &copied)
		}
	}
	return list, nil
}

func (f *fakeOrders) status(id string) enum.OrderStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id].Status
}

type fakeEvents struct {
	mu     sync.Mutex
	events map[string]*models.Event
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{events: map[string]*models.Event{}}
}

func (f *fakeEvents) Create(_ context.Context, event *models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[event.ID]; !ok {
		copied := *event
		f.events[event.ID] = &copied
	}
	return nil
}

func (f *fakeEvents) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[eventID]
	return ok && e.Processed, nil
}

func (f *fakeEvents) MarkEventAsProcessed(_ context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[eventID]
	if !ok {
		return models.ErrNotFound
	}
	e.Processed = true
	return nil
}

type MockCouponService struct {
	mock.Mock
}

func (m *MockCouponService) Create(ctx context.Context, req *models.CreateCouponRequest) (*models.Coupon, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coupon), args.Error(1)
}

func (m *MockCouponService) GetByID(ctx context.Context, id string) (*models.Coupon, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coupon), args.Error(1)
}

func (m *MockCouponService) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coupon), args.Error(1)
}

func (m *MockCouponService) List(ctx context.Context) ([]*models.CouponSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*models.CouponSummary), args.Error(1)
}

func (m *MockCouponService) Update(ctx context.Context, id string, partial *models.PartialCoupon) (*models.Coupon, error) {
	args := m.Called(ctx, id, partial)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coupon), args.Error(1)
}

func (m *MockCouponService) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockCouponService) DeactivateExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockCouponService) Apply(ctx context.Context, userID, code string, orderTotal float64, lines []*models.CartLine) (*models.AppliedDiscount, error) {
	args := m.Called(ctx, userID, code, orderTotal, lines)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AppliedDiscount), args.Error(1)
}

func (m *MockCouponService) ReserveCode(ctx context.Context, couponID, userID string) (*models.CouponCode, error) {
	args := m.Called(ctx, couponID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CouponCode), args.Error(1)
}

func (m *MockCouponService) FinalizeCode(ctx context.Context, couponID, code, userID string) error {
	return m.Called(ctx, couponID, code, userID).Error(0)
}

func (m *MockCouponService) RedeemCode(ctx context.Context, couponID, code, userID string) error {
	return m.Called(ctx, couponID, code, userID).Error(0)
}

func (m *MockCouponService) ReleaseCode(ctx context.Context, couponID, code string) error {
	return m.Called(ctx, couponID, code).Error(0)
}

func (m *MockCouponService) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCouponService) ClaimFreeCoupon(ctx context.Context, couponID, userID string) (*models.ClaimedCoupon, error) {
	args := m.Called(ctx, couponID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ClaimedCoupon), args.Error(1)
}

func (m *MockCouponService) CompletePurchase(ctx context.Context, couponID, code, userID string) error {
	return m.Called(ctx, couponID, code, userID).Error(0)
}

func (m *MockCouponService) CountOwned(ctx context.Context, userID, couponID string) (int, error) {
	args := m.Called(ctx, userID, couponID)
	return args.Int(0), args.Error(1)
}

func (m *MockCouponService) ListOwned(ctx context.Context, userID string) ([]*models.OwnedCouponView, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]*models.OwnedCouponView), args.Error(1)
}

type MockCartService struct {
	mock.Mock
}

func (m *MockCartService) Get(ctx context.Context, userID string) (*models.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Cart), args.Error(1)
}

func (m *MockCartService) Lines(ctx context.Context, userID string) ([]*models.CartLine, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.CartLine), args.Error(1)
}

func (m *MockCartService) Add(ctx context.Context, userID, productID string) (*models.Cart, error) {
	args := m.Called(ctx, userID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Cart), args.Error(1)
}

func (m *MockCartService) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (*models.Cart, error) {
	args := m.Called(ctx, userID, productID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Cart), args.Error(1)
}

func (m *MockCartService) Remove(ctx context.Context, userID, productID string) (*models.Cart, error) {
	args := m.Called(ctx, userID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Cart), args.Error(1)
}

func (m *MockCartService) Clear(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}
