package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"goflare.io/checkout/config"
	"goflare.io/checkout/driver"
	"goflare.io/checkout/driver/drivertest"
	"goflare.io/checkout/models"
	"goflare.io/checkout/models/enum"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var buyer = &models.User{ID: "u1", Email: "buyer@example.com", Role: enum.RoleCustomer}

type harness struct {
	sc      *StripeCheckout
	gw      *fakeGateway
	orders  *fakeOrders
	events  *fakeEvents
	coupons *MockCouponService
	carts   *MockCartService
	pool    *drivertest.Pool
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := &config.Config{
		App:  config.AppConfig{ClientURL: "https://shop.test/"},
		NATS: config.NATSConfig{Subject: "checkout.order"},
		Sweep: config.SweepConfig{
			ReservationTTL: 45 * time.Minute,
			SessionTTL:     35 * time.Minute,
			BatchSize:      10,
			Workers:        2,
		},
	}

	h := &harness{
		gw:      newFakeGateway(),
		orders:  newFakeOrders(),
		events:  newFakeEvents(),
		coupons: new(MockCouponService),
		carts:   new(MockCartService),
		pool:    drivertest.NewPool(),
	}
	tm := driver.NewTransactionManager(h.pool, zap.NewNop())

	h.sc = NewStripeCheckout(cfg, h.gw, tm, nil, nil, h.coupons, h.carts, h.orders, h.events, nil, zap.NewNop()).(*StripeCheckout)
	h.sc.now = func() time.Time { return testNow }
	t.Cleanup(h.sc.Close)

	return h
}

func paidCoupon() *models.Coupon {
	return &models.Coupon{
		ID:                "c1",
		Title:             "10% off books",
		Image:             "https://img.test/c1.png",
		Price:             4.99,
		DiscountType:      enum.DiscountTypePercent,
		DiscountValue:     10,
		MaxDiscountAmount: 20,
		IsActive:          true,
		ExpiryDate:        testNow.Add(24 * time.Hour),
		UsageLimitPerUser: 1,
	}
}

// openCouponOrder starts a coupon purchase for buyer and returns it.
func openCouponOrder(t *testing.T, h *harness) *models.CheckoutSession {
	t.Helper()

	h.coupons.On("GetByID", mock.Anything, "c1").Return(paidCoupon(), nil)
	h.coupons.On("CountOwned", mock.Anything, "u1", "c1").Return(0, nil)
	h.coupons.On("ReserveCode", mock.Anything, "c1", "u1").
		Return(&models.CouponCode{CouponID: "c1", Code: "ABCD1234"}, nil)

	res, err := h.sc.CreateCheckoutSession(context.Background(), buyer, &models.CheckoutRequest{
		Type:  enum.OrderTypeCoupon,
		Items: []string{"c1"},
	})
	require.NoError(t, err)
	return res
}

func bookLines() []*models.CartLine {
	return []*models.CartLine{
		{
			CartItem: models.CartItem{UserID: "u1", ProductID: "p1", Quantity: 2, UnitPrice: 10},
			Product:  &models.Product{ID: "p1", Name: "The Go Programming Language", Category: enum.CategoryBooks},
		},
		{
			CartItem: models.CartItem{UserID: "u1", ProductID: "p2", Quantity: 1, UnitPrice: 5},
			Product:  &models.Product{ID: "p2", Name: "USB cable", Category: enum.CategoryElectronics},
		},
	}
}

// openProductOrder checks out the book cart with code SAVE5 applied.
func openProductOrder(t *testing.T, h *harness) *models.CheckoutSession {
	t.Helper()

	lines := bookLines()
	h.carts.On("Lines", mock.Anything, "u1").Return(lines, nil)
	h.coupons.On("Apply", mock.Anything, "u1", "save5", 25.0, lines).Return(&models.AppliedDiscount{
		Coupon:         &models.Coupon{ID: "c2", Category: enum.CategoryBooks},
		Code:           "SAVE5",
		DiscountAmount: 5.01,
		NewOrderTotal:  19.99,
	}, nil)

	res, err := h.sc.CreateCheckoutSession(context.Background(), buyer, &models.CheckoutRequest{
		Type:          enum.OrderTypeProduct,
		AppliedCoupon: &models.CouponRef{Code: "save5"},
	})
	require.NoError(t, err)
	return res
}

func TestCreateCheckoutSession_Coupon(t *testing.T) {
	h := newHarness(t)

	res := openCouponOrder(t, h)

	order, err := h.orders.GetByID(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusPending, order.Status)
	assert.Equal(t, res.ID, order.GatewaySessionID)
	assert.Equal(t, 4.99, order.TotalAmount)
	require.NotNil(t, order.Coupon)
	assert.Equal(t, "ABCD1234", order.Coupon.Code)

	require.Len(t, h.gw.created, 1)
	params := h.gw.created[0]
	assert.Equal(t, res.OrderID, params.IdempotencyKey)
	assert.Equal(t, "https://shop.test/purchase-success?session_id={CHECKOUT_SESSION_ID}", params.SuccessURL)
	assert.Equal(t, "https://shop.test/purchase-cancel", params.CancelURL)
	assert.Equal(t, buyer.Email, params.CustomerEmail)
	assert.Equal(t, testNow.Add(35*time.Minute), params.ExpiresAt)
	assert.Equal(t, map[string]string{
		metaUserID:   "u1",
		metaType:     "coupon",
		metaOrderID:  res.OrderID,
		metaCouponID: "c1",
		metaCode:     "ABCD1234",
	}, params.Metadata)
	require.Len(t, params.LineItems, 1)
	assert.Equal(t, int64(499), params.LineItems[0].UnitAmount)

	h.coupons.AssertNotCalled(t, "ReleaseCode", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateCheckoutSession_GatewayFailureReleasesCode(t *testing.T) {
	h := newHarness(t)
	h.gw.createErr = errors.New("stripe unavailable")
	h.coupons.On("ReleaseCode", mock.Anything, "c1", "ABCD1234").Return(nil).Once()

	h.coupons.On("GetByID", mock.Anything, "c1").Return(paidCoupon(), nil)
	h.coupons.On("CountOwned", mock.Anything, "u1", "c1").Return(0, nil)
	h.coupons.On("ReserveCode", mock.Anything, "c1", "u1").
		Return(&models.CouponCode{CouponID: "c1", Code: "ABCD1234"}, nil)

	_, err := h.sc.CreateCheckoutSession(context.Background(), buyer, &models.CheckoutRequest{
		Type:  enum.OrderTypeCoupon,
		Items: []string{"c1"},
	})

	assert.ErrorIs(t, err, models.ErrGateway)
	assert.Empty(t, h.orders.orders)
	h.coupons.AssertExpectations(t)
}

func TestCreateCheckoutSession_OrderFailureExpiresSession(t *testing.T) {
	h := newHarness(t)
	h.orders.createErr = errors.New("connection reset")
	h.coupons.On("ReleaseCode", mock.Anything, "c1", "ABCD1234").Return(nil).Once()

	h.coupons.On("GetByID", mock.Anything, "c1").Return(paidCoupon(), nil)
	h.coupons.On("CountOwned", mock.Anything, "u1", "c1").Return(0, nil)
	h.coupons.On("ReserveCode", mock.Anything, "c1", "u1").
		Return(&models.CouponCode{CouponID: "c1", Code: "ABCD1234"}, nil)

	_, err := h.sc.CreateCheckoutSession(context.Background(), buyer, &models.CheckoutRequest{
		Type:  enum.OrderTypeCoupon,
		Items: []string{"c1"},
	})

	require.Error(t, err)
	assert.Equal(t, []string{"cs_test_1"}, h.gw.expired)
	h.coupons.AssertExpectations(t)
}

func TestCreateCheckoutSession_CouponRejections(t *testing.T) {
	ctx := context.Background()
	req := &models.CheckoutRequest{Type: enum.OrderTypeCoupon, Items: []string{"c1"}}

	t.Run("free coupon", func(t *testing.T) {
		h := newHarness(t)
		free := paidCoupon()
		free.IsFree = true
		h.coupons.On("GetByID", mock.Anything, "c1").Return(free, nil)

		_, err := h.sc.CreateCheckoutSession(ctx, buyer, req)

		assert.ErrorIs(t, err, models.ErrValidationFailed)
		h.coupons.AssertNotCalled(t, "ReserveCode", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("purchase limit reached", func(t *testing.T) {
		h := newHarness(t)
		h.coupons.On("GetByID", mock.Anything, "c1").Return(paidCoupon(), nil)
		h.coupons.On("CountOwned", mock.Anything, "u1", "c1").Return(1, nil)

		_, err := h.sc.CreateCheckoutSession(ctx, buyer, req)

		assert.ErrorIs(t, err, models.ErrValidationFailed)
		h.coupons.AssertNotCalled(t, "ReserveCode", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("pool exhausted", func(t *testing.T) {
		h := newHarness(t)
		h.coupons.On("GetByID", mock.Anything, "c1").Return(paidCoupon(), nil)
		h.coupons.On("CountOwned", mock.Anything, "u1", "c1").Return(0, nil)
		h.coupons.On("ReserveCode", mock.Anything, "c1", "u1").Return(nil, models.ErrExhausted)

		_, err := h.sc.CreateCheckoutSession(ctx, buyer, req)

		assert.ErrorIs(t, err, models.ErrExhausted)
		assert.Empty(t, h.gw.created)
	})

	t.Run("missing coupon id", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.sc.CreateCheckoutSession(ctx, buyer, &models.CheckoutRequest{Type: enum.OrderTypeCoupon})

		assert.ErrorIs(t, err, models.ErrValidationFailed)
	})
}

func TestCreateCheckoutSession_ProductWithAppliedCoupon(t *testing.T) {
	h := newHarness(t)

	res := openProductOrder(t, h)

	order, err := h.orders.GetByID(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, 19.99, order.TotalAmount)
	require.NotNil(t, order.AppliedCoupon)
	assert.Equal(t, "SAVE5", order.AppliedCoupon.Code)
	assert.Len(t, order.Products, 2)

	params := h.gw.created[0]
	assert.Equal(t, int64(1999), lineItemsTotal(params.LineItems))
	assert.Equal(t, "p1,p2", params.Metadata[metaItemIDs])
	assert.Equal(t, "SAVE5", params.Metadata[metaAppliedCouponCode])
	assert.Equal(t, "c2", params.Metadata[metaAppliedCouponID])
}

func TestCreateCheckoutSession_ProductRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("empty cart", func(t *testing.T) {
		h := newHarness(t)
		h.carts.On("Lines", mock.Anything, "u1").Return([]*models.CartLine{}, nil)

		_, err := h.sc.CreateCheckoutSession(ctx, buyer, &models.CheckoutRequest{Type: enum.OrderTypeProduct})

		assert.ErrorIs(t, err, models.ErrValidationFailed)
		assert.Empty(t, h.gw.created)
	})

	t.Run("selected items not in cart", func(t *testing.T) {
		h := newHarness(t)
		h.carts.On("Lines", mock.Anything, "u1").Return(bookLines(), nil)

		_, err := h.sc.CreateCheckoutSession(ctx, buyer, &models.CheckoutRequest{
			Type:  enum.OrderTypeProduct,
			Items: []string{"p9"},
		})

		assert.ErrorIs(t, err, models.ErrValidationFailed)
	})

	t.Run("invalid coupon", func(t *testing.T) {
		h := newHarness(t)
		lines := bookLines()
		h.carts.On("Lines", mock.Anything, "u1").Return(lines, nil)
		h.coupons.On("Apply", mock.Anything, "u1", "USED0001", 25.0, lines).
			Return(nil, models.NewValidationError("This coupon code has already been used."))

		_, err := h.sc.CreateCheckoutSession(ctx, buyer, &models.CheckoutRequest{
			Type:          enum.OrderTypeProduct,
			AppliedCoupon: &models.CouponRef{Code: "USED0001"},
		})

		assert.ErrorIs(t, err, models.ErrValidationFailed)
		assert.Empty(t, h.gw.created)
	})
}

func TestApplyCoupon_UsesCart(t *testing.T) {
	h := newHarness(t)
	lines := bookLines()
	want := &models.AppliedDiscount{Code: "SAVE5", DiscountAmount: 5, NewOrderTotal: 20}
	h.carts.On("Lines", mock.Anything, "u1").Return(lines, nil)
	h.coupons.On("Apply", mock.Anything, "u1", "save5", 25.0, lines).Return(want, nil)

	got, err := h.sc.ApplyCoupon(context.Background(), "u1", "save5", 25)

	require.NoError(t, err)
	assert.Equal(t, want, got)
}
