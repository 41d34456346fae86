package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"

	"goflare.io/checkout/gateway"
	"goflare.io/checkout/models"
)

func newTestContext(method, target, body string, user *models.User) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if user != nil {
		SetUser(c, user)
	}
	return c, rec
}

type MockCheckout struct {
	mock.Mock
}

func (m *MockCheckout) ApplyCoupon(ctx context.Context, userID, code string, orderTotal float64) (*models.AppliedDiscount, error) {
	args := m.Called(ctx, userID, code, orderTotal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AppliedDiscount), args.Error(1)
}

func (m *MockCheckout) ClaimFreeCoupon(ctx context.Context, userID, couponID string) (*models.ClaimedCoupon, error) {
	args := m.Called(ctx, userID, couponID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ClaimedCoupon), args.Error(1)
}

func (m *MockCheckout) CreateCheckoutSession(ctx context.Context, user *models.User, req *models.CheckoutRequest) (*models.CheckoutSession, error) {
	args := m.Called(ctx, user, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckoutSession), args.Error(1)
}

func (m *MockCheckout) CheckoutSuccess(ctx context.Context, userID, sessionID string) (*models.Order, error) {
	args := m.Called(ctx, userID, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockCheckout) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	return m.Called(ctx, payload, signature).Error(0)
}

func (m *MockCheckout) Reconcile(ctx context.Context, session *gateway.Session) (*models.Order, error) {
	args := m.Called(ctx, session)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockCheckout) FailOrder(ctx context.Context, sessionID string) (*models.Order, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockCheckout) SweepExpired(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockCheckout) ListOrders(ctx context.Context, userID string) ([]*models.Order, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Order), args.Error(1)
}

func (m *MockCheckout) Close() {
	m.Called()
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
