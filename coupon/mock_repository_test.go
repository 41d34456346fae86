package coupon

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"

	"goflare.io/checkout/models"
)

// MockRepository is a mock of Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, tx pgx.Tx, coupon *models.Coupon, codes []string) error {
	args := m.Called(ctx, tx, coupon, codes)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.Coupon, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coupon), args.Error(1)
}

func (m *MockRepository) GetByCode(ctx context.Context, tx pgx.Tx, code string) (*models.Coupon, error) {
	args := m.Called(ctx, tx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coupon), args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, tx pgx.Tx) ([]*models.CouponSummary, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.CouponSummary), args.Error(1)
}

func (m *MockRepository) Update(ctx context.Context, tx pgx.Tx, id string, partial *models.PartialCoupon) (*models.Coupon, error) {
	args := m.Called(ctx, tx, id, partial)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coupon), args.Error(1)
}

func (m *MockRepository) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockRepository) DeactivateExpired(ctx context.Context, tx pgx.Tx, now time.Time) ([]string, error) {
	args := m.Called(ctx, tx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRepository) ExistingCodes(ctx context.Context, tx pgx.Tx, codes []string) ([]string, error) {
	args := m.Called(ctx, tx, codes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRepository) GetCode(ctx context.Context, tx pgx.Tx, code string) (*models.CouponCode, error) {
	args := m.Called(ctx, tx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CouponCode), args.Error(1)
}

func (m *MockRepository) ReserveCode(ctx context.Context, tx pgx.Tx, couponID, userID string, now time.Time) (*models.CouponCode, error) {
	args := m.Called(ctx, tx, couponID, userID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CouponCode), args.Error(1)
}

func (m *MockRepository) FinalizeCode(ctx context.Context, tx pgx.Tx, couponID, code, userID string, now time.Time) (bool, error) {
	args := m.Called(ctx, tx, couponID, code, userID, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) RedeemCode(ctx context.Context, tx pgx.Tx, couponID, code, userID string) (bool, error) {
	args := m.Called(ctx, tx, couponID, code, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) ReleaseCode(ctx context.Context, tx pgx.Tx, couponID, code string) (bool, error) {
	args := m.Called(ctx, tx, couponID, code)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) ReleaseStale(ctx context.Context, tx pgx.Tx, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, tx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) LockOwnership(ctx context.Context, tx pgx.Tx, userID, couponID string) error {
	args := m.Called(ctx, tx, userID, couponID)
	return args.Error(0)
}

func (m *MockRepository) CountOwned(ctx context.Context, tx pgx.Tx, userID, couponID string) (int, error) {
	args := m.Called(ctx, tx, userID, couponID)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) CountHeld(ctx context.Context, tx pgx.Tx, userID, couponID string) (int, error) {
	args := m.Called(ctx, tx, userID, couponID)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) CreateOwned(ctx context.Context, tx pgx.Tx, owned *models.OwnedCoupon) error {
	args := m.Called(ctx, tx, owned)
	return args.Error(0)
}

func (m *MockRepository) ListOwned(ctx context.Context, tx pgx.Tx, userID string) ([]*models.OwnedCouponView, error) {
	args := m.Called(ctx, tx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.OwnedCouponView), args.Error(1)
}

func (m *MockRepository) CreatePurchase(ctx context.Context, tx pgx.Tx, purchase *models.CouponPurchase) error {
	args := m.Called(ctx, tx, purchase)
	return args.Error(0)
}
