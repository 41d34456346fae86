package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"goflare.io/checkout/driver"
	"goflare.io/checkout/models"
	"goflare.io/checkout/models/enum"
)

const (
	defaultExpiry      = 30 * 24 * time.Hour
	maxCodeGenAttempts = 5
	freeUsageLimit     = 1
	maxPercentDiscount = 100
)

const (
	reasonCodeRequired   = "Coupon code is required."
	reasonNotFree        = "This coupon is not free."
	reasonAlreadyClaimed = "You have already claimed this coupon."
)

const ReasonPurchaseLimit = "You have reached the purchase limit for this coupon."


type Service interface {
	Create(ctx context.Context, req *models.CreateCouponRequest) (*models.Coupon, error)
	GetByID(ctx context.Context, id string) (*models.Coupon, error)
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	List(ctx context.Context) ([]*models.CouponSummary, error)
	Update(ctx context.Context, id string, partial *models.PartialCoupon) (*models.Coupon, error)
	Delete(ctx context.Context, id string) error
	DeactivateExpired(ctx context.Context) (int, error)

	Apply(ctx context.Context, userID, code string, orderTotal float64, lines []*models.CartLine) (*models.AppliedDiscount, error)

	ReserveCode(ctx context.Context, couponID, userID string) (*models.CouponCode, error)
	FinalizeCode(ctx context.Context, couponID, code, userID string) error
	RedeemCode(ctx context.Context, couponID, code, userID string) error
	ReleaseCode(ctx context.Context, couponID, code string) error
	ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)

	ClaimFreeCoupon(ctx context.Context, couponID, userID string) (*models.ClaimedCoupon, error)
	CompletePurchase(ctx context.Context, couponID, code, userID string) error
	CountOwned(ctx context.Context, userID, couponID string) (int, error)
	ListOwned(ctx context.Context, userID string) ([]*models.OwnedCouponView, error)
}

type service struct {
	repo               Repository
	transactionManager *driver.TransactionManager
	cache              *Cache
	logger             *zap.Logger
	now                func() time.Time
}

func NewService(repo Repository, tm *driver.TransactionManager, cache *Cache, logger *zap.Logger) Service {
	return &service{
		repo:               repo,
		transactionManager: tm,
		cache:              cache,
		logger:             logger,
		now:                time.Now,
	}
}

func (s *service) Create(ctx context.Context, req *models.CreateCouponRequest) (*models.Coupon, error) {
	now := s.now()

	coupon := &models.Coupon{
		ID:                uuid.NewString(),
		Title:             strings.TrimSpace(req.Title),
		Description:       req.Description,
		Image:             req.Image,
		IsFree:            req.Price == 0,
		Price:             req.Price,
		DiscountType:      req.DiscountType,
		DiscountValue:     req.DiscountValue,
		MaxDiscountAmount: req.MaxDiscountAmount,
		MinOrderAmount:    req.MinOrderAmount,
		Category:          req.Category,
		IsActive:          true,
		ExpiryDate:        now.Add(defaultExpiry),
		UsageLimitPerUser: req.UsageLimitPerUser,
	}
	if req.ExpiryDate != nil {
		coupon.ExpiryDate = *req.ExpiryDate
	}
	if coupon.IsFree {
		coupon.UsageLimitPerUser = freeUsageLimit
	}

	if err := checkDefinition(coupon, now); err != nil {
		return nil, err
	}
	if req.TotalCodes < 1 {
		return nil, models.NewValidationError("At least one coupon code is required.")
	}

	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		codes, err := s.uniqueCodes(ctx, tx, req.TotalCodes)
		if err != nil {
			return err
		}
		return s.repo.Create(ctx, tx, coupon, codes)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Coupon created",
		zap.String("coupon_id", coupon.ID),
		zap.Int("codes", req.TotalCodes),
		zap.Bool("free", coupon.IsFree))

	return coupon, nil
}

func (s *service) uniqueCodes(ctx context.Context, tx pgx.Tx, n int) ([]string, error) {
	exclude := make(map[string]struct{})
	for attempt := 0; attempt < maxCodeGenAttempts; attempt++ {
		codes, err := generateCodes(n, exclude)
		if err != nil {
			return nil, fmt.Errorf("failed to generate coupon codes: %w", err)
		}
		existing, err := s.repo.ExistingCodes(ctx, tx, codes)
		if err != nil {
			return nil, err
		}
		if len(existing) == 0 {
			return codes, nil
		}
		for _, code := range existing {
			exclude[code] = struct{}{}
		}
	}
	return nil, fmt.Errorf("failed to generate %d unique coupon codes after %d attempts", n, maxCodeGenAttempts)
}

func (s *service) GetByID(ctx context.Context, id string) (*models.Coupon, error) {
	return s.cache.Get(ctx, id, func(ctx context.Context) (*models.Coupon, error) {
		var coupon *models.Coupon
		err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
			var err error
			coupon, err = s.repo.GetByID(ctx, tx, id)
			return err
		})
		return coupon, err
	})
}

func (s *service) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon *models.Coupon
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		coupon, err = s.repo.GetByCode(ctx, tx, NormalizeCode(code))
		return err
	})
	return coupon, err
}

func (s *service) List(ctx context.Context) ([]*models.CouponSummary, error) {
	var summaries []*models.CouponSummary
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		summaries, err = s.repo.List(ctx, tx)
		return err
	})
	return summaries, err
}

func (s *service) Update(ctx context.Context, id string, partial *models.PartialCoupon) (*models.Coupon, error) {
	var coupon *models.Coupon
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		existing, err := s.repo.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}

		merged := merge(existing, partial)
		if err = checkDefinition(merged, s.now()); err != nil {
			return err
		}

		changes := *partial
		if merged.IsFree {
			changes.UsageLimitPerUser = &merged.UsageLimitPerUser
		}

		coupon, err = s.repo.Update(ctx, tx, id, &changes)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, id)
	return coupon, nil
}

func (s *service) Delete(ctx context.Context, id string) error {
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.Delete(ctx, tx, id)
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(ctx, id)
	return nil
}

func (s *service) DeactivateExpired(ctx context.Context) (int, error) {
	var ids []string
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		ids, err = s.repo.DeactivateExpired(ctx, tx, s.now())
		return err
	})
	if err != nil {
		return 0, err
	}

	s.cache.Invalidate(ctx, ids...)
	return len(ids), nil
}

func (s *service) Apply(ctx context.Context, userID, code string, orderTotal float64, lines []*models.CartLine) (*models.AppliedDiscount, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, models.NewValidationError(reasonCodeRequired)
	}
	if orderTotal < 0 {
		return nil, models.NewValidationError("Order total must not be negative.")
	}

	var cc *models.CouponCode
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		cc, err = s.repo.GetCode(ctx, tx, code)
		return err
	})
	if err != nil {
		return nil, err
	}

	coupon, err := s.GetByID(ctx, cc.CouponID)
	if err != nil {
		return nil, err
	}

	if v := Validate(coupon, cc, userID, lines, orderTotal, s.now()); !v.Valid {
		return nil, models.NewValidationError(v.Reason)
	}

	discount, newTotal := ComputeDiscount(coupon, orderTotal)
	if coupon.Category != "" {
		base, _ := CategorySubtotal(lines, coupon.Category).Float64()
		discount, _ = ComputeDiscount(coupon, base)
		newTotal, _ = decimal.NewFromFloat(orderTotal).Sub(decimal.NewFromFloat(discount)).Round(2).Float64()
	}

	return &models.AppliedDiscount{
		Coupon:         coupon,
		Code:           code,
		DiscountAmount: discount,
		NewOrderTotal:  newTotal,
	}, nil
}

func (s *service) ReserveCode(ctx context.Context, couponID, userID string) (*models.CouponCode, error) {
	var cc *models.CouponCode
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		coupon, err := s.repo.GetByID(ctx, tx, couponID)
		if err != nil {
			return err
		}
		if !coupon.Redeemable(s.now()) {
			return models.NewValidationError(ReasonInactive)
		}

		if coupon.UsageLimitPerUser > 0 {
			if err = s.repo.LockOwnership(ctx, tx, userID, couponID); err != nil {
				return err
			}
			held, err := s.repo.CountHeld(ctx, tx, userID, couponID)
			if err != nil {
				return err
			}
			if held >= coupon.UsageLimitPerUser {
				return models.NewValidationError(ReasonPurchaseLimit)
			}
		}

		cc, err = s.repo.ReserveCode(ctx, tx, couponID, userID, s.now())
		if err != nil {
			return err
		}
		if cc == nil {
			return models.ErrExhausted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Coupon code reserved",
		zap.String("coupon_id", couponID),
		zap.String("code", cc.Code),
		zap.String("user_id", userID))

	return cc, nil
}

func (s *service) FinalizeCode(ctx context.Context, couponID, code, userID string) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.finalize(ctx, tx, couponID, code, userID)
	})
}

// finalize is idempotent for a code already finalized by the same user.
func (s *service) finalize(ctx context.Context, tx pgx.Tx, couponID, code, userID string) error {
	ok, err := s.repo.FinalizeCode(ctx, tx, couponID, code, userID, s.now())
	if err != nil || ok {
		return err
	}

	cc, err := s.repo.GetCode(ctx, tx, code)
	if err != nil {
		return err
	}
	if cc.CouponID == couponID && cc.ClaimedByUser(userID) && cc.IsFinalized() {
		return nil
	}
	return fmt.Errorf("%w: code %s is not reserved by user %s", models.ErrInvalidState, code, userID)
}

func (s *service) RedeemCode(ctx context.Context, couponID, code, userID string) error {
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		ok, err := s.repo.RedeemCode(ctx, tx, couponID, code, userID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: code %s cannot be redeemed by user %s", models.ErrInvalidState, code, userID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(ctx, couponID)
	return nil
}

// ReleaseCode returns a reserved code to the pool. Releasing a code that is
// already free is a no-op.
func (s *service) ReleaseCode(ctx context.Context, couponID, code string) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		ok, err := s.repo.ReleaseCode(ctx, tx, couponID, code)
		if err != nil || ok {
			return err
		}

		cc, err := s.repo.GetCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if cc.CouponID == couponID && cc.IsAvailable() {
			return nil
		}
		return fmt.Errorf("%w: code %s is no longer releasable", models.ErrInvalidState, code)
	})
}

func (s *service) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	var released int64
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		released, err = s.repo.ReleaseStale(ctx, tx, cutoff)
		return err
	})
	return released, err
}

func (s *service) ClaimFreeCoupon(ctx context.Context, couponID, userID string) (*models.ClaimedCoupon, error) {
	var claimed *models.ClaimedCoupon
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		coupon, err := s.repo.GetByID(ctx, tx, couponID)
		if err != nil {
			return err
		}
		if !coupon.IsFree {
			return models.NewValidationError(reasonNotFree)
		}
		if !coupon.Redeemable(s.now()) {
			return models.NewValidationError(ReasonInactive)
		}

		if err = s.repo.LockOwnership(ctx, tx, userID, couponID); err != nil {
			return err
		}
		owned, err := s.repo.CountOwned(ctx, tx, userID, couponID)
		if err != nil {
			return err
		}
		if owned > 0 {
			return models.NewValidationError(reasonAlreadyClaimed)
		}

		cc, err := s.repo.ReserveCode(ctx, tx, couponID, userID, s.now())
		if err != nil {
			return err
		}
		if cc == nil {
			return models.ErrExhausted
		}

		if err = s.completePurchase(ctx, tx, couponID, cc.Code, userID, true); err != nil {
			return err
		}

		claimed = &models.ClaimedCoupon{Coupon: coupon, Code: cc.Code}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Free coupon claimed",
		zap.String("coupon_id", couponID),
		zap.String("code", claimed.Code),
		zap.String("user_id", userID))

	return claimed, nil
}

// CompletePurchase finalizes a paid reservation and records the user's
// ownership of the code.
func (s *service) CompletePurchase(ctx context.Context, couponID, code, userID string) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.completePurchase(ctx, tx, couponID, code, userID, false)
	})
}

func (s *service) completePurchase(ctx context.Context, tx pgx.Tx, couponID, code, userID string, free bool) error {
	if err := s.finalize(ctx, tx, couponID, code, userID); err != nil {
		return err
	}

	now := s.now()
	if err := s.repo.CreateOwned(ctx, tx, &models.OwnedCoupon{
		UserID:      userID,
		CouponID:    couponID,
		Code:        code,
		IsFree:      free,
		PurchasedAt: now,
	}); err != nil {
		return err
	}

	return s.repo.CreatePurchase(ctx, tx, &models.CouponPurchase{
		CouponID:    couponID,
		UserID:      userID,
		PurchasedAt: now,
	})
}

func (s *service) CountOwned(ctx context.Context, userID, couponID string) (int, error) {
	var count int
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		count, err = s.repo.CountOwned(ctx, tx, userID, couponID)
		return err
	})
	return count, err
}

func (s *service) ListOwned(ctx context.Context, userID string) ([]*models.OwnedCouponView, error) {
	var views []*models.OwnedCouponView
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		views, err = s.repo.ListOwned(ctx, tx, userID)
		return err
	})
	if views == nil && err == nil {
		views = []*models.OwnedCouponView{}
	}
	return views, err
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func checkDefinition(c *models.Coupon, now time.Time) error {
	switch {
	case c.Title == "":
		return models.NewValidationError("Title is required.")
	case !c.DiscountType.Valid():
		return models.NewValidationError("Discount type must be percent or flat.")
	case c.DiscountValue <= 0:
		return models.NewValidationError("Discount value must be positive.")
	case c.DiscountType == enum.DiscountTypePercent && c.DiscountValue > maxPercentDiscount:
		return models.NewValidationError("Percentage discount cannot exceed 100.")
	case c.DiscountType == enum.DiscountTypePercent && c.MaxDiscountAmount <= 0:
		return models.NewValidationError("Max discount amount is required for percentage-based coupons.")
	case c.Price < 0 || c.MinOrderAmount < 0 || c.UsageLimitPerUser < 0:
		return models.NewValidationError("Amounts must not be negative.")
	case c.Category != "" && !c.Category.Valid():
		return models.NewValidationError(fmt.Sprintf("Unknown category %q.", c.Category))
	case !c.ExpiryDate.After(now) && c.IsActive:
		return models.NewValidationError("Expiry date must be in the future.")
	}
	return nil
}

func merge(existing *models.Coupon, partial *models.PartialCoupon) *models.Coupon {
	merged := *existing
	if partial.Title != nil {
		merged.Title = strings.TrimSpace(*partial.Title)
	}
	if partial.Price != nil {
		merged.Price = *partial.Price
		merged.IsFree = *partial.Price == 0
	}
	if partial.DiscountType != nil {
		merged.DiscountType = *partial.DiscountType
	}
	if partial.DiscountValue != nil {
		merged.DiscountValue = *partial.DiscountValue
	}
	if partial.MaxDiscountAmount != nil {
		merged.MaxDiscountAmount = *partial.MaxDiscountAmount
	}
	if partial.MinOrderAmount != nil {
		merged.MinOrderAmount = *partial.MinOrderAmount
	}
	if partial.Category != nil {
		merged.Category = *partial.Category
	}
	if partial.IsActive != nil {
		merged.IsActive = *partial.IsActive
	}
	if partial.ExpiryDate != nil {
		merged.ExpiryDate = *partial.ExpiryDate
	}
	if partial.UsageLimitPerUser != nil {
		merged.UsageLimitPerUser = *partial.UsageLimitPerUser
	}
	if merged.IsFree {
		merged.UsageLimitPerUser = freeUsageLimit
	}
	return &merged
}
