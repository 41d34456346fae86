package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/checkout/driver"
	"goflare.io/checkout/models"
	"goflare.io/checkout/models/enum"
)

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, coupon *models.Coupon, codes []string) error
	GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.Coupon, error)
	GetByCode(ctx context.Context, tx pgx.Tx, code string) (*models.Coupon, error)
	List(ctx context.Context, tx pgx.Tx) ([]*models.CouponSummary, error)
	Update(ctx context.Context, tx pgx.Tx, id string, partial *models.PartialCoupon) (*models.Coupon, error)
	Delete(ctx context.Context, tx pgx.Tx, id string) error
	DeactivateExpired(ctx context.Context, tx pgx.Tx, now time.Time) ([]string, error)

	ExistingCodes(ctx context.Context, tx pgx.Tx, codes []string) ([]string, error)
	GetCode(ctx context.Context, tx pgx.Tx, code string) (*models.CouponCode, error)
	ReserveCode(ctx context.Context, tx pgx.Tx, couponID, userID string, now time.Time) (*models.CouponCode, error)
	FinalizeCode(ctx context.Context, tx pgx.Tx, couponID, code, userID string, now time.Time) (bool, error)
	RedeemCode(ctx context.Context, tx pgx.Tx, couponID, code, userID string) (bool, error)
	ReleaseCode(ctx context.Context, tx pgx.Tx, couponID, code string) (bool, error)
	ReleaseStale(ctx context.Context, tx pgx.Tx, cutoff time.Time) (int64, error)

	LockOwnership(ctx context.Context, tx pgx.Tx, userID, couponID string) error
	CountOwned(ctx context.Context, tx pgx.Tx, userID, couponID string) (int, error)
	CountHeld(ctx context.Context, tx pgx.Tx, userID, couponID string) (int, error)
	CreateOwned(ctx context.Context, tx pgx.Tx, owned *models.OwnedCoupon) error
	ListOwned(ctx context.Context, tx pgx.Tx, userID string) ([]*models.OwnedCouponView, error)
	CreatePurchase(ctx context.Context, tx pgx.Tx, purchase *models.CouponPurchase) error
}

var _ Repository = (*repository)(nil)

const couponColumns = `c.id, c.title, c.description, c.image, c.is_free, c.price, c.discount_type,
	c.discount_value, c.max_discount_amount, c.min_order_amount, c.category, c.is_active,
	c.expiry_date, c.usage_limit_per_user, c.used_count, c.created_at, c.updated_at`

const codeColumns = `code, coupon_id, position, claimed_by, used, reserved_at, finalized_at`

type repository struct {
	conn   driver.PostgresPool
	logger *zap.Logger
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger) Repository {
	return &repository{
		conn:   conn,
		logger: logger,
	}
}

func (r *repository) Create(ctx context.Context, tx pgx.Tx, coupon *models.Coupon, codes []string) error {
	query := `
	INSERT INTO coupons (id, title, description, image, is_free, price, discount_type, discount_value,
		max_discount_amount, min_order_amount, category, is_active, expiry_date, usage_limit_per_user)
	VALUES (@id, @title, @description, @image, @is_free, @price, @discount_type, @discount_value,
		@max_discount_amount, @min_order_amount, @category, @is_active, @expiry_date, @usage_limit_per_user)
	RETURNING used_count, created_at, updated_at`

	args := pgx.NamedArgs{
		"id":                   coupon.ID,
		"title":                coupon.Title,
		"description":          coupon.Description,
		"image":                coupon.Image,
		"is_free":              coupon.IsFree,
		"price":                coupon.Price,
		"discount_type":        string(coupon.DiscountType),
		"discount_value":       coupon.DiscountValue,
		"max_discount_amount":  coupon.MaxDiscountAmount,
		"min_order_amount":     coupon.MinOrderAmount,
		"category":             nullableCategory(coupon.Category),
		"is_active":            coupon.IsActive,
		"expiry_date":          coupon.ExpiryDate,
		"usage_limit_per_user": coupon.UsageLimitPerUser,
	}

	if err := tx.QueryRow(ctx, query, args).Scan(&coupon.UsedCount, &coupon.CreatedAt, &coupon.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert coupon: %w", err)
	}

	positions := make([]int, len(codes))
	for i := range codes {
		positions[i] = i
	}

	_, err := tx.Exec(ctx, `
	INSERT INTO coupon_codes (code, coupon_id, position)
	SELECT code, $1, position FROM UNNEST($2::text[], $3::int[]) AS t(code, position)`,
		coupon.ID, codes, positions)
	if err != nil {
		return fmt.Errorf("failed to insert coupon codes: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons c WHERE c.id = $1`
	coupon, err := scanCoupon(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "failed to get coupon")
	}
	return coupon, nil
}

func (r *repository) GetByCode(ctx context.Context, tx pgx.Tx, code string) (*models.Coupon, error) {
	query := `SELECT ` + couponColumns + `
	FROM coupons c JOIN coupon_codes cc ON cc.coupon_id = c.id
	WHERE cc.code = $1`
	coupon, err := scanCoupon(tx.QueryRow(ctx, query, code))
	if err != nil {
		return nil, notFound(err, "failed to get coupon by code")
	}
	return coupon, nil
}

func (r *repository) List(ctx context.Context, tx pgx.Tx) ([]*models.CouponSummary, error) {
	query := `SELECT ` + couponColumns + `,
		(SELECT COUNT(*) FROM coupon_codes cc WHERE cc.coupon_id = c.id),
		(SELECT COUNT(*) FROM coupon_codes cc WHERE cc.coupon_id = c.id AND cc.claimed_by IS NULL),
		(SELECT COUNT(*) FROM coupon_purchases p WHERE p.coupon_id = c.id)
	FROM coupons c
	ORDER BY c.created_at DESC`

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	defer rows.Close()

	var summaries []*models.CouponSummary
	for rows.Next() {
		summary := &models.CouponSummary{}
		var category *string
		if err = rows.Scan(append(couponDest(&summary.Coupon, &category),
			&summary.TotalCodes, &summary.AvailableCodes, &summary.Purchases)...); err != nil {
			return nil, fmt.Errorf("failed to scan coupon: %w", err)
		}
		summary.Category = categoryFrom(category)
		summaries = append(summaries, summary)
	}

	return summaries, rows.Err()
}

func (r *repository) Update(ctx context.Context, tx pgx.Tx, id string, partial *models.PartialCoupon) (*models.Coupon, error) {
	args := pgx.NamedArgs{"id": id}
	var updateClauses []string

	set := func(column string, value any) {
		args[column] = value
		updateClauses = append(updateClauses, fmt.Sprintf("%s = @%s", column, column))
	}

	if partial.Title != nil {
		set("title", *partial.Title)
	}
	if partial.Description != nil {
		set("description", *partial.Description)
	}
	if partial.Image != nil {
		set("image", *partial.Image)
	}
	if partial.Price != nil {
		set("price", *partial.Price)
		set("is_free", *partial.Price == 0)
	}
	if partial.DiscountType != nil {
		set("discount_type", string(*partial.DiscountType))
	}
	if partial.DiscountValue != nil {
		set("discount_value", *partial.DiscountValue)
	}
	if partial.MaxDiscountAmount != nil {
		set("max_discount_amount", *partial.MaxDiscountAmount)
	}
	if partial.MinOrderAmount != nil {
		set("min_order_amount", *partial.MinOrderAmount)
	}
	if partial.Category != nil {
		set("category", nullableCategory(*partial.Category))
	}
	if partial.IsActive != nil {
		set("is_active", *partial.IsActive)
	}
	if partial.ExpiryDate != nil {
		set("expiry_date", *partial.ExpiryDate)
	}
	if partial.UsageLimitPerUser != nil {
		set("usage_limit_per_user", *partial.UsageLimitPerUser)
	}

	updateClauses = append(updateClauses, "updated_at = NOW()")

	query := `UPDATE coupons c SET ` + strings.Join(updateClauses, ", ") +
		` WHERE c.id = @id RETURNING ` + couponColumns

	coupon, err := scanCoupon(tx.QueryRow(ctx, query, args))
	if err != nil {
		return nil, notFound(err, "failed to update coupon")
	}
	return coupon, nil
}

func (r *repository) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *repository) DeactivateExpired(ctx context.Context, tx pgx.Tx, now time.Time) ([]string, error) {
	rows, err := tx.Query(ctx, `
	UPDATE coupons SET is_active = FALSE, updated_at = NOW()
	WHERE is_active AND expiry_date <= $1
	RETURNING id`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate expired coupons: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect deactivated coupons: %w", err)
	}
	return ids, nil
}

func (r *repository) ExistingCodes(ctx context.Context, tx pgx.Tx, codes []string) ([]string, error) {
	rows, err := tx.Query(ctx, `SELECT code FROM coupon_codes WHERE code = ANY($1)`, codes)
	if err != nil {
		return nil, fmt.Errorf("failed to check coupon codes: %w", err)
	}
	existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect coupon codes: %w", err)
	}
	return existing, nil
}

func (r *repository) GetCode(ctx context.Context, tx pgx.Tx, code string) (*models.CouponCode, error) {
	query := `SELECT ` + codeColumns + ` FROM coupon_codes WHERE code = $1`
	cc, err := scanCode(tx.QueryRow(ctx, query, code))
	if err != nil {
		return nil, notFound(err, "failed to get coupon code")
	}
	return cc, nil
}

// ReserveCode claims the lowest-positioned free code of a coupon for userID
// in a single statement. Concurrent reservations skip rows locked by each
// other, so no two callers can receive the same code. A nil code with a nil
// error means the pool is exhausted.
func (r *repository) ReserveCode(ctx context.Context, tx pgx.Tx, couponID, userID string, now time.Time) (*models.CouponCode, error) {
	query := `
	UPDATE coupon_codes
	SET claimed_by = @user_id, reserved_at = @now
	WHERE code = (
		SELECT code FROM coupon_codes
		WHERE coupon_id = @coupon_id AND claimed_by IS NULL
		ORDER BY position
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	)
	AND claimed_by IS NULL
	RETURNING ` + codeColumns

	cc, err := scanCode(tx.QueryRow(ctx, query, pgx.NamedArgs{
		"coupon_id": couponID,
		"user_id":   userID,
		"now":       now,
	}))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reserve coupon code: %w", err)
	}
	return cc, nil
}

func (r *repository) FinalizeCode(ctx context.Context, tx pgx.Tx, couponID, code, userID string, now time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
	UPDATE coupon_codes SET finalized_at = @now
	WHERE coupon_id = @coupon_id AND code = @code AND claimed_by = @user_id
		AND NOT used AND finalized_at IS NULL`,
		pgx.NamedArgs{"coupon_id": couponID, "code": code, "user_id": userID, "now": now})
	if err != nil {
		return false, fmt.Errorf("failed to finalize coupon code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) RedeemCode(ctx context.Context, tx pgx.Tx, couponID, code, userID string) (bool, error) {
	tag, err := tx.Exec(ctx, `
	WITH redeemed AS (
		UPDATE coupon_codes SET used = TRUE
		WHERE coupon_id = @coupon_id AND code = @code AND claimed_by = @user_id
			AND finalized_at IS NOT NULL AND NOT used
		RETURNING coupon_id
	)
	UPDATE coupons SET used_count = used_count + 1, updated_at = NOW()
	WHERE id IN (SELECT coupon_id FROM redeemed)`,
		pgx.NamedArgs{"coupon_id": couponID, "code": code, "user_id": userID})
	if err != nil {
		return false, fmt.Errorf("failed to redeem coupon code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) ReleaseCode(ctx context.Context, tx pgx.Tx, couponID, code string) (bool, error) {
	tag, err := tx.Exec(ctx, `
	UPDATE coupon_codes SET claimed_by = NULL, reserved_at = NULL
	WHERE coupon_id = $1 AND code = $2
		AND claimed_by IS NOT NULL AND NOT used AND finalized_at IS NULL`,
		couponID, code)
	if err != nil {
		return false, fmt.Errorf("failed to release coupon code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseStale frees reservations older than cutoff that no pending coupon
// order still refers to.
func (r *repository) ReleaseStale(ctx context.Context, tx pgx.Tx, cutoff time.Time) (int64, error) {
	tag, err := tx.Exec(ctx, `
	UPDATE coupon_codes cc SET claimed_by = NULL, reserved_at = NULL
	WHERE cc.claimed_by IS NOT NULL AND NOT cc.used AND cc.finalized_at IS NULL
		AND cc.reserved_at < $1
		AND NOT EXISTS (
			SELECT 1 FROM orders o
			WHERE o.status = 'pending' AND o.type = 'coupon' AND o.coupon->>'code' = cc.code
		)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale reservations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// LockOwnership serialises claims of one coupon by one user until the
// surrounding transaction ends.
func (r *repository) LockOwnership(ctx context.Context, tx pgx.Tx, userID, couponID string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`, userID, couponID); err != nil {
		return fmt.Errorf("failed to lock ownership: %w", err)
	}
	return nil
}

func (r *repository) CountOwned(ctx context.Context, tx pgx.Tx, userID, couponID string) (int, error) {
	var count int
	err := tx.QueryRow(ctx, `
	SELECT COUNT(*) FROM owned_coupons WHERE user_id = $1 AND coupon_id = $2`,
		userID, couponID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count owned coupons: %w", err)
	}
	return count, nil
}

// CountHeld counts the codes of a coupon claimed by userID, whether still
// reserved, finalized or used.
func (r *repository) CountHeld(ctx context.Context, tx pgx.Tx, userID, couponID string) (int, error) {
	var count int
	err := tx.QueryRow(ctx, `
	SELECT COUNT(*) FROM coupon_codes WHERE coupon_id = $1 AND claimed_by = $2`,
		couponID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count held coupon codes: %w", err)
	}
	return count, nil
}

func (r *repository) CreateOwned(ctx context.Context, tx pgx.Tx, owned *models.OwnedCoupon) error {
	_, err := tx.Exec(ctx, `
	INSERT INTO owned_coupons (user_id, coupon_id, code, is_free, purchased_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (code) DO NOTHING`,
		owned.UserID, owned.CouponID, owned.Code, owned.IsFree, owned.PurchasedAt)
	if err != nil {
		return fmt.Errorf("failed to create owned coupon: %w", err)
	}
	return nil
}

func (r *repository) ListOwned(ctx context.Context, tx pgx.Tx, userID string) ([]*models.OwnedCouponView, error) {
	query := `SELECT ` + couponColumns + `, o.code, cc.used, o.purchased_at
	FROM owned_coupons o
	JOIN coupons c ON c.id = o.coupon_id
	JOIN coupon_codes cc ON cc.code = o.code
	WHERE o.user_id = $1
	ORDER BY o.purchased_at DESC`

	rows, err := tx.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned coupons: %w", err)
	}
	defer rows.Close()

	var views []*models.OwnedCouponView
	for rows.Next() {
		view := &models.OwnedCouponView{Coupon: &models.Coupon{}}
		var category *string
		if err = rows.Scan(append(couponDest(view.Coupon, &category),
			&view.Code, &view.Used, &view.PurchasedAt)...); err != nil {
			return nil, fmt.Errorf("failed to scan owned coupon: %w", err)
		}
		view.Coupon.Category = categoryFrom(category)
		views = append(views, view)
	}

	return views, rows.Err()
}

func (r *repository) CreatePurchase(ctx context.Context, tx pgx.Tx, purchase *models.CouponPurchase) error {
	_, err := tx.Exec(ctx, `
	INSERT INTO coupon_purchases (coupon_id, user_id, purchased_at) VALUES ($1, $2, $3)`,
		purchase.CouponID, purchase.UserID, purchase.PurchasedAt)
	if err != nil {
		return fmt.Errorf("failed to record coupon purchase: %w", err)
	}
	return nil
}

func couponDest(c *models.Coupon, category **string) []any {
	return []any{
		&c.ID, &c.Title, &c.Description, &c.Image, &c.IsFree, &c.Price, &c.DiscountType,
		&c.DiscountValue, &c.MaxDiscountAmount, &c.MinOrderAmount, category, &c.IsActive,
		&c.ExpiryDate, &c.UsageLimitPerUser, &c.UsedCount, &c.CreatedAt, &c.UpdatedAt,
	}
}

func scanCoupon(row pgx.Row) (*models.Coupon, error) {
	coupon := &models.Coupon{}
	var category *string
	if err := row.Scan(couponDest(coupon, &category)...); err != nil {
		return nil, err
	}
	coupon.Category = categoryFrom(category)
	return coupon, nil
}

func scanCode(row pgx.Row) (*models.CouponCode, error) {
	cc := &models.CouponCode{}
	if err := row.Scan(&cc.Code, &cc.CouponID, &cc.Position, &cc.ClaimedBy, &cc.Used,
		&cc.ReservedAt, &cc.FinalizedAt); err != nil {
		return nil, err
	}
	return cc, nil
}

func nullableCategory(c enum.Category) *string {
	if c == "" {
		return nil
	}
	s := string(c)
	return &s
}

func categoryFrom(s *string) enum.Category {
	if s == nil {
		return ""
	}
	return enum.Category(*s)
}

func notFound(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
