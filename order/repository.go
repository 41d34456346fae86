package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/checkout/driver"
	"goflare.io/checkout/models"
	"goflare.io/checkout/models/enum"
)

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, order *models.Order) error
	GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.Order, error)
	GetBySessionID(ctx context.Context, tx pgx.Tx, sessionID string, forUpdate bool) (*models.Order, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, from, to enum.OrderStatus) (*models.Order, error)
	ListStalePending(ctx context.Context, tx pgx.Tx, cutoff time.Time, limit int) ([]*models.Order, error)
	ListByUser(ctx context.Context, tx pgx.Tx, userID string) ([]*models.Order, error)
}

const orderColumns = `id, user_id, type, products, coupon, applied_coupon, total_amount,
	gateway_session_id, status, created_at, updated_at, completed_at`

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

func (r *repository) Create(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	const query = `
	INSERT INTO orders (id, user_id, type, products, coupon, applied_coupon, total_amount, gateway_session_id, status)
	VALUES (@id, @user_id, @type, @products, @coupon, @applied_coupon, @total_amount, @gateway_session_id, @status)
	RETURNING created_at, updated_at`

	products := order.Products
	if products == nil {
		products = []models.OrderProduct{}
	}

	args := pgx.NamedArgs{
		"id":                 order.ID,
		"user_id":            order.UserID,
		"type":               string(order.Type),
		"products":           products,
		"coupon":             order.Coupon,
		"applied_coupon":     order.AppliedCoupon,
		"total_amount":       order.TotalAmount,
		"gateway_session_id": order.GatewaySessionID,
		"status":             string(order.Status),
	}

	if err := tx.QueryRow(ctx, query, args).Scan(&order.CreatedAt, &order.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.Order, error) {
	order, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "failed to get order")
	}
	return order, nil
}

func (r *repository) GetBySessionID(ctx context.Context, tx pgx.Tx, sessionID string, forUpdate bool) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE gateway_session_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	order, err := scanOrder(tx.QueryRow(ctx, query, sessionID))
	if err != nil {
		return nil, notFound(err, "failed to get order by session")
	}
	return order, nil
}

// UpdateStatus moves an order from one status to another. A missing order
// yields ErrNotFound; an order not in the from status yields ErrInvalidState.
func (r *repository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, from, to enum.OrderStatus) (*models.Order, error) {
	const query = `
	UPDATE orders SET status = @to, updated_at = NOW(),
		completed_at = CASE WHEN @to = 'completed' THEN NOW() ELSE completed_at END
	WHERE id = @id AND status = @from
	RETURNING ` + orderColumns

	order, err := scanOrder(tx.QueryRow(ctx, query, pgx.NamedArgs{
		"id":   id,
		"from": string(from),
		"to":   string(to),
	}))
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	if _, err = r.GetByID(ctx, tx, id); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: order %s is not %s", models.ErrInvalidState, id, from)
}

func (r *repository) ListStalePending(ctx context.Context, tx pgx.Tx, cutoff time.Time, limit int) ([]*models.Order, error) {
	rows, err := tx.Query(ctx, `
	SELECT `+orderColumns+` FROM orders
	WHERE status = 'pending' AND created_at < $1
	ORDER BY created_at
	LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale orders: %w", err)
	}
	return collectOrders(rows)
}

func (r *repository) ListByUser(ctx context.Context, tx pgx.Tx, userID string) ([]*models.Order, error) {
	rows, err := tx.Query(ctx, `
	SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]*models.Order, error) {
	defer rows.Close()

	orders := make([]*models.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	o := &models.Order{}
	if err := row.Scan(&o.ID, &o.UserID, &o.Type, &o.Products, &o.Coupon, &o.AppliedCoupon,
		&o.TotalAmount, &o.GatewaySessionID, &o.Status, &o.CreatedAt, &o.UpdatedAt, &o.CompletedAt); err != nil {
		return nil, err
	}
	return o, nil
}

func notFound(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
