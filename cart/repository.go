package cart

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/checkout/driver"
	"goflare.io/checkout/models"
	"goflare.io/checkout/models/enum"
)

type Repository interface {
	List(ctx context.Context, tx pgx.Tx, userID string) ([]*models.CartLine, error)
	Increment(ctx context.Context, tx pgx.Tx, userID, productID string, unitPrice float64) error
	SetQuantity(ctx context.Context, tx pgx.Tx, userID, productID string, quantity int) (bool, error)
	Delete(ctx context.Context, tx pgx.Tx, userID, productID string) (bool, error)
	Clear(ctx context.Context, tx pgx.Tx, userID string) (int64, error)
}

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

func (r *repository) List(ctx context.Context, tx pgx.Tx, userID string) ([]*models.CartLine, error) {
	rows, err := tx.Query(ctx, `
	SELECT ci.user_id, ci.product_id, ci.quantity, ci.unit_price, ci.created_at, ci.updated_at,
		p.id, p.name, p.description, p.image, p.price, p.category, p.created_at, p.updated_at
	FROM cart_items ci
	JOIN products p ON p.id = ci.product_id
	WHERE ci.user_id = $1
	ORDER BY ci.created_at, ci.product_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	defer rows.Close()

	lines := make([]*models.CartLine, 0)
	for rows.Next() {
		line := &models.CartLine{Product: &models.Product{}}
		var category *string
		if err = rows.Scan(
			&line.UserID, &line.ProductID, &line.Quantity, &line.UnitPrice, &line.CreatedAt, &line.UpdatedAt,
			&line.Product.ID, &line.Product.Name, &line.Product.Description, &line.Product.Image,
			&line.Product.Price, &category, &line.Product.CreatedAt, &line.Product.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		if category != nil {
			line.Product.Category = enum.Category(*category)
		}
		lines = append(lines, line)
	}

	return lines, rows.Err()
}

func (r *repository) Increment(ctx context.Context, tx pgx.Tx, userID, productID string, unitPrice float64) error {
	_, err := tx.Exec(ctx, `
	INSERT INTO cart_items (user_id, product_id, quantity, unit_price)
	VALUES ($1, $2, 1, $3)
	ON CONFLICT (user_id, product_id)
	DO UPDATE SET quantity = cart_items.quantity + 1, updated_at = NOW()`,
		userID, productID, unitPrice)
	if err != nil {
		return fmt.Errorf("failed to add cart item: %w", err)
	}
	return nil
}

func (r *repository) SetQuantity(ctx context.Context, tx pgx.Tx, userID, productID string, quantity int) (bool, error) {
	tag, err := tx.Exec(ctx, `
	UPDATE cart_items SET quantity = $3, updated_at = NOW()
	WHERE user_id = $1 AND product_id = $2`, userID, productID, quantity)
	if err != nil {
		return false, fmt.Errorf("failed to update cart item: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) Delete(ctx context.Context, tx pgx.Tx, userID, productID string) (bool, error) {
	tag, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID)
	if err != nil {
		return false, fmt.Errorf("failed to delete cart item: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) Clear(ctx context.Context, tx pgx.Tx, userID string) (int64, error) {
	tag, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cart: %w", err)
	}
	return tag.RowsAffected(), nil
}
