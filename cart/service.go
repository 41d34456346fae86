package cart

import (
	"context"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/checkout/driver"
	"goflare.io/checkout/models"
	"goflare.io/checkout/product"
)

type Service interface {
	Get(ctx context.Context, userID string) (*models.Cart, error)
	Lines(ctx context.Context, userID string) ([]*models.CartLine, error)
	Add(ctx context.Context, userID, productID string) (*models.Cart, error)
	UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (*models.Cart, error)
	Remove(ctx context.Context, userID, productID string) (*models.Cart, error)
	Clear(ctx context.Context, userID string) error
}

type service struct {
	repo               Repository
	products           product.Service
	transactionManager *driver.TransactionManager
	logger             *zap.Logger
}

func NewService(repo Repository, products product.Service, tm *driver.TransactionManager, logger *zap.Logger) Service {
	return &service{
		repo:               repo,
		products:           products,
		transactionManager: tm,
		logger:             logger,
	}
}

func (s *service) Get(ctx context.Context, userID string) (*models.Cart, error) {
	lines, err := s.Lines(ctx, userID)
	if err != nil {
		return nil, err
	}
	return models.NewCart(lines), nil
}

func (s *service) Lines(ctx context.Context, userID string) ([]*models.CartLine, error) {
	var lines []*models.CartLine
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		lines, err = s.repo.List(ctx, tx, userID)
		return err
	})
	return lines, err
}

// Add puts one unit of productID in the cart, snapshotting its current price
// on first insert.
func (s *service) Add(ctx context.Context, userID, productID string) (*models.Cart, error) {
	if productID == "" {
		return nil, models.NewValidationError("Product ID is required.")
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	var lines []*models.CartLine
	err = s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.repo.Increment(ctx, tx, userID, p.ID, p.Price); err != nil {
			return err
		}
		var err error
		lines, err = s.repo.List(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return models.NewCart(lines), nil
}

// UpdateQuantity sets the quantity of a cart line; zero removes it.
func (s *service) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (*models.Cart, error) {
	if quantity < 0 {
		return nil, models.NewValidationError("Quantity must not be negative.")
	}

	var lines []*models.CartLine
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var (
			found bool
			err   error
		)
		if quantity == 0 {
			found, err = s.repo.Delete(ctx, tx, userID, productID)
		} else {
			found, err = s.repo.SetQuantity(ctx, tx, userID, productID, quantity)
		}
		if err != nil {
			return err
		}
		if !found {
			return models.ErrNotFound
		}
		lines, err = s.repo.List(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return models.NewCart(lines), nil
}

// Remove deletes one product from the cart, or empties it when productID is
// blank. Removing an absent product is not an error.
func (s *service) Remove(ctx context.Context, userID, productID string) (*models.Cart, error) {
	var lines []*models.CartLine
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		if productID == "" {
			_, err = s.repo.Clear(ctx, tx, userID)
		} else {
			_, err = s.repo.Delete(ctx, tx, userID, productID)
		}
		if err != nil {
			return err
		}
		lines, err = s.repo.List(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return models.NewCart(lines), nil
}

func (s *service) Clear(ctx context.Context, userID string) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		n, err := s.repo.Clear(ctx, tx, userID)
		if err != nil {
			return err
		}
		s.logger.Debug("Cart cleared", zap.String("user_id", userID), zap.Int64("items", n))
		return nil
	})
}
