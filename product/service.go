package product

import (
	"context"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/checkout/driver"
	"goflare.io/checkout/models"
)

// Service exposes the catalog read-only. Products are owned by the catalog
// team and only priced here.
type Service interface {
	GetByID(ctx context.Context, id string) (*models.Product, error)
	List(ctx context.Context, limit, offset uint64) ([]*models.Product, error)
}

type service struct {
	repo               Repository
	transactionManager *driver.TransactionManager
	logger             *zap.Logger
}

func NewService(repo Repository, tm *driver.TransactionManager, logger *zap.Logger) Service {
	return &service{
		repo:               repo,
		transactionManager: tm,
		logger:             logger,
	}
}

func (s *service) GetByID(ctx context.Context, id string) (*models.Product, error) {
	var product *models.Product
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		product, err = s.repo.GetByID(ctx, tx, id)
		return err
	})
	return product, err
}

func (s *service) List(ctx context.Context, limit, offset uint64) ([]*models.Product, error) {
	var products []*models.Product
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		products, err = s.repo.List(ctx, tx, limit, offset)
		return err
	})
	return products, err
}
