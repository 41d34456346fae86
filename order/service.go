package order

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/checkout/driver"
	"goflare.io/checkout/models"
	"goflare.io/checkout/models/enum"
)

type Service interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	LockBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	Complete(ctx context.Context, id string) (*models.Order, error)
	Fail(ctx context.Context, id string) (*models.Order, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Order, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Order, error)
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

func (s *service) Create(ctx context.Context, order *models.Order) error {
	if order.Status == "" {
		order.Status = enum.OrderStatusPending
	}
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.Create(ctx, tx, order)
	})
}

func (s *service) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order *models.Order
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		order, err = s.repo.GetByID(ctx, tx, id)
		return err
	})
	return order, err
}

func (s *service) GetBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	var order *models.Order
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		order, err = s.repo.GetBySessionID(ctx, tx, sessionID, false)
		return err
	})
	return order, err
}

// LockBySessionID loads the order and holds its row lock until the
// transaction carried by ctx ends. Without one the lock is released at once.
func (s *service) LockBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	var order *models.Order
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		order, err = s.repo.GetBySessionID(ctx, tx, sessionID, true)
		return err
	})
	return order, err
}

func (s *service) Complete(ctx context.Context, id string) (*models.Order, error) {
	return s.transition(ctx, id, enum.OrderStatusCompleted)
}

func (s *service) Fail(ctx context.Context, id string) (*models.Order, error) {
	return s.transition(ctx, id, enum.OrderStatusFailed)
}

func (s *service) transition(ctx context.Context, id string, to enum.OrderStatus) (*models.Order, error) {
	var order *models.Order
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		order, err = s.repo.UpdateStatus(ctx, tx, id, enum.OrderStatusPending, to)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order status changed", zap.String("order_id", id), zap.String("status", string(to)))
	return order, nil
}

func (s *service) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Order, error) {
	var orders []*models.Order
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		orders, err = s.repo.ListStalePending(ctx, tx, cutoff, limit)
		return err
	})
	return orders, err
}

func (s *service) ListByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	var orders []*models.Order
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		orders, err = s.repo.ListByUser(ctx, tx, userID)
		return err
	})
	return orders, err
}
