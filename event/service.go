package event

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"goflare.io/checkout/driver"
	"goflare.io/checkout/models"
)

type Service interface {
	Create(ctx context.Context, event *models.Event) error
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventAsProcessed(ctx context.Context, eventID string) error
}

type service struct {
	repo               Repository
	transactionManager *driver.TransactionManager
}

func NewService(repo Repository, tm *driver.TransactionManager) Service {
	return &service{
		repo:               repo,
		transactionManager: tm,
	}
}

func (s *service) Create(ctx context.Context, event *models.Event) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.Create(ctx, tx, event)
	})
}

func (s *service) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var event *models.Event
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		event, err = s.repo.GetByID(ctx, tx, eventID)
		return err
	})
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return event.Processed, nil
}

func (s *service) MarkEventAsProcessed(ctx context.Context, eventID string) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.repo.MarkAsProcessed(ctx, tx, eventID)
	})
}
