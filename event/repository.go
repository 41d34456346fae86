package event

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/checkout/driver"
	"goflare.io/checkout/models"
)

var _ Repository = (*repository)(nil)

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, event *models.Event) error
	GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.Event, error)
	MarkAsProcessed(ctx context.Context, tx pgx.Tx, id string) error
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

// Create records a gateway event. Redelivered events keep their first row.
func (r *repository) Create(ctx context.Context, tx pgx.Tx, event *models.Event) error {
	_, err := tx.Exec(ctx, `
	INSERT INTO events (id, type, processed) VALUES ($1, $2, $3)
	ON CONFLICT (id) DO NOTHING`,
		event.ID, string(event.Type), event.Processed)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.Event, error) {
	event := &models.Event{}
	err := tx.QueryRow(ctx, `
	SELECT id, type, processed, created_at, updated_at FROM events WHERE id = $1`, id).
		Scan(&event.ID, &event.Type, &event.Processed, &event.CreatedAt, &event.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

func (r *repository) MarkAsProcessed(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `UPDATE events SET processed = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}
