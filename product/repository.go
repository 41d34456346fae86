package product

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/checkout/driver"
	"goflare.io/checkout/models"
	"goflare.io/checkout/models/enum"
	"goflare.io/ignite"
)

type Repository interface {
	GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.Product, error)
	List(ctx context.Context, tx pgx.Tx, limit, offset uint64) ([]*models.Product, error)
}

type repository struct {
	conn        driver.PostgresPool
	logger      *zap.Logger
	poolManager ignite.Manager
}

var productType = reflect.TypeOf(&models.Product{})

// NewRepository registers a pool of scan targets for catalog listings with
// poolManager.
func NewRepository(conn driver.PostgresPool, logger *zap.Logger, poolManager ignite.Manager) (Repository, error) {
	err := poolManager.RegisterPool(productType, ignite.Config[any]{
		InitialSize: 10,
		MaxSize:     100,
		MaxIdleTime: 10 * time.Minute,
		Factory: func() (any, error) {
			return &models.Product{}, nil
		},
		Reset: func(obj any) error {
			p := obj.(*models.Product)
			*p = models.Product{}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register product pool: %w", err)
	}

	return &repository{
		conn:        conn,
		logger:      logger,
		poolManager: poolManager,
	}, nil
}

func (r *repository) getFromPool(ctx context.Context) (*models.Product, func(), error) {
	pool, err := r.poolManager.GetPool(productType)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get pool: %w", err)
	}

	objWrapper, err := pool.Get(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get object from pool: %w", err)
	}

	product := objWrapper.Object.(*models.Product)
	release := func() {
		pool.Put(objWrapper)
	}

	return product, release, nil
}

const productColumns = `id, name, description, image, price, category, created_at, updated_at`

func (r *repository) GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.Product, error) {
	product, err := scanProduct(tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		r.logger.Error("error getting product", zap.String("product_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

func (r *repository) List(ctx context.Context, tx pgx.Tx, limit, offset uint64) ([]*models.Product, error) {
	rows, err := tx.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name LIMIT $1 OFFSET $2`,
		int64(limit), int64(offset))
	if err != nil {
		r.logger.Error("error listing products", zap.Error(err))
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	scratch, release, err := r.getFromPool(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	products := make([]*models.Product, 0)
	for rows.Next() {
		if err = scanInto(rows, scratch); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		product := *scratch
		products = append(products, &product)
	}

	return products, rows.Err()
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	p := &models.Product{}
	if err := scanInto(row, p); err != nil {
		return nil, err
	}
	return p, nil
}

// scanInto overwrites every field of p.
func scanInto(row pgx.Row, p *models.Product) error {
	var category *string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Image, &p.Price, &category,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return err
	}
	p.Category = ""
	if category != nil {
		p.Category = enum.Category(*category)
	}
	return nil
}
