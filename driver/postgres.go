package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	maxOpenDbConn     = 25
	minIdleDbConn     = 5
	maxDbConnLifetime = 30 * time.Minute
	maxDbConnIdleTime = 5 * time.Minute
	connectTimeout    = 5 * time.Second
)

// PostgresPool is the subset of *pgxpool.Pool the repositories and the
// transaction manager depend on.
type PostgresPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

type DB struct {
	Pool *pgxpool.Pool
}

// ConnectSQL opens a pgx pool for url and verifies it with a ping.
func ConnectSQL(url string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres url: %w", err)
	}

	cfg.MaxConns = maxOpenDbConn
	cfg.MinConns = minIdleDbConn
	cfg.MaxConnLifetime = maxDbConnLifetime
	cfg.MaxConnIdleTime = maxDbConnIdleTime

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &DB{Pool: pool}, nil
}
