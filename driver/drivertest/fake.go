// Package drivertest provides in-memory stand-ins for the postgres pool so
// services can be exercised against mocked repositories.
package drivertest

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errNotSupported = errors.New("drivertest: not supported")

// Tx records whether it was committed or rolled back. Repository calls are
// expected to be mocked, so every query method fails.
type Tx struct {
	pgx.Tx

	mu         sync.Mutex
	committed  bool
	rolledBack bool
}

func (t *Tx) Commit(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.committed || t.rolledBack {
		return pgx.ErrTxClosed
	}
	t.committed = true
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.committed || t.rolledBack {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

func (t *Tx) Committed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.committed
}

func (t *Tx) RolledBack() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rolledBack
}

type Pool struct {
	mu  sync.Mutex
	Txs []*Tx
}

func NewPool() *Pool {
	return &Pool{}
}

func (p *Pool) Begin(context.Context) (pgx.Tx, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tx := &Tx{}
	p.Txs = append(p.Txs, tx)
	return tx, nil
}

// Last returns the most recently started transaction.
func (p *Pool) Last() *Tx {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Txs) == 0 {
		return nil
	}
	return p.Txs[len(p.Txs)-1]
}

func (p *Pool) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errNotSupported
}

func (p *Pool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errNotSupported
}

func (p *Pool) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{}
}

func (p *Pool) Ping(context.Context) error { return nil }

func (p *Pool) Close() {}

type errRow struct{}

func (errRow) Scan(...any) error { return errNotSupported }
