// Package postgres implements the persistence layer on PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chowcart/commerce-api/db"
	"github.com/chowcart/commerce-api/internal/domain/address"
	"github.com/chowcart/commerce-api/internal/domain/discount"
	"github.com/chowcart/commerce-api/internal/domain/order"
	"github.com/chowcart/commerce-api/internal/domain/payment"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, db.Schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// DBTX is the querying surface shared by *pgxpool.Pool and pgx.Tx, letting
// the same query methods run inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries bundles every SQL operation over a DBTX.
type Queries struct {
	db DBTX
}

var (
	_ order.Tx   = (*Queries)(nil)
	_ payment.Tx = (*Queries)(nil)
)

// Store is the root persistence handle. Its embedded Queries run directly on
// the pool; RunOrderTx and RunPaymentTx hand callbacks a Queries bound to a
// transaction.
type Store struct {
	Queries
	pool *pgxpool.Pool
}

var (
	_ order.TxRunner   = (*Store)(nil)
	_ payment.TxRunner = (*Store)(nil)
	_ order.Repository = (*Store)(nil)
	_ payment.Reader   = (*Store)(nil)
	_ address.Reader   = (*Store)(nil)
	_ discount.Getter  = (*Store)(nil)
)

// NewStore returns a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Queries: Queries{db: pool}, pool: pool}
}

func (s *Store) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&Queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// RunOrderTx runs fn inside one transaction for order assembly.
func (s *Store) RunOrderTx(ctx context.Context, fn func(order.Tx) error) error {
	return s.inTx(ctx, func(q *Queries) error { return fn(q) })
}

// RunPaymentTx runs fn inside one transaction for payment reconciliation.
func (s *Store) RunPaymentTx(ctx context.Context, fn func(payment.Tx) error) error {
	return s.inTx(ctx, func(q *Queries) error { return fn(q) })
}
