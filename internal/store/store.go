// Package store provides the data access layer. Queries are built with
// squirrel against a *sql.DB (wrapping pgxpool via stdlib). Transactional
// operations that need pgx native features (the SKIP LOCKED worker claim,
// the invitation saga) use *pgxpool.Pool directly.
package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Store is the central data access object. Callers should use the domain
// methods (users, tenants, members, leads, jobs) rather than the raw pool.
type Store struct {
	pool *pgxpool.Pool
	db   *sql.DB
}

// psql builds queries with PostgreSQL $N placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// New creates a Store backed by pool. The same pool serves both the stdlib
// adapter used by squirrel queries and direct pgx transactions.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		db:   stdlib.OpenDBFromPool(pool),
	}
}

// Pool returns the underlying pgxpool for callers that need pgx native
// operations.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// DB returns the stdlib-wrapped *sql.DB.
func (s *Store) DB() *sql.DB { return s.db }

// withTx runs fn inside a database/sql transaction. The transaction is
// committed if fn returns nil, rolled back otherwise.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// withPgxTx runs fn inside a pgx native transaction.
func (s *Store) withPgxTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on panic or fn error
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
