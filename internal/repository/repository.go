// Package repository implements the storage interfaces on PostgreSQL.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/SiteVault/internal/store"
)

// querier is satisfied by the pool and by a transaction.
type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository wraps all SQL used by the API and worker processes.
type Repository struct {
	pool *pgxpool.Pool
	// db runs attachment statements; it is a transaction inside
	// WithCategoryLocks.
	db querier
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: pool}
}

var (
	_ store.Directory        = (*Repository)(nil)
	_ store.RequirementStore = (*Repository)(nil)
	_ store.SubmissionStore  = (*Repository)(nil)
	_ store.DocumentQuerier  = (*Repository)(nil)
	_ store.AttachmentStore  = (*Repository)(nil)
)

// notFound maps pgx.ErrNoRows to store.ErrNotFound.
func notFound(what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("select %s: %w", what, err)
}

// affected returns store.ErrNotFound when an update or delete matched nothing.
func affected(what string, rows int64) error {
	if rows == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}
