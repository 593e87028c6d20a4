package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/BVSokolov/udemy-prostore/internal/repository"
	"github.com/BVSokolov/udemy-prostore/pkg/database"
)

// NewStores binds all repositories to db.
func NewStores(db database.DBTX) repository.Stores {
	return repository.Stores{
		Products: NewProductRepository(db),
		Reviews:  NewReviewRepository(db),
		Users:    NewUserRepository(db),
	}
}

// Transactor implements repository.Transactor with READ COMMITTED
// transactions.
type Transactor struct {
	db database.TxBeginner
}

// NewTransactor creates a Transactor on db.
func NewTransactor(db database.TxBeginner) *Transactor {
	return &Transactor{db: db}
}

// WithinTx runs fn in a transaction and commits when fn returns nil. Errors
// from fn are returned unwrapped.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, stores repository.Stores) error) error {
	tx, err := t.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, NewStores(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
