package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BVSokolov/udemy-prostore/internal/domain"
	"github.com/BVSokolov/udemy-prostore/internal/repository"
)

func TestTransactor_CommitsOnSuccess(t *testing.T) {
	mock := newMock(t)
	tr := NewTransactor(mock)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(`UPDATE products SET rating`).
		WithArgs(productID, "5.00", 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := tr.WithinTx(context.Background(), func(ctx context.Context, s repository.Stores) error {
		return s.Products.UpdateRating(ctx, productID, domain.MeanOf([]int{5}))
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_RollsBackOnError(t *testing.T) {
	mock := newMock(t)
	tr := NewTransactor(mock)

	boom := errors.New("boom")
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectRollback()

	err := tr.WithinTx(context.Background(), func(context.Context, repository.Stores) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_BeginFails(t *testing.T) {
	mock := newMock(t)
	tr := NewTransactor(mock)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted}).WillReturnError(errors.New("too many connections"))

	called := false
	err := tr.WithinTx(context.Background(), func(context.Context, repository.Stores) error {
		called = true
		return nil
	})
	assert.ErrorContains(t, err, "begin transaction")
	assert.False(t, called)
}

func TestTransactor_CommitFails(t *testing.T) {
	mock := newMock(t)
	tr := NewTransactor(mock)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	err := tr.WithinTx(context.Background(), func(context.Context, repository.Stores) error { return nil })
	assert.ErrorContains(t, err, "commit transaction")
}
