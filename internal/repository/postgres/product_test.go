package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BVSokolov/udemy-prostore/internal/domain"
	"github.com/BVSokolov/udemy-prostore/internal/repository"
	apperrors "github.com/BVSokolov/udemy-prostore/pkg/errors"
)

func TestProductRepository_GetByID(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	mock.ExpectQuery(`SELECT .+ FROM products WHERE id = \$1$`).
		WithArgs(productID).
		WillReturnRows(pgxmock.NewRows(productColumnNames).AddRow(productRow(productID, "polo-shirt", "4.50", 2)...))

	p, err := repo.GetByID(context.Background(), productID)
	require.NoError(t, err)
	assert.Equal(t, "polo-shirt", p.Slug)
	assert.Equal(t, "4.50", p.Rating.String())
	assert.Equal(t, 2, p.NumReviews)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("59.99")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetByID_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	mock.ExpectQuery(`SELECT .+ FROM products WHERE id = \$1`).
		WithArgs(productID).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), productID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetByIDForUpdate_LocksRow(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	mock.ExpectQuery(`SELECT .+ FROM products WHERE id = \$1 FOR UPDATE`).
		WithArgs(productID).
		WillReturnRows(pgxmock.NewRows(productColumnNames).AddRow(productRow(productID, "polo-shirt", "0.00", 0)...))

	p, err := repo.GetByIDForUpdate(context.Background(), productID)
	require.NoError(t, err)
	assert.Equal(t, productID, p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetBySlug_DatabaseError(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	mock.ExpectQuery(`SELECT .+ FROM products WHERE slug = \$1`).
		WithArgs("polo-shirt").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.GetBySlug(context.Background(), "polo-shirt")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "get product polo-shirt")
}

func TestProductRepository_List_Filters(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	cols := append(append([]string{}, productColumnNames...), "total_count")
	row := append(productRow(productID, "polo-shirt", "4.00", 3), 7)

	mock.ExpectQuery(`WHERE name ILIKE \$1 AND category = \$2 AND rating >= \$3\s+ORDER BY rating DESC, num_reviews DESC, created_at DESC\s+LIMIT \$4 OFFSET \$5`).
		WithArgs("%polo%", "Men's Dress Shirts", 4, 6, 6).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(row...))

	products, total, err := repo.List(context.Background(), repository.ProductFilter{
		Query:     strPtr("polo"),
		Category:  strPtr("Men's Dress Shirts"),
		MinRating: intPtr(4),
		Sort:      domain.SortRating,
		Page:      2,
		PerPage:   6,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, products, 1)
	assert.Equal(t, "4.00", products[0].Rating.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_List_DefaultsAndEmpty(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	cols := append(append([]string{}, productColumnNames...), "total_count")
	mock.ExpectQuery(`FROM products\s+ORDER BY created_at DESC\s+LIMIT \$1 OFFSET \$2`).
		WithArgs(12, 0).
		WillReturnRows(pgxmock.NewRows(cols))

	products, total, err := repo.List(context.Background(), repository.ProductFilter{Sort: "bogus"})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.NotNil(t, products)
	assert.Empty(t, products)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_ListIDs(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	mock.ExpectQuery(`SELECT id FROM products`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))

	ids, err := repo.ListIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestProductRepository_Upsert(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	p := &domain.Product{
		ID: productID, Name: "Polo", Slug: "polo", Category: "Shirts",
		Price: decimal.RequireFromString("29.90"), Stock: 4, CreatedAt: now, UpdatedAt: now,
	}
	mock.ExpectExec(`INSERT INTO products .+ ON CONFLICT \(id\) DO UPDATE`).
		WithArgs(productID, "Polo", "polo", "Shirts", "", "", []string{}, "29.9", 4, now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Upsert(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_Upsert_SlugTaken(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	mock.ExpectExec(`INSERT INTO products`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Upsert(context.Background(), &domain.Product{ID: productID, Slug: "polo"})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

func TestProductRepository_UpdateRating(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	mock.ExpectExec(`UPDATE products SET rating = \$2, num_reviews = \$3`).
		WithArgs(productID, "3.00", 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.UpdateRating(context.Background(), productID, domain.MeanOf([]int{5, 3, 1})))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_UpdateRating_MissingProduct(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	mock.ExpectExec(`UPDATE products`).
		WithArgs(productID, "0.00", 0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateRating(context.Background(), productID, domain.MeanOf(nil))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
