package postgres

import (
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/BVSokolov/udemy-prostore/pkg/database"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

const (
	productID = "7c1f6b1e-3b8e-4f55-9d0c-6b2a4d8e9f10"
	userID    = "0d9a7f43-5e1c-4b7a-8f2d-3c6e9b1a2d45"
	reviewID  = "a4e2c8b6-1d3f-4a5b-9c7e-8f0d2b4a6c13"
)

var productColumnNames = []string{
	"id", "name", "slug", "category", "brand", "description", "images",
	"price", "stock", "rating", "num_reviews", "created_at", "updated_at",
}

func productRow(id, slug, rating string, numReviews int) []any {
	return []any{
		id, "Polo Sporting Stretch Shirt", slug, "Men's Dress Shirts", "Polo", "Classic polo",
		[]string{"/images/p1-1.jpg"}, "59.99", 5, rating, numReviews, now, now,
	}
}
