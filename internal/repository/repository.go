package repository

import (
	"context"

	"github.com/BVSokolov/udemy-prostore/internal/domain"
)

// ProductFilter defines filter criteria for listing products.
type ProductFilter struct {
	Query     *string
	Category  *string
	MinRating *int
	Sort      string
	Page      int
	PerPage   int
}

// ProductRepository defines product persistence operations.
type ProductRepository interface {
	// GetByID returns the product or an apperrors.NotFound.
	GetByID(ctx context.Context, id string) (*domain.Product, error)

	// GetByIDForUpdate is GetByID with a row lock held until the surrounding
	// transaction ends. Outside a transaction the lock is released at once.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Product, error)

	// GetBySlug returns the product or an apperrors.NotFound.
	GetBySlug(ctx context.Context, slug string) (*domain.Product, error)

	// List returns products matching filter along with the total count.
	List(ctx context.Context, filter ProductFilter) ([]domain.Product, int, error)

	// ListIDs returns every product id.
	ListIDs(ctx context.Context) ([]string, error)

	// Upsert inserts or updates the catalog fields of a product. The derived
	// rating fields are never touched.
	Upsert(ctx context.Context, product *domain.Product) error

	// UpdateRating overwrites the derived rating fields.
	UpdateRating(ctx context.Context, id string, agg domain.RatingAggregate) error
}

// ReviewRepository defines review persistence operations.
type ReviewRepository interface {
	// FindByUserAndProduct returns the user's review of the product, or nil
	// when there is none.
	FindByUserAndProduct(ctx context.Context, userID, productID string) (*domain.Review, error)

	// Create inserts a review. A second review for the same (user, product)
	// fails with an apperrors.AlreadyExists.
	Create(ctx context.Context, review *domain.Review) error

	// Update overwrites rating, title and description of an existing review.
	Update(ctx context.Context, review *domain.Review) error

	// ListByProduct returns a product's reviews newest first, with author
	// names.
	ListByProduct(ctx context.Context, productID string) ([]domain.ReviewWithAuthor, error)

	// Aggregate computes the mean rating and count of a product's reviews.
	Aggregate(ctx context.Context, productID string) (domain.RatingAggregate, error)
}

// UserRepository defines user projection operations.
type UserRepository interface {
	Upsert(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, id string) error
}

// Stores groups the repositories bound to one connection or transaction.
type Stores struct {
	Products ProductRepository
	Reviews  ReviewRepository
	Users    UserRepository
}

// Transactor runs fn inside one unit of work. The Stores passed to fn share
// the transaction; it commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}
