package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/BVSokolov/udemy-prostore/internal/domain"
	"github.com/BVSokolov/udemy-prostore/pkg/database"
	apperrors "github.com/BVSokolov/udemy-prostore/pkg/errors"
)

// ReviewRepository implements repository.ReviewRepository using PostgreSQL.
type ReviewRepository struct {
	db database.DBTX
}

// NewReviewRepository creates a review repository on db.
func NewReviewRepository(db database.DBTX) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// FindByUserAndProduct returns the user's review of the product or nil.
func (r *ReviewRepository) FindByUserAndProduct(ctx context.Context, userID, productID string) (_ *domain.Review, err error) {
	query := `
		SELECT id, user_id, product_id, rating, title, description, created_at, updated_at
		FROM reviews
		WHERE user_id = $1 AND product_id = $2`

	ctx, end := database.TraceQuery(ctx, "FindReview", query)
	defer func() { end(err) }()

	var rv domain.Review
	err = r.db.QueryRow(ctx, query, userID, productID).Scan(
		&rv.ID,
		&rv.UserID,
		&rv.ProductID,
		&rv.Rating,
		&rv.Title,
		&rv.Description,
		&rv.CreatedAt,
		&rv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find review: %w", err)
	}
	return &rv, nil
}

// Create inserts a new review. A conflicting (user, product) pair is
// reported as AlreadyExists without aborting the surrounding transaction.
func (r *ReviewRepository) Create(ctx context.Context, review *domain.Review) (err error) {
	query := `
		INSERT INTO reviews (id, user_id, product_id, rating, title, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, product_id) DO NOTHING`

	ctx, end := database.TraceQuery(ctx, "CreateReview", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query,
		review.ID,
		review.UserID,
		review.ProductID,
		review.Rating,
		review.Title,
		review.Description,
		review.CreatedAt,
		review.UpdatedAt,
	)
	if err != nil {
		switch {
		case database.IsUniqueViolation(err):
			return apperrors.AlreadyExists("review", "product_id", review.ProductID)
		case database.IsForeignKeyViolation(err):
			return apperrors.NotFound("product", review.ProductID)
		}
		return fmt.Errorf("insert review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.AlreadyExists("review", "product_id", review.ProductID)
	}
	return nil
}

// Update overwrites the editable fields of a review.
func (r *ReviewRepository) Update(ctx context.Context, review *domain.Review) (err error) {
	query := `
		UPDATE reviews
		SET rating = $2, title = $3, description = $4, updated_at = $5
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "UpdateReview", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query,
		review.ID,
		review.Rating,
		review.Title,
		review.Description,
		review.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("review", review.ID)
	}
	return nil
}

// ListByProduct returns all reviews of a product, newest first. Reviews of
// removed users carry domain.DeletedUserName.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string) ([]domain.ReviewWithAuthor, error) {
	query := `
		SELECT rv.id, rv.user_id, rv.product_id, rv.rating, rv.title, rv.description,
		       rv.created_at, rv.updated_at, u.name
		FROM reviews rv
		LEFT JOIN users u ON u.id = rv.user_id
		WHERE rv.product_id = $1
		ORDER BY rv.created_at DESC, rv.id`

	rows, err := r.db.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []domain.ReviewWithAuthor{}
	for rows.Next() {
		var (
			rv   domain.ReviewWithAuthor
			name *string
		)
		if err := rows.Scan(
			&rv.ID,
			&rv.UserID,
			&rv.ProductID,
			&rv.Rating,
			&rv.Title,
			&rv.Description,
			&rv.CreatedAt,
			&rv.UpdatedAt,
			&name,
		); err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		rv.UserName = domain.AuthorName(name)
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}
	return reviews, nil
}

// Aggregate computes AVG(rating) and COUNT(*) over a product's reviews.
func (r *ReviewRepository) Aggregate(ctx context.Context, productID string) (_ domain.RatingAggregate, err error) {
	query := `
		SELECT COALESCE(AVG(rating), 0)::text, COUNT(*)
		FROM reviews
		WHERE product_id = $1`

	ctx, end := database.TraceQuery(ctx, "AggregateReviews", query)
	defer func() { end(err) }()

	var (
		avg   string
		count int
	)
	if err = r.db.QueryRow(ctx, query, productID).Scan(&avg, &count); err != nil {
		return domain.RatingAggregate{}, fmt.Errorf("aggregate reviews: %w", err)
	}

	rating, err := domain.ParseRating(avg)
	if err != nil {
		return domain.RatingAggregate{}, err
	}
	return domain.RatingAggregate{Average: rating, Count: count}, nil
}
