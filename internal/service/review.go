package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BVSokolov/udemy-prostore/internal/domain"
	"github.com/BVSokolov/udemy-prostore/internal/repository"
	apperrors "github.com/BVSokolov/udemy-prostore/pkg/errors"
	"github.com/BVSokolov/udemy-prostore/pkg/validator"
)

// PageInvalidator marks a cached storefront page as stale.
type PageInvalidator interface {
	Invalidate(ctx context.Context, path string) error
}

// EventPublisher announces committed review writes.
type EventPublisher interface {
	PublishReviewSubmitted(ctx context.Context, review *domain.Review, created bool) error
	PublishRatingUpdated(ctx context.Context, product *domain.Product) error
}

// SubmitReviewInput is a review submission. UserID is ignored: the review
// always belongs to the acting identity.
type SubmitReviewInput struct {
	ProductID   string `json:"productId" validate:"required,uuid"`
	UserID      string `json:"userId,omitempty"`
	Rating      int    `json:"rating" validate:"min=1,max=5"`
	Title       string `json:"title" validate:"notblank"`
	Description string `json:"description" validate:"notblank"`
}

func (in *SubmitReviewInput) normalize(actor domain.Identity) {
	in.UserID = actor.UserID
	in.ProductID = strings.TrimSpace(in.ProductID)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
}

// ReviewSubmission is the data of a successful SubmitReview.
type ReviewSubmission struct {
	Review     domain.Review `json:"review"`
	Created    bool          `json:"created"`
	Rating     domain.Rating `json:"rating"`
	NumReviews int           `json:"num_reviews"`
}

// ReviewService keeps reviews and the derived product rating consistent.
type ReviewService struct {
	stores      repository.Stores
	tx          repository.Transactor
	invalidator PageInvalidator
	events      EventPublisher
	logger      *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewReviewService creates a review service. stores serves reads outside a
// transaction; tx runs the write path.
func NewReviewService(
	stores repository.Stores,
	tx repository.Transactor,
	invalidator PageInvalidator,
	events EventPublisher,
	logger *slog.Logger,
) *ReviewService {
	return &ReviewService{
		stores:      stores,
		tx:          tx,
		invalidator: invalidator,
		events:      events,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

// SubmitReview creates or updates the actor's review of a product and
// recomputes the product's rating and review count in the same transaction.
func (s *ReviewService) SubmitReview(ctx context.Context, actor domain.Identity, in SubmitReviewInput) Result[ReviewSubmission] {
	if !actor.Authenticated() {
		reviewSubmissions.WithLabelValues(outcomeUnauthenticated).Inc()
		return Fail[ReviewSubmission](unauthenticated())
	}

	in.normalize(actor)
	if err := validator.Validate(&in); err != nil {
		reviewSubmissions.WithLabelValues(outcomeInvalid).Inc()
		return Fail[ReviewSubmission](validationFailed(err))
	}

	var (
		review  *domain.Review
		product *domain.Product
		created bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
		var err error
		// The row lock serializes concurrent submissions for this product,
		// so the existence check below cannot race with another writer.
		product, err = st.Products.GetByIDForUpdate(ctx, in.ProductID)
		if err != nil {
			return err
		}

		review, created, err = s.upsertReview(ctx, st.Reviews, in)
		if err != nil {
			return err
		}

		return recompute(ctx, st, product)
	})
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			reviewSubmissions.WithLabelValues(outcomeNotFound).Inc()
			return Fail[ReviewSubmission](productNotFound(in.ProductID))
		default:
			reviewSubmissions.WithLabelValues(outcomeFailed).Inc()
			s.logger.ErrorContext(ctx, "review transaction failed",
				slog.String("product_id", in.ProductID),
				slog.String("user_id", actor.UserID),
				slog.String("error", err.Error()),
			)
			return Fail[ReviewSubmission](apperrors.TransactionFailed(err))
		}
	}

	outcome := outcomeUpdated
	if created {
		outcome = outcomeCreated
	}
	reviewSubmissions.WithLabelValues(outcome).Inc()
	ratingRecomputations.WithLabelValues("review").Inc()

	s.logger.InfoContext(ctx, "review saved",
		slog.String("review_id", review.ID),
		slog.String("product_id", product.ID),
		slog.Bool("created", created),
		slog.Int("rating", review.Rating),
		slog.String("product_rating", product.Rating.String()),
		slog.Int("num_reviews", product.NumReviews),
	)

	s.afterCommit(ctx, product, review, created)

	return Ok(MsgReviewSaved, &ReviewSubmission{
		Review:     *review,
		Created:    created,
		Rating:     product.Rating,
		NumReviews: product.NumReviews,
	})
}

// upsertReview updates the existing review of (user, product) or inserts a
// new one. An insert that loses to a concurrent writer falls back to update.
func (s *ReviewService) upsertReview(ctx context.Context, reviews repository.ReviewRepository, in SubmitReviewInput) (*domain.Review, bool, error) {
	existing, err := reviews.FindByUserAndProduct(ctx, in.UserID, in.ProductID)
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	if existing == nil {
		rv := &domain.Review{
			ID:          s.newID(),
			UserID:      in.UserID,
			ProductID:   in.ProductID,
			Rating:      in.Rating,
			Title:       in.Title,
			Description: in.Description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err := reviews.Create(ctx, rv)
		if err == nil {
			return rv, true, nil
		}
		if !errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, false, err
		}
		if existing, err = reviews.FindByUserAndProduct(ctx, in.UserID, in.ProductID); err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("review of product %s by user %s vanished after conflict", in.ProductID, in.UserID)
		}
	}

	existing.Rating = in.Rating
	existing.Title = in.Title
	existing.Description = in.Description
	existing.UpdatedAt = now
	if err := reviews.Update(ctx, existing); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// recompute rebuilds the product's aggregate from its full review set and
// writes it back.
func recompute(ctx context.Context, st repository.Stores, product *domain.Product) error {
	agg, err := st.Reviews.Aggregate(ctx, product.ID)
	if err != nil {
		return err
	}
	if err := st.Products.UpdateRating(ctx, product.ID, agg); err != nil {
		return err
	}
	product.ApplyAggregate(agg)
	return nil
}

// afterCommit invalidates the product page and publishes events. Failures
// are logged only: the write has already committed.
func (s *ReviewService) afterCommit(ctx context.Context, product *domain.Product, review *domain.Review, created bool) {
	ctx = context.WithoutCancel(ctx)

	s.invalidate(ctx, product)

	if s.events == nil {
		return
	}
	if review != nil {
		if err := s.events.PublishReviewSubmitted(ctx, review, created); err != nil {
			postCommitFailures.WithLabelValues("publish_review").Inc()
			s.logger.WarnContext(ctx, "failed to publish review event",
				slog.String("review_id", review.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := s.events.PublishRatingUpdated(ctx, product); err != nil {
		postCommitFailures.WithLabelValues("publish_rating").Inc()
		s.logger.WarnContext(ctx, "failed to publish rating event",
			slog.String("product_id", product.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ReviewService) invalidate(ctx context.Context, product *domain.Product) {
	if s.invalidator == nil {
		return
	}
	path := product.PagePath()
	if err := s.invalidator.Invalidate(ctx, path); err != nil {
		postCommitFailures.WithLabelValues("invalidate").Inc()
		s.logger.WarnContext(ctx, "failed to invalidate product page",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// ListReviews returns all reviews of a product newest first, with author
// names.
func (s *ReviewService) ListReviews(ctx context.Context, productID string) Result[[]domain.ReviewWithAuthor] {
	if err := uuid.Validate(productID); err != nil {
		return Fail[[]domain.ReviewWithAuthor](invalidProductID())
	}

	reviews, err := s.stores.Reviews.ListByProduct(ctx, productID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list reviews",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
		return Fail[[]domain.ReviewWithAuthor](apperrors.TransactionFailed(err))
	}
	return Ok("", &reviews)
}

// GetOwnReview returns the actor's review of a product. Success with nil
// data means the actor has not reviewed it yet.
func (s *ReviewService) GetOwnReview(ctx context.Context, actor domain.Identity, productID string) Result[domain.Review] {
	if !actor.Authenticated() {
		return Fail[domain.Review](unauthenticated())
	}
	if err := uuid.Validate(productID); err != nil {
		return Fail[domain.Review](invalidProductID())
	}

	review, err := s.stores.Reviews.FindByUserAndProduct(ctx, actor.UserID, productID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to get own review",
			slog.String("product_id", productID),
			slog.String("user_id", actor.UserID),
			slog.String("error", err.Error()),
		)
		return Fail[domain.Review](apperrors.TransactionFailed(err))
	}
	return Ok("", review)
}

// RecomputeProduct rebuilds one product's rating from its reviews.
func (s *ReviewService) RecomputeProduct(ctx context.Context, productID string) (domain.RatingAggregate, error) {
	var product *domain.Product
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
		var err error
		if product, err = st.Products.GetByIDForUpdate(ctx, productID); err != nil {
			return err
		}
		return recompute(ctx, st, product)
	})
	if err != nil {
		return domain.RatingAggregate{}, fmt.Errorf("recompute rating of product %s: %w", productID, err)
	}

	ratingRecomputations.WithLabelValues("manual").Inc()
	s.afterCommit(ctx, product, nil, false)

	return domain.RatingAggregate{Average: product.Rating, Count: product.NumReviews}, nil
}

// RecomputeAll rebuilds the rating of every product. It keeps going after a
// failure and returns the number of products updated with all errors joined.
func (s *ReviewService) RecomputeAll(ctx context.Context) (int, error) {
	ids, err := s.stores.Products.ListIDs(ctx)
	if err != nil {
		return 0, err
	}

	var (
		updated int
		errs    []error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := s.RecomputeProduct(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		updated++
	}

	s.logger.InfoContext(ctx, "ratings recomputed",
		slog.Int("products", len(ids)),
		slog.Int("updated", updated),
		slog.Int("failed", len(errs)),
	)
	return updated, errors.Join(errs...)
}

func invalidProductID() *apperrors.AppError {
	return apperrors.ValidationFailed(map[string]string{"productId": "must be a valid UUID"})
}

func validationFailed(err error) *apperrors.AppError {
	var verr *validator.ValidationError
	if errors.As(err, &verr) {
		e := apperrors.ValidationFailed(verr.Fields())
		e.Message = verr.Error()
		return e
	}
	return apperrors.InvalidInput(err.Error())
}
