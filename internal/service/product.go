package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BVSokolov/udemy-prostore/internal/domain"
	"github.com/BVSokolov/udemy-prostore/internal/repository"
	apperrors "github.com/BVSokolov/udemy-prostore/pkg/errors"
	"github.com/BVSokolov/udemy-prostore/pkg/pagination"
	"github.com/BVSokolov/udemy-prostore/pkg/slug"
	"github.com/BVSokolov/udemy-prostore/pkg/validator"
)

// ProductCache caches product detail pages by storefront path.
type ProductCache interface {
	// Get returns nil without error on a miss, and the page version to
	// pass to Set.
	Get(ctx context.Context, path string) (*domain.Product, int64, error)
	// Set stores product unless the page was invalidated after version
	// was read.
	Set(ctx context.Context, path string, product *domain.Product, version int64) error
	Invalidate(ctx context.Context, path string) error
}

// ProductService serves the catalog read side and maintains the local
// product and user projections.
type ProductService struct {
	products    repository.ProductRepository
	users       repository.UserRepository
	cache       ProductCache
	invalidator PageInvalidator
	logger      *slog.Logger
}

// NewProductService creates a product service. cache and invalidator may be
// nil.
func NewProductService(stores repository.Stores, cache ProductCache, invalidator PageInvalidator, logger *slog.Logger) *ProductService {
	return &ProductService{
		products:    stores.Products,
		users:       stores.Users,
		cache:       cache,
		invalidator: invalidator,
		logger:      logger,
	}
}

// ListProductsInput holds the catalog listing query.
type ListProductsInput struct {
	Query     string
	Category  string
	MinRating *int
	Sort      string
	Page      pagination.Params
}

// UpsertProductInput is a catalog product as announced by the catalog
// service.
type UpsertProductInput struct {
	ID          string          `json:"id" validate:"required,uuid"`
	Name        string          `json:"name" validate:"notblank,max=255"`
	Slug        string          `json:"slug" validate:"max=255"`
	Category    string          `json:"category" validate:"max=255"`
	Brand       string          `json:"brand" validate:"max=255"`
	Description string          `json:"description"`
	Images      []string        `json:"images"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" validate:"gte=0"`
}

// UpsertUserInput is a user as announced by the user service.
type UpsertUserInput struct {
	ID    string `json:"id" validate:"required,uuid"`
	Name  string `json:"name" validate:"notblank"`
	Email string `json:"email" validate:"omitempty,email"`
}

// GetProductBySlug returns the product detail, reading through the page
// cache. Cache failures fall back to the database.
func (s *ProductService) GetProductBySlug(ctx context.Context, productSlug string) (*domain.Product, error) {
	productSlug = strings.TrimSpace(productSlug)
	if productSlug == "" {
		return nil, apperrors.InvalidInput("slug is required")
	}
	path := domain.ProductPagePath(productSlug)

	// fill stays false when the cache is unusable: without a version read
	// before the database, a fill could put back a page that a concurrent
	// review write already invalidated.
	var (
		fill    bool
		version int64
	)
	if s.cache != nil {
		cached, v, err := s.cache.Get(ctx, path)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "product cache read failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		case cached != nil:
			return cached, nil
		default:
			fill, version = true, v
		}
	}

	product, err := s.products.GetBySlug(ctx, productSlug)
	if err != nil {
		return nil, err
	}

	if fill {
		if err := s.cache.Set(ctx, path, product, version); err != nil {
			s.logger.WarnContext(ctx, "product cache write failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}
	return product, nil
}

// ListProducts returns one page of the catalog.
func (s *ProductService) ListProducts(ctx context.Context, in ListProductsInput) (pagination.Result[domain.Product], error) {
	sort := in.Sort
	if sort == "" {
		sort = domain.SortNewest
	}
	if !domain.IsValidSort(sort) {
		return pagination.Result[domain.Product]{}, apperrors.ValidationFailed(map[string]string{
			"sort": "must be one of: " + strings.Join(domain.ValidSorts(), " "),
		})
	}
	if in.MinRating != nil && (*in.MinRating < domain.MinReviewRating || *in.MinRating > domain.MaxReviewRating) {
		return pagination.Result[domain.Product]{}, apperrors.ValidationFailed(map[string]string{
			"rating": fmt.Sprintf("must be between %d and %d", domain.MinReviewRating, domain.MaxReviewRating),
		})
	}

	page := in.Page
	if page.Page < 1 {
		page.Page = 1
	}
	if page.PerPage < 1 || page.PerPage > pagination.MaxPerPage {
		page.PerPage = pagination.DefaultPerPage
	}

	filter := repository.ProductFilter{
		MinRating: in.MinRating,
		Sort:      sort,
		Page:      page.Page,
		PerPage:   page.PerPage,
	}
	if q := strings.TrimSpace(in.Query); q != "" {
		filter.Query = &q
	}
	if c := strings.TrimSpace(in.Category); c != "" {
		filter.Category = &c
	}

	products, total, err := s.products.List(ctx, filter)
	if err != nil {
		return pagination.Result[domain.Product]{}, fmt.Errorf("list products: %w", err)
	}
	return pagination.NewResult(products, total, page), nil
}

// UpsertProduct stores the catalog fields of a product and invalidates its
// detail page. The derived rating is kept. A missing slug is generated from
// the name.
func (s *ProductService) UpsertProduct(ctx context.Context, in UpsertProductInput) (*domain.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.TrimSpace(in.Slug)
	if err := validator.Validate(&in); err != nil {
		return nil, validationFailed(err)
	}
	if in.Price.IsNegative() {
		return nil, apperrors.ValidationFailed(map[string]string{"price": "must not be negative"})
	}
	if in.Slug == "" {
		in.Slug = slug.Generate(in.Name)
	}

	var previousSlug string
	existing, err := s.products.GetByID(ctx, in.ID)
	switch {
	case err == nil:
		previousSlug = existing.Slug
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, err
	}

	now := time.Now().UTC()
	product := &domain.Product{
		ID:          in.ID,
		Name:        in.Name,
		Slug:        in.Slug,
		Category:    in.Category,
		Brand:       in.Brand,
		Description: in.Description,
		Images:      in.Images,
		Price:       in.Price,
		Stock:       in.Stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing != nil {
		product.CreatedAt = existing.CreatedAt
	}
	if product.Images == nil {
		product.Images = []string{}
	}

	if err := s.products.Upsert(ctx, product); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "product projection upserted",
		slog.String("product_id", product.ID),
		slog.String("slug", product.Slug),
	)

	s.invalidatePath(ctx, product.PagePath())
	if previousSlug != "" && previousSlug != product.Slug {
		s.invalidatePath(ctx, domain.ProductPagePath(previousSlug))
	}
	return product, nil
}

func (s *ProductService) invalidatePath(ctx context.Context, path string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, path); err != nil {
		postCommitFailures.WithLabelValues("invalidate").Inc()
		s.logger.WarnContext(ctx, "failed to invalidate product page",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// UpsertUser stores a user's display name for review listings.
func (s *ProductService) UpsertUser(ctx context.Context, in UpsertUserInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := validator.Validate(&in); err != nil {
		return validationFailed(err)
	}

	user := &domain.User{
		ID:        in.ID,
		Name:      in.Name,
		Email:     in.Email,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "user projection upserted", slog.String("user_id", user.ID))
	return nil
}

// DeleteUser removes a user. Their reviews stay and are listed under
// domain.DeletedUserName.
func (s *ProductService) DeleteUser(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.InvalidInput("user id is required")
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "user projection deleted", slog.String("user_id", id))
	return nil
}
