package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/BVSokolov/udemy-prostore/internal/domain"
	"github.com/BVSokolov/udemy-prostore/internal/repository"
	"github.com/BVSokolov/udemy-prostore/pkg/database"
	apperrors "github.com/BVSokolov/udemy-prostore/pkg/errors"
)

// Decimal columns are read as text so no precision is lost on the way to
// shopspring/decimal.
const productColumns = `id, name, slug, category, brand, description, images,
	price::text, stock, rating::text, num_reviews, created_at, updated_at`

var sortClauses = map[string]string{
	domain.SortNewest:  "created_at DESC",
	domain.SortLowest:  "price ASC, created_at DESC",
	domain.SortHighest: "price DESC, created_at DESC",
	domain.SortRating:  "rating DESC, num_reviews DESC, created_at DESC",
}

// ProductRepository implements repository.ProductRepository using PostgreSQL.
type ProductRepository struct {
	db database.DBTX
}

// NewProductRepository creates a product repository on db, which may be a
// pool or a transaction.
func NewProductRepository(db database.DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID retrieves a product by id.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	return r.getOne(ctx, "GetProductByID", query, id)
}

// GetByIDForUpdate retrieves a product by id and locks its row.
func (r *ProductRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, "LockProduct", query, id)
}

// GetBySlug retrieves a product by slug.
func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE slug = $1`
	return r.getOne(ctx, "GetProductBySlug", query, slug)
}

func (r *ProductRepository) getOne(ctx context.Context, op, query, key string) (p *domain.Product, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	p, err = scanProduct(r.db.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", key)
		}
		return nil, fmt.Errorf("get product %s: %w", key, err)
	}
	return p, nil
}

// List returns products matching the filter with the total match count.
func (r *ProductRepository) List(ctx context.Context, filter repository.ProductFilter) ([]domain.Product, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Query != nil && *filter.Query != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", argIndex))
		args = append(args, "%"+*filter.Query+"%")
		argIndex++
	}

	if filter.Category != nil && *filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, *filter.Category)
		argIndex++
	}

	if filter.MinRating != nil {
		conditions = append(conditions, fmt.Sprintf("rating >= $%d", argIndex))
		args = append(args, *filter.MinRating)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	orderBy, ok := sortClauses[filter.Sort]
	if !ok {
		orderBy = sortClauses[domain.SortNewest]
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM products
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		productColumns, whereClause, orderBy, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 12
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var (
		products   []domain.Product
		totalCount int
	)
	for rows.Next() {
		var (
			p             domain.Product
			price, rating string
		)
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Slug, &p.Category, &p.Brand, &p.Description, &p.Images,
			&price, &p.Stock, &rating, &p.NumReviews, &p.CreatedAt, &p.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan product row: %w", err)
		}
		if err := setDecimals(&p, price, rating); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate product rows: %w", err)
	}

	if products == nil {
		products = []domain.Product{}
	}
	return products, totalCount, nil
}

// ListIDs returns all product ids in creation order.
func (r *ProductRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM products ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list product ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect product ids: %w", err)
	}
	return ids, nil
}

// Upsert inserts a product or refreshes its catalog fields.
func (r *ProductRepository) Upsert(ctx context.Context, p *domain.Product) error {
	query := `
		INSERT INTO products (id, name, slug, category, brand, description, images, price, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			slug = EXCLUDED.slug,
			category = EXCLUDED.category,
			brand = EXCLUDED.brand,
			description = EXCLUDED.description,
			images = EXCLUDED.images,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock,
			updated_at = EXCLUDED.updated_at`

	images := p.Images
	if images == nil {
		images = []string{}
	}

	_, err := r.db.Exec(ctx, query,
		p.ID,
		p.Name,
		p.Slug,
		p.Category,
		p.Brand,
		p.Description,
		images,
		p.Price.String(),
		p.Stock,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("product", "slug", p.Slug)
		}
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// UpdateRating overwrites rating and num_reviews.
func (r *ProductRepository) UpdateRating(ctx context.Context, id string, agg domain.RatingAggregate) (err error) {
	query := `UPDATE products SET rating = $2, num_reviews = $3, updated_at = NOW() WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "UpdateProductRating", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, id, agg.Average.String(), agg.Count)
	if err != nil {
		return fmt.Errorf("update product rating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("product", id)
	}
	return nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p             domain.Product
		price, rating string
	)
	if err := row.Scan(
		&p.ID, &p.Name, &p.Slug, &p.Category, &p.Brand, &p.Description, &p.Images,
		&price, &p.Stock, &rating, &p.NumReviews, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := setDecimals(&p, price, rating); err != nil {
		return nil, err
	}
	return &p, nil
}

func setDecimals(p *domain.Product, price, rating string) error {
	var err error
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return fmt.Errorf("parse price of product %s: %w", p.ID, err)
	}
	if p.Rating, err = domain.ParseRating(rating); err != nil {
		return fmt.Errorf("product %s: %w", p.ID, err)
	}
	return nil
}
