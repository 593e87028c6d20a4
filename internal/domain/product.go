package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Catalog listing sort orders.
const (
	SortNewest  = "newest"
	SortLowest  = "lowest"
	SortHighest = "highest"
	SortRating  = "rating"
)

// ValidSorts returns the accepted sort orders, default first.
func ValidSorts() []string {
	return []string{SortNewest, SortLowest, SortHighest, SortRating}
}

// IsValidSort reports whether s is an accepted sort order.
func IsValidSort(s string) bool {
	return slices.Contains(ValidSorts(), s)
}

// Product is the local projection of a catalog product. Rating and
// NumReviews are derived from the product's reviews and are only written by
// the review service.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Category    string          `json:"category"`
	Brand       string          `json:"brand"`
	Description string          `json:"description"`
	Images      []string        `json:"images"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Rating      Rating          `json:"rating"`
	NumReviews  int             `json:"num_reviews"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PagePath is the storefront path of the product detail page.
func (p *Product) PagePath() string {
	return ProductPagePath(p.Slug)
}

// ProductPagePath returns the detail page path for slug.
func ProductPagePath(slug string) string {
	return "/product/" + slug
}

// ApplyAggregate overwrites the derived fields.
func (p *Product) ApplyAggregate(agg RatingAggregate) {
	p.Rating = agg.Average
	p.NumReviews = agg.Count
}
