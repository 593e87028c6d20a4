package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/BVSokolov/udemy-prostore/internal/domain"
	"github.com/BVSokolov/udemy-prostore/internal/service"
	apperrors "github.com/BVSokolov/udemy-prostore/pkg/errors"
	"github.com/BVSokolov/udemy-prostore/pkg/httputil"
	"github.com/BVSokolov/udemy-prostore/pkg/pagination"
)

// CatalogAPI is the catalog read side as seen by the transport.
type CatalogAPI interface {
	GetProductBySlug(ctx context.Context, slug string) (*domain.Product, error)
	ListProducts(ctx context.Context, in service.ListProductsInput) (pagination.Result[domain.Product], error)
}

// ProductHandler handles HTTP requests for catalog endpoints.
type ProductHandler struct {
	service CatalogAPI
	logger  *slog.Logger
}

// NewProductHandler creates a new product HTTP handler.
func NewProductHandler(svc CatalogAPI, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		service: svc,
		logger:  logger,
	}
}

// ListProducts handles GET /api/v1/products
// Query: q, category, rating (minimum stars), sort, page, per_page.
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := service.ListProductsInput{
		Query:    q.Get("q"),
		Category: q.Get("category"),
		Sort:     q.Get("sort"),
		Page:     pagination.FromRequest(r),
	}
	if v := q.Get("rating"); v != "" && v != "all" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httputil.WriteError(w, r, apperrors.ValidationFailed(map[string]string{
				"rating": "must be a whole number of stars",
			}), h.logger)
			return
		}
		in.MinRating = &n
	}

	result, err := h.service.ListProducts(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// GetProduct handles GET /api/v1/products/{slug}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProductBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: product})
}
