package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BVSokolov/udemy-prostore/internal/domain"
	"github.com/BVSokolov/udemy-prostore/internal/service"
	"github.com/BVSokolov/udemy-prostore/pkg/httputil"
	"github.com/BVSokolov/udemy-prostore/pkg/middleware"
)

// maxReviewBody caps the size of a review submission.
const maxReviewBody = 64 << 10

// ReviewAPI is the review service as seen by the transport.
type ReviewAPI interface {
	SubmitReview(ctx context.Context, actor domain.Identity, in service.SubmitReviewInput) service.Result[service.ReviewSubmission]
	ListReviews(ctx context.Context, productID string) service.Result[[]domain.ReviewWithAuthor]
	GetOwnReview(ctx context.Context, actor domain.Identity, productID string) service.Result[domain.Review]
}

// ReviewHandler handles HTTP requests for review endpoints. Every response
// is a service.Result envelope.
type ReviewHandler struct {
	service ReviewAPI
	logger  *slog.Logger
}

// NewReviewHandler creates a new review HTTP handler.
func NewReviewHandler(svc ReviewAPI, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service: svc,
		logger:  logger,
	}
}

func actorFrom(r *http.Request) domain.Identity {
	return domain.Identity{UserID: middleware.UserIDFromContext(r.Context())}
}

// ListReviews handles GET /api/v1/products/{productId}/reviews
func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	res := h.service.ListReviews(r.Context(), chi.URLParam(r, "productId"))
	httputil.WriteJSON(w, res.HTTPStatus(false), res)
}

// SubmitReview handles POST /api/v1/products/{productId}/reviews
// The product id in the path wins over one in the body.
func (h *ReviewHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxReviewBody)

	var in service.SubmitReviewInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		res := service.Fail[service.ReviewSubmission](invalidBody(err))
		httputil.WriteJSON(w, res.HTTPStatus(false), res)
		return
	}
	in.ProductID = chi.URLParam(r, "productId")

	res := h.service.SubmitReview(r.Context(), actorFrom(r), in)
	created := res.Success && res.Data != nil && res.Data.Created
	httputil.WriteJSON(w, res.HTTPStatus(created), res)
}

// GetOwnReview handles GET /api/v1/products/{productId}/reviews/mine
func (h *ReviewHandler) GetOwnReview(w http.ResponseWriter, r *http.Request) {
	res := h.service.GetOwnReview(r.Context(), actorFrom(r), chi.URLParam(r, "productId"))
	httputil.WriteJSON(w, res.HTTPStatus(false), res)
}
