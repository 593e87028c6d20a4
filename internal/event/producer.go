package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BVSokolov/udemy-prostore/internal/domain"
	pkgkafka "github.com/BVSokolov/udemy-prostore/pkg/kafka"
	"github.com/BVSokolov/udemy-prostore/pkg/logger"
)

// Kafka topics published by the review service.
const (
	TopicReviewSubmitted      = "ecommerce.review.submitted"
	TopicProductRatingUpdated = "ecommerce.product.rating_updated"
)

// Aggregate type constants.
const (
	AggregateTypeReview  = "review"
	AggregateTypeProduct = "product"
)

// SourceReviewService identifies events originating from this service.
const SourceReviewService = "review-service"

// ReviewSubmittedData is the payload for a review.submitted event.
type ReviewSubmittedData struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	Title     string    `json:"title"`
	Created   bool      `json:"created"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RatingUpdatedData is the payload for a product.rating_updated event.
type RatingUpdatedData struct {
	ProductID  string        `json:"product_id"`
	Slug       string        `json:"slug"`
	Rating     domain.Rating `json:"rating"`
	NumReviews int           `json:"num_reviews"`
}

// Producer publishes review domain events to Kafka.
type Producer struct {
	kafka  pkgkafka.Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the review service.
func NewProducer(kafka pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishReviewSubmitted publishes a review.submitted event.
func (p *Producer) PublishReviewSubmitted(ctx context.Context, review *domain.Review, created bool) error {
	data := ReviewSubmittedData{
		ID:        review.ID,
		ProductID: review.ProductID,
		UserID:    review.UserID,
		Rating:    review.Rating,
		Title:     review.Title,
		Created:   created,
		UpdatedAt: review.UpdatedAt,
	}
	return p.publish(ctx, TopicReviewSubmitted, review.ID, AggregateTypeReview, data)
}

// PublishRatingUpdated publishes a product.rating_updated event.
func (p *Producer) PublishRatingUpdated(ctx context.Context, product *domain.Product) error {
	data := RatingUpdatedData{
		ProductID:  product.ID,
		Slug:       product.Slug,
		Rating:     product.Rating,
		NumReviews: product.NumReviews,
	}
	return p.publish(ctx, TopicProductRatingUpdated, product.ID, AggregateTypeProduct, data)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceReviewService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "event published",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
		slog.String("event_id", event.EventID),
	)
	return nil
}
