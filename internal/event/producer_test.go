package event

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BVSokolov/udemy-prostore/internal/domain"
	pkgkafka "github.com/BVSokolov/udemy-prostore/pkg/kafka"
	"github.com/BVSokolov/udemy-prostore/pkg/logger"
)

// --- Test helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type published struct {
	topic string
	event *pkgkafka.Event
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, event *pkgkafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{topic: topic, event: event})
	return nil
}

// --- Producer ---

func TestPublishReviewSubmitted(t *testing.T) {
	pub := &fakePublisher{}
	producer := NewProducer(pub, newTestLogger())
	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	review := &domain.Review{
		ID:        "rev-1",
		ProductID: "prod-1",
		UserID:    "user-1",
		Rating:    4,
		Title:     "Nice",
		UpdatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, producer.PublishReviewSubmitted(ctx, review, true))

	require.Len(t, pub.sent, 1)
	msg := pub.sent[0]
	assert.Equal(t, TopicReviewSubmitted, msg.topic)
	assert.Equal(t, TopicReviewSubmitted, msg.event.EventType)
	assert.Equal(t, "rev-1", msg.event.AggregateID)
	assert.Equal(t, AggregateTypeReview, msg.event.AggregateType)
	assert.Equal(t, SourceReviewService, msg.event.Source)
	assert.Equal(t, "corr-1", msg.event.CorrelationID)

	var data ReviewSubmittedData
	require.NoError(t, msg.event.UnmarshalData(&data))
	assert.Equal(t, "prod-1", data.ProductID)
	assert.Equal(t, 4, data.Rating)
	assert.True(t, data.Created)
}

func TestPublishRatingUpdated(t *testing.T) {
	pub := &fakePublisher{}
	producer := NewProducer(pub, newTestLogger())
	product := &domain.Product{
		ID:         "prod-1",
		Slug:       "shirt",
		Rating:     domain.NewRating(decimal.RequireFromString("4.333")),
		NumReviews: 3,
	}

	require.NoError(t, producer.PublishRatingUpdated(context.Background(), product))

	require.Len(t, pub.sent, 1)
	assert.Equal(t, TopicProductRatingUpdated, pub.sent[0].topic)
	assert.Empty(t, pub.sent[0].event.CorrelationID)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(pub.sent[0].event.Data, &raw))
	assert.Equal(t, "4.33", raw["rating"])
	assert.Equal(t, float64(3), raw["num_reviews"])
	assert.Equal(t, "shirt", raw["slug"])
}

func TestPublish_Error(t *testing.T) {
	errBroker := errors.New("leader not available")
	producer := NewProducer(&fakePublisher{err: errBroker}, newTestLogger())

	err := producer.PublishRatingUpdated(context.Background(), &domain.Product{ID: "prod-1"})

	require.Error(t, err)
	assert.ErrorIs(t, err, errBroker)
	assert.Contains(t, err.Error(), TopicProductRatingUpdated)
}
