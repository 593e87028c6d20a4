package event

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/BVSokolov/udemy-prostore/internal/domain"
	"github.com/BVSokolov/udemy-prostore/internal/service"
	pkgkafka "github.com/BVSokolov/udemy-prostore/pkg/kafka"
)

// Topics consumed from the catalog and user services.
const (
	TopicProductCreated = "ecommerce.product.created"
	TopicProductUpdated = "ecommerce.product.updated"
	TopicUserRegistered = "ecommerce.user.registered"
	TopicUserUpdated    = "ecommerce.user.updated"
	TopicUserDeleted    = "ecommerce.user.deleted"
)

// ConsumerGroupID is the consumer group of the review service.
const ConsumerGroupID = "review-service"

// idempotencyPrefix namespaces processed event ids in Redis.
const idempotencyPrefix = "review-service:events:"

// Projections is what the consumer needs to keep the local product and
// user tables current.
type Projections interface {
	UpsertProduct(ctx context.Context, in service.UpsertProductInput) (*domain.Product, error)
	UpsertUser(ctx context.Context, in service.UpsertUserInput) error
	DeleteUser(ctx context.Context, id string) error
}

// ProductEventData is the payload of product.created and product.updated.
// Price is a decimal amount; producers that only send base_price in minor
// units are also accepted.
type ProductEventData struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Slug        string           `json:"slug"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	Brand       string           `json:"brand"`
	Images      []string         `json:"images"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	BasePrice   *int64           `json:"base_price,omitempty"`
	Stock       int              `json:"stock"`
}

// UserEventData is the payload of user.registered and user.updated.
type UserEventData struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// UserDeletedData is the payload of user.deleted.
type UserDeletedData struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
}

// ConsumerHandler routes incoming events to the projections.
type ConsumerHandler struct {
	projections Projections
	logger      *slog.Logger
}

// NewConsumerHandler creates a new event consumer handler.
func NewConsumerHandler(projections Projections, logger *slog.Logger) *ConsumerHandler {
	return &ConsumerHandler{
		projections: projections,
		logger:      logger,
	}
}

// Handle processes an incoming event based on its type.
func (h *ConsumerHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicProductCreated, TopicProductUpdated:
		return h.handleProduct(ctx, event)
	case TopicUserRegistered, TopicUserUpdated:
		return h.handleUser(ctx, event)
	case TopicUserDeleted:
		return h.handleUserDeleted(ctx, event)
	default:
		h.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (h *ConsumerHandler) handleProduct(ctx context.Context, event *pkgkafka.Event) error {
	var data ProductEventData
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}
	if data.ID == "" {
		data.ID = event.AggregateID
	}

	in := service.UpsertProductInput{
		ID:          data.ID,
		Name:        data.Name,
		Slug:        data.Slug,
		Category:    data.Category,
		Brand:       data.Brand,
		Description: data.Description,
		Images:      data.Images,
		Stock:       data.Stock,
	}
	switch {
	case data.Price != nil:
		in.Price = *data.Price
	case data.BasePrice != nil:
		in.Price = decimal.New(*data.BasePrice, -2)
	}

	if _, err := h.projections.UpsertProduct(ctx, in); err != nil {
		return fmt.Errorf("project %s %s: %w", event.EventType, data.ID, err)
	}
	return nil
}

func (h *ConsumerHandler) handleUser(ctx context.Context, event *pkgkafka.Event) error {
	var data UserEventData
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}
	if data.ID == "" {
		data.ID = event.AggregateID
	}

	name := data.Name
	if name == "" {
		name = strings.TrimSpace(data.FirstName + " " + data.LastName)
	}

	in := service.UpsertUserInput{ID: data.ID, Name: name, Email: data.Email}
	if err := h.projections.UpsertUser(ctx, in); err != nil {
		return fmt.Errorf("project %s %s: %w", event.EventType, data.ID, err)
	}
	return nil
}

func (h *ConsumerHandler) handleUserDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data UserDeletedData
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	id := data.ID
	if id == "" {
		id = data.UserID
	}
	if id == "" {
		id = event.AggregateID
	}
	if err := h.projections.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("project %s %s: %w", event.EventType, id, err)
	}
	return nil
}

// ConsumerOptions configures the projection consumers.
type ConsumerOptions struct {
	Brokers        []string
	GroupID        string
	Redis          redis.UniversalClient
	IdempotencyTTL time.Duration
	DLQ            pkgkafka.DeadLetterPublisher
}

// NewConsumers creates one consumer per subscribed topic. Each handler
// skips events already processed, as recorded in Redis, and poison
// messages go to the dead letter topic.
func NewConsumers(opts ConsumerOptions, handler *ConsumerHandler, logger *slog.Logger) []*pkgkafka.Consumer {
	topics := []string{
		TopicProductCreated,
		TopicProductUpdated,
		TopicUserRegistered,
		TopicUserUpdated,
		TopicUserDeleted,
	}

	group := opts.GroupID
	if group == "" {
		group = ConsumerGroupID
	}

	var store pkgkafka.IdempotencyStore
	if opts.Redis != nil {
		store = pkgkafka.NewRedisIdempotencyStore(opts.Redis, idempotencyPrefix, opts.IdempotencyTTL)
	} else {
		store = pkgkafka.NewMemoryIdempotencyStore(opts.IdempotencyTTL)
	}
	handle := pkgkafka.IdempotentHandler(store, handler.Handle, logger)

	consumers := make([]*pkgkafka.Consumer, 0, len(topics))
	for _, topic := range topics {
		cfg := pkgkafka.ConsumerConfig{
			Brokers:  opts.Brokers,
			GroupID:  group,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		}
		consumers = append(consumers, pkgkafka.NewConsumer(cfg, handle, opts.DLQ, logger))
	}
	return consumers
}
