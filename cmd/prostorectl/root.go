package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	rediscache "github.com/BVSokolov/udemy-prostore/internal/cache/redis"
	"github.com/BVSokolov/udemy-prostore/internal/config"
	"github.com/BVSokolov/udemy-prostore/internal/event"
	"github.com/BVSokolov/udemy-prostore/internal/repository/postgres"
	"github.com/BVSokolov/udemy-prostore/internal/service"
	"github.com/BVSokolov/udemy-prostore/pkg/database"
	pkgkafka "github.com/BVSokolov/udemy-prostore/pkg/kafka"
	"github.com/BVSokolov/udemy-prostore/pkg/logger"
)

type rootOptions struct {
	logLevel string
	noCache  bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "prostorectl",
		Short:         "Maintenance commands for the prostore review service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.noCache, "no-cache", false, "skip product page invalidation in redis")

	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newRecomputeCmd(opts))
	cmd.AddCommand(newSeedCmd(opts))
	return cmd
}

// env holds the connections a maintenance command needs.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
	redis  *redis.Client
	kafka  *pkgkafka.Producer
}

// connect opens postgres and, unless disabled, redis. A redis failure is
// logged and the command continues without page invalidation.
func connect(ctx context.Context, opts *rootOptions) (*env, error) {
	cfg, err := config.LoadStorage()
	if err != nil {
		return nil, err
	}
	log := logger.New("prostorectl", opts.logLevel)

	pgCfg := cfg.Postgres()
	pgCfg.MinConns = 0
	pool, err := database.NewPostgresPool(ctx, &pgCfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	e := &env{cfg: cfg, logger: log, pool: pool}
	if !opts.noCache {
		rdb, err := database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			log.Warn("redis unavailable, product pages will not be invalidated", slog.String("error", err.Error()))
		} else {
			e.redis = rdb
		}
	}
	return e, nil
}

// reviewService builds a review service on the env's connections. Events
// are published only when withEvents is set.
func (e *env) reviewService(withEvents bool) *service.ReviewService {
	var invalidator service.PageInvalidator
	if e.redis != nil {
		invalidator = rediscache.NewPageCache(e.redis, e.cfg.PageCacheTTL)
	}
	var events service.EventPublisher
	if withEvents {
		e.kafka = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(e.cfg.KafkaBrokers), e.logger)
		events = event.NewProducer(e.kafka, e.logger)
	}
	return service.NewReviewService(
		postgres.NewStores(e.pool),
		postgres.NewTransactor(e.pool),
		invalidator,
		events,
		e.logger,
	)
}

func (e *env) productService() *service.ProductService {
	var pages service.ProductCache
	var invalidator service.PageInvalidator
	if e.redis != nil {
		c := rediscache.NewPageCache(e.redis, e.cfg.PageCacheTTL)
		pages, invalidator = c, c
	}
	return service.NewProductService(postgres.NewStores(e.pool), pages, invalidator, e.logger)
}

func (e *env) Close() {
	if e.kafka != nil {
		if err := e.kafka.Close(); err != nil {
			e.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
	e.pool.Close()
}
