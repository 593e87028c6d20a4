package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/BVSokolov/udemy-prostore/internal/auth"
	"github.com/BVSokolov/udemy-prostore/internal/cache"
	rediscache "github.com/BVSokolov/udemy-prostore/internal/cache/redis"
	"github.com/BVSokolov/udemy-prostore/internal/cache/revalidate"
	"github.com/BVSokolov/udemy-prostore/internal/config"
	"github.com/BVSokolov/udemy-prostore/internal/event"
	handler "github.com/BVSokolov/udemy-prostore/internal/handler/http"
	"github.com/BVSokolov/udemy-prostore/internal/repository/postgres"
	"github.com/BVSokolov/udemy-prostore/internal/service"
	"github.com/BVSokolov/udemy-prostore/migrations"
	"github.com/BVSokolov/udemy-prostore/pkg/database"
	"github.com/BVSokolov/udemy-prostore/pkg/health"
	"github.com/BVSokolov/udemy-prostore/pkg/httpclient"
	pkgkafka "github.com/BVSokolov/udemy-prostore/pkg/kafka"
	"github.com/BVSokolov/udemy-prostore/pkg/middleware"
	"github.com/BVSokolov/udemy-prostore/pkg/tracing"
)

const limiterSweepInterval = time.Minute

// App wires together all dependencies and runs the review service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	consumers      []*pkgkafka.Consumer
	limiter        *middleware.Limiter
	httpServer     *http.Server
	tracerShutdown tracing.Shutdown

	stopWorkers context.CancelFunc
	workers     sync.WaitGroup
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.closeResources()
		}
	}()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	// Initialize PostgreSQL connection pool.
	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, config.ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, migrations.Dir, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	// Redis backs the page cache and the consumer idempotency store.
	rdb, err := database.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = rdb
	logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))

	// Initialize Kafka producer.
	a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Page invalidation: redis page cache first, then the storefront webhook.
	pageCache := rediscache.NewPageCache(rdb, cfg.PageCacheTTL)
	invalidators := []cache.Invalidator{pageCache}
	if cfg.RevalidateURL != "" {
		breaker := httpclient.NewCircuitBreakerClient(
			httpclient.New(httpclient.DefaultConfig()),
			httpclient.DefaultCircuitBreakerConfig("storefront-revalidate"),
			httpclient.NewBreakerMetrics(prometheus.DefaultRegisterer),
			logger,
		)
		invalidators = append(invalidators, revalidate.New(cfg.RevalidateURL, cfg.RevalidateSecret, breaker, logger))
		logger.Info("storefront revalidation enabled", slog.String("url", cfg.RevalidateURL))
	}
	invalidator := cache.NewMulti(invalidators...)

	// Build the dependency graph.
	stores := postgres.NewStores(pool)
	tx := postgres.NewTransactor(pool)
	events := event.NewProducer(a.producer, logger)
	reviewService := service.NewReviewService(stores, tx, invalidator, events, logger)
	productService := service.NewProductService(stores, pageCache, invalidator, logger)

	// Projection consumers.
	if cfg.KafkaConsumersEnabled {
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		a.consumers = event.NewConsumers(event.ConsumerOptions{
			Brokers:        cfg.KafkaBrokers,
			Redis:          rdb,
			IdempotencyTTL: cfg.IdempotencyTTL,
			DLQ:            a.dlq,
		}, event.NewConsumerHandler(productService, logger), logger)
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthHandler.Register("kafka", func(ctx context.Context) error {
		return a.producer.Ping(ctx)
	})

	httpMetrics, err := middleware.NewHTTPMetrics(prometheus.DefaultRegisterer, config.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}

	if cfg.ReviewSubmitPerMinute > 0 {
		a.limiter = middleware.NewLimiter(cfg.ReviewSubmitPerMinute, cfg.ReviewSubmitBurst, 10*time.Minute)
	}

	sessions := auth.NewSessionProvider(cfg.Auth(), logger)

	// HTTP router.
	router := handler.NewRouter(handler.RouterConfig{
		ServiceName:   config.ServiceName,
		Reviews:       reviewService,
		Catalog:       productService,
		Health:        healthHandler,
		Identity:      sessions.Resolver(),
		Metrics:       httpMetrics,
		Gatherer:      prometheus.DefaultGatherer,
		SubmitLimiter: a.limiter,
		CORS:          cfg.CORS(),
		CacheMaxAge:   cfg.CacheMaxAge,
		PprofCIDRs:    cfg.PprofAllowedCIDRs,
		Logger:        logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ok = true
	return a, nil
}

// Run starts the HTTP server, the event consumers and the limiter sweeper,
// and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	workerCtx, stop := context.WithCancel(context.Background())
	a.stopWorkers = stop

	for _, c := range a.consumers {
		a.workers.Add(1)
		go func(c *pkgkafka.Consumer) {
			defer a.workers.Done()
			a.logger.Info("starting kafka consumer", slog.String("topic", c.Topic()))
			if err := c.Start(workerCtx); err != nil {
				a.logger.Error("kafka consumer stopped", slog.String("topic", c.Topic()), slog.String("error", err.Error()))
			}
		}(c)
	}

	if a.limiter != nil {
		a.workers.Add(1)
		go func() {
			defer a.workers.Done()
			ticker := time.NewTicker(limiterSweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-workerCtx.Done():
					return
				case <-ticker.C:
					a.limiter.Sweep()
				}
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests and their post-commit work)
// 2. Kafka consumers and background workers
// 3. Tracer (flush pending spans)
// 4. Kafka producers, Redis, PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (10s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Stop consumers; each commits nothing further once its context ends.
	if a.stopWorkers != nil {
		a.stopWorkers()
	}
	a.workers.Wait()

	// 3. Flush pending spans.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}

	// 4. Close clients.
	errs = append(errs, a.closeResources())

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources closes whatever NewApp managed to open.
func (a *App) closeResources() error {
	var errs []error
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.producer = nil
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.dlq = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = a.tracerShutdown(ctx)
		a.tracerShutdown = nil
	}
	return errors.Join(errs...)
}
