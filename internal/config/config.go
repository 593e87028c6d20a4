package config

import (
	"fmt"
	"time"

	"github.com/BVSokolov/udemy-prostore/internal/auth"
	pkgconfig "github.com/BVSokolov/udemy-prostore/pkg/config"
	"github.com/BVSokolov/udemy-prostore/pkg/database"
	"github.com/BVSokolov/udemy-prostore/pkg/middleware"
	"github.com/BVSokolov/udemy-prostore/pkg/tracing"
)

// ServiceName labels logs, metrics and spans.
const ServiceName = "review-service"

// Config holds all configuration for the review service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"prostore"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"prostore"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"prostore"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Redis page cache and event idempotency
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	PageCacheTTL  time.Duration `env:"PAGE_CACHE_TTL" envDefault:"5m"`

	// Cache-Control max-age for public GET responses, in seconds
	CacheMaxAge int `env:"CACHE_MAX_AGE" envDefault:"30"`

	// Kafka
	KafkaBrokers          []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaConsumersEnabled bool          `env:"KAFKA_CONSUMERS_ENABLED" envDefault:"true"`
	IdempotencyTTL        time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	// Authentication
	JWTSecret          string        `env:"JWT_SECRET"`
	JWTIssuer          string        `env:"JWT_ISSUER"`
	JWTLeeway          time.Duration `env:"JWT_LEEWAY" envDefault:"30s"`
	TrustGatewayHeader bool          `env:"AUTH_TRUST_GATEWAY_HEADER" envDefault:"false"`

	// Storefront revalidation webhook, disabled when the URL is empty
	RevalidateURL    string `env:"REVALIDATE_URL"`
	RevalidateSecret string `env:"REVALIDATE_SECRET"`

	// Review submission rate limit per user
	ReviewSubmitPerMinute float64 `env:"REVIEW_SUBMIT_PER_MINUTE" envDefault:"10"`
	ReviewSubmitBurst     int     `env:"REVIEW_SUBMIT_BURST" envDefault:"5"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load review config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStorage reads the same variables as Load but only checks the
// database and redis settings. Maintenance commands use it.
func LoadStorage() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load review config: %w", err)
	}
	if cfg.PostgresHost == "" {
		return nil, fmt.Errorf("POSTGRES_HOST is required")
	}
	if cfg.PostgresUser == "" {
		return nil, fmt.Errorf("POSTGRES_USER is required")
	}
	return cfg, nil
}

// Validate checks values the env tags cannot express.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.JWTSecret == "" && !c.TrustGatewayHeader {
		return fmt.Errorf("JWT_SECRET is required unless AUTH_TRUST_GATEWAY_HEADER is set")
	}
	if c.RevalidateURL != "" && c.RevalidateSecret == "" {
		return fmt.Errorf("REVALIDATE_SECRET is required when REVALIDATE_URL is set")
	}
	if c.ReviewSubmitPerMinute < 0 || c.ReviewSubmitBurst < 0 {
		return fmt.Errorf("review submit rate limit must not be negative")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// Postgres returns the pool settings.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Redis returns the redis client settings.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// Tracing returns the tracer settings.
func (c *Config) Tracing() tracing.Config {
	cfg := tracing.DefaultConfig(ServiceName)
	cfg.Environment = c.Environment
	cfg.OTLPEndpoint = c.OTELEndpoint
	cfg.SampleRate = c.OTELSampleRate
	cfg.Enabled = c.OTELEnabled
	return cfg
}

// Auth returns the session provider settings.
func (c *Config) Auth() auth.Config {
	return auth.Config{
		JWTSecret:          c.JWTSecret,
		Issuer:             c.JWTIssuer,
		TrustGatewayHeader: c.TrustGatewayHeader,
		Leeway:             c.JWTLeeway,
	}
}

// CORS returns the CORS settings for the router.
func (c *Config) CORS() middleware.CORSConfig {
	cfg := middleware.DefaultCORSConfig()
	if len(c.CORSAllowedOrigins) > 0 {
		cfg.AllowedOrigins = c.CORSAllowedOrigins
	}
	return cfg
}
