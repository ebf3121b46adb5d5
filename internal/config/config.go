package config

import (
	"fmt"
	"time"

	"github.com/ctnfastfood/cart/internal/domain"
	pkgconfig "github.com/ctnfastfood/cart/pkg/config"
	"github.com/ctnfastfood/cart/pkg/database"
	"github.com/ctnfastfood/cart/pkg/tracing"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// ServiceName labels logs, metrics and traces.
const ServiceName = "cart"

// Config holds all configuration for the cart service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"CART_HTTP_PORT" envDefault:"8003"`
	ShutdownTimeout time.Duration `env:"CART_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Storage
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"memory"`
	StorageKey    string `env:"CART_STORAGE_KEY" envDefault:"ctn-fastfood-cart"`
	// Cart TTL in hours (default: 7 days). Only the redis driver expires keys.
	CartTTL int `env:"CART_TTL_HOURS" envDefault:"168"`
	// Storage calls slower than this are logged. Zero disables it.
	SlowQueryThreshold time.Duration `env:"CART_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`
	// Session carts unused this long are written out and dropped from
	// memory. Zero keeps them until shutdown.
	SessionIdleTimeout time.Duration `env:"CART_SESSION_IDLE_TIMEOUT" envDefault:"30m"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// PostgreSQL
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"ctn"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"ctn_secret"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"ctn_cart"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	PostgresMaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`

	// Kafka
	KafkaEnabled        bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers        []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaPublishTimeout time.Duration `env:"KAFKA_PUBLISH_TIMEOUT" envDefault:"2s"`
	KafkaGroupID        string        `env:"KAFKA_GROUP_ID" envDefault:"cartctl-watch"`

	IDGenerator string `env:"ID_GENERATOR" envDefault:"uuid"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom reads configuration from vars instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFrom(cfg, vars); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.StorageDriver {
	case DriverMemory, DriverRedis, DriverPostgres:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be one of memory, redis, postgres: got %q", c.StorageDriver)
	}
	if c.StorageKey == "" {
		return fmt.Errorf("CART_STORAGE_KEY must not be empty")
	}
	if c.CartTTL < 0 {
		return fmt.Errorf("CART_TTL_HOURS must not be negative: %d", c.CartTTL)
	}
	if c.SessionIdleTimeout < 0 {
		return fmt.Errorf("CART_SESSION_IDLE_TIMEOUT must not be negative: %s", c.SessionIdleTimeout)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	switch c.IDGenerator {
	case "uuid", "sequence":
	default:
		return fmt.Errorf("ID_GENERATOR must be uuid or sequence: got %q", c.IDGenerator)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0: got %v", c.OTELSampleRate)
	}
	return nil
}

// BaseKey returns the storage key, falling back to the default cart key.
func (c *Config) BaseKey() string {
	if c.StorageKey == "" {
		return domain.DefaultStorageKey
	}
	return c.StorageKey
}

// TTL returns the cart expiry as a duration. Zero disables expiry.
func (c *Config) TTL() time.Duration {
	return time.Duration(c.CartTTL) * time.Hour
}

// Postgres returns the pool configuration for the postgres driver.
func (c *Config) Postgres() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPassword
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSLMode
	if c.PostgresMaxConns > 0 {
		pg.MaxConns = c.PostgresMaxConns
	}
	if pg.MinConns > pg.MaxConns {
		pg.MinConns = pg.MaxConns
	}
	return pg
}

// Redis returns the client configuration for the redis driver.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{Addr: c.RedisAddr, Password: c.RedisPass, DB: c.RedisDB}
}

// Tracing returns the OpenTelemetry configuration.
func (c *Config) Tracing() tracing.Config {
	tc := tracing.DefaultConfig(ServiceName)
	tc.Environment = c.Environment
	tc.Enabled = c.OTELEnabled
	tc.OTLPEndpoint = c.OTELEndpoint
	tc.SampleRate = c.OTELSampleRate
	return tc
}
