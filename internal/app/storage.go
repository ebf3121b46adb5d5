package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ctnfastfood/cart/internal/config"
	"github.com/ctnfastfood/cart/internal/storage"
	"github.com/ctnfastfood/cart/internal/storage/memory"
	pgstore "github.com/ctnfastfood/cart/internal/storage/postgres"
	redisstore "github.com/ctnfastfood/cart/internal/storage/redis"
	"github.com/ctnfastfood/cart/pkg/database"
)

// OpenStorage connects the backend selected by cfg.StorageDriver. The
// returned close function releases its connections. reg receives the
// PostgreSQL pool metrics and may be nil.
func OpenStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (storage.Storage, func(), error) {
	database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)

	switch cfg.StorageDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory cart storage; carts are lost on restart")
		return memory.New(), func() {}, nil

	case config.DriverRedis:
		rdb, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
			slog.Duration("ttl", cfg.TTL()),
		)
		return redisstore.New(rdb, cfg.TTL()), func() {
			if err := rdb.Close(); err != nil {
				logger.Error("redis close error", slog.String("error", err.Error()))
			}
		}, nil

	case config.DriverPostgres:
		pgCfg := cfg.Postgres()
		pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		st := pgstore.New(pool)
		if err := st.Migrate(ctx, logger); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate cart snapshots: %w", err)
		}
		if reg != nil {
			if err := database.RegisterPoolMetrics(reg, pool, config.ServiceName); err != nil {
				logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
			}
		}
		logger.Info("connected to PostgreSQL",
			slog.String("host", pgCfg.Host),
			slog.String("database", pgCfg.DBName),
		)
		return st, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
