package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"jt-wrs/backend/internal/config"
)

// Open connects the backend selected by cfg.Store.Backend. The postgres
// backend is migrated before it is returned.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	timeout := cfg.Store.Timeout

	switch cfg.Store.Backend {
	case config.BackendMemory:
		return NewMemoryStore(), nil

	case config.BackendEtcd:
		return NewEtcdStore(EtcdConfig{
			Endpoints:   cfg.Etcd.Endpoints,
			DialTimeout: cfg.Etcd.DialTimeout,
			Username:    cfg.Etcd.Username,
			Password:    cfg.Etcd.Password,
			Timeout:     timeout,
		})

	case config.BackendPostgres:
		poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to parse database config: %w", err)
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create connection pool: %w", ErrStoreUnavailable, err)
		}
		store := NewPostgresStore(pool, timeout)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisStore(client, cfg.Redis.IndexKey, timeout), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
