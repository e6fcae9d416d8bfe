package storage

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/tradesync/syncengine/internal/config"
)

// NewRedisClient creates a Redis client for the dedup/leverage-override
// cache and confirms it's reachable before handing it back, the same
// fail-fast convention NewPostgresPool uses for the trade store.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("redis: connected", zap.String("addr", client.Options().Addr), zap.Int("db", cfg.DB))
	return client, nil
}
