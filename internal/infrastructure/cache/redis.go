// Package cache connects to Redis and picks the session revocation backend.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/flexidesk/backend/internal/infrastructure/auth"
	"github.com/flexidesk/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// NewRedisClient opens a client and verifies it with PING.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// RevocationBackend is the chosen revocation store and the client behind it,
// if any. Close releases the client.
type RevocationBackend struct {
	Store  auth.RevocationStore
	client *redis.Client
}

// Close implements io.Closer
func (b *RevocationBackend) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// Ping reports backend health. The in-memory store is always healthy.
func (b *RevocationBackend) Ping(ctx context.Context) error {
	if b.client == nil {
		return nil
	}
	return b.client.Ping(ctx).Err()
}

// Distributed reports whether revocations are shared between instances.
func (b *RevocationBackend) Distributed() bool {
	return b.client != nil
}

// NewRevocationBackend uses Redis when a host is configured. An unreachable
// Redis is an error in production and falls back to memory elsewhere.
func NewRevocationBackend(ctx context.Context, cfg config.RedisConfig, production bool, logger *zap.Logger) (*RevocationBackend, error) {
	if cfg.Addr() == "" {
		logger.Info("Redis not configured, session revocation kept in memory")
		return &RevocationBackend{Store: auth.NewMemoryRevocationStore()}, nil
	}

	client, err := NewRedisClient(ctx, cfg)
	if err == nil {
		logger.Info("Using Redis for session revocation", zap.String("addr", cfg.Addr()))
		return &RevocationBackend{Store: auth.NewRedisRevocationStore(client), client: client}, nil
	}
	if production {
		return nil, err
	}

	logger.Warn("Redis unavailable, falling back to in-memory session revocation. "+
		"Logouts will not propagate across instances.",
		zap.Error(err),
	)
	return &RevocationBackend{Store: auth.NewMemoryRevocationStore()}, nil
}
