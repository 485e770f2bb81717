package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"brokerdesk/internal/platform/config"
)

// ErrDisabled is returned when no Redis host is configured.
var ErrDisabled = errors.New("redis is not configured")

// NewRedisClient connects and pings Redis. Callers treat any error as "run without Redis".
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (*redis.Client, error) {
	addr := cfg.Addr()
	if addr == "" {
		return nil, ErrDisabled
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       0,
	})

	// 接続確認
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Error("redis connection failed", zap.String("address", addr), zap.Error(err))
		_ = rdb.Close()
		return nil, err
	}

	log.Info("redis connection successful", zap.String("address", addr))
	return rdb, nil
}
