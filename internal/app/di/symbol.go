package di

import (
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	mcadapters "brokerdesk/internal/feature/mastercontract/adapters"
	"brokerdesk/internal/feature/mastercontract/usecase"
	"brokerdesk/internal/platform/cache"
	"brokerdesk/internal/platform/realtime"
)

// NewSymbolStore returns the symtoken repository wrapped in the Redis search cache.
// A nil rdb disables caching.
func NewSymbolStore(rdb *redis.Client, db *gorm.DB) *cache.CachingSymbolRepository {
	// ttl 0: 次の 08:00 IST（マスタ更新時刻）まで
	return cache.NewCachingSymbolRepository(rdb, 0, mcadapters.NewSymbolRepository(db), cache.DefaultNamespace)
}

// NewEventPublisher picks where master contract events go. With Redis every
// server process receives them through its relay; otherwise they reach only
// the local hub. It returns nil when neither is available.
func NewEventPublisher(rdb *redis.Client, hub *realtime.Hub) usecase.EventPublisher {
	if rdb != nil {
		return realtime.NewRedisPublisher(rdb, realtime.DefaultChannel)
	}
	if hub != nil {
		return hub
	}
	return nil
}
