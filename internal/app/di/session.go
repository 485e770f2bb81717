// Package di provides dependency injection factories for creating application components.
package di

import (
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	authadapters "brokerdesk/internal/feature/auth/adapters"
	"brokerdesk/internal/feature/auth/usecase"
)

// SessionKeyPrefix namespaces session records in Redis.
const SessionKeyPrefix = "session"

// NewSessionRepository creates a SessionRepository implementation.
// If Redis is available, it returns a Redis-backed implementation.
// Otherwise, it falls back to the sessions table.
func NewSessionRepository(rdb *redis.Client, db *gorm.DB) usecase.SessionRepository {
	if rdb != nil {
		return authadapters.NewSessionRedis(rdb, SessionKeyPrefix)
	}
	return authadapters.NewSessionGorm(db)
}
