package usecase

import (
	"context"

	"brokerdesk/internal/feature/auth/domain/entity"
)

// SessionRepository abstracts the persistence layer for session records.
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type SessionRepository interface {
	// Create persists a new session to the storage.
	Create(ctx context.Context, session *entity.Session) error

	// FindByID retrieves a session by its ID.
	FindByID(ctx context.Context, id string) (*entity.Session, error)

	// Revoke marks a session as revoked by setting RevokedAt.
	Revoke(ctx context.Context, id string) error

	// DeleteExpired removes all expired sessions from storage.
	// Returns the number of deleted sessions.
	DeleteExpired(ctx context.Context) (int64, error)

	// CountByUsername returns the number of active sessions for a user.
	CountByUsername(ctx context.Context, username string) (int64, error)

	// DeleteOldestByUsername deletes the oldest active session for a user.
	DeleteOldestByUsername(ctx context.Context, username string) error
}
