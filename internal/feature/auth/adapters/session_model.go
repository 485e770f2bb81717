package adapters

import (
	"time"

	"gorm.io/gorm"

	"brokerdesk/internal/feature/auth/domain/entity"
)

// SessionModel は sessions テーブルの行です。
// (username, expires_at) の複合インデックスは有効セッションの件数確認と最古削除で使います。
type SessionModel struct {
	ID        string     `gorm:"primaryKey;size:64"`
	Username  string     `gorm:"size:80;not null;index:idx_sessions_user_expiry,priority:1"`
	UserAgent string     `gorm:"size:512"`
	IPAddress string     `gorm:"size:45"`
	CreatedAt time.Time  `gorm:"not null"`
	ExpiresAt time.Time  `gorm:"not null;index;index:idx_sessions_user_expiry,priority:2"`
	RevokedAt *time.Time `gorm:"index"`
}

func (SessionModel) TableName() string {
	return "sessions"
}

// ToEntity は行をドメインの Session に変換します。
func (m *SessionModel) ToEntity() *entity.Session {
	s := entity.Session(*m)
	return &s
}

func sessionRow(s *entity.Session) *SessionModel {
	m := SessionModel(*s)
	return &m
}

// activeSessions は username の失効も期限切れもしていないセッションに絞り込むスコープです。
func activeSessions(username string, now time.Time) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("username = ? AND expires_at > ? AND revoked_at IS NULL", username, now)
	}
}
