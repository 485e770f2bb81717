// Package entity はAPIリクエストログのドメインエンティティを定義します。
package entity

import "time"

// MaxRequestDataBytes は request_data に保存する最大バイト数です。
const MaxRequestDataBytes = 2048

// APILog は1件のAPIリクエストの記録です。
type APILog struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	Method      string    `gorm:"size:10;not null"`
	Path        string    `gorm:"size:255;index;not null"`
	Status      int       `gorm:"not null"`
	RemoteAddr  string    `gorm:"size:45"`
	RequestData string    `gorm:"type:text"`
	LatencyMs   int64     `gorm:"not null"`
	CreatedAt   time.Time `gorm:"index;not null"`
}

// TableName returns the table name for GORM.
func (APILog) TableName() string {
	return "api_logs"
}
