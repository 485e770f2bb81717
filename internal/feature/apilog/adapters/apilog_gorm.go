// Package adapters はAPIログのGORMリポジトリを提供します。
package adapters

import (
	"context"
	"time"

	"gorm.io/gorm"

	"brokerdesk/internal/feature/apilog/domain/entity"
	"brokerdesk/internal/feature/apilog/usecase"
)

type apiLogGorm struct {
	db *gorm.DB
}

var _ usecase.Repository = (*apiLogGorm)(nil)

// NewAPILogRepository creates a GORM-backed APILog repository.
func NewAPILogRepository(db *gorm.DB) *apiLogGorm {
	return &apiLogGorm{db: db}
}

// Create inserts one log row.
func (r *apiLogGorm) Create(ctx context.Context, log *entity.APILog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// Recent returns the newest logs first.
func (r *apiLogGorm) Recent(ctx context.Context, limit int) ([]entity.APILog, error) {
	var logs []entity.APILog
	err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// DeleteBefore removes rows older than cutoff and returns how many were deleted.
func (r *apiLogGorm) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&entity.APILog{})
	return res.RowsAffected, res.Error
}
