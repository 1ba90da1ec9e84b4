package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/nutrinea/nutrinea/app/models"
)

type webhookLogRepository struct {
	db *gorm.DB
}

// NewWebhookLogRepository creates a new webhook log repository instance
func NewWebhookLogRepository(db *gorm.DB) WebhookLogRepository {
	return &webhookLogRepository{db: db}
}

// Create appends one entry; entries are never updated afterwards
func (r *webhookLogRepository) Create(ctx context.Context, entry *models.WebhookLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// List returns entries newest first
func (r *webhookLogRepository) List(ctx context.Context, offset, limit int) ([]models.WebhookLog, error) {
	var entries []models.WebhookLog
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *webhookLogRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.WebhookLog{}).Count(&count).Error
	return count, err
}
