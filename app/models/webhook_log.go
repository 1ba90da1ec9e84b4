package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	WEBHOOK_LOG_SUCCESS = "SUCCESS"
	WEBHOOK_LOG_FAILURE = "FAILURE"
)

// WebhookLog is one append-only audit entry for an inbound gateway delivery.
type WebhookLog struct {
	ID        string    `gorm:"primaryKey;type:char(36)" json:"id"`
	Event     string    `gorm:"type:varchar(100);index" json:"event"`
	Payload   string    `gorm:"type:longtext" json:"payload"`
	Status    string    `gorm:"type:varchar(10);not null;index" json:"status"`
	Details   string    `gorm:"type:text" json:"details"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (WebhookLog) TableName() string {
	return "webhook_logs"
}

func NewWebhookLog(event, payload, status, details string) *WebhookLog {
	return &WebhookLog{
		ID:      uuid.NewString(),
		Event:   event,
		Payload: payload,
		Status:  status,
		Details: details,
	}
}

func (l *WebhookLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
