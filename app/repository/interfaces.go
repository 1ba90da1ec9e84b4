package repository

import (
	"context"

	"github.com/nutrinea/nutrinea/app/models"
)

// UserRepository defines the subscription-related operations on user records
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByExternalCustomerID(ctx context.Context, customerID string) (*models.User, error)
	UpdateSubscription(ctx context.Context, id string, update models.SubscriptionUpdate) error
	SetExternalCustomerID(ctx context.Context, id, customerID string) error
}

// WebhookLogRepository defines the append-only audit log operations
type WebhookLogRepository interface {
	Create(ctx context.Context, entry *models.WebhookLog) error
	List(ctx context.Context, offset, limit int) ([]models.WebhookLog, error)
	Count(ctx context.Context) (int64, error)
}

// Repositories holds all repository instances
type Repositories struct {
	User       UserRepository
	WebhookLog WebhookLogRepository
}
