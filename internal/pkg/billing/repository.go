package billing

import (
	"context"

	"gorm.io/gorm"

	"github.com/nutrinea/nutrinea/app/models"
	"github.com/nutrinea/nutrinea/app/repository"
)

// Repository provides the persistence operations used by the billing flow.
type Repository interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	FindUserByExternalCustomerID(ctx context.Context, customerID string) (*models.User, error)
	UpdateSubscription(ctx context.Context, userID string, update models.SubscriptionUpdate) error
	SetExternalCustomerID(ctx context.Context, userID, customerID string) error
	CreateWebhookLog(ctx context.Context, entry *models.WebhookLog) error
	ListWebhookLogs(ctx context.Context, offset, limit int) ([]models.WebhookLog, int64, error)
}

type gormRepository struct {
	users repository.UserRepository
	logs  repository.WebhookLogRepository
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return NewRepositoryFrom(repository.NewRepositories(db))
}

// NewRepositoryFrom adapts an existing repository set.
func NewRepositoryFrom(repos *repository.Repositories) Repository {
	return &gormRepository{users: repos.User, logs: repos.WebhookLog}
}

func (r *gormRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return r.users.GetByID(ctx, userID)
}

func (r *gormRepository) FindUserByExternalCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	return r.users.GetByExternalCustomerID(ctx, customerID)
}

func (r *gormRepository) UpdateSubscription(ctx context.Context, userID string, update models.SubscriptionUpdate) error {
	return r.users.UpdateSubscription(ctx, userID, update)
}

func (r *gormRepository) SetExternalCustomerID(ctx context.Context, userID, customerID string) error {
	return r.users.SetExternalCustomerID(ctx, userID, customerID)
}

func (r *gormRepository) CreateWebhookLog(ctx context.Context, entry *models.WebhookLog) error {
	return r.logs.Create(ctx, entry)
}

func (r *gormRepository) ListWebhookLogs(ctx context.Context, offset, limit int) ([]models.WebhookLog, int64, error) {
	total, err := r.logs.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	entries, err := r.logs.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
