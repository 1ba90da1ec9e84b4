package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/nutrinea/nutrinea/app/models"
)

// MemoryRepository is an in-process Repository used by tests and local tooling.
type MemoryRepository struct {
	mu    sync.Mutex
	users map[string]*models.User
	logs  []models.WebhookLog
	now   func() time.Time
}

func NewMemoryRepository(users ...*models.User) *MemoryRepository {
	r := &MemoryRepository{users: make(map[string]*models.User), now: time.Now}
	for _, u := range users {
		r.PutUser(u)
	}
	return r
}

// PutUser stores a copy of u.
func (r *MemoryRepository) PutUser(u *models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.ID] = &cp
}

// User returns a copy of the stored user, or nil.
func (r *MemoryRepository) User(id string) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

// Logs returns the audit entries in insertion order.
func (r *MemoryRepository) Logs() []models.WebhookLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.WebhookLog(nil), r.logs...)
}

func (r *MemoryRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	if u := r.User(userID); u != nil {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *MemoryRepository) FindUserByExternalCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if customerID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	for _, u := range r.users {
		if u.CustomerID() == customerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *MemoryRepository) UpdateSubscription(ctx context.Context, userID string, update models.SubscriptionUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	update.ApplyTo(u)
	u.UpdatedAt = r.now()
	return nil
}

func (r *MemoryRepository) SetExternalCustomerID(ctx context.Context, userID, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	id := customerID
	u.ExternalCustomerID = &id
	return nil
}

func (r *MemoryRepository) CreateWebhookLog(ctx context.Context, entry *models.WebhookLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	r.logs = append(r.logs, *entry)
	return nil
}

func (r *MemoryRepository) ListWebhookLogs(ctx context.Context, offset, limit int) ([]models.WebhookLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sorted := append([]models.WebhookLog(nil), r.logs...)
	// newest first; insertion order breaks ties
	idx := make(map[string]int, len(sorted))
	for i, l := range sorted {
		idx[l.ID] = i
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return idx[sorted[i].ID] > idx[sorted[j].ID]
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	total := int64(len(sorted))
	if offset >= len(sorted) {
		return []models.WebhookLog{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(sorted) {
		end = len(sorted)
	}
	return sorted[offset:end], total, nil
}
