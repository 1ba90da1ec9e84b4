package models

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nutrinea/nutrinea/internal/pkg/entitlements"
)

const (
	SUBSCRIPTION_FREE         = "free"
	SUBSCRIPTION_PREMIUM      = "premium"
	SUBSCRIPTION_PROFESSIONAL = "professional"
)

// User is the subscription-relevant slice of the auth system's user record.
// Rows are created by the auth system; this service only writes the
// subscription columns and the gateway customer link.
type User struct {
	ID                     string     `gorm:"primaryKey;type:varchar(128)" json:"id" validate:"required,max=128"`
	Name                   string     `gorm:"type:varchar(150)" json:"name" validate:"max=150"`
	Email                  string     `gorm:"type:varchar(200);index" json:"email" validate:"omitempty,email,max=200"`
	SubscriptionStatus     string     `gorm:"type:varchar(20);not null;default:'free'" json:"subscription_status" validate:"omitempty,oneof=free premium professional"`
	SubscriptionExpiresAt  *time.Time `gorm:"type:timestamp;default:null" json:"subscription_expires_at"`
	ExternalSubscriptionID *string    `gorm:"type:varchar(100);default:null" json:"external_subscription_id"`
	ExternalCustomerID     *string    `gorm:"type:varchar(100);default:null;index" json:"external_customer_id"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// EffectiveStatus returns the tier the user is entitled to at the given instant.
func (u *User) EffectiveStatus(now time.Time) entitlements.Plan {
	return entitlements.EffectiveStatus(u.SubscriptionStatus, u.SubscriptionExpiresAt, now)
}

// SubscriptionID returns the stored gateway subscription id or an empty string.
func (u *User) SubscriptionID() string {
	if u.ExternalSubscriptionID == nil {
		return ""
	}
	return *u.ExternalSubscriptionID
}

// CustomerID returns the stored gateway customer id or an empty string.
func (u *User) CustomerID() string {
	if u.ExternalCustomerID == nil {
		return ""
	}
	return *u.ExternalCustomerID
}

// SubscriptionUpdate is a partial write of the subscription columns.
// A nil ExternalSubscriptionID leaves the stored value untouched unless
// ClearExternalSubscriptionID is set.
type SubscriptionUpdate struct {
	Status                      string
	ExpiresAt                   *time.Time
	ExternalSubscriptionID      *string
	ClearExternalSubscriptionID bool
}

// Columns maps the update onto the users table columns it touches.
func (u SubscriptionUpdate) Columns() map[string]any {
	cols := map[string]any{
		"subscription_status":     u.Status,
		"subscription_expires_at": u.ExpiresAt,
	}
	switch {
	case u.ClearExternalSubscriptionID:
		cols["external_subscription_id"] = nil
	case u.ExternalSubscriptionID != nil:
		cols["external_subscription_id"] = *u.ExternalSubscriptionID
	}
	return cols
}

// ApplyTo mirrors Columns on an in-memory record.
func (u SubscriptionUpdate) ApplyTo(user *User) {
	user.SubscriptionStatus = u.Status
	user.SubscriptionExpiresAt = u.ExpiresAt
	switch {
	case u.ClearExternalSubscriptionID:
		user.ExternalSubscriptionID = nil
	case u.ExternalSubscriptionID != nil:
		id := *u.ExternalSubscriptionID
		user.ExternalSubscriptionID = &id
	}
}
