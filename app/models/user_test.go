package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrinea/nutrinea/internal/pkg/entitlements"
)

func TestUserEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-time.Minute)

	u := &User{ID: "u1", SubscriptionStatus: SUBSCRIPTION_PREMIUM, SubscriptionExpiresAt: &future}
	assert.Equal(t, entitlements.PlanPremium, u.EffectiveStatus(now))

	u.SubscriptionExpiresAt = &past
	assert.Equal(t, entitlements.PlanFree, u.EffectiveStatus(now))
	// lazy expiry never rewrites the stored value
	assert.Equal(t, SUBSCRIPTION_PREMIUM, u.SubscriptionStatus)

	u.SubscriptionExpiresAt = nil
	assert.Equal(t, entitlements.PlanFree, u.EffectiveStatus(now))
}

func TestSubscriptionUpdateColumns(t *testing.T) {
	exp := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)

	cols := SubscriptionUpdate{Status: SUBSCRIPTION_PREMIUM, ExpiresAt: &exp}.Columns()
	assert.Len(t, cols, 2)
	assert.NotContains(t, cols, "external_subscription_id")

	subID := "sub_123"
	cols = SubscriptionUpdate{Status: SUBSCRIPTION_PREMIUM, ExpiresAt: &exp, ExternalSubscriptionID: &subID}.Columns()
	assert.Equal(t, "sub_123", cols["external_subscription_id"])

	cols = SubscriptionUpdate{Status: SUBSCRIPTION_FREE, ExpiresAt: &exp, ClearExternalSubscriptionID: true}.Columns()
	require.Contains(t, cols, "external_subscription_id")
	assert.Nil(t, cols["external_subscription_id"])
}

func TestSubscriptionUpdateApplyTo(t *testing.T) {
	exp := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	subID := "sub_1"
	u := &User{ID: "u1", Name: "Ana", ExternalSubscriptionID: &subID}

	SubscriptionUpdate{Status: SUBSCRIPTION_PROFESSIONAL, ExpiresAt: &exp}.ApplyTo(u)
	assert.Equal(t, "sub_1", u.SubscriptionID())
	assert.Equal(t, "Ana", u.Name)

	SubscriptionUpdate{Status: SUBSCRIPTION_FREE, ExpiresAt: &exp, ClearExternalSubscriptionID: true}.ApplyTo(u)
	assert.Equal(t, "", u.SubscriptionID())
	assert.Equal(t, SUBSCRIPTION_FREE, u.SubscriptionStatus)
}

func TestUserValidate(t *testing.T) {
	require.NoError(t, (&User{ID: "abc", Email: "ana@example.com", SubscriptionStatus: "premium"}).Validate())
	assert.Error(t, (&User{ID: "abc", SubscriptionStatus: "gold"}).Validate())
	assert.Error(t, (&User{}).Validate())
}
