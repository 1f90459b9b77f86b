package models

import (
	"time"
)

const (
	TierFree       = "free"
	TierPro        = "pro"
	TierScale      = "scale"
	TierEnterprise = "enterprise"

	SubscriptionTrial    = "trial"
	SubscriptionActive   = "active"
	SubscriptionExpired  = "expired"
	SubscriptionCanceled = "canceled"
)

// Tenant rows are never hard-deleted; subscription fields move through
// soft state transitions driven by billing events and trial sweeps.
type Tenant struct {
	ID                   string     `gorm:"primaryKey;type:text"`
	Email                string     `gorm:"type:text;not null;uniqueIndex"`
	SubscriptionTier     string     `gorm:"type:varchar(20);not null;default:'free'"`
	SubscriptionStatus   string     `gorm:"type:varchar(20);not null;default:'trial';index"`
	StripeCustomerID     *string    `gorm:"type:text"`
	StripeSubscriptionID *string    `gorm:"type:text"`
	TrialEndsAt          *time.Time `gorm:"index"`
	OwnerUserID          *string    `gorm:"type:text"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// SubscriptionActiveAt reports whether the tenant may sync at now:
// active subscriptions always, trials until they lapse.
func (t Tenant) SubscriptionActiveAt(now time.Time) bool {
	switch t.SubscriptionStatus {
	case SubscriptionActive:
		return true
	case SubscriptionTrial:
		return t.TrialEndsAt == nil || t.TrialEndsAt.After(now)
	}
	return false
}
