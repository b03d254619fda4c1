// Package domain contains persistence models for user subscriptions.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tier orders the product plans from free upward.
type Tier string

const (
	TierFree    Tier = "free"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
)

// Rank orders tiers so upgrades and downgrades can be compared.
func (t Tier) Rank() int {
	switch t {
	case TierPro:
		return 1
	case TierPremium:
		return 2
	default:
		return 0
	}
}

// Paid reports whether the tier is a paying plan.
func (t Tier) Paid() bool { return t.Rank() > 0 }

// ParseTier normalizes a tier string, defaulting to free.
func ParseTier(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(TierPro):
		return TierPro
	case string(TierPremium):
		return TierPremium
	default:
		return TierFree
	}
}

// Status represents subscription lifecycle states mirrored from the
// payment provider.
type Status string

const (
	StatusNone     Status = "none"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusPaused   Status = "paused"
)

// Usable reports whether the subscription still grants its tier benefits.
func (s Status) Usable() bool {
	return s == StatusActive || s == StatusPastDue
}

// Subscription is the local mirror of a user's provider subscription. Every
// user has at most one row; users without one are implicitly on the free tier.
type Subscription struct {
	ID                     snowflake.ID `gorm:"primaryKey"`
	UserID                 string       `gorm:"type:text;not null;uniqueIndex:idx_subscriptions_user"`
	ProviderCustomerID     string       `gorm:"type:text;not null;default:'';index:idx_subscriptions_provider_customer"`
	ProviderSubscriptionID string       `gorm:"type:text;not null;default:'';index:idx_subscriptions_provider_subscription"`
	PriceID                string       `gorm:"type:text;not null;default:''"`
	Tier                   Tier         `gorm:"type:text;not null;default:'free'"`
	Status                 Status       `gorm:"type:text;not null;default:'none'"`
	CancelAtPeriodEnd      bool         `gorm:"not null;default:false"`
	CurrentPeriodStart     *time.Time   `gorm:""`
	CurrentPeriodEnd       *time.Time   `gorm:""`
	CreatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// EffectiveTier is the tier the user is entitled to right now.
func (s *Subscription) EffectiveTier() Tier {
	if s == nil || !s.Status.Usable() {
		return TierFree
	}
	return s.Tier
}

// ProviderState is the subset of provider subscription data the webhook
// stream reconciles into the local mirror.
type ProviderState struct {
	UserID             string
	CustomerID         string
	SubscriptionID     string
	PriceID            string
	Tier               Tier
	Status             Status
	CancelAtPeriodEnd  bool
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
}
