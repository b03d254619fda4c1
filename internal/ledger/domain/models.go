package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EntryReason classifies why credits moved.
type EntryReason string

const (
	ReasonSignupGrant       EntryReason = "signup_grant"
	ReasonSubscriptionGrant EntryReason = "subscription_grant"
	ReasonRenewalGrant      EntryReason = "renewal_grant"
	ReasonUpgradeGrant      EntryReason = "upgrade_grant"
	ReasonPackPurchase      EntryReason = "pack_purchase"
	ReasonOperation         EntryReason = "operation"
	ReasonRefund            EntryReason = "refund"
	ReasonAdjustment        EntryReason = "admin_adjustment"
)

// CreditBalance is the materialized projection of a user's ledger.
type CreditBalance struct {
	UserID    string    `gorm:"primaryKey;type:text"`
	Balance   int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CreditBalance) TableName() string { return "credit_balances" }

// LedgerEntry is an immutable record of a single credit movement. Positive
// deltas are grants, negative deltas are deductions.
type LedgerEntry struct {
	ID             snowflake.ID      `gorm:"primaryKey"`
	UserID         string            `gorm:"type:text;not null;uniqueIndex:ux_credit_ledger_user_idem,priority:1;index:idx_credit_ledger_user_created,priority:1"`
	Delta          int64             `gorm:"not null"`
	Reason         EntryReason       `gorm:"type:text;not null"`
	Operation      string            `gorm:"type:text;not null;default:''"`
	IdempotencyKey *string           `gorm:"type:text;uniqueIndex:ux_credit_ledger_user_idem,priority:2"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_credit_ledger_user_created,priority:2"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "credit_ledger_entries" }

// Drift reports a user whose projected balance disagrees with the ledger sum.
type Drift struct {
	UserID    string
	Balance   int64
	LedgerSum int64
}
