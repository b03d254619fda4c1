package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog records a billing-relevant action for later inspection.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	Actor      string            `gorm:"type:text;not null;default:''"`
	Action     string            `gorm:"type:text;not null"`
	Resource   string            `gorm:"type:text;not null;default:'';index:idx_audit_logs_resource,priority:1"`
	ResourceID string            `gorm:"type:text;not null;default:'';index:idx_audit_logs_resource,priority:2"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

type Service interface {
	AuditLog(ctx context.Context, actor, action, resource, resourceID string, metadata map[string]any) error
	List(ctx context.Context, resource, resourceID string, limit int) ([]AuditLog, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, resource, resourceID string, limit int) ([]AuditLog, error)
}

var ErrInvalidAction = errors.New("invalid_action")
