package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// WebhookEvent records every verified delivery for observability and replay
// detection. The provider+event id pair is unique.
type WebhookEvent struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	Provider   string            `gorm:"type:text;not null;default:'stripe';uniqueIndex:idx_webhook_events_provider_event,priority:1"`
	EventID    string            `gorm:"type:text;not null;uniqueIndex:idx_webhook_events_provider_event,priority:2"`
	EventType  string            `gorm:"type:text;not null;index:idx_webhook_events_type"`
	Outcome    string            `gorm:"type:text;not null;default:''"`
	Payload    datatypes.JSONMap `gorm:"type:jsonb"`
	ReceivedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (WebhookEvent) TableName() string { return "webhook_events" }
