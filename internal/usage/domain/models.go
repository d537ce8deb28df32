// Package domain contains persistence models for raw usage ingestion.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// UsageRecord stores a single unit of metered activity attributed to an
// account, and optionally to one of its subscriptions.
type UsageRecord struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID      `gorm:"not null;index" json:"org_id"`
	AccountID      snowflake.ID      `gorm:"not null;index:ix_usage_account" json:"account_id"`
	SubscriptionID *snowflake.ID     `gorm:"index" json:"subscription_id,omitempty"`
	Metric         string            `gorm:"type:text;not null" json:"metric"`
	Quantity       decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"quantity"`
	RecordedAt     time.Time         `gorm:"not null;index:ix_usage_account" json:"recorded_at"`
	IdempotencyKey *string           `gorm:"type:text;uniqueIndex:ux_usage_idempotency" json:"idempotency_key,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }
