// Package domain contains persistence models for bundles and subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "PENDING"
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusBlocked   SubscriptionStatus = "BLOCKED"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
)

// SubscriptionCategory distinguishes the base subscription of a bundle from
// its add-ons.
type SubscriptionCategory string

const (
	CategoryBase       SubscriptionCategory = "BASE"
	CategoryAddOn      SubscriptionCategory = "ADD_ON"
	CategoryStandalone SubscriptionCategory = "STANDALONE"
)

// BillingPeriod is the recurring charge cadence of a plan.
type BillingPeriod string

const (
	BillingPeriodMonthly   BillingPeriod = "MONTHLY"
	BillingPeriodQuarterly BillingPeriod = "QUARTERLY"
	BillingPeriodAnnual    BillingPeriod = "ANNUAL"
	BillingPeriodNoBilling BillingPeriod = "NO_BILLING_PERIOD"
)

// Bundle groups the subscriptions an account holds for one external key.
type Bundle struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	OrgID       snowflake.ID `gorm:"not null;index"`
	AccountID   snowflake.ID `gorm:"not null;index"`
	ExternalKey string       `gorm:"not null;uniqueIndex:ux_bundle_external_key"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Bundle) TableName() string { return "bundles" }

// Subscription captures an account's entitlement to one plan.
type Subscription struct {
	ID            snowflake.ID         `gorm:"primaryKey"`
	OrgID         snowflake.ID         `gorm:"not null;index"`
	BundleID      snowflake.ID         `gorm:"not null;index"`
	AccountID     snowflake.ID         `gorm:"not null;index"`
	Category      SubscriptionCategory `gorm:"type:text;not null;default:'BASE'"`
	Status        SubscriptionStatus   `gorm:"type:text;not null;default:'ACTIVE'"`
	PlanName      string               `gorm:"type:text;not null"`
	ProductName   string               `gorm:"type:text;not null"`
	BillingPeriod BillingPeriod        `gorm:"type:text;not null"`
	PriceList     string               `gorm:"type:text;not null;default:'DEFAULT'"`
	StartAt       time.Time            `gorm:"not null"`
	CancelledAt   *time.Time           `gorm:""`
	Metadata      datatypes.JSONMap    `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt     time.Time            `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time            `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// PlanInfo is the slice of subscription data the delinquency snapshot needs.
type PlanInfo struct {
	PlanName      string
	ProductName   string
	BillingPeriod BillingPeriod
	PriceList     string
}
