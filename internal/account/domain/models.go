// Package domain contains persistence models for billing accounts.
package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Account is the billable party that invoices, payments and overdue state
// attach to.
type Account struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID      `gorm:"not null;index" json:"organization_id"`
	ExternalKey string            `gorm:"not null;uniqueIndex:ux_account_external_key" json:"external_key"`
	Name        string            `gorm:"not null" json:"name"`
	Email       string            `gorm:"not null" json:"email"`
	Currency    string            `gorm:"type:text;not null" json:"currency"`
	Timezone    string            `gorm:"type:text;not null;default:'UTC'" json:"timezone"`
	Tags        datatypes.JSON    `gorm:"type:jsonb;not null;default:'[]'" json:"tags"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "accounts" }

// TagNames decodes the stored tag array. A broken column yields no tags
// rather than an error.
func (a *Account) TagNames() []string {
	if len(a.Tags) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(a.Tags, &tags); err != nil {
		return nil
	}
	return tags
}

// SetTagNames encodes tags back into the stored array.
func (a *Account) SetTagNames(tags []string) {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return
	}
	a.Tags = datatypes.JSON(raw)
}

// HasTag reports whether the account carries the named tag.
func (a *Account) HasTag(name string) bool {
	for _, tag := range a.TagNames() {
		if tag == name {
			return true
		}
	}
	return false
}

// Location resolves the account timezone, falling back to UTC for unknown
// or empty zone names.
func (a *Account) Location() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
