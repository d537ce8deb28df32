// Package domain contains persistence models for the tenant service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Tenant is a billing organization. Its ID is the org_id carried through
// request contexts and stamped on every owned row.
type Tenant struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name         string            `gorm:"type:text;not null" json:"name"`
	Slug         string            `gorm:"type:text;not null;uniqueIndex:ux_tenants_slug" json:"slug"`
	SupportEmail string            `gorm:"type:text;column:support_email" json:"support_email"`
	Currency     string            `gorm:"type:char(3);not null" json:"currency"`
	Timezone     string            `gorm:"type:text;not null" json:"timezone"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

// Member roles, ordered from widest to narrowest grant.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleFinOps = "finops"
	RoleMember = "member"
)

// Member links a user to a tenant with a single role. One row per
// (tenant, user) pair.
type Member struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;uniqueIndex:ux_tenant_members_org_user" json:"org_id"`
	UserID    string       `gorm:"type:text;not null;uniqueIndex:ux_tenant_members_org_user" json:"user_id"`
	Role      string       `gorm:"type:text;not null" json:"role"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "tenant_members" }

// ValidRole reports whether role is one of the recognized member roles.
func ValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleFinOps, RoleMember:
		return true
	}
	return false
}
