// Package domain contains persistence models for outbound push
// notifications.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PushEndpoint is a per-organization callback URL that receives billing
// events.
type PushEndpoint struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index" json:"organization_id"`
	URL       string       `gorm:"type:text;not null" json:"url"`
	Secret    string       `gorm:"type:text;not null" json:"-"`
	Active    bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (PushEndpoint) TableName() string { return "push_endpoints" }

type RegisterEndpointRequest struct {
	URL    string
	Secret string
}

// Event is one outbound delivery.
type Event struct {
	DeliveryID string         `json:"delivery_id"`
	EventType  string         `json:"event_type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

type Service interface {
	Register(context.Context, RegisterEndpointRequest) (PushEndpoint, error)
	Unregister(ctx context.Context, id string) error
	List(ctx context.Context) ([]PushEndpoint, error)

	// Deliver fans the event out to every active endpoint of the org.
	// Delivery failures are logged and swallowed.
	Deliver(ctx context.Context, event Event)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, endpoint *PushEndpoint) error
	Deactivate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error
	ListActive(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]PushEndpoint, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidURL          = errors.New("invalid_url")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("not_found")
)
