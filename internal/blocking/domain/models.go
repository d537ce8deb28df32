// Package domain contains the blocking state model: an append-only history of
// enforcement states per blockable entity.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// BlockableType identifies what kind of entity a blocking state applies to.
type BlockableType string

const (
	BlockableTypeAccount      BlockableType = "ACCOUNT"
	BlockableTypeBundle       BlockableType = "BUNDLE"
	BlockableTypeSubscription BlockableType = "SUBSCRIPTION"
)

// ServiceOverdue is the service name under which the overdue dispatcher
// records its transitions. Other services may record their own states for the
// same blockable without interfering.
const ServiceOverdue = "overdue-service"

// ClearStateName is the well-known sentinel returned when an entity has no
// recorded state for a service.
const ClearStateName = "__CLEAR__"

var (
	ErrInvalidState     = errors.New("blocking state is invalid")
	ErrStaleEffective   = errors.New("blocking state effective time precedes current state")
	ErrUnknownBlockable = errors.New("unknown blockable type")
)

// BlockingState is one row of the enforcement history. Rows are immutable
// once written.
type BlockingState struct {
	ID               snowflake.ID  `gorm:"primaryKey"`
	OrgID            snowflake.ID  `gorm:"not null;index:ix_blocking_lookup,priority:1"`
	BlockableID      snowflake.ID  `gorm:"not null;index:ix_blocking_lookup,priority:2"`
	BlockableType    BlockableType `gorm:"type:text;not null"`
	StateName        string        `gorm:"type:text;not null"`
	Service          string        `gorm:"type:text;not null;index:ix_blocking_lookup,priority:3"`
	BlockChange      bool          `gorm:"not null;default:false"`
	BlockEntitlement bool          `gorm:"not null;default:false"`
	BlockBilling     bool          `gorm:"not null;default:false"`
	EffectiveAt      time.Time     `gorm:"not null"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BlockingState) TableName() string { return "blocking_states" }

// IsClear reports whether the state is the no-enforcement sentinel.
func (s BlockingState) IsClear() bool {
	return s.StateName == ClearStateName
}

// Clear returns the sentinel state for a blockable that has no history.
func Clear(orgID, blockableID snowflake.ID, blockableType BlockableType, service string) BlockingState {
	return BlockingState{
		OrgID:         orgID,
		BlockableID:   blockableID,
		BlockableType: blockableType,
		StateName:     ClearStateName,
		Service:       service,
	}
}

// Repository persists blocking states. Append must serialize per
// (org, blockable, service) so transition ordering is preserved.
type Repository interface {
	Append(ctx context.Context, db *gorm.DB, state *BlockingState) error
	Latest(ctx context.Context, db *gorm.DB, orgID, blockableID snowflake.ID, service string) (*BlockingState, error)
	History(ctx context.Context, db *gorm.DB, orgID, blockableID snowflake.ID, service string) ([]BlockingState, error)
}

// Service exposes blocking state reads and the serialized append.
type Service interface {
	Append(ctx context.Context, state BlockingState) (BlockingState, error)
	CurrentState(ctx context.Context, blockableID snowflake.ID, blockableType BlockableType, service string) (BlockingState, error)
	History(ctx context.Context, blockableID snowflake.ID, service string) ([]BlockingState, error)
}
