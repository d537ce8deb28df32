// Package domain contains the durable notification queue model. Entries are
// scheduled work items delivered at least once; handlers must be idempotent.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProcessingState is the lifecycle of a queue entry.
type ProcessingState string

const (
	StateAvailable    ProcessingState = "AVAILABLE"
	StateInProcessing ProcessingState = "IN_PROCESSING"
	StateProcessed    ProcessingState = "PROCESSED"
	StateRemoved      ProcessingState = "REMOVED"
	StateFailed       ProcessingState = "FAILED"
)

// Well-known queue names.
const (
	QueueOverdueCheck  = "overdue-check"
	QueuePaymentRetry  = "payment-retry"
	QueueEventDispatch = "event-dispatch"
)

var (
	ErrUnknownQueue  = errors.New("no handler registered for queue")
	ErrInvalidEntry  = errors.New("notification entry is invalid")
	ErrHandlerExists = errors.New("handler already registered for queue")
)

// Notification is one durable queue entry.
type Notification struct {
	ID                    snowflake.ID      `gorm:"primaryKey"`
	OrgID                 snowflake.ID      `gorm:"not null;index:ix_notifications_key,priority:1"`
	QueueName             string            `gorm:"type:text;not null;index:ix_notifications_key,priority:2"`
	EntryKey              string            `gorm:"type:text;not null;index:ix_notifications_key,priority:3"`
	KeyClass              string            `gorm:"type:text;not null"`
	Payload               datatypes.JSONMap `gorm:"type:jsonb"`
	EffectiveAt           time.Time         `gorm:"not null;index"`
	ProcessingState       ProcessingState   `gorm:"type:text;not null;index"`
	ProcessingOwner       *string           `gorm:"type:text"`
	ProcessingAvailableAt *time.Time        `gorm:""`
	ErrorCount            int               `gorm:"not null;default:0"`
	CreatedAt             time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt             time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }

// Handler processes a claimed entry. Delivery is at-least-once: a handler
// must tolerate seeing the same entry twice.
type Handler interface {
	Handle(ctx context.Context, entry Notification) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, entry Notification) error

func (f HandlerFunc) Handle(ctx context.Context, entry Notification) error {
	return f(ctx, entry)
}

// Service is the producer side of the queue.
type Service interface {
	// Post inserts an entry that becomes claimable at effectiveAt.
	Post(ctx context.Context, queueName, entryKey, keyClass string, payload map[string]any, effectiveAt time.Time) (Notification, error)
	// PostReplacing removes any pending entry for (queue, key) before
	// inserting, so a superseding schedule never double-fires.
	PostReplacing(ctx context.Context, queueName, entryKey, keyClass string, payload map[string]any, effectiveAt time.Time) (Notification, error)
	// CancelPending removes pending entries for (queue, key).
	CancelPending(ctx context.Context, queueName, entryKey string) error
	// Pending returns not-yet-claimed entries for (queue, key), soonest first.
	Pending(ctx context.Context, queueName, entryKey string) ([]Notification, error)
}

// Repository persists queue entries.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *Notification) error
	// ClaimDue atomically flips due AVAILABLE rows to IN_PROCESSING for the
	// given owner and returns them, oldest effective date first.
	ClaimDue(ctx context.Context, db *gorm.DB, owner string, now time.Time, limit int) ([]Notification, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	// Reschedule returns a failed entry to AVAILABLE at the given time.
	Reschedule(ctx context.Context, db *gorm.DB, id snowflake.ID, availableAt, now time.Time, errorCount int) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time, errorCount int) error
	RemovePending(ctx context.Context, db *gorm.DB, orgID snowflake.ID, queueName, entryKey string) error
	FindPending(ctx context.Context, db *gorm.DB, orgID snowflake.ID, queueName, entryKey string) ([]Notification, error)
}
