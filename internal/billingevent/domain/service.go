package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Event types emitted by the delinquency pipeline.
const (
	EventTypeOverdueStateChanged = "overdue.state_changed"
	EventTypePaymentSucceeded    = "payment.succeeded"
	EventTypePaymentFailed       = "payment.failed"
)

type RecordRequest struct {
	EventType string
	// DedupeKey suppresses duplicate rows for the same logical event.
	// Empty means no deduplication.
	DedupeKey string
	Payload   map[string]any
}

type Service interface {
	// Record writes an outbox row and queues its dispatch. Recording the
	// same dedupe key twice is a no-op.
	Record(ctx context.Context, req RecordRequest) (*BillingEvent, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *BillingEvent) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*BillingEvent, error)
	MarkPublished(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error
	ListUnpublished(ctx context.Context, db *gorm.DB, orgID snowflake.ID, limit int) ([]BillingEvent, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidEventType    = errors.New("invalid_event_type")
)
