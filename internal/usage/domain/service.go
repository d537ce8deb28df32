package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duno/pkg/db/pagination"
	"gorm.io/gorm"
)

type IngestUsageRequest struct {
	AccountID      string          `json:"account_id"`
	SubscriptionID string          `json:"subscription_id,omitempty"`
	Metric         string          `json:"metric"`
	Quantity       decimal.Decimal `json:"quantity"`
	RecordedAt     time.Time       `json:"recorded_at"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
}

type ListUsageRequest struct {
	AccountID string `json:"account_id"`
	Metric    string `json:"metric"`
	PageToken string `json:"page_token"`
	PageSize  int32  `json:"page_size"`
}

type ListUsageResponse struct {
	pagination.PageInfo
	UsageRecords []UsageRecord `json:"usage_records"`
}

type Service interface {
	Ingest(context.Context, IngestUsageRequest) (UsageRecord, error)
	List(context.Context, ListUsageRequest) (ListUsageResponse, error)
}

type ListUsageFilter struct {
	AccountID snowflake.ID
	Metric    string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *UsageRecord) error
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (*UsageRecord, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListUsageFilter, page pagination.Pagination) ([]*UsageRecord, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidAccount      = errors.New("invalid_account")
	ErrInvalidMetric       = errors.New("invalid_metric")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrRateLimited         = errors.New("rate_limited")
	ErrConcurrentIngest    = errors.New("concurrent_ingest")
)
