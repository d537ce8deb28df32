// Package domain contains persistence models and gateway contracts for
// payments.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentStatus represents the terminal outcome of one payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
	PaymentStatusError   PaymentStatus = "ERROR"
)

// Payment records one gateway attempt against an invoice.
type Payment struct {
	ID            snowflake.ID      `gorm:"primaryKey"`
	OrgID         snowflake.ID      `gorm:"not null;index"`
	AccountID     snowflake.ID      `gorm:"not null;index:ix_payments_account"`
	InvoiceID     snowflake.ID      `gorm:"not null;index"`
	Status        PaymentStatus     `gorm:"type:text;not null"`
	Gateway       string            `gorm:"type:text;not null"`
	Currency      string            `gorm:"type:text;not null"`
	Amount        decimal.Decimal   `gorm:"type:numeric(20,8);not null"`
	AttemptNumber int               `gorm:"not null;default:1"`
	TransactionRef string           `gorm:"type:text"`
	GatewayError  string            `gorm:"type:text"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	EffectiveAt   time.Time         `gorm:"not null;index:ix_payments_account"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// PaymentMethod describes a stored instrument at the gateway.
type PaymentMethod struct {
	Ref       string `json:"ref"`
	Type      string `json:"type"`
	Last4     string `json:"last4,omitempty"`
	IsDefault bool   `json:"is_default"`
}

// ChargeRequest is the gateway-side view of one attempt.
type ChargeRequest struct {
	OrgID      snowflake.ID
	AccountID  snowflake.ID
	InvoiceID  snowflake.ID
	Currency   string
	Amount     decimal.Decimal
	Idempotency string
}

// ChargeResult carries the gateway outcome. Declined is a business refusal,
// Err a transport or gateway fault.
type ChargeResult struct {
	TransactionRef string
	Declined       bool
	DeclineReason  string
}

type RefundRequest struct {
	OrgID          snowflake.ID
	AccountID      snowflake.ID
	TransactionRef string
	Currency       string
	Amount         decimal.Decimal
}

type RefundResult struct {
	RefundRef string
}

// Gateway is the payment processor contract.
type Gateway interface {
	Name() string
	ProcessPayment(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
	GetPaymentMethods(ctx context.Context, orgID, accountID snowflake.ID) ([]PaymentMethod, error)
}

// GatewayConfig is the per-organization gateway configuration blob.
type GatewayConfig struct {
	OrgID  snowflake.ID
	Config map[string]any
}

// GatewayFactory builds gateways from configuration.
type GatewayFactory interface {
	Provider() string
	NewGateway(cfg GatewayConfig) (Gateway, error)
}

var (
	ErrProviderNotFound = errors.New("payment_provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_gateway_config")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidAccount   = errors.New("invalid_account")
	ErrInvalidInvoice   = errors.New("invalid_invoice")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidID        = errors.New("invalid_id")
	ErrNotFound         = errors.New("not_found")
	ErrNotRefundable    = errors.New("payment_not_refundable")
)
