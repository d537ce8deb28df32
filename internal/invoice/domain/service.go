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

type CreateInvoiceItem struct {
	Description string
	Quantity    int64
	UnitAmount  decimal.Decimal
}

type CreateInvoiceRequest struct {
	AccountID      string
	SubscriptionID string
	Currency       string
	InvoiceDate    *time.Time
	TargetDate     *time.Time
	Items          []CreateInvoiceItem
}

type ListInvoiceRequest struct {
	PageToken string
	PageSize  int32
	AccountID string
	Status    InvoiceStatus
	Unpaid    bool
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type Service interface {
	Create(context.Context, CreateInvoiceRequest) (Invoice, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	List(context.Context, ListInvoiceRequest) (ListInvoiceResponse, error)
	Void(ctx context.Context, id string) (Invoice, error)
	WriteOff(ctx context.Context, id string) (Invoice, error)

	// UnpaidAsOf returns committed invoices with a positive balance whose
	// invoice date is not after asOf, oldest first.
	UnpaidAsOf(ctx context.Context, accountID snowflake.ID, asOf time.Time) ([]Invoice, error)

	// ApplyPayment reduces an invoice balance inside the caller's
	// transaction, flipping status to PAID when the balance reaches zero.
	ApplyPayment(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID, amount decimal.Decimal, paidAt time.Time) (Invoice, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidAccount      = errors.New("invalid_account")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidItems        = errors.New("invalid_items")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("not_found")
	ErrNotPayable          = errors.New("invoice_not_payable")
)
