package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duno/pkg/db/pagination"
)

type ProcessPaymentRequest struct {
	AccountID string
	InvoiceID string
	// Amount defaults to the remaining invoice balance when zero.
	Amount decimal.Decimal
}

type RefundPaymentRequest struct {
	PaymentID string
	Amount    decimal.Decimal
}

type ListPaymentRequest struct {
	PageToken string
	PageSize  int32
	AccountID string
	Status    PaymentStatus
}

type ListPaymentResponse struct {
	pagination.PageInfo
	Payments []Payment `json:"payments"`
}

type Service interface {
	Process(context.Context, ProcessPaymentRequest) (Payment, error)
	Refund(context.Context, RefundPaymentRequest) (Payment, error)
	GetByID(ctx context.Context, id string) (Payment, error)
	List(context.Context, ListPaymentRequest) (ListPaymentResponse, error)
	GetPaymentMethods(ctx context.Context, accountID string) ([]PaymentMethod, error)

	// LastAttempt returns the account's most recent payment attempt, nil
	// when the account has never been charged.
	LastAttempt(ctx context.Context, accountID snowflake.ID) (*Payment, error)
}
