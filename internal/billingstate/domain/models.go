// Package domain defines the point-in-time delinquency snapshot the overdue
// evaluator consumes. A BillingState is recomputed on demand and never
// persisted.
package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// BillingState is the evaluator input for one billing account.
type BillingState struct {
	AccountID snowflake.ID

	NumberOfUnpaidInvoices      int
	BalanceOfUnpaidInvoices     decimal.Decimal
	DateOfEarliestUnpaidInvoice *time.Time
	IDOfEarliestUnpaidInvoice   *snowflake.ID

	AccountTimezone *time.Location
	Tags            []string

	LastPaymentState string

	CurrentPlan          string
	CurrentProduct       string
	CurrentBillingPeriod string
	CurrentPriceList     string
}

// CalculationError wraps a collaborator lookup failure. The evaluation cycle
// for the entity aborts and retries at the next poll.
type CalculationError struct {
	AccountID snowflake.ID
	Stage     string
	Err       error
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("billing state calculation failed for account %s at %s: %v", e.AccountID, e.Stage, e.Err)
}

func (e *CalculationError) Unwrap() error { return e.Err }

// NewCalculationError builds a CalculationError for the given stage.
func NewCalculationError(accountID snowflake.ID, stage string, err error) *CalculationError {
	return &CalculationError{AccountID: accountID, Stage: stage, Err: err}
}

// Calculator derives the BillingState snapshot. Side-effect free.
type Calculator interface {
	Calculate(ctx context.Context, accountID snowflake.ID, asOf time.Time) (BillingState, error)
}
