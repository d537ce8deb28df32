// Package domain describes the receivables aging report.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// AgingBucketTotal is one slice of the aging report. MaxDays nil means
// open-ended.
type AgingBucketTotal struct {
	Label        string          `json:"label"`
	MinDays      int             `json:"min_days"`
	MaxDays      *int            `json:"max_days,omitempty"`
	InvoiceCount int             `json:"invoice_count"`
	Balance      decimal.Decimal `json:"balance"`
}

type AgingReport struct {
	AsOf         time.Time          `json:"as_of"`
	InvoiceCount int                `json:"invoice_count"`
	TotalBalance decimal.Decimal    `json:"total_balance"`
	Buckets      []AgingBucketTotal `json:"buckets"`
}

type Service interface {
	// Aging buckets outstanding invoice balances by days past target date.
	Aging(ctx context.Context) (AgingReport, error)
}

var ErrInvalidOrganization = errors.New("invalid_organization")
