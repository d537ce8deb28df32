// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft      InvoiceStatus = "DRAFT"
	InvoiceStatusCommitted  InvoiceStatus = "COMMITTED"
	InvoiceStatusPaid       InvoiceStatus = "PAID"
	InvoiceStatusVoid       InvoiceStatus = "VOID"
	InvoiceStatusWrittenOff InvoiceStatus = "WRITTEN_OFF"
)

// Invoice represents a generated invoice. Balance is the amount still owed
// after applied payments and adjustments.
type Invoice struct {
	ID             snowflake.ID      `gorm:"primaryKey"`
	OrgID          snowflake.ID      `gorm:"not null;index"`
	AccountID      snowflake.ID      `gorm:"not null;index:ix_invoices_account"`
	SubscriptionID *snowflake.ID     `gorm:"index"`
	Status         InvoiceStatus     `gorm:"type:text;not null;default:'DRAFT'"`
	Currency       string            `gorm:"type:text;not null"`
	Amount         decimal.Decimal   `gorm:"type:numeric(20,8);not null"`
	Balance        decimal.Decimal   `gorm:"type:numeric(20,8);not null"`
	InvoiceDate    time.Time         `gorm:"not null;index:ix_invoices_account"`
	TargetDate     time.Time         `gorm:"not null"`
	PaidAt         *time.Time        `gorm:""`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// IsUnpaid reports whether the invoice still counts toward delinquency.
// Draft, void and written-off invoices never do.
func (inv *Invoice) IsUnpaid() bool {
	switch inv.Status {
	case InvoiceStatusDraft, InvoiceStatusVoid, InvoiceStatusWrittenOff:
		return false
	}
	return inv.Balance.IsPositive()
}

// InvoiceItem represents a line on an invoice.
type InvoiceItem struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	OrgID       snowflake.ID      `gorm:"not null;index"`
	InvoiceID   snowflake.ID      `gorm:"not null;index"`
	Description string            `gorm:"type:text"`
	Quantity    int64             `gorm:"not null;default:1"`
	UnitAmount  decimal.Decimal   `gorm:"type:numeric(20,8);not null"`
	Amount      decimal.Decimal   `gorm:"type:numeric(20,8);not null"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }
