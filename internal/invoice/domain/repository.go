package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duno/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListInvoiceFilter struct {
	AccountID snowflake.ID
	Status    InvoiceStatus
	// Unpaid narrows to committed invoices that still carry a balance.
	Unpaid bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice, items []InvoiceItem) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListInvoiceFilter, page pagination.Pagination) ([]*Invoice, error)
	ListUnpaidAsOf(ctx context.Context, db *gorm.DB, orgID, accountID snowflake.ID, asOf time.Time) ([]Invoice, error)
	UpdateBalance(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	UpdateStatus(ctx context.Context, db *gorm.DB, invoice *Invoice) error
}
