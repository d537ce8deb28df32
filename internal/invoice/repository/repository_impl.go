package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duno/internal/invoice/domain"
	pkgdb "github.com/smallbiznis/duno/pkg/db"
	"github.com/smallbiznis/duno/pkg/db/option"
	"github.com/smallbiznis/duno/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice, items []domain.InvoiceItem) error {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO invoices (id, org_id, account_id, subscription_id, status, currency, amount, balance, invoice_date, target_date, paid_at, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.OrgID,
		invoice.AccountID,
		invoice.SubscriptionID,
		invoice.Status,
		invoice.Currency,
		invoice.Amount,
		invoice.Balance,
		invoice.InvoiceDate,
		invoice.TargetDate,
		invoice.PaidAt,
		invoice.Metadata,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error
	if err != nil {
		return err
	}
	for i := range items {
		item := &items[i]
		err = db.WithContext(ctx).Exec(
			`INSERT INTO invoice_items (id, org_id, invoice_id, description, quantity, unit_amount, amount, metadata, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID,
			item.OrgID,
			item.InvoiceID,
			item.Description,
			item.Quantity,
			item.UnitAmount,
			item.Amount,
			item.Metadata,
			item.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

const invoiceColumns = `id, org_id, account_id, subscription_id, status, currency, amount, balance, invoice_date, target_date, paid_at, metadata, created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Invoice, error) {
	return r.findByID(ctx, db, orgID, id, "")
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Invoice, error) {
	return r.findByID(ctx, db, orgID, id, pkgdb.RowLockClause(db))
}

func (r *repo) findByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, lock string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices WHERE org_id = ? AND id = ?`+lock,
		orgID,
		id,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListInvoiceFilter, page pagination.Pagination) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	stmt := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("org_id = ?", orgID)
	if filter.AccountID != 0 {
		stmt = stmt.Where("account_id = ?", filter.AccountID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Unpaid {
		stmt = stmt.Where("status = ? AND balance > 0", domain.InvoiceStatusCommitted)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) ListUnpaidAsOf(ctx context.Context, db *gorm.DB, orgID, accountID snowflake.ID, asOf time.Time) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+`
		 FROM invoices
		 WHERE org_id = ? AND account_id = ?
		   AND status = ?
		   AND balance > 0
		   AND invoice_date <= ?
		 ORDER BY invoice_date ASC, id ASC`,
		orgID,
		accountID,
		domain.InvoiceStatusCommitted,
		asOf,
	).Scan(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) UpdateBalance(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices SET balance = ?, status = ?, paid_at = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		invoice.Balance,
		invoice.Status,
		invoice.PaidAt,
		invoice.UpdatedAt,
		invoice.OrgID,
		invoice.ID,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, balance = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		invoice.Status,
		invoice.Balance,
		invoice.UpdatedAt,
		invoice.OrgID,
		invoice.ID,
	).Error
}
