package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duno/internal/clock"
	"github.com/smallbiznis/duno/internal/invoice/domain"
	"github.com/smallbiznis/duno/internal/invoice/repository"
	"github.com/smallbiznis/duno/internal/orgcontext"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type invoiceFixture struct {
	db      *gorm.DB
	clock   *clock.FakeClock
	service domain.Service
	ctx     context.Context
	orgID   snowflake.ID
}

func setupInvoice(t *testing.T) *invoiceFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Exec(`
		CREATE TABLE invoices (
			id INTEGER PRIMARY KEY,
			org_id INTEGER NOT NULL,
			account_id INTEGER NOT NULL,
			subscription_id INTEGER,
			status TEXT NOT NULL DEFAULT 'DRAFT',
			currency TEXT NOT NULL,
			amount NUMERIC NOT NULL,
			balance NUMERIC NOT NULL,
			invoice_date DATETIME NOT NULL,
			target_date DATETIME NOT NULL,
			paid_at DATETIME,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error)
	require.NoError(t, db.Exec(`
		CREATE TABLE invoice_items (
			id INTEGER PRIMARY KEY,
			org_id INTEGER NOT NULL,
			invoice_id INTEGER NOT NULL,
			description TEXT,
			quantity INTEGER NOT NULL DEFAULT 1,
			unit_amount NUMERIC NOT NULL,
			amount NUMERIC NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL
		)
	`).Error)

	fakeClock := clock.NewFakeClock(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
		Repo:  repository.Provide(),
	})

	orgID := node.Generate()
	return &invoiceFixture{
		db:      db,
		clock:   fakeClock,
		service: svc,
		ctx:     orgcontext.WithOrgID(context.Background(), orgID),
		orgID:   orgID,
	}
}

func (f *invoiceFixture) create(t *testing.T, accountID snowflake.ID, unitAmount string, invoiceDate time.Time) domain.Invoice {
	t.Helper()
	inv, err := f.service.Create(f.ctx, domain.CreateInvoiceRequest{
		AccountID:   accountID.String(),
		Currency:    "USD",
		InvoiceDate: &invoiceDate,
		Items: []domain.CreateInvoiceItem{
			{Description: "subscription", Quantity: 1, UnitAmount: decimal.RequireFromString(unitAmount)},
		},
	})
	require.NoError(t, err)
	return inv
}

func TestCreateCommitsWithItemTotal(t *testing.T) {
	f := setupInvoice(t)
	accountID := snowflake.ID(200)

	inv, err := f.service.Create(f.ctx, domain.CreateInvoiceRequest{
		AccountID: accountID.String(),
		Currency:  "usd",
		Items: []domain.CreateInvoiceItem{
			{Description: "base plan", Quantity: 2, UnitAmount: decimal.RequireFromString("10.00")},
			{Description: "add-on", UnitAmount: decimal.RequireFromString("5.50")},
		},
	})
	require.NoError(t, err)

	require.Equal(t, domain.InvoiceStatusCommitted, inv.Status)
	require.Equal(t, "USD", inv.Currency)
	require.True(t, inv.Amount.Equal(decimal.RequireFromString("25.50")))
	require.True(t, inv.Balance.Equal(inv.Amount))
	require.Nil(t, inv.PaidAt)

	var itemCount int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM invoice_items WHERE invoice_id = ?`, inv.ID).Scan(&itemCount).Error)
	require.EqualValues(t, 2, itemCount)
}

func TestCreateZeroTotalIsImmediatelyPaid(t *testing.T) {
	f := setupInvoice(t)

	inv, err := f.service.Create(f.ctx, domain.CreateInvoiceRequest{
		AccountID: snowflake.ID(200).String(),
		Currency:  "USD",
		Items: []domain.CreateInvoiceItem{
			{Description: "trial credit", UnitAmount: decimal.Zero},
		},
	})
	require.NoError(t, err)
	require.Equal(t, domain.InvoiceStatusPaid, inv.Status)
	require.NotNil(t, inv.PaidAt)
}

func TestCreateRejectsBadInput(t *testing.T) {
	f := setupInvoice(t)
	accountID := snowflake.ID(200)

	_, err := f.service.Create(f.ctx, domain.CreateInvoiceRequest{
		AccountID: accountID.String(),
		Currency:  "USD",
	})
	require.ErrorIs(t, err, domain.ErrInvalidItems)

	_, err = f.service.Create(f.ctx, domain.CreateInvoiceRequest{
		AccountID: accountID.String(),
		Currency:  "dollars",
		Items:     []domain.CreateInvoiceItem{{UnitAmount: decimal.RequireFromString("1")}},
	})
	require.ErrorIs(t, err, domain.ErrInvalidCurrency)

	_, err = f.service.Create(f.ctx, domain.CreateInvoiceRequest{
		AccountID: accountID.String(),
		Currency:  "USD",
		Items:     []domain.CreateInvoiceItem{{UnitAmount: decimal.RequireFromString("-1")}},
	})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestUnpaidAsOfOrdersOldestFirstAndFilters(t *testing.T) {
	f := setupInvoice(t)
	accountID := snowflake.ID(200)
	base := f.clock.Now()

	newest := f.create(t, accountID, "30.00", base.AddDate(0, 0, -1))
	oldest := f.create(t, accountID, "10.00", base.AddDate(0, 0, -20))
	middle := f.create(t, accountID, "20.00", base.AddDate(0, 0, -10))
	future := f.create(t, accountID, "40.00", base.AddDate(0, 0, 5))
	voided := f.create(t, accountID, "50.00", base.AddDate(0, 0, -30))

	_, err := f.service.Void(f.ctx, voided.ID.String())
	require.NoError(t, err)

	unpaid, err := f.service.UnpaidAsOf(f.ctx, accountID, base)
	require.NoError(t, err)

	require.Len(t, unpaid, 3)
	require.Equal(t, oldest.ID, unpaid[0].ID)
	require.Equal(t, middle.ID, unpaid[1].ID)
	require.Equal(t, newest.ID, unpaid[2].ID)
	_ = future
}

func TestVoidIsTerminal(t *testing.T) {
	f := setupInvoice(t)
	inv := f.create(t, 200, "25.00", f.clock.Now())

	voided, err := f.service.Void(f.ctx, inv.ID.String())
	require.NoError(t, err)
	require.Equal(t, domain.InvoiceStatusVoid, voided.Status)
	require.True(t, voided.Balance.IsZero())

	_, err = f.service.Void(f.ctx, inv.ID.String())
	require.ErrorIs(t, err, domain.ErrNotPayable)
}

func TestWriteOffClearsOutstandingBalance(t *testing.T) {
	f := setupInvoice(t)
	accountID := snowflake.ID(200)
	inv := f.create(t, accountID, "25.00", f.clock.Now().AddDate(0, 0, -10))

	written, err := f.service.WriteOff(f.ctx, inv.ID.String())
	require.NoError(t, err)
	require.Equal(t, domain.InvoiceStatusWrittenOff, written.Status)
	require.True(t, written.Balance.IsZero())

	unpaid, err := f.service.UnpaidAsOf(f.ctx, accountID, f.clock.Now())
	require.NoError(t, err)
	require.Empty(t, unpaid)
}

func TestApplyPaymentPartialThenFull(t *testing.T) {
	f := setupInvoice(t)
	inv := f.create(t, 200, "100.00", f.clock.Now())

	err := f.db.Transaction(func(tx *gorm.DB) error {
		updated, err := f.service.ApplyPayment(f.ctx, tx, inv.ID, decimal.RequireFromString("40.00"), f.clock.Now())
		require.NoError(t, err)
		require.Equal(t, domain.InvoiceStatusCommitted, updated.Status)
		require.True(t, updated.Balance.Equal(decimal.RequireFromString("60.00")))
		return nil
	})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	err = f.db.Transaction(func(tx *gorm.DB) error {
		updated, err := f.service.ApplyPayment(f.ctx, tx, inv.ID, decimal.RequireFromString("60.00"), f.clock.Now())
		require.NoError(t, err)
		require.Equal(t, domain.InvoiceStatusPaid, updated.Status)
		require.True(t, updated.Balance.IsZero())
		require.NotNil(t, updated.PaidAt)
		return nil
	})
	require.NoError(t, err)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.service.ApplyPayment(f.ctx, tx, inv.ID, decimal.RequireFromString("1.00"), f.clock.Now())
		return err
	})
	require.ErrorIs(t, err, domain.ErrNotPayable)
}
