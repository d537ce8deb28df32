package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duno/internal/clock"
	"github.com/smallbiznis/duno/internal/collections/domain"
	"github.com/smallbiznis/duno/internal/config"
	"github.com/smallbiznis/duno/internal/orgcontext"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type agingFixture struct {
	db      *gorm.DB
	clock   *clock.FakeClock
	service domain.Service
	ctx     context.Context
	orgID   snowflake.ID
}

func setupAging(t *testing.T) *agingFixture {
	t.Helper()
	t.Chdir(t.TempDir())

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
			status TEXT NOT NULL,
			balance NUMERIC NOT NULL,
			target_date DATETIME NOT NULL
		)
	`).Error)

	holder, err := config.NewCollectionsConfigHolder()
	require.NoError(t, err)

	fakeClock := clock.NewFakeClock(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	orgID := snowflake.ID(100)
	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  fakeClock,
		Holder: holder,
	})

	return &agingFixture{
		db:      db,
		clock:   fakeClock,
		service: svc,
		ctx:     orgcontext.WithOrgID(context.Background(), orgID),
		orgID:   orgID,
	}
}

func (f *agingFixture) insert(t *testing.T, id int64, status, balance string, ageDays int) {
	t.Helper()
	require.NoError(t, f.db.Exec(
		`INSERT INTO invoices (id, org_id, account_id, status, balance, target_date) VALUES (?, ?, 200, ?, ?, ?)`,
		id, f.orgID, status, balance, f.clock.Now().AddDate(0, 0, -ageDays),
	).Error)
}

func TestAgingBucketsByDaysPastTarget(t *testing.T) {
	f := setupAging(t)

	f.insert(t, 1, "COMMITTED", "10.00", 5)   // 0-30
	f.insert(t, 2, "COMMITTED", "20.00", 45)  // 31-60
	f.insert(t, 3, "COMMITTED", "30.00", 90)  // 60+
	f.insert(t, 4, "COMMITTED", "40.00", 0)   // due today, 0-30
	f.insert(t, 5, "PAID", "0", 45)           // ignored
	f.insert(t, 6, "COMMITTED", "0", 45)      // zero balance ignored
	f.insert(t, 7, "DRAFT", "99.00", 45)      // ignored

	report, err := f.service.Aging(f.ctx)
	require.NoError(t, err)

	require.Equal(t, 4, report.InvoiceCount)
	require.True(t, report.TotalBalance.Equal(decimal.RequireFromString("100.00")))
	require.Len(t, report.Buckets, 3)

	require.Equal(t, "0-30", report.Buckets[0].Label)
	require.Equal(t, 2, report.Buckets[0].InvoiceCount)
	require.True(t, report.Buckets[0].Balance.Equal(decimal.RequireFromString("50.00")))

	require.Equal(t, "31-60", report.Buckets[1].Label)
	require.Equal(t, 1, report.Buckets[1].InvoiceCount)
	require.True(t, report.Buckets[1].Balance.Equal(decimal.RequireFromString("20.00")))

	require.Equal(t, "60+", report.Buckets[2].Label)
	require.Equal(t, 1, report.Buckets[2].InvoiceCount)
	require.True(t, report.Buckets[2].Balance.Equal(decimal.RequireFromString("30.00")))
}

func TestAgingNotDueYetCountsAsCurrent(t *testing.T) {
	f := setupAging(t)

	// Target date in the future still shows in the current bucket.
	f.insert(t, 1, "COMMITTED", "15.00", -10)

	report, err := f.service.Aging(f.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.InvoiceCount)
	require.Equal(t, 1, report.Buckets[0].InvoiceCount)
	require.True(t, report.Buckets[0].Balance.Equal(decimal.RequireFromString("15.00")))
}

func TestAgingEmptyLedger(t *testing.T) {
	f := setupAging(t)

	report, err := f.service.Aging(f.ctx)
	require.NoError(t, err)
	require.Zero(t, report.InvoiceCount)
	require.True(t, report.TotalBalance.IsZero())
	for _, bucket := range report.Buckets {
		require.Zero(t, bucket.InvoiceCount)
		require.True(t, bucket.Balance.IsZero())
	}
}
