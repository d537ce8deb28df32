package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/duno/internal/account/domain"
	accountrepo "github.com/smallbiznis/duno/internal/account/repository"
	accountservice "github.com/smallbiznis/duno/internal/account/service"
	"github.com/smallbiznis/duno/internal/clock"
	"github.com/smallbiznis/duno/internal/orgcontext"
	"github.com/smallbiznis/duno/internal/usage/domain"
	"github.com/smallbiznis/duno/internal/usage/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type usageFixture struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	accounts accountdomain.Service
	service  domain.Service
}

func setupUsage(t *testing.T) *usageFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Exec(`
		CREATE TABLE accounts (
			id INTEGER PRIMARY KEY,
			org_id INTEGER NOT NULL,
			external_key TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			currency TEXT NOT NULL,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			tags TEXT NOT NULL DEFAULT '[]',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error)
	require.NoError(t, db.Exec(`
		CREATE TABLE usage_records (
			id INTEGER PRIMARY KEY,
			org_id INTEGER NOT NULL,
			account_id INTEGER NOT NULL,
			subscription_id INTEGER,
			metric TEXT NOT NULL,
			quantity NUMERIC NOT NULL,
			recorded_at DATETIME NOT NULL,
			idempotency_key TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL
		)
	`).Error)

	fakeClock := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	accounts := accountservice.New(accountservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
		Repo:  accountrepo.Provide(),
	})

	svc := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fakeClock,
		Repo:     repository.Provide(),
		Accounts: accounts,
	})

	return &usageFixture{db: db, clock: fakeClock, accounts: accounts, service: svc}
}

func (f *usageFixture) seedAccount(t *testing.T, ctx context.Context) accountdomain.Account {
	t.Helper()
	account, err := f.accounts.Create(ctx, accountdomain.CreateAccountRequest{
		ExternalKey: "acct-usage",
		Name:        "Acme",
		Currency:    "USD",
	})
	require.NoError(t, err)
	return account
}

func strPtr(v string) *string { return &v }

func TestIngestRecordsUsage(t *testing.T) {
	fixture := setupUsage(t)
	ctx := orgcontext.WithOrgID(context.Background(), 100)
	account := fixture.seedAccount(t, ctx)

	record, err := fixture.service.Ingest(ctx, domain.IngestUsageRequest{
		AccountID: account.ID.String(),
		Metric:    "api_calls",
		Quantity:  decimal.NewFromInt(150),
	})
	require.NoError(t, err)
	require.Equal(t, account.ID, record.AccountID)
	require.Equal(t, "api_calls", record.Metric)
	require.True(t, record.RecordedAt.Equal(fixture.clock.Now()))

	resp, err := fixture.service.List(ctx, domain.ListUsageRequest{AccountID: account.ID.String()})
	require.NoError(t, err)
	require.Len(t, resp.UsageRecords, 1)
}

func TestIngestIdempotencyKeyDeduplicates(t *testing.T) {
	fixture := setupUsage(t)
	ctx := orgcontext.WithOrgID(context.Background(), 100)
	account := fixture.seedAccount(t, ctx)

	first, err := fixture.service.Ingest(ctx, domain.IngestUsageRequest{
		AccountID:      account.ID.String(),
		Metric:         "api_calls",
		Quantity:       decimal.NewFromInt(10),
		IdempotencyKey: strPtr("req-1"),
	})
	require.NoError(t, err)

	second, err := fixture.service.Ingest(ctx, domain.IngestUsageRequest{
		AccountID:      account.ID.String(),
		Metric:         "api_calls",
		Quantity:       decimal.NewFromInt(10),
		IdempotencyKey: strPtr("req-1"),
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	resp, err := fixture.service.List(ctx, domain.ListUsageRequest{AccountID: account.ID.String()})
	require.NoError(t, err)
	require.Len(t, resp.UsageRecords, 1)
}

func TestIngestRejectsBadInput(t *testing.T) {
	fixture := setupUsage(t)
	ctx := orgcontext.WithOrgID(context.Background(), 100)
	account := fixture.seedAccount(t, ctx)

	_, err := fixture.service.Ingest(ctx, domain.IngestUsageRequest{
		AccountID: account.ID.String(),
		Metric:    " ",
		Quantity:  decimal.NewFromInt(1),
	})
	require.ErrorIs(t, err, domain.ErrInvalidMetric)

	_, err = fixture.service.Ingest(ctx, domain.IngestUsageRequest{
		AccountID: account.ID.String(),
		Metric:    "api_calls",
		Quantity:  decimal.NewFromInt(-5),
	})
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = fixture.service.Ingest(ctx, domain.IngestUsageRequest{
		AccountID: "not-an-id",
		Metric:    "api_calls",
		Quantity:  decimal.NewFromInt(1),
	})
	require.ErrorIs(t, err, domain.ErrInvalidAccount)
}

func TestIngestUnknownAccount(t *testing.T) {
	fixture := setupUsage(t)
	ctx := orgcontext.WithOrgID(context.Background(), 100)

	_, err := fixture.service.Ingest(ctx, domain.IngestUsageRequest{
		AccountID: snowflake.ID(987654).String(),
		Metric:    "api_calls",
		Quantity:  decimal.NewFromInt(1),
	})
	require.ErrorIs(t, err, accountdomain.ErrNotFound)
}
