package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingeventdomain "github.com/smallbiznis/duno/internal/billingevent/domain"
	billingstatedomain "github.com/smallbiznis/duno/internal/billingstate/domain"
	blockingdomain "github.com/smallbiznis/duno/internal/blocking/domain"
	blockingrepo "github.com/smallbiznis/duno/internal/blocking/repository"
	blockingservice "github.com/smallbiznis/duno/internal/blocking/service"
	"github.com/smallbiznis/duno/internal/clock"
	notifdomain "github.com/smallbiznis/duno/internal/notification/domain"
	"github.com/smallbiznis/duno/internal/orgcontext"
	"github.com/smallbiznis/duno/internal/overdue/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeCalculator struct {
	state billingstatedomain.BillingState
	err   error
}

func (f *fakeCalculator) Calculate(ctx context.Context, accountID snowflake.ID, asOf time.Time) (billingstatedomain.BillingState, error) {
	if f.err != nil {
		return billingstatedomain.BillingState{}, f.err
	}
	return f.state, nil
}

type scheduledPost struct {
	queue       string
	key         string
	effectiveAt time.Time
	replacing   bool
}

type fakeNotifications struct {
	posts   []scheduledPost
	cancels []string
}

func (f *fakeNotifications) Post(ctx context.Context, queueName, entryKey, keyClass string, payload map[string]any, effectiveAt time.Time) (notifdomain.Notification, error) {
	f.posts = append(f.posts, scheduledPost{queue: queueName, key: entryKey, effectiveAt: effectiveAt})
	return notifdomain.Notification{}, nil
}

func (f *fakeNotifications) PostReplacing(ctx context.Context, queueName, entryKey, keyClass string, payload map[string]any, effectiveAt time.Time) (notifdomain.Notification, error) {
	f.posts = append(f.posts, scheduledPost{queue: queueName, key: entryKey, effectiveAt: effectiveAt, replacing: true})
	return notifdomain.Notification{}, nil
}

func (f *fakeNotifications) CancelPending(ctx context.Context, queueName, entryKey string) error {
	f.cancels = append(f.cancels, entryKey)
	return nil
}

func (f *fakeNotifications) Pending(ctx context.Context, queueName, entryKey string) ([]notifdomain.Notification, error) {
	return nil, nil
}

type fakeEvents struct {
	recorded []billingeventdomain.RecordRequest
}

func (f *fakeEvents) Record(ctx context.Context, req billingeventdomain.RecordRequest) (*billingeventdomain.BillingEvent, error) {
	f.recorded = append(f.recorded, req)
	return &billingeventdomain.BillingEvent{}, nil
}

type overdueFixture struct {
	clock         *clock.FakeClock
	calculator    *fakeCalculator
	notifications *fakeNotifications
	events        *fakeEvents
	blocking      blockingdomain.Service
	service       domain.Service
}

func setupOverdue(t *testing.T, cfg domain.Config) *overdueFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Exec(`
		CREATE TABLE blocking_states (
			id INTEGER PRIMARY KEY,
			org_id INTEGER NOT NULL,
			blockable_id INTEGER NOT NULL,
			blockable_type TEXT NOT NULL,
			state_name TEXT NOT NULL,
			service TEXT NOT NULL,
			block_change BOOLEAN NOT NULL DEFAULT FALSE,
			block_entitlement BOOLEAN NOT NULL DEFAULT FALSE,
			block_billing BOOLEAN NOT NULL DEFAULT FALSE,
			effective_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL
		)
	`).Error)

	fakeClock := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	blockingSvc := blockingservice.NewService(blockingservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
		Repo:  blockingrepo.Provide(),
	})

	calculator := &fakeCalculator{}
	notifications := &fakeNotifications{}
	events := &fakeEvents{}

	svc := New(Params{
		Log:           zap.NewNop(),
		Clock:         fakeClock,
		Config:        cfg,
		Calculator:    calculator,
		Blocking:      blockingSvc,
		Notifications: notifications,
		Events:        events,
	})

	return &overdueFixture{
		clock:         fakeClock,
		calculator:    calculator,
		notifications: notifications,
		events:        events,
		blocking:      blockingSvc,
		service:       svc,
	}
}

func intPtr(v int) *int { return &v }

func overdueTestConfig() domain.Config {
	return domain.Config{
		InitialReevaluationIntervalDays: 1,
		States: []domain.StateConfig{
			{
				Name:                         "OD1",
				ExternalMessage:              "account is overdue",
				BlockChanges:                 true,
				AutoReevaluationIntervalDays: 1,
				Condition: domain.Condition{
					TimeSinceEarliestUnpaidInvoiceDays: intPtr(5),
				},
			},
		},
	}
}

func unpaidFor(days int, now time.Time) billingstatedomain.BillingState {
	date := now.AddDate(0, 0, -days)
	return billingstatedomain.BillingState{
		AccountID:                   snowflake.ID(42),
		NumberOfUnpaidInvoices:      1,
		BalanceOfUnpaidInvoices:     decimal.RequireFromString("30.00"),
		DateOfEarliestUnpaidInvoice: &date,
	}
}

func TestRefreshAppliesTransitionAndSchedulesRecheck(t *testing.T) {
	fixture := setupOverdue(t, overdueTestConfig())
	accountID := snowflake.ID(42)
	ctx := orgcontext.WithOrgID(context.Background(), 100)

	now := fixture.clock.Now()
	fixture.calculator.state = unpaidFor(6, now)

	result, err := fixture.service.Refresh(ctx, accountID)
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.Equal(t, "OD1", result.NewState)
	require.Equal(t, blockingdomain.ClearStateName, result.PreviousState)

	current, err := fixture.blocking.CurrentState(ctx, accountID, blockingdomain.BlockableTypeAccount, blockingdomain.ServiceOverdue)
	require.NoError(t, err)
	require.Equal(t, "OD1", current.StateName)
	require.True(t, current.BlockChange)

	require.Len(t, fixture.events.recorded, 1)
	require.Equal(t, billingeventdomain.EventTypeOverdueStateChanged, fixture.events.recorded[0].EventType)

	require.Len(t, fixture.notifications.posts, 1)
	post := fixture.notifications.posts[0]
	require.Equal(t, notifdomain.QueueOverdueCheck, post.queue)
	require.True(t, post.replacing)
	require.True(t, post.effectiveAt.Equal(now.AddDate(0, 0, 1)))
}

func TestRefreshIsIdempotentForUnchangedBillingState(t *testing.T) {
	fixture := setupOverdue(t, overdueTestConfig())
	accountID := snowflake.ID(42)
	ctx := orgcontext.WithOrgID(context.Background(), 100)

	fixture.calculator.state = unpaidFor(6, fixture.clock.Now())

	result, err := fixture.service.Refresh(ctx, accountID)
	require.NoError(t, err)
	require.True(t, result.Changed)

	result, err = fixture.service.Refresh(ctx, accountID)
	require.NoError(t, err)
	require.False(t, result.Changed)
	require.Equal(t, "OD1", result.NewState)

	history, err := fixture.blocking.History(ctx, accountID, blockingdomain.ServiceOverdue)
	require.NoError(t, err)
	require.Len(t, history, 1)

	require.Len(t, fixture.events.recorded, 1)
}

func TestRefreshClearsWhenInvoicesPaid(t *testing.T) {
	fixture := setupOverdue(t, overdueTestConfig())
	accountID := snowflake.ID(42)
	ctx := orgcontext.WithOrgID(context.Background(), 100)

	fixture.calculator.state = unpaidFor(6, fixture.clock.Now())
	_, err := fixture.service.Refresh(ctx, accountID)
	require.NoError(t, err)

	// Everything paid: the account transitions back to clear and pending
	// rechecks are cancelled.
	fixture.clock.Advance(time.Hour)
	fixture.calculator.state = billingstatedomain.BillingState{AccountID: accountID}

	result, err := fixture.service.Refresh(ctx, accountID)
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.Equal(t, blockingdomain.ClearStateName, result.NewState)
	require.Nil(t, result.NextCheckAt)
	require.Len(t, fixture.notifications.cancels, 1)

	current, err := fixture.blocking.CurrentState(ctx, accountID, blockingdomain.BlockableTypeAccount, blockingdomain.ServiceOverdue)
	require.NoError(t, err)
	require.True(t, current.IsClear())

	history, err := fixture.blocking.History(ctx, accountID, blockingdomain.ServiceOverdue)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestRefreshSurfacesCalculationError(t *testing.T) {
	fixture := setupOverdue(t, overdueTestConfig())
	ctx := orgcontext.WithOrgID(context.Background(), 100)

	fixture.calculator.err = billingstatedomain.NewCalculationError(42, "account", context.DeadlineExceeded)

	_, err := fixture.service.Refresh(ctx, 42)
	require.Error(t, err)

	var calcErr *billingstatedomain.CalculationError
	require.ErrorAs(t, err, &calcErr)
	require.Equal(t, "account", calcErr.Stage)
}
