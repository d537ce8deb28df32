package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	billingeventdomain "github.com/smallbiznis/duno/internal/billingevent/domain"
	"github.com/smallbiznis/duno/internal/clock"
	"github.com/smallbiznis/duno/internal/config"
	invoicedomain "github.com/smallbiznis/duno/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/duno/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/duno/internal/invoice/service"
	notifdomain "github.com/smallbiznis/duno/internal/notification/domain"
	"github.com/smallbiznis/duno/internal/orgcontext"
	"github.com/smallbiznis/duno/internal/payment/domain"
	gatewaytesting "github.com/smallbiznis/duno/internal/payment/gateway/testing"
	"github.com/smallbiznis/duno/internal/payment/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type scheduledPost struct {
	queue       string
	key         string
	effectiveAt time.Time
}

type fakeNotifications struct {
	posts []scheduledPost
}

func (f *fakeNotifications) Post(ctx context.Context, queueName, entryKey, keyClass string, payload map[string]any, effectiveAt time.Time) (notifdomain.Notification, error) {
	f.posts = append(f.posts, scheduledPost{queue: queueName, key: entryKey, effectiveAt: effectiveAt})
	return notifdomain.Notification{}, nil
}

func (f *fakeNotifications) PostReplacing(ctx context.Context, queueName, entryKey, keyClass string, payload map[string]any, effectiveAt time.Time) (notifdomain.Notification, error) {
	f.posts = append(f.posts, scheduledPost{queue: queueName, key: entryKey, effectiveAt: effectiveAt})
	return notifdomain.Notification{}, nil
}

func (f *fakeNotifications) CancelPending(ctx context.Context, queueName, entryKey string) error {
	return nil
}

func (f *fakeNotifications) Pending(ctx context.Context, queueName, entryKey string) ([]notifdomain.Notification, error) {
	return nil, nil
}

func (f *fakeNotifications) onQueue(queueName string) []scheduledPost {
	var out []scheduledPost
	for _, post := range f.posts {
		if post.queue == queueName {
			out = append(out, post)
		}
	}
	return out
}

type fakeEvents struct {
	recorded []billingeventdomain.RecordRequest
}

func (f *fakeEvents) Record(ctx context.Context, req billingeventdomain.RecordRequest) (*billingeventdomain.BillingEvent, error) {
	f.recorded = append(f.recorded, req)
	return &billingeventdomain.BillingEvent{}, nil
}

func (f *fakeEvents) ofType(eventType string) []billingeventdomain.RecordRequest {
	var out []billingeventdomain.RecordRequest
	for _, req := range f.recorded {
		if req.EventType == eventType {
			out = append(out, req)
		}
	}
	return out
}

type paymentFixture struct {
	db            *gorm.DB
	clock         *clock.FakeClock
	node          *snowflake.Node
	gateway       *gatewaytesting.Gateway
	notifications *fakeNotifications
	events        *fakeEvents
	invoices      invoicedomain.Service
	service       domain.Service
}

func setupPayment(t *testing.T) *paymentFixture {
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
		CREATE TABLE payments (
			id INTEGER PRIMARY KEY,
			org_id INTEGER NOT NULL,
			account_id INTEGER NOT NULL,
			invoice_id INTEGER NOT NULL,
			status TEXT NOT NULL,
			gateway TEXT NOT NULL,
			currency TEXT NOT NULL,
			amount NUMERIC NOT NULL,
			attempt_number INTEGER NOT NULL,
			transaction_ref TEXT NOT NULL DEFAULT '',
			gateway_error TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			effective_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL
		)
	`).Error)

	fakeClock := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	invoices := invoiceservice.New(invoiceservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
		Repo:  invoicerepo.Provide(),
	})

	gateway := gatewaytesting.NewGateway()
	notifications := &fakeNotifications{}
	events := &fakeEvents{}

	svc := New(Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         fakeClock,
		Cfg:           config.Config{Payment: config.PaymentConfig{RetryDays: []int{8, 8, 8}}},
		Repo:          repository.Provide(),
		Gateway:       gateway,
		Invoices:      invoices,
		Notifications: notifications,
		Events:        events,
	})

	return &paymentFixture{
		db:            db,
		clock:         fakeClock,
		node:          node,
		gateway:       gateway,
		notifications: notifications,
		events:        events,
		invoices:      invoices,
		service:       svc,
	}
}

func (f *paymentFixture) seedInvoice(t *testing.T, accountID snowflake.ID, balance string) invoicedomain.Invoice {
	t.Helper()
	now := f.clock.Now()
	invoice := invoicedomain.Invoice{
		ID:          f.node.Generate(),
		OrgID:       100,
		AccountID:   accountID,
		Status:      invoicedomain.InvoiceStatusCommitted,
		Currency:    "USD",
		Amount:      decimal.RequireFromString(balance),
		Balance:     decimal.RequireFromString(balance),
		InvoiceDate: now.AddDate(0, 0, -3),
		TargetDate:  now.AddDate(0, 0, -3),
		Metadata:    datatypes.JSONMap{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, f.db.Create(&invoice).Error)
	return invoice
}

func TestProcessSuccessSettlesInvoice(t *testing.T) {
	fixture := setupPayment(t)
	ctx := orgcontext.WithOrgID(context.Background(), 100)
	invoice := fixture.seedInvoice(t, 42, "30.00")

	payment, err := fixture.service.Process(ctx, domain.ProcessPaymentRequest{
		AccountID: snowflake.ID(42).String(),
		InvoiceID: invoice.ID.String(),
	})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusSuccess, payment.Status)
	require.Equal(t, 1, payment.AttemptNumber)
	require.NotEmpty(t, payment.TransactionRef)
	require.True(t, payment.Amount.Equal(decimal.RequireFromString("30.00")))

	settled, err := fixture.invoices.GetByID(ctx, invoice.ID.String())
	require.NoError(t, err)
	require.Equal(t, invoicedomain.InvoiceStatusPaid, settled.Status)
	require.True(t, settled.Balance.IsZero())

	// Success never schedules a retry, only an overdue recheck.
	require.Empty(t, fixture.notifications.onQueue(notifdomain.QueuePaymentRetry))
	checks := fixture.notifications.onQueue(notifdomain.QueueOverdueCheck)
	require.Len(t, checks, 1)
	require.True(t, checks[0].effectiveAt.Equal(fixture.clock.Now()))

	events := fixture.events.ofType(billingeventdomain.EventTypePaymentSucceeded)
	require.Len(t, events, 1)
	require.Equal(t, "payment:"+payment.ID.String(), events[0].DedupeKey)
	require.Equal(t, invoice.ID.String(), events[0].Payload["invoice_id"])
	require.Empty(t, fixture.events.ofType(billingeventdomain.EventTypePaymentFailed))
}

func TestDeclinedPaymentSchedulesRetry(t *testing.T) {
	fixture := setupPayment(t)
	ctx := orgcontext.WithOrgID(context.Background(), 100)
	invoice := fixture.seedInvoice(t, 42, "30.00")

	fixture.gateway.DeclineNext("insufficient_funds")

	payment, err := fixture.service.Process(ctx, domain.ProcessPaymentRequest{
		AccountID: snowflake.ID(42).String(),
		InvoiceID: invoice.ID.String(),
	})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusFailed, payment.Status)
	require.Equal(t, "insufficient_funds", payment.GatewayError)

	// Balance untouched by a declined charge.
	unsettled, err := fixture.invoices.GetByID(ctx, invoice.ID.String())
	require.NoError(t, err)
	require.Equal(t, invoicedomain.InvoiceStatusCommitted, unsettled.Status)
	require.True(t, unsettled.Balance.Equal(decimal.RequireFromString("30.00")))

	retries := fixture.notifications.onQueue(notifdomain.QueuePaymentRetry)
	require.Len(t, retries, 1)
	require.True(t, retries[0].effectiveAt.Equal(fixture.clock.Now().AddDate(0, 0, 8)))

	events := fixture.events.ofType(billingeventdomain.EventTypePaymentFailed)
	require.Len(t, events, 1)
	require.Equal(t, string(domain.PaymentStatusFailed), events[0].Payload["status"])
	require.Empty(t, fixture.events.ofType(billingeventdomain.EventTypePaymentSucceeded))
}

func TestRetryScheduleExhaustsAfterConfiguredAttempts(t *testing.T) {
	fixture := setupPayment(t)
	ctx := orgcontext.WithOrgID(context.Background(), 100)
	invoice := fixture.seedInvoice(t, 42, "30.00")

	fixture.gateway.DeclineNext("card_expired")

	for attempt := 1; attempt <= 4; attempt++ {
		payment, err := fixture.service.Process(ctx, domain.ProcessPaymentRequest{
			AccountID: snowflake.ID(42).String(),
			InvoiceID: invoice.ID.String(),
		})
		require.NoError(t, err)
		require.Equal(t, domain.PaymentStatusFailed, payment.Status)
		require.Equal(t, attempt, payment.AttemptNumber)
		fixture.clock.Advance(time.Hour)
	}

	// Three scheduled retries for attempts 1-3; the fourth failure is
	// terminal and schedules nothing.
	retries := fixture.notifications.onQueue(notifdomain.QueuePaymentRetry)
	require.Len(t, retries, 3)
}

func TestGatewayErrorRecordsErrorStatus(t *testing.T) {
	fixture := setupPayment(t)
	ctx := orgcontext.WithOrgID(context.Background(), 100)
	invoice := fixture.seedInvoice(t, 42, "30.00")

	fixture.gateway.FailNext(errors.New("connection reset"))

	payment, err := fixture.service.Process(ctx, domain.ProcessPaymentRequest{
		AccountID: snowflake.ID(42).String(),
		InvoiceID: invoice.ID.String(),
	})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusError, payment.Status)
	require.Equal(t, "connection reset", payment.GatewayError)

	retries := fixture.notifications.onQueue(notifdomain.QueuePaymentRetry)
	require.Len(t, retries, 1)
	require.Len(t, fixture.events.ofType(billingeventdomain.EventTypePaymentFailed), 1)
}

func TestProcessRejectsSettledInvoice(t *testing.T) {
	fixture := setupPayment(t)
	ctx := orgcontext.WithOrgID(context.Background(), 100)
	invoice := fixture.seedInvoice(t, 42, "30.00")

	_, err := fixture.service.Process(ctx, domain.ProcessPaymentRequest{
		AccountID: snowflake.ID(42).String(),
		InvoiceID: invoice.ID.String(),
	})
	require.NoError(t, err)

	_, err = fixture.service.Process(ctx, domain.ProcessPaymentRequest{
		AccountID: snowflake.ID(42).String(),
		InvoiceID: invoice.ID.String(),
	})
	require.ErrorIs(t, err, domain.ErrInvalidInvoice)
}

func TestRefundReversesSuccessfulPayment(t *testing.T) {
	fixture := setupPayment(t)
	ctx := orgcontext.WithOrgID(context.Background(), 100)
	invoice := fixture.seedInvoice(t, 42, "30.00")

	payment, err := fixture.service.Process(ctx, domain.ProcessPaymentRequest{
		AccountID: snowflake.ID(42).String(),
		InvoiceID: invoice.ID.String(),
	})
	require.NoError(t, err)

	refund, err := fixture.service.Refund(ctx, domain.RefundPaymentRequest{
		PaymentID: payment.ID.String(),
	})
	require.NoError(t, err)
	require.True(t, refund.Amount.Equal(payment.Amount.Neg()))
	require.NotEmpty(t, refund.TransactionRef)
	require.Equal(t, payment.ID.String(), refund.Metadata["refund_of"])

	_, err = fixture.service.Refund(ctx, domain.RefundPaymentRequest{
		PaymentID: refund.ID.String(),
	})
	require.ErrorIs(t, err, domain.ErrNotRefundable)
}