package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/duno/internal/clock"
	notifdomain "github.com/smallbiznis/duno/internal/notification/domain"
	"github.com/smallbiznis/duno/internal/orgcontext"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupSweeperDB(t *testing.T) *gorm.DB {
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
			status TEXT NOT NULL,
			balance NUMERIC NOT NULL
		)
	`).Error)

	require.NoError(t, db.Exec(`
		CREATE TABLE notifications (
			id INTEGER PRIMARY KEY,
			org_id INTEGER NOT NULL,
			queue_name TEXT NOT NULL,
			entry_key TEXT NOT NULL,
			key_class TEXT NOT NULL,
			payload TEXT,
			effective_at DATETIME NOT NULL,
			processing_state TEXT NOT NULL
		)
	`).Error)

	require.NoError(t, db.Exec(`
		CREATE TABLE billing_events (
			id INTEGER PRIMARY KEY,
			org_id INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			published BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL
		)
	`).Error)

	return db
}

type postedEntry struct {
	orgID     snowflake.ID
	queueName string
	entryKey  string
	keyClass  string
	replacing bool
}

// recordingQueue captures queue posts without persisting anything.
type recordingQueue struct {
	posted []postedEntry
}

func (q *recordingQueue) record(ctx context.Context, queueName, entryKey, keyClass string, replacing bool) (notifdomain.Notification, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return notifdomain.Notification{}, err
	}
	q.posted = append(q.posted, postedEntry{
		orgID:     orgID,
		queueName: queueName,
		entryKey:  entryKey,
		keyClass:  keyClass,
		replacing: replacing,
	})
	return notifdomain.Notification{}, nil
}

func (q *recordingQueue) Post(ctx context.Context, queueName, entryKey, keyClass string, payload map[string]any, effectiveAt time.Time) (notifdomain.Notification, error) {
	return q.record(ctx, queueName, entryKey, keyClass, false)
}

func (q *recordingQueue) PostReplacing(ctx context.Context, queueName, entryKey, keyClass string, payload map[string]any, effectiveAt time.Time) (notifdomain.Notification, error) {
	return q.record(ctx, queueName, entryKey, keyClass, true)
}

func (q *recordingQueue) CancelPending(ctx context.Context, queueName, entryKey string) error {
	return nil
}

func (q *recordingQueue) Pending(ctx context.Context, queueName, entryKey string) ([]notifdomain.Notification, error) {
	return nil, nil
}

type sweeperFixture struct {
	db    *gorm.DB
	clock *clock.FakeClock
	queue *recordingQueue
	sched *Scheduler
}

func setupSweeper(t *testing.T) *sweeperFixture {
	t.Helper()

	db := setupSweeperDB(t)
	fakeClock := clock.NewFakeClock(time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC))
	queue := &recordingQueue{}

	sched, err := New(Params{
		DB:            db,
		Log:           zap.NewNop(),
		Clock:         fakeClock,
		Notifications: queue,
	})
	require.NoError(t, err)

	return &sweeperFixture{db: db, clock: fakeClock, queue: queue, sched: sched}
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSweepRepostsMissingOverdueCheck(t *testing.T) {
	f := setupSweeper(t)

	orgID := snowflake.ID(100)
	accountID := snowflake.ID(200)
	require.NoError(t, f.db.Exec(
		`INSERT INTO invoices (id, org_id, account_id, status, balance) VALUES (1, ?, ?, 'COMMITTED', 25.00)`,
		orgID, accountID,
	).Error)

	require.NoError(t, f.sched.RunOnce(context.Background()))

	require.Len(t, f.queue.posted, 1)
	entry := f.queue.posted[0]
	require.Equal(t, orgID, entry.orgID)
	require.Equal(t, notifdomain.QueueOverdueCheck, entry.queueName)
	require.Equal(t, fmt.Sprintf("account:%s", accountID), entry.entryKey)
	require.Equal(t, "account", entry.keyClass)
	require.True(t, entry.replacing)
}

func TestSweepSkipsAccountWithPendingCheck(t *testing.T) {
	f := setupSweeper(t)

	orgID := snowflake.ID(100)
	accountID := snowflake.ID(200)
	require.NoError(t, f.db.Exec(
		`INSERT INTO invoices (id, org_id, account_id, status, balance) VALUES (1, ?, ?, 'COMMITTED', 25.00)`,
		orgID, accountID,
	).Error)
	require.NoError(t, f.db.Exec(
		`INSERT INTO notifications (id, org_id, queue_name, entry_key, key_class, effective_at, processing_state)
		 VALUES (10, ?, ?, ?, 'account', ?, 'AVAILABLE')`,
		orgID, notifdomain.QueueOverdueCheck, fmt.Sprintf("account:%s", accountID), f.clock.Now().Add(time.Hour),
	).Error)

	require.NoError(t, f.sched.RunOnce(context.Background()))
	require.Empty(t, f.queue.posted)
}

func TestSweepIgnoresPaidAndDraftInvoices(t *testing.T) {
	f := setupSweeper(t)

	require.NoError(t, f.db.Exec(
		`INSERT INTO invoices (id, org_id, account_id, status, balance) VALUES
		 (1, 100, 200, 'PAID', 0),
		 (2, 100, 201, 'DRAFT', 30.00),
		 (3, 100, 202, 'COMMITTED', 0)`,
	).Error)

	require.NoError(t, f.sched.RunOnce(context.Background()))
	require.Empty(t, f.queue.posted)
}

func TestSweepRepostsStrandedEventDispatch(t *testing.T) {
	f := setupSweeper(t)

	orgID := snowflake.ID(100)
	eventID := snowflake.ID(900)
	createdAt := f.clock.Now().Add(-10 * time.Minute)
	require.NoError(t, f.db.Exec(
		`INSERT INTO billing_events (id, org_id, event_type, payload, published, created_at)
		 VALUES (?, ?, 'invoice.committed', '{}', FALSE, ?)`,
		eventID, orgID, createdAt,
	).Error)

	require.NoError(t, f.sched.RunOnce(context.Background()))

	require.Len(t, f.queue.posted, 1)
	entry := f.queue.posted[0]
	require.Equal(t, orgID, entry.orgID)
	require.Equal(t, notifdomain.QueueEventDispatch, entry.queueName)
	require.Equal(t, fmt.Sprintf("event:%s", eventID), entry.entryKey)
	require.Equal(t, "billing_event", entry.keyClass)
	require.False(t, entry.replacing)
}

func TestSweepLeavesFreshEventsAlone(t *testing.T) {
	f := setupSweeper(t)

	require.NoError(t, f.db.Exec(
		`INSERT INTO billing_events (id, org_id, event_type, payload, published, created_at)
		 VALUES (900, 100, 'invoice.committed', '{}', FALSE, ?)`,
		f.clock.Now().Add(-time.Minute),
	).Error)

	require.NoError(t, f.sched.RunOnce(context.Background()))
	require.Empty(t, f.queue.posted)
}

func TestSweepSkipsPublishedAndScheduledEvents(t *testing.T) {
	f := setupSweeper(t)

	old := f.clock.Now().Add(-10 * time.Minute)
	require.NoError(t, f.db.Exec(
		`INSERT INTO billing_events (id, org_id, event_type, payload, published, created_at)
		 VALUES (900, 100, 'invoice.committed', '{}', TRUE, ?),
		        (901, 100, 'payment.failed', '{}', FALSE, ?)`,
		old, old,
	).Error)
	require.NoError(t, f.db.Exec(
		`INSERT INTO notifications (id, org_id, queue_name, entry_key, key_class, effective_at, processing_state)
		 VALUES (10, 100, ?, 'event:901', 'billing_event', ?, 'IN_PROCESSING')`,
		notifdomain.QueueEventDispatch, f.clock.Now(),
	).Error)

	require.NoError(t, f.sched.RunOnce(context.Background()))
	require.Empty(t, f.queue.posted)
}
