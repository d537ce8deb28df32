package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/duno/internal/clock"
	"github.com/smallbiznis/duno/internal/config"
	notificationdomain "github.com/smallbiznis/duno/internal/notification/domain"
	"github.com/smallbiznis/duno/internal/notification/repository"
	"github.com/smallbiznis/duno/internal/notification/service"
	"github.com/smallbiznis/duno/internal/orgcontext"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupQueueDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Exec(`
		CREATE TABLE notifications (
			id INTEGER PRIMARY KEY,
			org_id INTEGER NOT NULL,
			queue_name TEXT NOT NULL,
			entry_key TEXT NOT NULL,
			key_class TEXT NOT NULL,
			payload TEXT,
			effective_at DATETIME NOT NULL,
			processing_state TEXT NOT NULL,
			processing_owner TEXT,
			processing_available_at DATETIME,
			error_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error)

	return db
}

type queueFixture struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	service  notificationdomain.Service
	poller   *Poller
	registry *Registry
}

func setupQueue(t *testing.T, cfg config.QueueConfig) *queueFixture {
	t.Helper()

	db := setupQueueDB(t)
	fakeClock := clock.NewFakeClock(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := repository.Provide()
	svc := service.NewService(service.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
		Repo:  repo,
	})

	registry := NewRegistry()
	poller := NewPoller(PollerParam{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    fakeClock,
		Config:   config.Config{Queue: cfg},
		Repo:     repo,
		Registry: registry,
	})

	return &queueFixture{db: db, clock: fakeClock, service: svc, poller: poller, registry: registry}
}

func defaultQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		PollInterval:  time.Second,
		ClaimBatch:    10,
		Workers:       2,
		ClaimTimeout:  2 * time.Second,
		MaxErrorCount: 3,
		BackoffBase:   30 * time.Second,
		BackoffCap:    30 * time.Minute,
	}
}

func runPollerOnce(t *testing.T, p *Poller) {
	t.Helper()
	_, err := p.RunOnce(context.Background())
	require.NoError(t, err)
}

type recordingHandler struct {
	mu      sync.Mutex
	entries []notificationdomain.Notification
	err     error
}

func (h *recordingHandler) Handle(ctx context.Context, entry notificationdomain.Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func TestEntryNotClaimedBeforeEffectiveDate(t *testing.T) {
	fx := setupQueue(t, defaultQueueConfig())
	handler := &recordingHandler{}
	require.NoError(t, fx.registry.Register("test-queue", handler))

	orgID := snowflake.ID(100)
	ctx := orgcontext.WithOrgID(context.Background(), orgID)

	_, err := fx.service.Post(ctx, "test-queue", "key-1", "account",
		map[string]any{"account_id": "42"}, fx.clock.Now().Add(48*time.Hour))
	require.NoError(t, err)

	runPollerOnce(t, fx.poller)
	require.Equal(t, 0, handler.count())

	fx.clock.Advance(48*time.Hour + time.Minute)
	runPollerOnce(t, fx.poller)
	require.Equal(t, 1, handler.count())

	var state string
	require.NoError(t, fx.db.Raw(`SELECT processing_state FROM notifications`).Scan(&state).Error)
	require.Equal(t, string(notificationdomain.StateProcessed), state)
}

func TestClaimOrderFollowsEffectiveDate(t *testing.T) {
	fx := setupQueue(t, defaultQueueConfig())
	handler := &recordingHandler{}
	require.NoError(t, fx.registry.Register("test-queue", handler))

	orgID := snowflake.ID(100)
	ctx := orgcontext.WithOrgID(context.Background(), orgID)

	base := fx.clock.Now()
	_, err := fx.service.Post(ctx, "test-queue", "late", "account", nil, base.Add(2*time.Hour))
	require.NoError(t, err)
	_, err = fx.service.Post(ctx, "test-queue", "early", "account", nil, base.Add(time.Hour))
	require.NoError(t, err)

	fx.clock.Advance(3 * time.Hour)
	runPollerOnce(t, fx.poller)

	require.Equal(t, 2, handler.count())
	require.Equal(t, "early", handler.entries[0].EntryKey)
	require.Equal(t, "late", handler.entries[1].EntryKey)
}

func TestPostReplacingCancelsPriorPendingEntry(t *testing.T) {
	fx := setupQueue(t, defaultQueueConfig())
	handler := &recordingHandler{}
	require.NoError(t, fx.registry.Register("test-queue", handler))

	orgID := snowflake.ID(100)
	ctx := orgcontext.WithOrgID(context.Background(), orgID)

	base := fx.clock.Now()
	_, err := fx.service.Post(ctx, "test-queue", "key-1", "account", nil, base.Add(time.Hour))
	require.NoError(t, err)
	_, err = fx.service.PostReplacing(ctx, "test-queue", "key-1", "account", nil, base.Add(2*time.Hour))
	require.NoError(t, err)

	pending, err := fx.service.Pending(ctx, "test-queue", "key-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.True(t, pending[0].EffectiveAt.UTC().Equal(base.Add(2*time.Hour)))

	// Only the replacement fires.
	fx.clock.Advance(3 * time.Hour)
	runPollerOnce(t, fx.poller)
	require.Equal(t, 1, handler.count())
}

func TestFailedEntryRetriesWithBackoffThenTerminal(t *testing.T) {
	cfg := defaultQueueConfig()
	cfg.MaxErrorCount = 2
	fx := setupQueue(t, cfg)

	handler := &recordingHandler{err: errors.New("boom")}
	require.NoError(t, fx.registry.Register("test-queue", handler))

	orgID := snowflake.ID(100)
	ctx := orgcontext.WithOrgID(context.Background(), orgID)

	_, err := fx.service.Post(ctx, "test-queue", "key-1", "account", nil, fx.clock.Now())
	require.NoError(t, err)

	// First failure reschedules with backoff.
	runPollerOnce(t, fx.poller)
	require.Equal(t, 1, handler.count())

	var state string
	var errorCount int
	row := fx.db.Raw(`SELECT processing_state, error_count FROM notifications`).Row()
	require.NoError(t, row.Scan(&state, &errorCount))
	require.Equal(t, string(notificationdomain.StateAvailable), state)
	require.Equal(t, 1, errorCount)

	// Rescheduling stamps updated_at with the current time, not the
	// future availability.
	var stamps struct {
		UpdatedAt   time.Time
		EffectiveAt time.Time
	}
	require.NoError(t, fx.db.Raw(`SELECT updated_at, effective_at FROM notifications`).Scan(&stamps).Error)
	require.True(t, stamps.UpdatedAt.Equal(fx.clock.Now()))
	require.True(t, stamps.EffectiveAt.After(stamps.UpdatedAt))

	// Not due again until the backoff elapses.
	runPollerOnce(t, fx.poller)
	require.Equal(t, 1, handler.count())

	// Second failure exhausts MaxErrorCount.
	fx.clock.Advance(time.Hour)
	runPollerOnce(t, fx.poller)
	require.Equal(t, 2, handler.count())

	row = fx.db.Raw(`SELECT processing_state, error_count FROM notifications`).Row()
	require.NoError(t, row.Scan(&state, &errorCount))
	require.Equal(t, string(notificationdomain.StateFailed), state)
	require.Equal(t, 2, errorCount)

	// Terminal entries are never claimed again.
	fx.clock.Advance(24 * time.Hour)
	runPollerOnce(t, fx.poller)
	require.Equal(t, 2, handler.count())
}

func TestUnknownQueueEntryIsTerminal(t *testing.T) {
	fx := setupQueue(t, defaultQueueConfig())

	orgID := snowflake.ID(100)
	ctx := orgcontext.WithOrgID(context.Background(), orgID)

	_, err := fx.service.Post(ctx, "nobody-listens", "key-1", "account", nil, fx.clock.Now())
	require.NoError(t, err)

	runPollerOnce(t, fx.poller)

	var state string
	require.NoError(t, fx.db.Raw(`SELECT processing_state FROM notifications`).Scan(&state).Error)
	require.Equal(t, string(notificationdomain.StateFailed), state)
}

func TestCancelPendingRemovesEntry(t *testing.T) {
	fx := setupQueue(t, defaultQueueConfig())
	handler := &recordingHandler{}
	require.NoError(t, fx.registry.Register("test-queue", handler))

	orgID := snowflake.ID(100)
	ctx := orgcontext.WithOrgID(context.Background(), orgID)

	_, err := fx.service.Post(ctx, "test-queue", "key-1", "account", nil, fx.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, fx.service.CancelPending(ctx, "test-queue", "key-1"))

	fx.clock.Advance(2 * time.Hour)
	runPollerOnce(t, fx.poller)
	require.Equal(t, 0, handler.count())

	var state string
	require.NoError(t, fx.db.Raw(`SELECT processing_state FROM notifications`).Scan(&state).Error)
	require.Equal(t, string(notificationdomain.StateRemoved), state)
}
