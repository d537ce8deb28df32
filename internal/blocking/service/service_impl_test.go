package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	blockingdomain "github.com/smallbiznis/duno/internal/blocking/domain"
	blockingrepo "github.com/smallbiznis/duno/internal/blocking/repository"
	"github.com/smallbiznis/duno/internal/clock"
	"github.com/smallbiznis/duno/internal/orgcontext"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupBlockingDB(t *testing.T) *gorm.DB {
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

	return db
}

func newBlockingService(t *testing.T, db *gorm.DB, fakeClock clock.Clock) blockingdomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
		Repo:  blockingrepo.Provide(),
	})
}

func TestCurrentStateReturnsClearSentinelWithoutHistory(t *testing.T) {
	db := setupBlockingDB(t)
	fakeClock := clock.NewFakeClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := newBlockingService(t, db, fakeClock)

	orgID := snowflake.ID(100)
	ctx := orgcontext.WithOrgID(context.Background(), orgID)

	current, err := svc.CurrentState(ctx, 42, blockingdomain.BlockableTypeAccount, blockingdomain.ServiceOverdue)
	require.NoError(t, err)
	require.True(t, current.IsClear())
	require.Equal(t, blockingdomain.ClearStateName, current.StateName)
}

func TestCurrentStateTracksLatestAppend(t *testing.T) {
	db := setupBlockingDB(t)
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	fakeClock := clock.NewFakeClock(start)
	svc := newBlockingService(t, db, fakeClock)

	orgID := snowflake.ID(100)
	accountID := snowflake.ID(42)
	ctx := orgcontext.WithOrgID(context.Background(), orgID)

	for _, name := range []string{"OD1", "OD2", "OD3"} {
		_, err := svc.Append(ctx, blockingdomain.BlockingState{
			OrgID:         orgID,
			BlockableID:   accountID,
			BlockableType: blockingdomain.BlockableTypeAccount,
			StateName:     name,
			Service:       blockingdomain.ServiceOverdue,
			BlockBilling:  name == "OD3",
			EffectiveAt:   fakeClock.Now(),
		})
		require.NoError(t, err)
		fakeClock.Advance(24 * time.Hour)
	}

	current, err := svc.CurrentState(ctx, accountID, blockingdomain.BlockableTypeAccount, blockingdomain.ServiceOverdue)
	require.NoError(t, err)
	require.Equal(t, "OD3", current.StateName)
	require.True(t, current.BlockBilling)

	history, err := svc.History(ctx, accountID, blockingdomain.ServiceOverdue)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, "OD1", history[0].StateName)
	require.Equal(t, "OD2", history[1].StateName)
	require.Equal(t, "OD3", history[2].StateName)
	for i := 1; i < len(history); i++ {
		require.False(t, history[i].EffectiveAt.Before(history[i-1].EffectiveAt))
	}
}

func TestAppendRejectsRegressingEffectiveTime(t *testing.T) {
	db := setupBlockingDB(t)
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	fakeClock := clock.NewFakeClock(start)
	svc := newBlockingService(t, db, fakeClock)

	orgID := snowflake.ID(100)
	accountID := snowflake.ID(7)
	ctx := orgcontext.WithOrgID(context.Background(), orgID)

	_, err := svc.Append(ctx, blockingdomain.BlockingState{
		OrgID:         orgID,
		BlockableID:   accountID,
		BlockableType: blockingdomain.BlockableTypeAccount,
		StateName:     "OD1",
		Service:       blockingdomain.ServiceOverdue,
		EffectiveAt:   start,
	})
	require.NoError(t, err)

	_, err = svc.Append(ctx, blockingdomain.BlockingState{
		OrgID:         orgID,
		BlockableID:   accountID,
		BlockableType: blockingdomain.BlockableTypeAccount,
		StateName:     "OD2",
		Service:       blockingdomain.ServiceOverdue,
		EffectiveAt:   start.Add(-48 * time.Hour),
	})
	require.ErrorIs(t, err, blockingdomain.ErrStaleEffective)

	current, err := svc.CurrentState(ctx, accountID, blockingdomain.BlockableTypeAccount, blockingdomain.ServiceOverdue)
	require.NoError(t, err)
	require.Equal(t, "OD1", current.StateName)
}

func TestAppendScopedPerService(t *testing.T) {
	db := setupBlockingDB(t)
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	fakeClock := clock.NewFakeClock(start)
	svc := newBlockingService(t, db, fakeClock)

	orgID := snowflake.ID(100)
	accountID := snowflake.ID(42)
	ctx := orgcontext.WithOrgID(context.Background(), orgID)

	_, err := svc.Append(ctx, blockingdomain.BlockingState{
		OrgID:         orgID,
		BlockableID:   accountID,
		BlockableType: blockingdomain.BlockableTypeAccount,
		StateName:     "OD1",
		Service:       blockingdomain.ServiceOverdue,
		EffectiveAt:   start,
	})
	require.NoError(t, err)

	current, err := svc.CurrentState(ctx, accountID, blockingdomain.BlockableTypeAccount, "entitlement-service")
	require.NoError(t, err)
	require.True(t, current.IsClear())
}
