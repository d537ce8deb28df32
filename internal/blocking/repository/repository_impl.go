package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	blockingdomain "github.com/smallbiznis/duno/internal/blocking/domain"
	obsmetrics "github.com/smallbiznis/duno/internal/observability/metrics"
	pkgdb "github.com/smallbiznis/duno/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() blockingdomain.Repository {
	return &repo{}
}

// Append inserts a new history row. Callers run it inside a transaction that
// has locked the latest row for the (org, blockable, service) tuple, so
// concurrent appends for one entity serialize on the row lock.
func (r *repo) Append(ctx context.Context, db *gorm.DB, state *blockingdomain.BlockingState) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO blocking_states (
			id, org_id, blockable_id, blockable_type, state_name, service,
			block_change, block_entitlement, block_billing, effective_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		state.ID,
		state.OrgID,
		state.BlockableID,
		state.BlockableType,
		state.StateName,
		state.Service,
		state.BlockChange,
		state.BlockEntitlement,
		state.BlockBilling,
		state.EffectiveAt,
		state.CreatedAt,
	).Error
}

func (r *repo) Latest(ctx context.Context, db *gorm.DB, orgID, blockableID snowflake.ID, service string) (*blockingdomain.BlockingState, error) {
	lockStart := time.Now()
	var state blockingdomain.BlockingState
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, blockable_id, blockable_type, state_name, service,
		        block_change, block_entitlement, block_billing, effective_at, created_at
		 FROM blocking_states
		 WHERE org_id = ? AND blockable_id = ? AND service = ?
		 ORDER BY effective_at DESC, id DESC
		 LIMIT 1`+pkgdb.RowLockClause(db),
		orgID,
		blockableID,
		service,
	).Scan(&state).Error
	obsmetrics.Queue().ObserveDBLockWait(obsmetrics.LockResourceBlockingAppend, time.Since(lockStart))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if state.ID == 0 {
		return nil, nil
	}
	return &state, nil
}

func (r *repo) History(ctx context.Context, db *gorm.DB, orgID, blockableID snowflake.ID, service string) ([]blockingdomain.BlockingState, error) {
	var states []blockingdomain.BlockingState
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, blockable_id, blockable_type, state_name, service,
		        block_change, block_entitlement, block_billing, effective_at, created_at
		 FROM blocking_states
		 WHERE org_id = ? AND blockable_id = ? AND service = ?
		 ORDER BY effective_at ASC, id ASC`,
		orgID,
		blockableID,
		service,
	).Scan(&states).Error
	if err != nil {
		return nil, err
	}
	return states, nil
}
