package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	notificationdomain "github.com/smallbiznis/duno/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/duno/internal/observability/metrics"
	pkgdb "github.com/smallbiznis/duno/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() notificationdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *notificationdomain.Notification) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO notifications (
			id, org_id, queue_name, entry_key, key_class, payload, effective_at,
			processing_state, processing_owner, processing_available_at,
			error_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.OrgID,
		entry.QueueName,
		entry.EntryKey,
		entry.KeyClass,
		entry.Payload,
		entry.EffectiveAt,
		entry.ProcessingState,
		entry.ProcessingOwner,
		entry.ProcessingAvailableAt,
		entry.ErrorCount,
		entry.CreatedAt,
		entry.UpdatedAt,
	).Error
}

// ClaimDue selects due AVAILABLE rows with a skip-locked scan and flips them
// to IN_PROCESSING inside the caller's transaction. Two pollers never claim
// the same row: the UPDATE re-checks the state it observed.
func (r *repo) ClaimDue(ctx context.Context, db *gorm.DB, owner string, now time.Time, limit int) ([]notificationdomain.Notification, error) {
	var entries []notificationdomain.Notification
	lockStart := time.Now()
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, queue_name, entry_key, key_class, payload, effective_at,
		        processing_state, processing_owner, processing_available_at,
		        error_count, created_at, updated_at
		 FROM notifications
		 WHERE processing_state = ?
		   AND effective_at <= ?
		 ORDER BY effective_at ASC, id ASC
		 LIMIT ?`+pkgdb.ClaimLockClause(db),
		notificationdomain.StateAvailable,
		now,
		limit,
	).Scan(&entries).Error
	obsmetrics.Queue().ObserveDBLockWait(obsmetrics.LockResourceNotificationsClaim, time.Since(lockStart))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	claimed := entries[:0]
	for _, entry := range entries {
		res := db.WithContext(ctx).Exec(
			`UPDATE notifications
			 SET processing_state = ?, processing_owner = ?, updated_at = ?
			 WHERE id = ? AND processing_state = ?`,
			notificationdomain.StateInProcessing,
			owner,
			now,
			entry.ID,
			notificationdomain.StateAvailable,
		)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		entry.ProcessingState = notificationdomain.StateInProcessing
		entry.ProcessingOwner = &owner
		claimed = append(claimed, entry)
	}
	return claimed, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notifications
		 SET processing_state = ?, processing_owner = NULL, updated_at = ?
		 WHERE id = ?`,
		notificationdomain.StateProcessed,
		now,
		id,
	).Error
}

func (r *repo) Reschedule(ctx context.Context, db *gorm.DB, id snowflake.ID, availableAt, now time.Time, errorCount int) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notifications
		 SET processing_state = ?, processing_owner = NULL,
		     processing_available_at = ?, effective_at = ?,
		     error_count = ?, updated_at = ?
		 WHERE id = ?`,
		notificationdomain.StateAvailable,
		availableAt,
		availableAt,
		errorCount,
		now,
		id,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time, errorCount int) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notifications
		 SET processing_state = ?, processing_owner = NULL,
		     error_count = ?, updated_at = ?
		 WHERE id = ?`,
		notificationdomain.StateFailed,
		errorCount,
		now,
		id,
	).Error
}

func (r *repo) RemovePending(ctx context.Context, db *gorm.DB, orgID snowflake.ID, queueName, entryKey string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notifications
		 SET processing_state = ?, processing_owner = NULL
		 WHERE org_id = ? AND queue_name = ? AND entry_key = ? AND processing_state = ?`,
		notificationdomain.StateRemoved,
		orgID,
		queueName,
		entryKey,
		notificationdomain.StateAvailable,
	).Error
}

func (r *repo) FindPending(ctx context.Context, db *gorm.DB, orgID snowflake.ID, queueName, entryKey string) ([]notificationdomain.Notification, error) {
	var entries []notificationdomain.Notification
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, queue_name, entry_key, key_class, payload, effective_at,
		        processing_state, processing_owner, processing_available_at,
		        error_count, created_at, updated_at
		 FROM notifications
		 WHERE org_id = ? AND queue_name = ? AND entry_key = ? AND processing_state = ?
		 ORDER BY effective_at ASC, id ASC`,
		orgID,
		queueName,
		entryKey,
		notificationdomain.StateAvailable,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
