package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duno/internal/usage/domain"
	"github.com/smallbiznis/duno/pkg/db/option"
	"github.com/smallbiznis/duno/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const usageColumns = `id, org_id, account_id, subscription_id, metric, quantity, recorded_at, idempotency_key, metadata, created_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.UsageRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO usage_records (`+usageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.OrgID,
		record.AccountID,
		record.SubscriptionID,
		record.Metric,
		record.Quantity,
		record.RecordedAt,
		record.IdempotencyKey,
		record.Metadata,
		record.CreatedAt,
	).Error
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (*domain.UsageRecord, error) {
	var record domain.UsageRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+usageColumns+` FROM usage_records WHERE org_id = ? AND idempotency_key = ?`,
		orgID,
		key,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListUsageFilter, page pagination.Pagination) ([]*domain.UsageRecord, error) {
	var records []*domain.UsageRecord
	stmt := db.WithContext(ctx).
		Model(&domain.UsageRecord{}).
		Where("org_id = ?", orgID)
	if filter.AccountID != 0 {
		stmt = stmt.Where("account_id = ?", filter.AccountID)
	}
	if filter.Metric != "" {
		stmt = stmt.Where("metric = ?", filter.Metric)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
