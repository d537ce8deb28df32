package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duno/internal/subscription/domain"
	"github.com/smallbiznis/duno/pkg/db/option"
	"github.com/smallbiznis/duno/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertBundle(ctx context.Context, db *gorm.DB, bundle *domain.Bundle) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO bundles (id, org_id, account_id, external_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		bundle.ID,
		bundle.OrgID,
		bundle.AccountID,
		bundle.ExternalKey,
		bundle.CreatedAt,
		bundle.UpdatedAt,
	).Error
}

func (r *repo) FindBundleByKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, externalKey string) (*domain.Bundle, error) {
	var bundle domain.Bundle
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, account_id, external_key, created_at, updated_at
		 FROM bundles WHERE org_id = ? AND external_key = ?`,
		orgID,
		externalKey,
	).Scan(&bundle).Error
	if err != nil {
		return nil, err
	}
	if bundle.ID == 0 {
		return nil, nil
	}
	return &bundle, nil
}

const subscriptionColumns = `id, org_id, bundle_id, account_id, category, status, plan_name, product_name, billing_period, price_list, start_at, cancelled_at, metadata, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.OrgID,
		subscription.BundleID,
		subscription.AccountID,
		subscription.Category,
		subscription.Status,
		subscription.PlanName,
		subscription.ProductName,
		subscription.BillingPeriod,
		subscription.PriceList,
		subscription.StartAt,
		subscription.CancelledAt,
		subscription.Metadata,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET status = ?, cancelled_at = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		subscription.Status,
		subscription.CancelledAt,
		subscription.UpdatedAt,
		subscription.OrgID,
		subscription.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindBase(ctx context.Context, db *gorm.DB, orgID, bundleID snowflake.ID) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE org_id = ? AND bundle_id = ? AND category = ?`,
		orgID,
		bundleID,
		domain.CategoryBase,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindLatestActiveBase(ctx context.Context, db *gorm.DB, orgID, accountID snowflake.ID) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE org_id = ? AND account_id = ?
		   AND category IN (?, ?)
		   AND status = ?
		 ORDER BY start_at DESC, id DESC
		 LIMIT 1`,
		orgID,
		accountID,
		domain.CategoryBase,
		domain.CategoryStandalone,
		domain.SubscriptionStatusActive,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListSubscriptionFilter, page pagination.Pagination) ([]*domain.Subscription, error) {
	var subscriptions []*domain.Subscription
	stmt := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("org_id = ?", orgID)
	if filter.AccountID != 0 {
		stmt = stmt.Where("account_id = ?", filter.AccountID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}
