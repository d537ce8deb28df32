package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duno/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	InsertBundle(ctx context.Context, db *gorm.DB, bundle *Bundle) error
	FindBundleByKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, externalKey string) (*Bundle, error)
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Subscription, error)
	FindBase(ctx context.Context, db *gorm.DB, orgID, bundleID snowflake.ID) (*Subscription, error)
	FindLatestActiveBase(ctx context.Context, db *gorm.DB, orgID, accountID snowflake.ID) (*Subscription, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListSubscriptionFilter, page pagination.Pagination) ([]*Subscription, error)
}
