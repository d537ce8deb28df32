// Package seed bootstraps the default tenant so a fresh local or
// self-hosted install is usable without any manual setup call.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/smallbiznis/duno/internal/tenant/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultTenantName = "Main"
	defaultTenantSlug = "main"
	defaultCurrency   = "USD"
	defaultTimezone   = "UTC"
)

// EnsureDefaultTenant seeds the default tenant when none exists.
func EnsureDefaultTenant(db *gorm.DB) error {
	return ensureDefaultTenant(db, 0)
}

// EnsureDefaultTenantWithID seeds the default tenant under a fixed ID so
// deployments can pin the org referenced by their gateway configuration.
func EnsureDefaultTenantWithID(db *gorm.DB, orgID int64) error {
	return ensureDefaultTenant(db, snowflake.ID(orgID))
}

func ensureDefaultTenant(db *gorm.DB, orgID snowflake.ID) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tenant tenantdomain.Tenant
		err := tx.WithContext(ctx).Where("slug = ?", defaultTenantSlug).First(&tenant).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		id := orgID
		if id == 0 {
			id = node.Generate()
		}
		now := time.Now().UTC()
		tenant = tenantdomain.Tenant{
			ID:        id,
			Name:      defaultTenantName,
			Slug:      defaultTenantSlug,
			Currency:  defaultCurrency,
			Timezone:  defaultTimezone,
			Metadata:  datatypes.JSONMap{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.WithContext(ctx).Create(&tenant).Error
	})
}
