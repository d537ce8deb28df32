package migration

import (
	"github.com/smallbiznis/duno/internal/config"
	"github.com/smallbiznis/duno/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		if cfg.DefaultOrgID != 0 {
			return seed.EnsureDefaultTenantWithID(conn, cfg.DefaultOrgID)
		}
		return seed.EnsureDefaultTenant(conn)
	}),
)
