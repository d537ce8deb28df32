package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duno/internal/clock"
	"github.com/smallbiznis/duno/internal/collections/domain"
	"github.com/smallbiznis/duno/internal/config"
	"github.com/smallbiznis/duno/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Holder *config.CollectionsConfigHolder
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	holder *config.CollectionsConfigHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("collections.service"),
		clock:  p.Clock,
		holder: p.Holder,
	}
}

type agingRow struct {
	ID         snowflake.ID    `gorm:"column:id"`
	Balance    decimal.Decimal `gorm:"column:balance"`
	TargetDate time.Time       `gorm:"column:target_date"`
}

func (s *Service) Aging(ctx context.Context) (domain.AgingReport, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.AgingReport{}, domain.ErrInvalidOrganization
	}

	now := s.clock.Now().UTC()

	var rows []agingRow
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id, balance, target_date
		 FROM invoices
		 WHERE org_id = ?
		   AND status = 'COMMITTED'
		   AND balance > 0
		 ORDER BY target_date ASC, id ASC`,
		orgID,
	).Scan(&rows).Error; err != nil {
		return domain.AgingReport{}, err
	}

	cfg := s.holder.Get()
	buckets := make([]domain.AgingBucketTotal, 0, len(cfg.AgingBuckets))
	for _, bucket := range cfg.AgingBuckets {
		buckets = append(buckets, domain.AgingBucketTotal{
			Label:   bucket.Label,
			MinDays: bucket.MinDays,
			MaxDays: bucket.MaxDays,
			Balance: decimal.Zero,
		})
	}

	report := domain.AgingReport{
		AsOf:         now,
		TotalBalance: decimal.Zero,
		Buckets:      buckets,
	}

	for _, row := range rows {
		age := int(now.Sub(row.TargetDate.UTC()).Hours() / 24)
		if age < 0 {
			age = 0
		}
		report.InvoiceCount++
		report.TotalBalance = report.TotalBalance.Add(row.Balance)

		for i := range report.Buckets {
			bucket := &report.Buckets[i]
			if age < bucket.MinDays {
				continue
			}
			if bucket.MaxDays != nil && age > *bucket.MaxDays {
				continue
			}
			bucket.InvoiceCount++
			bucket.Balance = bucket.Balance.Add(row.Balance)
			break
		}
	}

	return report, nil
}
