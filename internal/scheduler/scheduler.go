// Package scheduler is the safety net behind the notification queue. The
// queue normally schedules its own follow-up work; the sweeper re-posts
// entries that should exist but do not, so a crashed process or a lost row
// never strands an account in a stale state.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duno/internal/clock"
	notifdomain "github.com/smallbiznis/duno/internal/notification/domain"
	"github.com/smallbiznis/duno/internal/orgcontext"
	pkgdb "github.com/smallbiznis/duno/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler dependencies incomplete")

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Notifications notifdomain.Service
	Config        Config `optional:"true"`
}

type Scheduler struct {
	db            *gorm.DB
	log           *zap.Logger
	cfg           Config
	clock         clock.Clock
	notifications notifdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Notifications == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:            p.DB,
		log:           p.Log.Named("scheduler"),
		cfg:           p.Config.withDefaults(),
		clock:         p.Clock,
		notifications: p.Notifications,
	}, nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.Warn("sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single sweep. Each sub-sweep is independent; a failure
// in one does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs []error
	if err := s.sweepOverdueChecks(ctx); err != nil {
		errs = append(errs, fmt.Errorf("overdue checks: %w", err))
	}
	if err := s.sweepUnpublishedEvents(ctx); err != nil {
		errs = append(errs, fmt.Errorf("unpublished events: %w", err))
	}
	return errors.Join(errs...)
}

type delinquentAccount struct {
	OrgID     snowflake.ID `gorm:"column:org_id"`
	AccountID snowflake.ID `gorm:"column:account_id"`
}

// sweepOverdueChecks finds accounts that carry unpaid committed invoices but
// have no pending overdue check, and schedules an immediate one.
func (s *Scheduler) sweepOverdueChecks(ctx context.Context) error {
	var rows []delinquentAccount
	err := s.db.WithContext(ctx).Raw(
		`SELECT DISTINCT i.org_id, i.account_id
		 FROM invoices i
		 WHERE i.status = 'COMMITTED'
		   AND i.balance > 0
		   AND NOT EXISTS (
		     SELECT 1 FROM notifications n
		     WHERE n.org_id = i.org_id
		       AND n.queue_name = ?
		       AND n.entry_key = `+pkgdb.KeyConcatExpr(s.db, "account:", "i.account_id")+`
		       AND n.processing_state IN ('AVAILABLE', 'IN_PROCESSING')
		   )
		 LIMIT ?`,
		notifdomain.QueueOverdueCheck,
		s.cfg.BatchSize,
	).Scan(&rows).Error
	if err != nil {
		return err
	}

	for _, row := range rows {
		orgCtx := orgcontext.WithOrgID(ctx, row.OrgID)
		_, err := s.notifications.PostReplacing(orgCtx,
			notifdomain.QueueOverdueCheck,
			fmt.Sprintf("account:%s", row.AccountID),
			"account",
			map[string]any{"account_id": row.AccountID.String()},
			s.clock.Now(),
		)
		if err != nil {
			return err
		}
		s.log.Info("requeued overdue check",
			zap.String("org_id", row.OrgID.String()),
			zap.String("account_id", row.AccountID.String()))
	}
	return nil
}

type strandedEvent struct {
	OrgID snowflake.ID `gorm:"column:org_id"`
	ID    snowflake.ID `gorm:"column:id"`
}

// sweepUnpublishedEvents re-posts dispatch entries for outbox rows that have
// been sitting unpublished past the repost age.
func (s *Scheduler) sweepUnpublishedEvents(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.cfg.EventRepostAge)

	var rows []strandedEvent
	err := s.db.WithContext(ctx).Raw(
		`SELECT e.org_id, e.id
		 FROM billing_events e
		 WHERE e.published = false
		   AND e.created_at <= ?
		   AND NOT EXISTS (
		     SELECT 1 FROM notifications n
		     WHERE n.org_id = e.org_id
		       AND n.queue_name = ?
		       AND n.entry_key = `+pkgdb.KeyConcatExpr(s.db, "event:", "e.id")+`
		       AND n.processing_state IN ('AVAILABLE', 'IN_PROCESSING')
		   )
		 ORDER BY e.created_at ASC
		 LIMIT ?`,
		cutoff,
		notifdomain.QueueEventDispatch,
		s.cfg.BatchSize,
	).Scan(&rows).Error
	if err != nil {
		return err
	}

	for _, row := range rows {
		orgCtx := orgcontext.WithOrgID(ctx, row.OrgID)
		_, err := s.notifications.Post(orgCtx,
			notifdomain.QueueEventDispatch,
			fmt.Sprintf("event:%s", row.ID),
			"billing_event",
			map[string]any{"event_id": row.ID.String()},
			s.clock.Now(),
		)
		if err != nil {
			return err
		}
		s.log.Info("requeued event dispatch",
			zap.String("org_id", row.OrgID.String()),
			zap.String("event_id", row.ID.String()))
	}
	return nil
}
