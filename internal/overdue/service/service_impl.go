package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	billingeventdomain "github.com/smallbiznis/duno/internal/billingevent/domain"
	billingstatedomain "github.com/smallbiznis/duno/internal/billingstate/domain"
	blockingdomain "github.com/smallbiznis/duno/internal/blocking/domain"
	"github.com/smallbiznis/duno/internal/clock"
	notifdomain "github.com/smallbiznis/duno/internal/notification/domain"
	"github.com/smallbiznis/duno/internal/observability/metrics"
	"github.com/smallbiznis/duno/internal/orgcontext"
	"github.com/smallbiznis/duno/internal/overdue/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log           *zap.Logger
	Clock         clock.Clock
	Config        domain.Config
	Calculator    billingstatedomain.Calculator
	Blocking      blockingdomain.Service
	Notifications notifdomain.Service
	Events        billingeventdomain.Service
	Metrics       *metrics.Metrics
}

type Service struct {
	log           *zap.Logger
	clock         clock.Clock
	cfg           domain.Config
	calculator    billingstatedomain.Calculator
	blocking      blockingdomain.Service
	notifications notifdomain.Service
	events        billingeventdomain.Service
	metrics       *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:           p.Log.Named("overdue.service"),
		clock:         p.Clock,
		cfg:           p.Config,
		calculator:    p.Calculator,
		blocking:      p.Blocking,
		notifications: p.Notifications,
		events:        p.Events,
		metrics:       p.Metrics,
	}
}

func (s *Service) Refresh(ctx context.Context, accountID snowflake.ID) (domain.RefreshResult, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.RefreshResult{}, domain.ErrInvalidOrganization
	}

	now := s.clock.Now()

	billingState, err := s.calculator.Calculate(ctx, accountID, now)
	if err != nil {
		return domain.RefreshResult{}, err
	}

	target := s.cfg.Evaluate(billingState, now)

	current, err := s.blocking.CurrentState(ctx, accountID, blockingdomain.BlockableTypeAccount, blockingdomain.ServiceOverdue)
	if err != nil {
		return domain.RefreshResult{}, err
	}

	result := domain.RefreshResult{
		AccountID:     accountID,
		PreviousState: current.StateName,
		NewState:      target.Name,
		Changed:       current.StateName != target.Name,
	}

	if result.Changed {
		next := blockingdomain.BlockingState{
			OrgID:            orgID,
			BlockableID:      accountID,
			BlockableType:    blockingdomain.BlockableTypeAccount,
			StateName:        target.Name,
			Service:          blockingdomain.ServiceOverdue,
			BlockChange:      target.BlockChanges,
			BlockEntitlement: target.BlockEntitlement,
			BlockBilling:     target.BlockBilling,
			EffectiveAt:      now,
		}
		if _, err := s.blocking.Append(ctx, next); err != nil {
			return domain.RefreshResult{}, err
		}

		s.metrics.RecordOverdueTransition(ctx, current.StateName, target.Name)
		s.log.Info("overdue state transition",
			zap.String("account_id", accountID.String()),
			zap.String("from", current.StateName),
			zap.String("to", target.Name))

		_, err = s.events.Record(ctx, billingeventdomain.RecordRequest{
			EventType: billingeventdomain.EventTypeOverdueStateChanged,
			DedupeKey: fmt.Sprintf("overdue:%s:%s:%d", accountID, target.Name, now.Unix()),
			Payload: map[string]any{
				"account_id":       accountID.String(),
				"previous_state":   current.StateName,
				"new_state":        target.Name,
				"external_message": target.ExternalMessage,
				"effective_at":     now,
			},
		})
		if err != nil {
			return domain.RefreshResult{}, err
		}
	}

	result.NextCheckAt = s.cfg.NextCheckAt(target, billingState, now)
	if err := s.schedule(ctx, accountID, result.NextCheckAt); err != nil {
		return domain.RefreshResult{}, err
	}

	return result, nil
}

// schedule replaces the pending recheck with the new one, or cancels it when
// no future evaluation can change anything.
func (s *Service) schedule(ctx context.Context, accountID snowflake.ID, at *time.Time) error {
	key := fmt.Sprintf("account:%s", accountID)
	if at == nil {
		return s.notifications.CancelPending(ctx, notifdomain.QueueOverdueCheck, key)
	}
	_, err := s.notifications.PostReplacing(ctx,
		notifdomain.QueueOverdueCheck,
		key,
		"account",
		map[string]any{"account_id": accountID.String()},
		*at,
	)
	return err
}

func (s *Service) Status(ctx context.Context, accountID snowflake.ID) (domain.StatusResult, error) {
	if _, err := orgcontext.RequireOrgID(ctx); err != nil {
		return domain.StatusResult{}, domain.ErrInvalidOrganization
	}

	current, err := s.blocking.CurrentState(ctx, accountID, blockingdomain.BlockableTypeAccount, blockingdomain.ServiceOverdue)
	if err != nil {
		return domain.StatusResult{}, err
	}

	result := domain.StatusResult{
		AccountID: accountID,
		StateName: current.StateName,
		IsClear:   current.IsClear(),
	}
	if !current.EffectiveAt.IsZero() {
		since := current.EffectiveAt
		result.Since = &since
	}
	if result.IsClear {
		return result, nil
	}

	state, ok := s.cfg.FindState(current.StateName)
	if !ok {
		return domain.StatusResult{}, domain.ErrUnknownState
	}
	result.ExternalMessage = state.ExternalMessage
	result.BlockChanges = state.BlockChanges
	result.BlockEntitlement = state.BlockEntitlement
	result.BlockBilling = state.BlockBilling
	return result, nil
}
