package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	blockingdomain "github.com/smallbiznis/duno/internal/blocking/domain"
	"github.com/smallbiznis/duno/internal/clock"
	"github.com/smallbiznis/duno/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  blockingdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  blockingdomain.Repository
}

func NewService(p ServiceParam) blockingdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("blocking.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Append writes a new history row with a server timestamp. The read of the
// latest row and the insert share one transaction, so the committing caller
// observes its own write and concurrent appends for the same entity
// serialize.
func (s *Service) Append(ctx context.Context, state blockingdomain.BlockingState) (blockingdomain.BlockingState, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return blockingdomain.BlockingState{}, err
	}
	if state.BlockableID == 0 || strings.TrimSpace(state.StateName) == "" || strings.TrimSpace(state.Service) == "" {
		return blockingdomain.BlockingState{}, blockingdomain.ErrInvalidState
	}
	switch state.BlockableType {
	case blockingdomain.BlockableTypeAccount, blockingdomain.BlockableTypeBundle, blockingdomain.BlockableTypeSubscription:
	default:
		return blockingdomain.BlockingState{}, blockingdomain.ErrUnknownBlockable
	}

	now := s.clock.Now()
	state.ID = s.genID.Generate()
	state.OrgID = orgID
	if state.EffectiveAt.IsZero() {
		state.EffectiveAt = now
	}
	state.CreatedAt = now

	err = s.db.Transaction(func(tx *gorm.DB) error {
		latest, err := s.repo.Latest(ctx, tx, orgID, state.BlockableID, state.Service)
		if err != nil {
			return err
		}
		if latest != nil && state.EffectiveAt.Before(latest.EffectiveAt) {
			return blockingdomain.ErrStaleEffective
		}
		return s.repo.Append(ctx, tx, &state)
	})
	if err != nil {
		return blockingdomain.BlockingState{}, err
	}

	s.log.Info("blocking state appended",
		zap.String("blockable_id", state.BlockableID.String()),
		zap.String("service", state.Service),
		zap.String("state", state.StateName),
	)
	return state, nil
}

// CurrentState returns the most recent row, or the clear sentinel when the
// entity has no history for the service.
func (s *Service) CurrentState(ctx context.Context, blockableID snowflake.ID, blockableType blockingdomain.BlockableType, service string) (blockingdomain.BlockingState, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return blockingdomain.BlockingState{}, err
	}
	latest, err := s.repo.Latest(ctx, s.db, orgID, blockableID, service)
	if err != nil {
		return blockingdomain.BlockingState{}, err
	}
	if latest == nil {
		return blockingdomain.Clear(orgID, blockableID, blockableType, service), nil
	}
	return *latest, nil
}

// History returns the append-only history, oldest first.
func (s *Service) History(ctx context.Context, blockableID snowflake.ID, service string) ([]blockingdomain.BlockingState, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.History(ctx, s.db, orgID, blockableID, service)
}
