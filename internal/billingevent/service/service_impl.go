package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duno/internal/billingevent/domain"
	"github.com/smallbiznis/duno/internal/clock"
	notifdomain "github.com/smallbiznis/duno/internal/notification/domain"
	"github.com/smallbiznis/duno/internal/orgcontext"
	pkgdb "github.com/smallbiznis/duno/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          domain.Repository
	Notifications notifdomain.Service
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          domain.Repository
	notifications notifdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("billingevent.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		notifications: p.Notifications,
	}
}

func (s *Service) Record(ctx context.Context, req domain.RecordRequest) (*domain.BillingEvent, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return nil, domain.ErrInvalidOrganization
	}

	eventType := strings.TrimSpace(req.EventType)
	if eventType == "" {
		return nil, domain.ErrInvalidEventType
	}

	payload := datatypes.JSONMap(req.Payload)
	if payload == nil {
		payload = datatypes.JSONMap{}
	}

	event := domain.BillingEvent{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: s.clock.Now(),
	}
	if key := strings.TrimSpace(req.DedupeKey); key != "" {
		event.DedupeKey = &key
	}

	if err := s.repo.Insert(ctx, s.db, &event); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			s.log.Debug("billing event deduplicated",
				zap.String("event_type", eventType),
				zap.Stringp("dedupe_key", event.DedupeKey))
			return nil, nil
		}
		return nil, err
	}

	_, err = s.notifications.Post(ctx,
		notifdomain.QueueEventDispatch,
		fmt.Sprintf("event:%s", event.ID),
		"billing_event",
		map[string]any{"event_id": event.ID.String()},
		s.clock.Now(),
	)
	if err != nil {
		return nil, err
	}

	return &event, nil
}
