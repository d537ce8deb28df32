package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duno/internal/clock"
	notificationdomain "github.com/smallbiznis/duno/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/duno/internal/observability/metrics"
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
	Repo  notificationdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  notificationdomain.Repository
}

func NewService(p ServiceParam) notificationdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("notification.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Post(ctx context.Context, queueName, entryKey, keyClass string, payload map[string]any, effectiveAt time.Time) (notificationdomain.Notification, error) {
	return s.post(ctx, s.db, queueName, entryKey, keyClass, payload, effectiveAt)
}

func (s *Service) PostReplacing(ctx context.Context, queueName, entryKey, keyClass string, payload map[string]any, effectiveAt time.Time) (notificationdomain.Notification, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return notificationdomain.Notification{}, err
	}

	var entry notificationdomain.Notification
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.RemovePending(ctx, tx, orgID, queueName, entryKey); err != nil {
			return err
		}
		var postErr error
		entry, postErr = s.post(ctx, tx, queueName, entryKey, keyClass, payload, effectiveAt)
		return postErr
	})
	if err != nil {
		return notificationdomain.Notification{}, err
	}
	return entry, nil
}

func (s *Service) CancelPending(ctx context.Context, queueName, entryKey string) error {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return err
	}
	return s.repo.RemovePending(ctx, s.db, orgID, queueName, entryKey)
}

func (s *Service) Pending(ctx context.Context, queueName, entryKey string) ([]notificationdomain.Notification, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.FindPending(ctx, s.db, orgID, queueName, entryKey)
}

func (s *Service) post(ctx context.Context, db *gorm.DB, queueName, entryKey, keyClass string, payload map[string]any, effectiveAt time.Time) (notificationdomain.Notification, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return notificationdomain.Notification{}, err
	}
	if strings.TrimSpace(queueName) == "" || strings.TrimSpace(entryKey) == "" {
		return notificationdomain.Notification{}, notificationdomain.ErrInvalidEntry
	}

	now := s.clock.Now()
	if effectiveAt.IsZero() {
		effectiveAt = now
	}
	entry := notificationdomain.Notification{
		ID:              s.genID.Generate(),
		OrgID:           orgID,
		QueueName:       queueName,
		EntryKey:        entryKey,
		KeyClass:        keyClass,
		Payload:         payload,
		EffectiveAt:     effectiveAt.UTC(),
		ProcessingState: notificationdomain.StateAvailable,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, db, &entry); err != nil {
		return notificationdomain.Notification{}, err
	}

	obsmetrics.Queue().IncPosted(queueName)
	s.log.Debug("notification posted",
		zap.String("queue", queueName),
		zap.String("entry_key", entryKey),
		zap.Time("effective_at", entry.EffectiveAt),
	)
	return entry, nil
}
