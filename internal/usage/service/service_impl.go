package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/duno/internal/account/domain"
	"github.com/smallbiznis/duno/internal/clock"
	"github.com/smallbiznis/duno/internal/observability/metrics"
	"github.com/smallbiznis/duno/internal/orgcontext"
	"github.com/smallbiznis/duno/internal/ratelimit"
	"github.com/smallbiznis/duno/internal/usage/domain"
	"github.com/smallbiznis/duno/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Accounts accountdomain.Service
	Limiter  *ratelimit.IngestLimiter `optional:"true"`
	Metrics  *metrics.Metrics
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	accounts accountdomain.Service
	limiter  *ratelimit.IngestLimiter
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("usage.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		accounts: p.Accounts,
		limiter:  p.Limiter,
		metrics:  p.Metrics,
	}
}

func (s *Service) Ingest(ctx context.Context, req domain.IngestUsageRequest) (domain.UsageRecord, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.UsageRecord{}, domain.ErrInvalidOrganization
	}

	accountID, err := s.parseID(req.AccountID)
	if err != nil {
		return domain.UsageRecord{}, domain.ErrInvalidAccount
	}
	metric := strings.TrimSpace(req.Metric)
	if metric == "" {
		return domain.UsageRecord{}, domain.ErrInvalidMetric
	}
	if !req.Quantity.IsPositive() {
		return domain.UsageRecord{}, domain.ErrInvalidQuantity
	}

	if err := s.throttle(ctx, orgID, accountID); err != nil {
		return domain.UsageRecord{}, err
	}

	if _, err := s.accounts.Get(ctx, accountID); err != nil {
		return domain.UsageRecord{}, err
	}

	token, locked, err := s.limiter.TryLockAccountMetric(ctx, orgID.String(), accountID.String(), metric)
	if err != nil {
		return domain.UsageRecord{}, err
	}
	if !locked {
		return domain.UsageRecord{}, domain.ErrConcurrentIngest
	}
	defer func() {
		if err := s.limiter.ReleaseAccountMetric(ctx, orgID.String(), accountID.String(), metric, token); err != nil {
			s.log.Warn("failed to release ingest lock", zap.Error(err))
		}
	}()

	if req.IdempotencyKey != nil {
		if key := strings.TrimSpace(*req.IdempotencyKey); key != "" {
			existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, orgID, key)
			if err != nil {
				return domain.UsageRecord{}, err
			}
			if existing != nil {
				return *existing, nil
			}
		}
	}

	recordedAt := req.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = s.clock.Now()
	}

	record := domain.UsageRecord{
		ID:             s.genID.Generate(),
		OrgID:          orgID,
		AccountID:      accountID,
		Metric:         metric,
		Quantity:       req.Quantity,
		RecordedAt:     recordedAt.UTC(),
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       datatypes.JSONMap(req.Metadata),
		CreatedAt:      s.clock.Now(),
	}
	if raw := strings.TrimSpace(req.SubscriptionID); raw != "" {
		subscriptionID, err := s.parseID(raw)
		if err != nil {
			return domain.UsageRecord{}, domain.ErrInvalidAccount
		}
		record.SubscriptionID = &subscriptionID
	}

	if err := s.repo.Insert(ctx, s.db, &record); err != nil {
		return domain.UsageRecord{}, err
	}

	s.metrics.RecordUsageIngest(ctx, metric)
	return record, nil
}

// throttle applies the tenant bucket first so a single noisy account cannot
// consume the whole org budget unnoticed.
func (s *Service) throttle(ctx context.Context, orgID, accountID snowflake.ID) error {
	decision, err := s.limiter.AllowOrg(ctx, orgID.String())
	if err != nil {
		return err
	}
	if !decision.Allowed {
		s.metrics.RecordRateLimitDenied(ctx, orgID.String(), "usage.ingest", "org")
		return domain.ErrRateLimited
	}

	decision, err = s.limiter.AllowAccount(ctx, orgID.String(), accountID.String())
	if err != nil {
		return err
	}
	if !decision.Allowed {
		s.metrics.RecordRateLimitDenied(ctx, orgID.String(), "usage.ingest", "account")
		return domain.ErrRateLimited
	}

	s.metrics.RecordRateLimitAllowed(ctx, orgID.String(), "usage.ingest")
	return nil
}

func (s *Service) List(ctx context.Context, req domain.ListUsageRequest) (domain.ListUsageResponse, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.ListUsageResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListUsageFilter{Metric: strings.TrimSpace(req.Metric)}
	if raw := strings.TrimSpace(req.AccountID); raw != "" {
		accountID, err := s.parseID(raw)
		if err != nil {
			return domain.ListUsageResponse{}, domain.ErrInvalidAccount
		}
		filter.AccountID = accountID
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListUsageResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(record *domain.UsageRecord) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        record.ID.String(),
			CreatedAt: record.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	records := make([]domain.UsageRecord, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		records = append(records, *item)
	}

	resp := domain.ListUsageResponse{UsageRecords: records}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidAccount
	}
	return id, nil
}
