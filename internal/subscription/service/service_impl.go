package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duno/internal/clock"
	"github.com/smallbiznis/duno/internal/orgcontext"
	"github.com/smallbiznis/duno/internal/subscription/domain"
	"github.com/smallbiznis/duno/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateSubscriptionRequest) (domain.Subscription, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.Subscription{}, domain.ErrInvalidOrganization
	}

	accountID, err := s.parseID(req.AccountID)
	if err != nil {
		return domain.Subscription{}, domain.ErrInvalidAccount
	}

	bundleKey := strings.TrimSpace(req.BundleExternalKey)
	if bundleKey == "" {
		return domain.Subscription{}, domain.ErrInvalidBundleKey
	}

	planName := strings.TrimSpace(req.PlanName)
	if planName == "" {
		return domain.Subscription{}, domain.ErrInvalidPlan
	}

	productName := strings.TrimSpace(req.ProductName)
	if productName == "" {
		return domain.Subscription{}, domain.ErrInvalidProduct
	}

	switch req.BillingPeriod {
	case domain.BillingPeriodMonthly, domain.BillingPeriodQuarterly, domain.BillingPeriodAnnual, domain.BillingPeriodNoBilling:
	default:
		return domain.Subscription{}, domain.ErrInvalidPeriod
	}

	category := req.Category
	if category == "" {
		category = domain.CategoryBase
	}

	priceList := strings.TrimSpace(req.PriceList)
	if priceList == "" {
		priceList = "DEFAULT"
	}

	now := s.clock.Now()
	startAt := now
	if req.StartAt != nil {
		startAt = req.StartAt.UTC()
	}

	var out domain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bundle, err := s.repo.FindBundleByKey(ctx, tx, orgID, bundleKey)
		if err != nil {
			return err
		}
		if bundle == nil {
			bundle = &domain.Bundle{
				ID:          s.genID.Generate(),
				OrgID:       orgID,
				AccountID:   accountID,
				ExternalKey: bundleKey,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := s.repo.InsertBundle(ctx, tx, bundle); err != nil {
				return err
			}
		}

		if category == domain.CategoryBase {
			base, err := s.repo.FindBase(ctx, tx, orgID, bundle.ID)
			if err != nil {
				return err
			}
			if base != nil && base.Status != domain.SubscriptionStatusCancelled {
				return domain.ErrBaseExists
			}
		}

		subscription := domain.Subscription{
			ID:            s.genID.Generate(),
			OrgID:         orgID,
			BundleID:      bundle.ID,
			AccountID:     accountID,
			Category:      category,
			Status:        domain.SubscriptionStatusActive,
			PlanName:      planName,
			ProductName:   productName,
			BillingPeriod: req.BillingPeriod,
			PriceList:     priceList,
			StartAt:       startAt,
			Metadata:      datatypes.JSONMap{},
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.Insert(ctx, tx, &subscription); err != nil {
			return err
		}
		out = subscription
		return nil
	})
	if err != nil {
		return domain.Subscription{}, err
	}
	return out, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetSubscriptionRequest) (domain.Subscription, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.Subscription{}, domain.ErrInvalidOrganization
	}

	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Subscription{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return domain.Subscription{}, err
	}
	if item == nil {
		return domain.Subscription{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListSubscriptionRequest) (domain.ListSubscriptionResponse, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.ListSubscriptionResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListSubscriptionFilter{Status: req.Status}
	if strings.TrimSpace(req.AccountID) != "" {
		accountID, err := s.parseID(req.AccountID)
		if err != nil {
			return domain.ListSubscriptionResponse{}, domain.ErrInvalidAccount
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
		return domain.ListSubscriptionResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(subscription *domain.Subscription) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        subscription.ID.String(),
			CreatedAt: subscription.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	subscriptions := make([]domain.Subscription, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		subscriptions = append(subscriptions, *item)
	}

	resp := domain.ListSubscriptionResponse{Subscriptions: subscriptions}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) Cancel(ctx context.Context, id string) (domain.Subscription, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.Subscription{}, domain.ErrInvalidOrganization
	}

	subscriptionID, err := s.parseID(id)
	if err != nil {
		return domain.Subscription{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, subscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if item == nil {
		return domain.Subscription{}, domain.ErrNotFound
	}
	if item.Status == domain.SubscriptionStatusCancelled {
		return domain.Subscription{}, domain.ErrAlreadyCancelled
	}

	now := s.clock.Now()
	item.Status = domain.SubscriptionStatusCancelled
	item.CancelledAt = &now
	item.UpdatedAt = now

	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return domain.Subscription{}, err
	}
	return *item, nil
}

func (s *Service) BasePlanInfo(ctx context.Context, accountID snowflake.ID) (*domain.PlanInfo, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return nil, domain.ErrInvalidOrganization
	}

	base, err := s.repo.FindLatestActiveBase(ctx, s.db, orgID, accountID)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, nil
	}
	return &domain.PlanInfo{
		PlanName:      base.PlanName,
		ProductName:   base.ProductName,
		BillingPeriod: base.BillingPeriod,
		PriceList:     base.PriceList,
	}, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
