package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duno/internal/account/domain"
	"github.com/smallbiznis/duno/internal/clock"
	"github.com/smallbiznis/duno/internal/orgcontext"
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
		log:   p.Log.Named("account.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateAccountRequest) (domain.Account, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.Account{}, domain.ErrInvalidOrganization
	}

	externalKey := strings.TrimSpace(req.ExternalKey)
	if externalKey == "" {
		return domain.Account{}, domain.ErrInvalidExternalKey
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Account{}, domain.ErrInvalidName
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Account{}, domain.ErrInvalidEmail
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return domain.Account{}, domain.ErrInvalidCurrency
	}

	timezone := strings.TrimSpace(req.Timezone)
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return domain.Account{}, domain.ErrInvalidTimezone
	}

	existing, err := s.repo.FindByExternalKey(ctx, s.db, orgID, externalKey)
	if err != nil {
		return domain.Account{}, err
	}
	if existing != nil {
		return domain.Account{}, domain.ErrDuplicateKey
	}

	now := s.clock.Now()
	account := domain.Account{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		ExternalKey: externalKey,
		Name:        name,
		Email:       email,
		Currency:    currency,
		Timezone:    timezone,
		Metadata:    datatypes.JSONMap{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	account.SetTagNames(nil)

	if err := s.repo.Insert(ctx, s.db, &account); err != nil {
		return domain.Account{}, err
	}

	return account, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetAccountRequest) (domain.Account, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Account{}, err
	}
	return s.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Account, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.Account{}, domain.ErrInvalidOrganization
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return domain.Account{}, err
	}
	if item == nil {
		return domain.Account{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListAccountRequest) (domain.ListAccountResponse, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.ListAccountResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListAccountFilter{
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.TrimSpace(req.Email),
		Currency:    strings.TrimSpace(req.Currency),
		CreatedFrom: req.CreatedFrom,
		CreatedTo:   req.CreatedTo,
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
		return domain.ListAccountResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(account *domain.Account) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        account.ID.String(),
			CreatedAt: account.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	accounts := make([]domain.Account, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		accounts = append(accounts, *item)
	}

	resp := domain.ListAccountResponse{Accounts: accounts}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) AddTag(ctx context.Context, req domain.TagRequest) (domain.Account, error) {
	return s.mutateTags(ctx, req, func(tags []string, tag string) []string {
		for _, existing := range tags {
			if existing == tag {
				return tags
			}
		}
		return append(tags, tag)
	})
}

func (s *Service) RemoveTag(ctx context.Context, req domain.TagRequest) (domain.Account, error) {
	return s.mutateTags(ctx, req, func(tags []string, tag string) []string {
		out := tags[:0]
		for _, existing := range tags {
			if existing != tag {
				out = append(out, existing)
			}
		}
		return out
	})
}

func (s *Service) mutateTags(ctx context.Context, req domain.TagRequest, apply func([]string, string) []string) (domain.Account, error) {
	id, err := s.parseID(req.AccountID)
	if err != nil {
		return domain.Account{}, err
	}

	tag := strings.TrimSpace(req.Tag)
	if tag == "" {
		return domain.Account{}, domain.ErrInvalidTag
	}

	account, err := s.Get(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}

	account.SetTagNames(apply(account.TagNames(), tag))
	account.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, &account); err != nil {
		return domain.Account{}, err
	}

	return account, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
