package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/duno/internal/clock"
	referencedomain "github.com/smallbiznis/duno/internal/reference/domain"
	"github.com/smallbiznis/duno/internal/tenant/domain"
	pkgdb "github.com/smallbiznis/duno/pkg/db"
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
	Ref   referencedomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	ref   referencedomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tenant.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		ref:   p.Ref,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateTenantRequest) (domain.Tenant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Tenant{}, domain.ErrInvalidName
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := s.validateCurrency(ctx, currency); err != nil {
		return domain.Tenant{}, err
	}

	timezone := strings.TrimSpace(req.Timezone)
	if timezone == "" {
		timezone = "UTC"
	}
	if err := s.validateTimezone(ctx, timezone); err != nil {
		return domain.Tenant{}, err
	}

	now := s.clock.Now()
	tenant := domain.Tenant{
		ID:           s.genID.Generate(),
		Name:         name,
		Slug:         slug.Make(name),
		SupportEmail: strings.TrimSpace(req.SupportEmail),
		Currency:     currency,
		Timezone:     timezone,
		Metadata:     datatypes.JSONMap{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Insert(ctx, s.db, &tenant); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.Tenant{}, domain.ErrDuplicateSlug
		}
		return domain.Tenant{}, err
	}

	s.log.Info("tenant created",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("slug", tenant.Slug))

	return tenant, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Tenant, error) {
	tenantID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || tenantID == 0 {
		return domain.Tenant{}, domain.ErrInvalidID
	}

	tenant, err := s.repo.FindByID(ctx, s.db, tenantID)
	if err != nil {
		return domain.Tenant{}, err
	}
	if tenant == nil {
		return domain.Tenant{}, domain.ErrNotFound
	}
	return *tenant, nil
}

func (s *Service) GetBySlug(ctx context.Context, slugName string) (domain.Tenant, error) {
	slugName = strings.TrimSpace(slugName)
	if slugName == "" {
		return domain.Tenant{}, domain.ErrInvalidID
	}

	tenant, err := s.repo.FindBySlug(ctx, s.db, slugName)
	if err != nil {
		return domain.Tenant{}, err
	}
	if tenant == nil {
		return domain.Tenant{}, domain.ErrNotFound
	}
	return *tenant, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Tenant, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) UpdateBillingDefaults(ctx context.Context, id string, req domain.BillingDefaultsRequest) (domain.Tenant, error) {
	tenant, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Tenant{}, err
	}

	if raw := strings.TrimSpace(req.Currency); raw != "" {
		currency := strings.ToUpper(raw)
		if err := s.validateCurrency(ctx, currency); err != nil {
			return domain.Tenant{}, err
		}
		tenant.Currency = currency
	}
	if timezone := strings.TrimSpace(req.Timezone); timezone != "" {
		if err := s.validateTimezone(ctx, timezone); err != nil {
			return domain.Tenant{}, err
		}
		tenant.Timezone = timezone
	}

	tenant.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, &tenant); err != nil {
		return domain.Tenant{}, err
	}
	return tenant, nil
}

func (s *Service) AddMember(ctx context.Context, req domain.AddMemberRequest) (domain.Member, error) {
	if req.OrgID == 0 {
		return domain.Member{}, domain.ErrInvalidID
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return domain.Member{}, domain.ErrInvalidUser
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == "" {
		role = domain.RoleMember
	}
	if !domain.ValidRole(role) {
		return domain.Member{}, domain.ErrInvalidRole
	}

	tenant, err := s.repo.FindByID(ctx, s.db, req.OrgID)
	if err != nil {
		return domain.Member{}, err
	}
	if tenant == nil {
		return domain.Member{}, domain.ErrNotFound
	}

	existing, err := s.repo.FindMember(ctx, s.db, req.OrgID, userID)
	if err != nil {
		return domain.Member{}, err
	}
	if existing != nil {
		if existing.Role != role {
			if err := s.repo.UpdateMemberRole(ctx, s.db, req.OrgID, userID, role); err != nil {
				return domain.Member{}, err
			}
			existing.Role = role
			existing.UpdatedAt = s.clock.Now()
		}
		return *existing, nil
	}

	now := s.clock.Now()
	member := domain.Member{
		ID:        s.genID.Generate(),
		OrgID:     req.OrgID,
		UserID:    userID,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertMember(ctx, s.db, &member); err != nil {
		return domain.Member{}, err
	}

	s.log.Info("tenant member added",
		zap.String("tenant_id", req.OrgID.String()),
		zap.String("user_id", userID),
		zap.String("role", role))

	return member, nil
}

func (s *Service) MemberRole(ctx context.Context, orgID snowflake.ID, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if orgID == 0 || userID == "" {
		return "", domain.ErrMemberNotFound
	}
	member, err := s.repo.FindMember(ctx, s.db, orgID, userID)
	if err != nil {
		return "", err
	}
	if member == nil {
		return "", domain.ErrMemberNotFound
	}
	return member.Role, nil
}

func (s *Service) ListMembers(ctx context.Context, orgID snowflake.ID) ([]domain.Member, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListMembers(ctx, s.db, orgID)
}

func (s *Service) validateCurrency(ctx context.Context, code string) error {
	if len(code) != 3 {
		return domain.ErrInvalidCurrency
	}
	ok, err := s.ref.CurrencyExists(ctx, code)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidCurrency
	}
	return nil
}

func (s *Service) validateTimezone(ctx context.Context, name string) error {
	ok, err := s.ref.TimezoneExists(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidTimezone
	}
	return nil
}
