package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateTenantRequest) (Tenant, error)
	GetByID(ctx context.Context, id string) (Tenant, error)
	GetBySlug(ctx context.Context, slug string) (Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	UpdateBillingDefaults(ctx context.Context, id string, req BillingDefaultsRequest) (Tenant, error)

	AddMember(ctx context.Context, req AddMemberRequest) (Member, error)
	MemberRole(ctx context.Context, orgID snowflake.ID, userID string) (string, error)
	ListMembers(ctx context.Context, orgID snowflake.ID) ([]Member, error)
}

// AddMemberRequest attaches a user to a tenant. If the user already belongs
// to the tenant its role is updated instead.
type AddMemberRequest struct {
	OrgID  snowflake.ID `json:"org_id"`
	UserID string       `json:"user_id"`
	Role   string       `json:"role"`
}

type CreateTenantRequest struct {
	Name         string `json:"name"`
	SupportEmail string `json:"support_email"`
	Currency     string `json:"currency"`
	Timezone     string `json:"timezone"`
}

// BillingDefaultsRequest updates the tenant-wide billing defaults applied to
// new accounts.
type BillingDefaultsRequest struct {
	Currency string `json:"currency"`
	Timezone string `json:"timezone"`
}

var (
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidTimezone = errors.New("invalid_timezone")
	ErrInvalidID       = errors.New("invalid_id")
	ErrDuplicateSlug   = errors.New("duplicate_slug")
	ErrNotFound        = errors.New("not_found")
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidRole     = errors.New("invalid_role")
	ErrMemberNotFound  = errors.New("member_not_found")
)
