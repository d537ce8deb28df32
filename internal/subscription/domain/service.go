package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duno/pkg/db/pagination"
)

type CreateSubscriptionRequest struct {
	AccountID         string
	BundleExternalKey string
	Category          SubscriptionCategory
	PlanName          string
	ProductName       string
	BillingPeriod     BillingPeriod
	PriceList         string
	StartAt           *time.Time
}

type GetSubscriptionRequest struct {
	ID string
}

type ListSubscriptionRequest struct {
	PageToken string
	PageSize  int32
	AccountID string
	Status    SubscriptionStatus
}

type ListSubscriptionFilter struct {
	AccountID snowflake.ID
	Status    SubscriptionStatus
}

type ListSubscriptionResponse struct {
	pagination.PageInfo
	Subscriptions []Subscription `json:"subscriptions"`
}

type Service interface {
	Create(context.Context, CreateSubscriptionRequest) (Subscription, error)
	GetByID(context.Context, GetSubscriptionRequest) (Subscription, error)
	List(context.Context, ListSubscriptionRequest) (ListSubscriptionResponse, error)
	Cancel(ctx context.Context, id string) (Subscription, error)

	// BasePlanInfo resolves the plan of the account's most recent active
	// base subscription. Nil when the account has none.
	BasePlanInfo(ctx context.Context, accountID snowflake.ID) (*PlanInfo, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidAccount      = errors.New("invalid_account")
	ErrInvalidBundleKey    = errors.New("invalid_bundle_key")
	ErrInvalidPlan         = errors.New("invalid_plan")
	ErrInvalidProduct      = errors.New("invalid_product")
	ErrInvalidPeriod       = errors.New("invalid_billing_period")
	ErrInvalidID           = errors.New("invalid_id")
	ErrBaseExists          = errors.New("base_subscription_exists")
	ErrNotFound            = errors.New("not_found")
	ErrAlreadyCancelled    = errors.New("already_cancelled")
)
