package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duno/pkg/db/pagination"
)

type CreateAccountRequest struct {
	ExternalKey string
	Name        string
	Email       string
	Currency    string
	Timezone    string
}

type GetAccountRequest struct {
	ID string
}

type ListAccountRequest struct {
	PageToken   string
	PageSize    int32
	Name        string
	Email       string
	Currency    string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListAccountFilter struct {
	Name        string
	Email       string
	Currency    string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListAccountResponse struct {
	pagination.PageInfo
	Accounts []Account `json:"accounts"`
}

type TagRequest struct {
	AccountID string
	Tag       string
}

type Service interface {
	Create(context.Context, CreateAccountRequest) (Account, error)
	GetByID(context.Context, GetAccountRequest) (Account, error)
	List(context.Context, ListAccountRequest) (ListAccountResponse, error)
	AddTag(context.Context, TagRequest) (Account, error)
	RemoveTag(context.Context, TagRequest) (Account, error)

	// Get is the internal lookup used by the delinquency pipeline.
	Get(ctx context.Context, id snowflake.ID) (Account, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidExternalKey  = errors.New("invalid_external_key")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidTimezone     = errors.New("invalid_timezone")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidTag          = errors.New("invalid_tag")
	ErrDuplicateKey        = errors.New("duplicate_external_key")
	ErrNotFound            = errors.New("not_found")
)
