package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// RefreshResult reports one evaluation cycle.
type RefreshResult struct {
	AccountID     snowflake.ID `json:"account_id"`
	PreviousState string       `json:"previous_state"`
	NewState      string       `json:"new_state"`
	Changed       bool         `json:"changed"`
	NextCheckAt   *time.Time   `json:"next_check_at,omitempty"`
}

// StatusResult is the externally visible overdue status of an account.
type StatusResult struct {
	AccountID        snowflake.ID `json:"account_id"`
	StateName        string       `json:"state_name"`
	IsClear          bool         `json:"is_clear"`
	ExternalMessage  string       `json:"external_message,omitempty"`
	BlockChanges     bool         `json:"block_changes"`
	BlockEntitlement bool         `json:"block_entitlement"`
	BlockBilling     bool         `json:"block_billing"`
	Since            *time.Time   `json:"since,omitempty"`
}

type Service interface {
	// Refresh recalculates the billing state, evaluates the state graph
	// and appends a transition when the target differs from the current
	// state. Idempotent for an unchanged billing state.
	Refresh(ctx context.Context, accountID snowflake.ID) (RefreshResult, error)

	// Status reports the account's current overdue state.
	Status(ctx context.Context, accountID snowflake.ID) (StatusResult, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrUnknownState        = errors.New("unknown_overdue_state")
)
