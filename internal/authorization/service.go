// Package authorization enforces role-based access per tenant. Policies are
// kept in the database through the casbin gorm adapter so every instance
// shares one rule set.
package authorization

import (
	"context"
	"errors"
)

type Service interface {
	// Authorize checks whether actor may perform action on object within the
	// given org. Actor is "system", "api_key:<id>" or "user:<id>".
	Authorize(ctx context.Context, actor string, orgID string, object string, action string) error
}

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrForbidden           = errors.New("forbidden")
)
