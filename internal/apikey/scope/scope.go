// Package scope maps API key scopes onto authorization objects and actions.
// A scope is the normalized action name ("invoice:void"); "<object>:*" and
// "*" wildcards widen a key's grant.
package scope

import (
	"errors"
	"strings"

	"github.com/smallbiznis/duno/internal/authorization"
)

type Scope string

var ErrInvalidScope = errors.New("invalid_scope")

var allActions = []string{
	authorization.ActionTenantView,
	authorization.ActionTenantManage,
	authorization.ActionAccountView,
	authorization.ActionAccountCreate,
	authorization.ActionAccountUpdate,
	authorization.ActionAccountTag,
	authorization.ActionSubscriptionView,
	authorization.ActionSubscriptionCreate,
	authorization.ActionSubscriptionCancel,
	authorization.ActionInvoiceView,
	authorization.ActionInvoiceCreate,
	authorization.ActionInvoiceVoid,
	authorization.ActionInvoiceWriteOff,
	authorization.ActionPaymentView,
	authorization.ActionPaymentProcess,
	authorization.ActionPaymentRefund,
	authorization.ActionOverdueView,
	authorization.ActionOverdueRefresh,
	authorization.ActionBlockingView,
	authorization.ActionUsageIngest,
	authorization.ActionUsageView,
	authorization.ActionPushEndpointView,
	authorization.ActionPushEndpointManage,
	authorization.ActionCollectionsView,
	authorization.ActionAuditLogView,
}

var validScopes = func() map[string]struct{} {
	lookup := make(map[string]struct{}, len(allActions))
	for _, action := range allActions {
		lookup[normalize(action)] = struct{}{}
	}
	return lookup
}()

// All returns every recognized scope, normalized.
func All() []string {
	values := make([]string, len(allActions))
	for i, action := range allActions {
		values[i] = normalize(action)
	}
	return values
}

// FromAuthz returns the scope an API key needs for an authorization action.
func FromAuthz(object string, action string) Scope {
	normalized := normalize(action)
	if _, ok := validScopes[normalized]; !ok {
		return ""
	}
	if strings.SplitN(normalized, ":", 2)[0] != normalize(object) {
		return ""
	}
	return Scope(normalized)
}

// Has reports whether the key's scopes satisfy required.
func Has(scopes []string, required Scope) bool {
	requiredScope := normalize(string(required))
	if requiredScope == "" {
		return false
	}

	requiredObject := strings.SplitN(requiredScope, ":", 2)[0]

	for _, scope := range scopes {
		normalized := normalize(scope)
		if normalized == "" {
			continue
		}
		if normalized == "*" {
			return true
		}
		if normalized == requiredScope {
			return true
		}
		if requiredObject != "" && (normalized == requiredObject+":*" || normalized == requiredObject+".*") {
			return true
		}
	}
	return false
}

// Normalize lowercases, dedupes and canonicalizes a scope list.
func Normalize(scopes []string) []string {
	if len(scopes) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(scopes))
	normalized := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		value := normalize(scope)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		normalized = append(normalized, value)
	}
	return normalized
}

func IsValid(scope string) bool {
	normalized := normalize(scope)
	if normalized == "*" || strings.HasSuffix(normalized, ":*") {
		return true
	}
	_, ok := validScopes[normalized]
	return ok
}

// Validate rejects scope lists containing unrecognized entries.
func Validate(scopes []string) error {
	for _, scope := range scopes {
		if normalize(scope) == "" {
			continue
		}
		if !IsValid(scope) {
			return ErrInvalidScope
		}
	}
	return nil
}

func normalize(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	return strings.ReplaceAll(normalized, ".", ":")
}
