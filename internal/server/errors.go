package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/duno/internal/account/domain"
	apikeydomain "github.com/smallbiznis/duno/internal/apikey/domain"
	"github.com/smallbiznis/duno/internal/apikey/scope"
	auditdomain "github.com/smallbiznis/duno/internal/audit/domain"
	"github.com/smallbiznis/duno/internal/authorization"
	collectionsdomain "github.com/smallbiznis/duno/internal/collections/domain"
	invoicedomain "github.com/smallbiznis/duno/internal/invoice/domain"
	"github.com/smallbiznis/duno/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/duno/internal/payment/domain"
	pushnotifydomain "github.com/smallbiznis/duno/internal/pushnotify/domain"
	subscriptiondomain "github.com/smallbiznis/duno/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/duno/internal/tenant/domain"
	usagedomain "github.com/smallbiznis/duno/internal/usage/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, usagedomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, orgcontext.ErrMissingOrg):
		return true
	case isTenantValidationError(err),
		isAccountValidationError(err),
		isSubscriptionValidationError(err),
		isInvoiceValidationError(err),
		isPaymentValidationError(err),
		isUsageValidationError(err),
		isAPIKeyValidationError(err),
		isAuditValidationError(err):
		return true
	case errors.Is(err, pushnotifydomain.ErrInvalidOrganization),
		errors.Is(err, pushnotifydomain.ErrInvalidURL),
		errors.Is(err, pushnotifydomain.ErrInvalidID),
		errors.Is(err, collectionsdomain.ErrInvalidOrganization),
		errors.Is(err, scope.ErrInvalidScope):
		return true
	default:
		return false
	}
}

func isTenantValidationError(err error) bool {
	return errors.Is(err, tenantdomain.ErrInvalidName) ||
		errors.Is(err, tenantdomain.ErrInvalidCurrency) ||
		errors.Is(err, tenantdomain.ErrInvalidTimezone) ||
		errors.Is(err, tenantdomain.ErrInvalidID) ||
		errors.Is(err, tenantdomain.ErrInvalidUser) ||
		errors.Is(err, tenantdomain.ErrInvalidRole)
}

func isAccountValidationError(err error) bool {
	return errors.Is(err, accountdomain.ErrInvalidOrganization) ||
		errors.Is(err, accountdomain.ErrInvalidExternalKey) ||
		errors.Is(err, accountdomain.ErrInvalidName) ||
		errors.Is(err, accountdomain.ErrInvalidEmail) ||
		errors.Is(err, accountdomain.ErrInvalidCurrency) ||
		errors.Is(err, accountdomain.ErrInvalidTimezone) ||
		errors.Is(err, accountdomain.ErrInvalidID) ||
		errors.Is(err, accountdomain.ErrInvalidTag)
}

func isSubscriptionValidationError(err error) bool {
	return errors.Is(err, subscriptiondomain.ErrInvalidOrganization) ||
		errors.Is(err, subscriptiondomain.ErrInvalidAccount) ||
		errors.Is(err, subscriptiondomain.ErrInvalidBundleKey) ||
		errors.Is(err, subscriptiondomain.ErrInvalidPlan) ||
		errors.Is(err, subscriptiondomain.ErrInvalidProduct) ||
		errors.Is(err, subscriptiondomain.ErrInvalidPeriod) ||
		errors.Is(err, subscriptiondomain.ErrInvalidID)
}

func isInvoiceValidationError(err error) bool {
	return errors.Is(err, invoicedomain.ErrInvalidOrganization) ||
		errors.Is(err, invoicedomain.ErrInvalidAccount) ||
		errors.Is(err, invoicedomain.ErrInvalidCurrency) ||
		errors.Is(err, invoicedomain.ErrInvalidAmount) ||
		errors.Is(err, invoicedomain.ErrInvalidItems) ||
		errors.Is(err, invoicedomain.ErrInvalidID)
}

func isPaymentValidationError(err error) bool {
	return errors.Is(err, paymentdomain.ErrInvalidOrganization) ||
		errors.Is(err, paymentdomain.ErrInvalidAccount) ||
		errors.Is(err, paymentdomain.ErrInvalidInvoice) ||
		errors.Is(err, paymentdomain.ErrInvalidAmount) ||
		errors.Is(err, paymentdomain.ErrInvalidID)
}

func isUsageValidationError(err error) bool {
	return errors.Is(err, usagedomain.ErrInvalidOrganization) ||
		errors.Is(err, usagedomain.ErrInvalidAccount) ||
		errors.Is(err, usagedomain.ErrInvalidMetric) ||
		errors.Is(err, usagedomain.ErrInvalidQuantity)
}

func isAPIKeyValidationError(err error) bool {
	return errors.Is(err, apikeydomain.ErrInvalidOrganization) ||
		errors.Is(err, apikeydomain.ErrInvalidName) ||
		errors.Is(err, apikeydomain.ErrInvalidKeyID)
}

func isAuditValidationError(err error) bool {
	return errors.Is(err, auditdomain.ErrInvalidOrganization) ||
		errors.Is(err, auditdomain.ErrInvalidPageToken) ||
		errors.Is(err, auditdomain.ErrInvalidTimeRange) ||
		errors.Is(err, auditdomain.ErrInvalidAction)
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, tenantdomain.ErrDuplicateSlug),
		errors.Is(err, accountdomain.ErrDuplicateKey),
		errors.Is(err, subscriptiondomain.ErrBaseExists),
		errors.Is(err, subscriptiondomain.ErrAlreadyCancelled),
		errors.Is(err, invoicedomain.ErrNotPayable),
		errors.Is(err, paymentdomain.ErrNotRefundable),
		errors.Is(err, usagedomain.ErrConcurrentIngest):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, tenantdomain.ErrNotFound),
		errors.Is(err, tenantdomain.ErrMemberNotFound),
		errors.Is(err, accountdomain.ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, apikeydomain.ErrNotFound),
		errors.Is(err, pushnotifydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog feeds the request logger so 4xx noise does not page
// anyone. Returns a severity and a short classification.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "error", payload.Type
	case status == http.StatusTooManyRequests:
		return "warn", payload.Type
	default:
		return "info", payload.Type
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, orgcontext.ErrMissingOrg):
		return "invalid_organization"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
