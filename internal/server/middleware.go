package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/duno/internal/audit/domain"
	auditcontext "github.com/smallbiznis/duno/internal/auditcontext"
	"github.com/smallbiznis/duno/internal/orgcontext"
)

const (
	HeaderOrg       = "X-Org-ID"
	HeaderUser      = "X-User-ID"
	HeaderRequestID = "X-Request-ID"
)

// RequestID propagates or generates a request ID and records request
// attribution for the audit trail.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := auditcontext.WithRequestID(c.Request.Context(), requestID)
		ctx = auditcontext.WithIPAddress(ctx, c.ClientIP())
		ctx = auditcontext.WithUserAgent(ctx, c.Request.UserAgent())

		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}

// AuthRequired resolves the caller. Bearer tokens are API keys and carry
// their own org. Otherwise the request must name a user and an org through
// headers set by the fronting gateway.
func (s *Server) AuthRequired() gin.HandlerFunc {
	apiKeyAuth := s.APIKeyRequired()
	return func(c *gin.Context) {
		if strings.TrimSpace(c.GetHeader("Authorization")) != "" {
			apiKeyAuth(c)
			return
		}

		userID := strings.TrimSpace(c.GetHeader(HeaderUser))
		if userID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		orgID, err := orgIDFromHeader(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		ctx = orgcontext.WithOrgID(ctx, orgID)
		ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeUser), userID)

		c.Set(contextActorKey, Actor{Type: ActorUser, OrgID: orgID, ID: userID})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func orgIDFromHeader(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.GetHeader(HeaderOrg))
	if raw == "" {
		return 0, orgcontext.ErrMissingOrg
	}
	orgID, err := snowflake.ParseString(raw)
	if err != nil || orgID == 0 {
		return 0, newValidationError("org_id", "invalid_organization", "invalid organization id")
	}
	return orgID, nil
}
