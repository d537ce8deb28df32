package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	pushnotifydomain "github.com/smallbiznis/duno/internal/pushnotify/domain"
)

func (s *Server) ListPushEndpoints(c *gin.Context) {
	endpoints, err := s.pushSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": endpoints})
}

func (s *Server) RegisterPushEndpoint(c *gin.Context) {
	var req struct {
		URL    string `json:"url"`
		Secret string `json:"secret"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	endpoint, err := s.pushSvc.Register(c.Request.Context(), pushnotifydomain.RegisterEndpointRequest{
		URL:    strings.TrimSpace(req.URL),
		Secret: req.Secret,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := endpoint.ID.String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "push_endpoint.register", "push_endpoint", &targetID, map[string]any{
			"url": endpoint.URL,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": endpoint})
}

func (s *Server) UnregisterPushEndpoint(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	if err := s.pushSvc.Unregister(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := id
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "push_endpoint.unregister", "push_endpoint", &targetID, nil)
	}

	c.Status(http.StatusNoContent)
}
