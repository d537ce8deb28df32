package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type testCleanupRequest struct {
	Prefix string `json:"prefix"`
}

// TestCleanup removes tenants created by integration suites, matched by name
// prefix. Never registered in production.
func (s *Server) TestCleanup(c *gin.Context) {
	if s.cfg.Environment == "production" {
		AbortWithError(c, ErrNotFound)
		return
	}

	var req testCleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	prefix := strings.TrimSpace(req.Prefix)
	if prefix == "" {
		AbortWithError(c, newValidationError("prefix", "required", "prefix is required"))
		return
	}

	ctx := c.Request.Context()
	like := prefix + "%"

	var orgIDs []int64
	if err := s.db.WithContext(ctx).
		Table("tenants").
		Select("id").
		Where("name LIKE ?", like).
		Scan(&orgIDs).Error; err != nil {
		AbortWithError(c, err)
		return
	}

	if len(orgIDs) == 0 {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	// Children first, tenants last.
	tables := []string{
		"usage_records",
		"notifications",
		"billing_events",
		"blocking_states",
		"payments",
		"invoice_items",
		"invoices",
		"subscriptions",
		"bundles",
		"accounts",
		"push_endpoints",
		"api_keys",
		"audit_logs",
		"tenant_members",
	}
	for _, table := range tables {
		if err := s.db.WithContext(ctx).Exec(
			`DELETE FROM `+table+` WHERE org_id IN ?`, orgIDs,
		).Error; err != nil {
			AbortWithError(c, err)
			return
		}
	}

	if err := s.db.WithContext(ctx).Exec(
		`DELETE FROM tenants WHERE id IN ?`, orgIDs,
	).Error; err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
