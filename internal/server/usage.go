package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	usagedomain "github.com/smallbiznis/duno/internal/usage/domain"
	"github.com/smallbiznis/duno/pkg/db/pagination"
)

// IngestUsage accepts one usage record. Rate limiting and idempotency both
// live inside the usage service.
func (s *Server) IngestUsage(c *gin.Context) {
	var req usagedomain.IngestUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	record, err := s.usagesvc.Ingest(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}

func (s *Server) ListUsage(c *gin.Context) {
	var query struct {
		pagination.Pagination
		AccountID string `form:"account_id"`
		Metric    string `form:"metric"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.usagesvc.List(c.Request.Context(), usagedomain.ListUsageRequest{
		AccountID: strings.TrimSpace(query.AccountID),
		Metric:    strings.TrimSpace(query.Metric),
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.UsageRecords, "page_info": resp.PageInfo})
}
