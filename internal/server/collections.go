package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetCollectionsAging buckets the org's outstanding receivables by days
// overdue using the hot-reloadable bucket configuration.
func (s *Server) GetCollectionsAging(c *gin.Context) {
	report, err := s.collectionsSvc.Aging(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
