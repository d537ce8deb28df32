package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	blockingdomain "github.com/smallbiznis/duno/internal/blocking/domain"
)

func (s *Server) GetOverdueStatus(c *gin.Context) {
	accountID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	status, err := s.overdueSvc.Status(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": status})
}

// RefreshOverdue forces a re-evaluation of the account's delinquency state.
// Scheduled checks land on the same code path through the queue.
func (s *Server) RefreshOverdue(c *gin.Context) {
	accountID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	result, err := s.overdueSvc.Refresh(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil && result.Changed {
		targetID := accountID.String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "overdue.refresh", "account", &targetID, map[string]any{
			"previous_state": result.PreviousState,
			"new_state":      result.NewState,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) GetBlockingState(c *gin.Context) {
	accountID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	state, err := s.blockingSvc.CurrentState(c.Request.Context(), accountID, blockingdomain.BlockableTypeAccount, blockingdomain.ServiceOverdue)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": state})
}

func (s *Server) ListBlockingHistory(c *gin.Context) {
	accountID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	history, err := s.blockingSvc.History(c.Request.Context(), accountID, blockingdomain.ServiceOverdue)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": history})
}

// RenderOverdueNotice renders a dunning notice for the account's oldest
// unpaid invoice. Accounts in good standing have nothing to render.
func (s *Server) RenderOverdueNotice(c *gin.Context) {
	accountID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	ctx := c.Request.Context()

	status, err := s.overdueSvc.Status(ctx, accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if status.IsClear {
		AbortWithError(c, ErrNotFound)
		return
	}

	unpaid, err := s.invoiceSvc.UnpaidAsOf(ctx, accountID, s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if len(unpaid) == 0 {
		AbortWithError(c, ErrNotFound)
		return
	}

	doc, err := s.invoiceDocument(ctx, unpaid[0])
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if doc.OverdueMessage == "" {
		doc.OverdueMessage = status.ExternalMessage
	}

	rendered, err := s.pdfProvider.RenderInvoice(ctx, doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="overdue-notice-`+accountID.String()+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", rendered)
}
