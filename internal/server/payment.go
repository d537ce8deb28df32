package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duno/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/duno/internal/payment/domain"
	"github.com/smallbiznis/duno/internal/providers/pdf"
	"github.com/smallbiznis/duno/pkg/db/pagination"
)

type processPaymentRequest struct {
	AccountID string          `json:"account_id"`
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
}

func (s *Server) ProcessPayment(c *gin.Context) {
	var req processPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.Process(c.Request.Context(), paymentdomain.ProcessPaymentRequest{
		AccountID: strings.TrimSpace(req.AccountID),
		InvoiceID: strings.TrimSpace(req.InvoiceID),
		Amount:    req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := resp.ID.String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "payment.process", "payment", &targetID, map[string]any{
			"invoice_id": resp.InvoiceID.String(),
			"amount":     resp.Amount.String(),
			"status":     string(resp.Status),
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RefundPayment(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.Refund(c.Request.Context(), paymentdomain.RefundPaymentRequest{
		PaymentID: id,
		Amount:    req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := resp.ID.String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "payment.refund", "payment", &targetID, map[string]any{
			"original_payment_id": id,
			"amount":              resp.Amount.String(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPaymentByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	item, err := s.paymentSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ListPayments(c *gin.Context) {
	var query struct {
		pagination.Pagination
		AccountID string `form:"account_id"`
		Status    string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.List(c.Request.Context(), paymentdomain.ListPaymentRequest{
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  int32(query.PageSize),
		AccountID: strings.TrimSpace(query.AccountID),
		Status:    paymentdomain.PaymentStatus(strings.ToUpper(strings.TrimSpace(query.Status))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Payments, "page_info": resp.PageInfo})
}

func (s *Server) ListPaymentMethods(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	methods, err := s.paymentSvc.GetPaymentMethods(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": methods})
}

// RenderPaymentReceipt streams a captured payment's receipt as a PDF.
func (s *Server) RenderPaymentReceipt(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	ctx := c.Request.Context()

	pay, err := s.paymentSvc.GetByID(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if pay.Status != paymentdomain.PaymentStatusSuccess {
		AbortWithError(c, paymentdomain.ErrNotFound)
		return
	}

	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ten, err := s.tenantSvc.GetByID(ctx, orgID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	acct, err := s.accountSvc.Get(ctx, pay.AccountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc := pdf.ReceiptDocument{
		TenantName:     ten.Name,
		SupportEmail:   ten.SupportEmail,
		ReceiptNumber:  pay.ID.String(),
		InvoiceNumber:  pay.InvoiceID.String(),
		PaidAt:         pay.EffectiveAt.Format("2006-01-02"),
		AccountName:    acct.Name,
		AccountEmail:   acct.Email,
		Amount:         pay.Amount.StringFixed(2),
		Currency:       pay.Currency,
		Gateway:        pay.Gateway,
		TransactionRef: pay.TransactionRef,
	}

	rendered, err := s.pdfProvider.RenderReceipt(ctx, doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="receipt-`+pay.ID.String()+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", rendered)
}
