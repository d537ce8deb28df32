package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/duno/internal/invoice/domain"
	"github.com/smallbiznis/duno/internal/orgcontext"
	"github.com/smallbiznis/duno/internal/providers/pdf"
	"github.com/smallbiznis/duno/pkg/db/pagination"
)

type createInvoiceRequest struct {
	AccountID      string             `json:"account_id"`
	SubscriptionID string             `json:"subscription_id"`
	Currency       string             `json:"currency"`
	InvoiceDate    *time.Time         `json:"invoice_date"`
	TargetDate     *time.Time         `json:"target_date"`
	Items          []invoiceItemInput `json:"items"`
}

type invoiceItemInput struct {
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitAmount  decimal.Decimal `json:"unit_amount"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	items := make([]invoicedomain.CreateInvoiceItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, invoicedomain.CreateInvoiceItem{
			Description: strings.TrimSpace(item.Description),
			Quantity:    item.Quantity,
			UnitAmount:  item.UnitAmount,
		})
	}

	resp, err := s.invoiceSvc.Create(c.Request.Context(), invoicedomain.CreateInvoiceRequest{
		AccountID:      strings.TrimSpace(req.AccountID),
		SubscriptionID: strings.TrimSpace(req.SubscriptionID),
		Currency:       strings.TrimSpace(req.Currency),
		InvoiceDate:    req.InvoiceDate,
		TargetDate:     req.TargetDate,
		Items:          items,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var query struct {
		pagination.Pagination
		AccountID string `form:"account_id"`
		Status    string `form:"status"`
		Unpaid    bool   `form:"unpaid"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), invoicedomain.ListInvoiceRequest{
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  int32(query.PageSize),
		AccountID: strings.TrimSpace(query.AccountID),
		Status:    invoicedomain.InvoiceStatus(strings.ToUpper(strings.TrimSpace(query.Status))),
		Unpaid:    query.Unpaid,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

// ListAccountInvoices lists one account's invoices. With unpaid=true it
// narrows to committed invoices that still carry a balance.
func (s *Server) ListAccountInvoices(c *gin.Context) {
	accountID := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(accountID); err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var query struct {
		pagination.Pagination
		Status string `form:"status"`
		Unpaid bool   `form:"unpaid"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), invoicedomain.ListInvoiceRequest{
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  int32(query.PageSize),
		AccountID: accountID,
		Status:    invoicedomain.InvoiceStatus(strings.ToUpper(strings.TrimSpace(query.Status))),
		Unpaid:    query.Unpaid,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	item, err := s.invoiceSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) VoidInvoice(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	resp, err := s.invoiceSvc.Void(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := id
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "invoice.void", "invoice", &targetID, map[string]any{
			"status": string(resp.Status),
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) WriteOffInvoice(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	resp, err := s.invoiceSvc.WriteOff(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := id
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "invoice.write_off", "invoice", &targetID, map[string]any{
			"status": string(resp.Status),
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// RenderInvoiceDocument streams the invoice statement as a PDF. The dunning
// banner is included whenever the account is not in good standing.
func (s *Server) RenderInvoiceDocument(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	ctx := c.Request.Context()

	inv, err := s.invoiceSvc.GetByID(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.invoiceDocument(ctx, inv)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	rendered, err := s.pdfProvider.RenderInvoice(ctx, doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="invoice-`+inv.ID.String()+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", rendered)
}

func (s *Server) invoiceDocument(ctx context.Context, inv invoicedomain.Invoice) (pdf.InvoiceDocument, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return pdf.InvoiceDocument{}, err
	}

	ten, err := s.tenantSvc.GetByID(ctx, orgID.String())
	if err != nil {
		return pdf.InvoiceDocument{}, err
	}

	acct, err := s.accountSvc.Get(ctx, inv.AccountID)
	if err != nil {
		return pdf.InvoiceDocument{}, err
	}

	items, err := s.invoiceItems(ctx, orgID, inv.ID)
	if err != nil {
		return pdf.InvoiceDocument{}, err
	}

	lines := make([]pdf.LineItem, 0, len(items))
	for _, item := range items {
		lines = append(lines, pdf.LineItem{
			Description: item.Description,
			Amount:      item.Amount.StringFixed(2) + " " + inv.Currency,
		})
	}

	doc := pdf.InvoiceDocument{
		TenantName:    ten.Name,
		SupportEmail:  ten.SupportEmail,
		InvoiceNumber: inv.ID.String(),
		IssueDate:     inv.InvoiceDate.Format("2006-01-02"),
		DueDate:       inv.TargetDate.Format("2006-01-02"),
		Status:        string(inv.Status),
		AccountName:   acct.Name,
		AccountEmail:  acct.Email,
		Items:         lines,
		Total:         inv.Amount.StringFixed(2),
		AmountDue:     inv.Balance.StringFixed(2),
		Currency:      inv.Currency,
	}

	status, err := s.overdueSvc.Status(ctx, inv.AccountID)
	if err == nil && !status.IsClear {
		doc.OverdueMessage = status.ExternalMessage
	}

	return doc, nil
}

func (s *Server) invoiceItems(ctx context.Context, orgID, invoiceID snowflake.ID) ([]invoicedomain.InvoiceItem, error) {
	var items []invoicedomain.InvoiceItem
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, org_id, invoice_id, description, quantity, unit_amount, amount, metadata, created_at
		 FROM invoice_items
		 WHERE org_id = ? AND invoice_id = ?
		 ORDER BY id ASC`,
		orgID,
		invoiceID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
