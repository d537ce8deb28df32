package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/duno/internal/subscription/domain"
	"github.com/smallbiznis/duno/pkg/db/pagination"
)

type createSubscriptionRequest struct {
	AccountID         string     `json:"account_id"`
	BundleExternalKey string     `json:"bundle_external_key"`
	Category          string     `json:"category"`
	PlanName          string     `json:"plan_name"`
	ProductName       string     `json:"product_name"`
	BillingPeriod     string     `json:"billing_period"`
	PriceList         string     `json:"price_list"`
	StartAt           *time.Time `json:"start_at"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.Create(c.Request.Context(), subscriptiondomain.CreateSubscriptionRequest{
		AccountID:         strings.TrimSpace(req.AccountID),
		BundleExternalKey: strings.TrimSpace(req.BundleExternalKey),
		Category:          subscriptiondomain.SubscriptionCategory(strings.ToUpper(strings.TrimSpace(req.Category))),
		PlanName:          strings.TrimSpace(req.PlanName),
		ProductName:       strings.TrimSpace(req.ProductName),
		BillingPeriod:     subscriptiondomain.BillingPeriod(strings.ToUpper(strings.TrimSpace(req.BillingPeriod))),
		PriceList:         strings.TrimSpace(req.PriceList),
		StartAt:           req.StartAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := resp.ID.String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "subscription.create", "subscription", &targetID, map[string]any{
			"account_id": resp.AccountID.String(),
			"plan_name":  resp.PlanName,
			"status":     string(resp.Status),
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		AccountID string `form:"account_id"`
		Status    string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.List(c.Request.Context(), subscriptiondomain.ListSubscriptionRequest{
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  int32(query.PageSize),
		AccountID: strings.TrimSpace(query.AccountID),
		Status:    subscriptiondomain.SubscriptionStatus(strings.ToUpper(strings.TrimSpace(query.Status))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Subscriptions, "page_info": resp.PageInfo})
}

func (s *Server) GetSubscriptionByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	item, err := s.subscriptionSvc.GetByID(c.Request.Context(), subscriptiondomain.GetSubscriptionRequest{ID: id})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	resp, err := s.subscriptionSvc.Cancel(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := id
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "subscription.cancel", "subscription", &targetID, map[string]any{
			"status": string(resp.Status),
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
