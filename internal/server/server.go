package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/duno/internal/account"
	accountdomain "github.com/smallbiznis/duno/internal/account/domain"
	"github.com/smallbiznis/duno/internal/apikey"
	apikeydomain "github.com/smallbiznis/duno/internal/apikey/domain"
	"github.com/smallbiznis/duno/internal/audit"
	auditdomain "github.com/smallbiznis/duno/internal/audit/domain"
	"github.com/smallbiznis/duno/internal/authorization"
	"github.com/smallbiznis/duno/internal/billingevent"
	"github.com/smallbiznis/duno/internal/billingstate"
	"github.com/smallbiznis/duno/internal/blocking"
	blockingdomain "github.com/smallbiznis/duno/internal/blocking/domain"
	"github.com/smallbiznis/duno/internal/clock"
	"github.com/smallbiznis/duno/internal/cloudmetrics"
	"github.com/smallbiznis/duno/internal/collections"
	collectionsdomain "github.com/smallbiznis/duno/internal/collections/domain"
	"github.com/smallbiznis/duno/internal/config"
	"github.com/smallbiznis/duno/internal/invoice"
	invoicedomain "github.com/smallbiznis/duno/internal/invoice/domain"
	"github.com/smallbiznis/duno/internal/migration"
	"github.com/smallbiznis/duno/internal/notification"
	"github.com/smallbiznis/duno/internal/observability"
	obsmiddleware "github.com/smallbiznis/duno/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/duno/internal/observability/metrics"
	obstracing "github.com/smallbiznis/duno/internal/observability/tracing"
	"github.com/smallbiznis/duno/internal/overdue"
	overduedomain "github.com/smallbiznis/duno/internal/overdue/domain"
	"github.com/smallbiznis/duno/internal/payment"
	paymentdomain "github.com/smallbiznis/duno/internal/payment/domain"
	"github.com/smallbiznis/duno/internal/providers"
	"github.com/smallbiznis/duno/internal/providers/pdf"
	"github.com/smallbiznis/duno/internal/pushnotify"
	pushnotifydomain "github.com/smallbiznis/duno/internal/pushnotify/domain"
	"github.com/smallbiznis/duno/internal/ratelimit"
	"github.com/smallbiznis/duno/internal/reference"
	referencedomain "github.com/smallbiznis/duno/internal/reference/domain"
	"github.com/smallbiznis/duno/internal/scheduler"
	"github.com/smallbiznis/duno/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/duno/internal/subscription/domain"
	"github.com/smallbiznis/duno/internal/tenant"
	tenantdomain "github.com/smallbiznis/duno/internal/tenant/domain"
	"github.com/smallbiznis/duno/internal/usage"
	usagedomain "github.com/smallbiznis/duno/internal/usage/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	migration.Module,
	cloudmetrics.Module,
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	tenant.Module,
	account.Module,
	subscription.Module,
	invoice.Module,
	payment.Module,
	billingstate.Module,
	overdue.Module,
	blocking.Module,
	notification.Module,
	billingevent.Module,
	pushnotify.Module,
	collections.Module,
	usage.Module,
	ratelimit.Module,
	apikey.Module,
	reference.Module,
	providers.Module,
	scheduler.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	clock           clock.Clock
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	tenantSvc       tenantdomain.Service
	accountSvc      accountdomain.Service
	subscriptionSvc subscriptiondomain.Service
	invoiceSvc      invoicedomain.Service
	paymentSvc      paymentdomain.Service
	overdueSvc      overduedomain.Service
	blockingSvc     blockingdomain.Service
	collectionsSvc  collectionsdomain.Service
	usagesvc        usagedomain.Service
	apiKeySvc       apikeydomain.Service
	pushSvc         pushnotifydomain.Service
	refrepo         referencedomain.Repository
	pdfProvider     pdf.Provider
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	Clock           clock.Clock
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	TenantSvc       tenantdomain.Service
	AccountSvc      accountdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	InvoiceSvc      invoicedomain.Service
	PaymentSvc      paymentdomain.Service
	OverdueSvc      overduedomain.Service
	BlockingSvc     blockingdomain.Service
	CollectionsSvc  collectionsdomain.Service
	Usagesvc        usagedomain.Service
	APIKeySvc       apikeydomain.Service
	PushSvc         pushnotifydomain.Service
	Refrepo         referencedomain.Repository
	PDFProvider     pdf.Provider
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		clock:           p.Clock,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		tenantSvc:       p.TenantSvc,
		accountSvc:      p.AccountSvc,
		subscriptionSvc: p.SubscriptionSvc,
		invoiceSvc:      p.InvoiceSvc,
		paymentSvc:      p.PaymentSvc,
		overdueSvc:      p.OverdueSvc,
		blockingSvc:     p.BlockingSvc,
		collectionsSvc:  p.CollectionsSvc,
		usagesvc:        p.Usagesvc,
		apiKeySvc:       p.APIKeySvc,
		pushSvc:         p.PushSvc,
		refrepo:         p.Refrepo,
		pdfProvider:     p.PDFProvider,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1", RequestID())

	// Reference data carries no tenant state.
	v1.GET("/currencies", s.ListCurrencies)
	v1.GET("/timezones", s.ListTimezones)

	// Tenant provisioning is the bootstrap entry point; everything after
	// it is org-scoped.
	v1.POST("/tenants", s.CreateTenant)

	authed := v1.Group("", s.AuthRequired())

	tenants := authed.Group("/tenants")
	{
		tenants.GET("/:id", s.authorizeOrgAction(authorization.ObjectTenant, authorization.ActionTenantView), s.GetTenantByID)
		tenants.PATCH("/:id/billing-defaults", s.authorizeOrgAction(authorization.ObjectTenant, authorization.ActionTenantManage), s.UpdateTenantBillingDefaults)
		tenants.GET("/:id/members", s.authorizeOrgAction(authorization.ObjectTenant, authorization.ActionTenantView), s.ListTenantMembers)
		tenants.POST("/:id/members", s.authorizeOrgAction(authorization.ObjectTenant, authorization.ActionTenantManage), s.AddTenantMember)
	}

	accounts := authed.Group("/accounts")
	{
		accounts.GET("", s.authorizeOrgAction(authorization.ObjectAccount, authorization.ActionAccountView), s.ListAccounts)
		accounts.POST("", s.authorizeOrgAction(authorization.ObjectAccount, authorization.ActionAccountCreate), s.CreateAccount)
		accounts.GET("/:id", s.authorizeOrgAction(authorization.ObjectAccount, authorization.ActionAccountView), s.GetAccountByID)
		accounts.POST("/:id/tags", s.authorizeOrgAction(authorization.ObjectAccount, authorization.ActionAccountTag), s.AddAccountTag)
		accounts.DELETE("/:id/tags/:tag", s.authorizeOrgAction(authorization.ObjectAccount, authorization.ActionAccountTag), s.RemoveAccountTag)

		accounts.GET("/:id/overdue", s.authorizeOrgAction(authorization.ObjectOverdue, authorization.ActionOverdueView), s.GetOverdueStatus)
		accounts.POST("/:id/overdue/refresh", s.authorizeOrgAction(authorization.ObjectOverdue, authorization.ActionOverdueRefresh), s.RefreshOverdue)
		accounts.GET("/:id/overdue/notice.pdf", s.authorizeOrgAction(authorization.ObjectOverdue, authorization.ActionOverdueView), s.RenderOverdueNotice)
		accounts.GET("/:id/blocking", s.authorizeOrgAction(authorization.ObjectBlocking, authorization.ActionBlockingView), s.GetBlockingState)
		accounts.GET("/:id/blocking/history", s.authorizeOrgAction(authorization.ObjectBlocking, authorization.ActionBlockingView), s.ListBlockingHistory)
		accounts.GET("/:id/payment-methods", s.authorizeOrgAction(authorization.ObjectPayment, authorization.ActionPaymentView), s.ListPaymentMethods)
		accounts.GET("/:id/invoices", s.authorizeOrgAction(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListAccountInvoices)
	}

	subscriptions := authed.Group("/subscriptions")
	{
		subscriptions.GET("", s.authorizeOrgAction(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.ListSubscriptions)
		subscriptions.POST("", s.authorizeOrgAction(authorization.ObjectSubscription, authorization.ActionSubscriptionCreate), s.CreateSubscription)
		subscriptions.GET("/:id", s.authorizeOrgAction(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.GetSubscriptionByID)
		subscriptions.POST("/:id/cancel", s.authorizeOrgAction(authorization.ObjectSubscription, authorization.ActionSubscriptionCancel), s.CancelSubscription)
	}

	invoices := authed.Group("/invoices")
	{
		invoices.GET("", s.authorizeOrgAction(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListInvoices)
		invoices.POST("", s.authorizeOrgAction(authorization.ObjectInvoice, authorization.ActionInvoiceCreate), s.CreateInvoice)
		invoices.GET("/:id", s.authorizeOrgAction(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoiceByID)
		invoices.GET("/:id/document.pdf", s.authorizeOrgAction(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.RenderInvoiceDocument)
		invoices.POST("/:id/void", s.authorizeOrgAction(authorization.ObjectInvoice, authorization.ActionInvoiceVoid), s.VoidInvoice)
		invoices.POST("/:id/write-off", s.authorizeOrgAction(authorization.ObjectInvoice, authorization.ActionInvoiceWriteOff), s.WriteOffInvoice)
	}

	payments := authed.Group("/payments")
	{
		payments.GET("", s.authorizeOrgAction(authorization.ObjectPayment, authorization.ActionPaymentView), s.ListPayments)
		payments.POST("", s.authorizeOrgAction(authorization.ObjectPayment, authorization.ActionPaymentProcess), s.ProcessPayment)
		payments.GET("/:id", s.authorizeOrgAction(authorization.ObjectPayment, authorization.ActionPaymentView), s.GetPaymentByID)
		payments.GET("/:id/receipt.pdf", s.authorizeOrgAction(authorization.ObjectPayment, authorization.ActionPaymentView), s.RenderPaymentReceipt)
		payments.POST("/:id/refund", s.authorizeOrgAction(authorization.ObjectPayment, authorization.ActionPaymentRefund), s.RefundPayment)
	}

	authed.POST("/usage", s.authorizeOrgAction(authorization.ObjectUsage, authorization.ActionUsageIngest), s.IngestUsage)
	authed.GET("/usage", s.authorizeOrgAction(authorization.ObjectUsage, authorization.ActionUsageView), s.ListUsage)

	authed.GET("/collections/aging", s.authorizeOrgAction(authorization.ObjectCollections, authorization.ActionCollectionsView), s.GetCollectionsAging)

	pushEndpoints := authed.Group("/push-endpoints")
	{
		pushEndpoints.GET("", s.authorizeOrgAction(authorization.ObjectPushEndpoint, authorization.ActionPushEndpointView), s.ListPushEndpoints)
		pushEndpoints.POST("", s.authorizeOrgAction(authorization.ObjectPushEndpoint, authorization.ActionPushEndpointManage), s.RegisterPushEndpoint)
		pushEndpoints.DELETE("/:id", s.authorizeOrgAction(authorization.ObjectPushEndpoint, authorization.ActionPushEndpointManage), s.UnregisterPushEndpoint)
	}

	apiKeys := authed.Group("/api-keys")
	{
		apiKeys.GET("/scopes", s.authorizeOrgAction(authorization.ObjectTenant, authorization.ActionTenantManage), s.ListAPIKeyScopes)
		apiKeys.GET("", s.authorizeOrgAction(authorization.ObjectTenant, authorization.ActionTenantManage), s.ListAPIKeys)
		apiKeys.POST("", s.authorizeOrgAction(authorization.ObjectTenant, authorization.ActionTenantManage), s.CreateAPIKey)
		apiKeys.POST("/:key_id/rotate", s.authorizeOrgAction(authorization.ObjectTenant, authorization.ActionTenantManage), s.RotateAPIKey)
		apiKeys.POST("/:key_id/revoke", s.authorizeOrgAction(authorization.ObjectTenant, authorization.ActionTenantManage), s.RevokeAPIKey)
	}

	authed.GET("/audit-logs", s.authorizeOrgAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)

	if s.cfg.Environment != "production" {
		v1.POST("/test/cleanup", s.TestCleanup)
	}
}
