package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/duno/internal/audit/domain"
	tenantdomain "github.com/smallbiznis/duno/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectTenant       = "tenant"
	ObjectAccount      = "account"
	ObjectSubscription = "subscription"
	ObjectInvoice      = "invoice"
	ObjectPayment      = "payment"
	ObjectOverdue      = "overdue"
	ObjectBlocking     = "blocking"
	ObjectUsage        = "usage"
	ObjectPushEndpoint = "push_endpoint"
	ObjectCollections  = "collections"
	ObjectAuditLog     = "audit_log"
)

const (
	ActionTenantView   = "tenant.view"
	ActionTenantManage = "tenant.manage"

	ActionAccountView   = "account.view"
	ActionAccountCreate = "account.create"
	ActionAccountUpdate = "account.update"
	ActionAccountTag    = "account.tag"

	ActionSubscriptionView   = "subscription.view"
	ActionSubscriptionCreate = "subscription.create"
	ActionSubscriptionCancel = "subscription.cancel"

	ActionInvoiceView     = "invoice.view"
	ActionInvoiceCreate   = "invoice.create"
	ActionInvoiceVoid     = "invoice.void"
	ActionInvoiceWriteOff = "invoice.write_off"

	ActionPaymentView    = "payment.view"
	ActionPaymentProcess = "payment.process"
	ActionPaymentRefund  = "payment.refund"

	ActionOverdueView    = "overdue.view"
	ActionOverdueRefresh = "overdue.refresh"

	ActionBlockingView = "blocking.view"

	ActionUsageIngest = "usage.ingest"
	ActionUsageView   = "usage.view"

	ActionPushEndpointView   = "push_endpoint.view"
	ActionPushEndpointManage = "push_endpoint.manage"

	ActionCollectionsView = "collections.view"

	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Tenants  tenantdomain.Service
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	tenants  tenantdomain.Service
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		tenants:  p.Tenants,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, orgID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, actorType, actorID, err := s.resolveActor(ctx, actor, orgID)
	if err != nil {
		s.auditDenied(ctx, actorType, actorID, orgID, object, action)
		return err
	}

	domain := fmt.Sprintf("org:%s", orgID)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actorType, actorID, orgID, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditGranted(ctx, actorType, actorID, orgID, object, action)
	}
	return nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string, orgID string) (string, string, string, *string, error) {
	if actor == "system" {
		return actor, "role:system", "system", nil, nil
	}
	if strings.HasPrefix(actor, "api_key:") {
		// API keys act with the system role.
		apiKeyIDRaw := strings.TrimPrefix(actor, "api_key:")
		apiKeyID, err := snowflake.ParseString(apiKeyIDRaw)
		if err != nil || apiKeyID == 0 {
			return "", "", "", nil, ErrInvalidActor
		}
		apiKeyIDStr := apiKeyID.String()
		return actor, "role:system", "api_key", &apiKeyIDStr, nil
	}
	if strings.HasPrefix(actor, "user:") {
		userID := strings.TrimSpace(strings.TrimPrefix(actor, "user:"))
		if userID == "" {
			return "", "", "", nil, ErrInvalidActor
		}
		parsedOrgID, err := snowflake.ParseString(orgID)
		if err != nil || parsedOrgID == 0 {
			return actor, "", "user", &userID, ErrInvalidOrganization
		}
		role, err := s.tenants.MemberRole(ctx, parsedOrgID, userID)
		if err != nil {
			if errors.Is(err, tenantdomain.ErrMemberNotFound) {
				return actor, "", "user", &userID, ErrForbidden
			}
			return actor, "", "user", &userID, err
		}
		roleName := fmt.Sprintf("role:%s", strings.ToLower(role))
		return actor, roleName, "user", &userID, nil
	}
	return "", "", "", nil, ErrInvalidActor
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorType string, actorID *string, orgID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	parsedOrgID, err := snowflake.ParseString(orgID)
	if err != nil || parsedOrgID == 0 {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, &parsedOrgID, actorType, actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"actor":   actorType,
		"org_id":  orgID,
		"subject": actorSubject(actorType, actorID),
	})
}

func (s *ServiceImpl) auditGranted(ctx context.Context, actorType string, actorID *string, orgID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	parsedOrgID, err := snowflake.ParseString(orgID)
	if err != nil || parsedOrgID == 0 {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, &parsedOrgID, actorType, actorID, "authorization.granted", "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"actor":   actorType,
		"org_id":  orgID,
		"subject": actorSubject(actorType, actorID),
	})
}

func actorSubject(actorType string, actorID *string) string {
	switch actorType {
	case "system":
		return "system"
	case "user":
		if actorID != nil && strings.TrimSpace(*actorID) != "" {
			return fmt.Sprintf("user:%s", strings.TrimSpace(*actorID))
		}
	}
	return ""
}

// Destructive money movements are audited even when allowed.
func shouldAuditGrant(action string) bool {
	switch action {
	case ActionInvoiceVoid, ActionInvoiceWriteOff, ActionPaymentRefund:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Members get read-only access to the core billing objects.
		{"role:member", ObjectAccount, ActionAccountView},
		{"role:member", ObjectSubscription, ActionSubscriptionView},
		{"role:member", ObjectInvoice, ActionInvoiceView},
		{"role:member", ObjectPayment, ActionPaymentView},
		{"role:member", ObjectOverdue, ActionOverdueView},
		{"role:member", ObjectBlocking, ActionBlockingView},
		{"role:member", ObjectUsage, ActionUsageView},

		// FinOps handles collections and money movement.
		{"role:finops", ObjectAccount, ActionAccountView},
		{"role:finops", ObjectSubscription, ActionSubscriptionView},
		{"role:finops", ObjectInvoice, ActionInvoiceView},
		{"role:finops", ObjectInvoice, ActionInvoiceCreate},
		{"role:finops", ObjectInvoice, ActionInvoiceVoid},
		{"role:finops", ObjectInvoice, ActionInvoiceWriteOff},
		{"role:finops", ObjectPayment, ActionPaymentView},
		{"role:finops", ObjectPayment, ActionPaymentProcess},
		{"role:finops", ObjectPayment, ActionPaymentRefund},
		{"role:finops", ObjectOverdue, ActionOverdueView},
		{"role:finops", ObjectOverdue, ActionOverdueRefresh},
		{"role:finops", ObjectBlocking, ActionBlockingView},
		{"role:finops", ObjectCollections, ActionCollectionsView},
		{"role:finops", ObjectUsage, ActionUsageView},
		{"role:finops", ObjectAuditLog, ActionAuditLogView},

		// Admins additionally manage accounts, subscriptions and webhooks.
		{"role:admin", ObjectAccount, ActionAccountView},
		{"role:admin", ObjectAccount, ActionAccountCreate},
		{"role:admin", ObjectAccount, ActionAccountUpdate},
		{"role:admin", ObjectAccount, ActionAccountTag},
		{"role:admin", ObjectSubscription, ActionSubscriptionView},
		{"role:admin", ObjectSubscription, ActionSubscriptionCreate},
		{"role:admin", ObjectSubscription, ActionSubscriptionCancel},
		{"role:admin", ObjectInvoice, ActionInvoiceView},
		{"role:admin", ObjectInvoice, ActionInvoiceCreate},
		{"role:admin", ObjectInvoice, ActionInvoiceVoid},
		{"role:admin", ObjectInvoice, ActionInvoiceWriteOff},
		{"role:admin", ObjectPayment, ActionPaymentView},
		{"role:admin", ObjectPayment, ActionPaymentProcess},
		{"role:admin", ObjectPayment, ActionPaymentRefund},
		{"role:admin", ObjectOverdue, ActionOverdueView},
		{"role:admin", ObjectOverdue, ActionOverdueRefresh},
		{"role:admin", ObjectBlocking, ActionBlockingView},
		{"role:admin", ObjectUsage, ActionUsageIngest},
		{"role:admin", ObjectUsage, ActionUsageView},
		{"role:admin", ObjectPushEndpoint, ActionPushEndpointView},
		{"role:admin", ObjectPushEndpoint, ActionPushEndpointManage},
		{"role:admin", ObjectCollections, ActionCollectionsView},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},
		{"role:admin", ObjectTenant, ActionTenantView},

		// Owners inherit everything admins do plus tenant settings.
		{"role:owner", ObjectAccount, ActionAccountView},
		{"role:owner", ObjectAccount, ActionAccountCreate},
		{"role:owner", ObjectAccount, ActionAccountUpdate},
		{"role:owner", ObjectAccount, ActionAccountTag},
		{"role:owner", ObjectSubscription, ActionSubscriptionView},
		{"role:owner", ObjectSubscription, ActionSubscriptionCreate},
		{"role:owner", ObjectSubscription, ActionSubscriptionCancel},
		{"role:owner", ObjectInvoice, ActionInvoiceView},
		{"role:owner", ObjectInvoice, ActionInvoiceCreate},
		{"role:owner", ObjectInvoice, ActionInvoiceVoid},
		{"role:owner", ObjectInvoice, ActionInvoiceWriteOff},
		{"role:owner", ObjectPayment, ActionPaymentView},
		{"role:owner", ObjectPayment, ActionPaymentProcess},
		{"role:owner", ObjectPayment, ActionPaymentRefund},
		{"role:owner", ObjectOverdue, ActionOverdueView},
		{"role:owner", ObjectOverdue, ActionOverdueRefresh},
		{"role:owner", ObjectBlocking, ActionBlockingView},
		{"role:owner", ObjectUsage, ActionUsageIngest},
		{"role:owner", ObjectUsage, ActionUsageView},
		{"role:owner", ObjectPushEndpoint, ActionPushEndpointView},
		{"role:owner", ObjectPushEndpoint, ActionPushEndpointManage},
		{"role:owner", ObjectCollections, ActionCollectionsView},
		{"role:owner", ObjectAuditLog, ActionAuditLogView},
		{"role:owner", ObjectTenant, ActionTenantView},
		{"role:owner", ObjectTenant, ActionTenantManage},

		// The system role covers queue workers and API keys.
		{"role:system", ObjectTenant, ActionTenantView},
		{"role:system", ObjectTenant, ActionTenantManage},
		{"role:system", ObjectAccount, ActionAccountView},
		{"role:system", ObjectAccount, ActionAccountCreate},
		{"role:system", ObjectAccount, ActionAccountUpdate},
		{"role:system", ObjectAccount, ActionAccountTag},
		{"role:system", ObjectSubscription, ActionSubscriptionView},
		{"role:system", ObjectSubscription, ActionSubscriptionCreate},
		{"role:system", ObjectSubscription, ActionSubscriptionCancel},
		{"role:system", ObjectInvoice, ActionInvoiceView},
		{"role:system", ObjectInvoice, ActionInvoiceCreate},
		{"role:system", ObjectInvoice, ActionInvoiceVoid},
		{"role:system", ObjectInvoice, ActionInvoiceWriteOff},
		{"role:system", ObjectPayment, ActionPaymentView},
		{"role:system", ObjectPayment, ActionPaymentProcess},
		{"role:system", ObjectPayment, ActionPaymentRefund},
		{"role:system", ObjectOverdue, ActionOverdueView},
		{"role:system", ObjectOverdue, ActionOverdueRefresh},
		{"role:system", ObjectBlocking, ActionBlockingView},
		{"role:system", ObjectUsage, ActionUsageIngest},
		{"role:system", ObjectUsage, ActionUsageView},
		{"role:system", ObjectPushEndpoint, ActionPushEndpointView},
		{"role:system", ObjectPushEndpoint, ActionPushEndpointManage},
		{"role:system", ObjectCollections, ActionCollectionsView},
		{"role:system", ObjectAuditLog, ActionAuditLogView},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
