// Package billingevent is the outbox for billing workflow events: rows are
// written transactionally with the state change and fanned out to push
// endpoints by the event-dispatch queue.
package billingevent

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/duno/internal/account/domain"
	"github.com/smallbiznis/duno/internal/billingevent/domain"
	notifdomain "github.com/smallbiznis/duno/internal/notification/domain"
	"github.com/smallbiznis/duno/internal/orgcontext"
	"github.com/smallbiznis/duno/internal/providers/email"
	pushdomain "github.com/smallbiznis/duno/internal/pushnotify/domain"
	tenantdomain "github.com/smallbiznis/duno/internal/tenant/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DispatchHandler publishes one outbox event per queue entry.
type DispatchHandler struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	push     pushdomain.Service
	mail     email.Provider
	accounts accountdomain.Service
	tenants  tenantdomain.Service
}

func NewDispatchHandler(db *gorm.DB, log *zap.Logger, repo domain.Repository, push pushdomain.Service, mail email.Provider, accounts accountdomain.Service, tenants tenantdomain.Service) *DispatchHandler {
	return &DispatchHandler{
		db:       db,
		log:      log.Named("billingevent.dispatch"),
		repo:     repo,
		push:     push,
		mail:     mail,
		accounts: accounts,
		tenants:  tenants,
	}
}

func (h *DispatchHandler) Handle(ctx context.Context, entry notifdomain.Notification) error {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return err
	}

	raw, _ := entry.Payload["event_id"].(string)
	eventID, err := snowflake.ParseString(raw)
	if err != nil || eventID == 0 {
		return errors.New("dispatch entry missing event_id")
	}

	event, err := h.repo.FindByID(ctx, h.db, orgID, eventID)
	if err != nil {
		return err
	}
	if event == nil || event.Published {
		return nil
	}

	// Push failure never blocks the pipeline; the event is still marked
	// published after the bounded delivery attempts.
	h.push.Deliver(ctx, pushdomain.Event{
		EventType:  event.EventType,
		OccurredAt: event.CreatedAt,
		Payload:    event.Payload,
	})

	if event.EventType == domain.EventTypeOverdueStateChanged {
		h.sendOverdueNotice(ctx, event)
	}

	return h.repo.MarkPublished(ctx, h.db, orgID, eventID)
}

// sendOverdueNotice mails the account holder on a delinquency transition.
// Mail failure is logged and swallowed like any other outbound delivery.
func (h *DispatchHandler) sendOverdueNotice(ctx context.Context, event *domain.BillingEvent) {
	newState, _ := event.Payload["new_state"].(string)
	message, _ := event.Payload["external_message"].(string)
	if newState == "" || message == "" {
		return
	}

	rawAccount, _ := event.Payload["account_id"].(string)
	accountID, err := snowflake.ParseString(rawAccount)
	if err != nil || accountID == 0 {
		return
	}

	account, err := h.accounts.Get(ctx, accountID)
	if err != nil || account.Email == "" {
		return
	}

	notice := email.OverdueNotice{
		To:          account.Email,
		AccountName: account.Name,
		StateName:   newState,
		Message:     message,
		Currency:    account.Currency,
	}
	if tenant, err := h.tenants.GetByID(ctx, event.OrgID.String()); err == nil {
		notice.TenantName = tenant.Name
		notice.SupportContact = tenant.SupportEmail
	}
	if err := h.mail.SendOverdueNotice(ctx, notice); err != nil {
		h.log.Warn("failed to send overdue notice",
			zap.String("account_id", accountID.String()),
			zap.Error(err))
	}
}
