package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingeventdomain "github.com/smallbiznis/duno/internal/billingevent/domain"
	"github.com/smallbiznis/duno/internal/clock"
	"github.com/smallbiznis/duno/internal/config"
	invoicedomain "github.com/smallbiznis/duno/internal/invoice/domain"
	notifdomain "github.com/smallbiznis/duno/internal/notification/domain"
	"github.com/smallbiznis/duno/internal/observability/metrics"
	"github.com/smallbiznis/duno/internal/orgcontext"
	"github.com/smallbiznis/duno/internal/payment/domain"
	"github.com/smallbiznis/duno/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Cfg           config.Config
	Repo          domain.Repository
	Gateway       domain.Gateway
	Invoices      invoicedomain.Service
	Notifications notifdomain.Service
	Events        billingeventdomain.Service
	Metrics       *metrics.Metrics
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	retryDays     []int
	repo          domain.Repository
	gateway       domain.Gateway
	invoices      invoicedomain.Service
	notifications notifdomain.Service
	events        billingeventdomain.Service
	metrics       *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		retryDays:     p.Cfg.Payment.RetryDays,
		repo:          p.Repo,
		gateway:       p.Gateway,
		invoices:      p.Invoices,
		notifications: p.Notifications,
		events:        p.Events,
		metrics:       p.Metrics,
	}
}

func (s *Service) Process(ctx context.Context, req domain.ProcessPaymentRequest) (domain.Payment, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.Payment{}, domain.ErrInvalidOrganization
	}

	accountID, err := s.parseID(req.AccountID)
	if err != nil {
		return domain.Payment{}, domain.ErrInvalidAccount
	}
	invoiceID, err := s.parseID(req.InvoiceID)
	if err != nil {
		return domain.Payment{}, domain.ErrInvalidInvoice
	}

	invoice, err := s.invoices.GetByID(ctx, invoiceID.String())
	if err != nil {
		return domain.Payment{}, err
	}
	if !invoice.IsUnpaid() {
		return domain.Payment{}, domain.ErrInvalidInvoice
	}

	amount := req.Amount
	if amount.IsZero() {
		amount = invoice.Balance
	}
	if !amount.IsPositive() || amount.GreaterThan(invoice.Balance) {
		return domain.Payment{}, domain.ErrInvalidAmount
	}

	attempts, err := s.repo.CountAttempts(ctx, s.db, orgID, invoiceID)
	if err != nil {
		return domain.Payment{}, err
	}
	attemptNumber := attempts + 1

	now := s.clock.Now()
	payment := domain.Payment{
		ID:            s.genID.Generate(),
		OrgID:         orgID,
		AccountID:     accountID,
		InvoiceID:     invoiceID,
		Gateway:       s.gateway.Name(),
		Currency:      invoice.Currency,
		Amount:        amount,
		AttemptNumber: attemptNumber,
		Metadata:      datatypes.JSONMap{},
		EffectiveAt:   now,
		CreatedAt:     now,
	}

	result, gatewayErr := s.gateway.ProcessPayment(ctx, domain.ChargeRequest{
		OrgID:       orgID,
		AccountID:   accountID,
		InvoiceID:   invoiceID,
		Currency:    invoice.Currency,
		Amount:      amount,
		Idempotency: payment.ID.String(),
	})

	switch {
	case gatewayErr != nil:
		payment.Status = domain.PaymentStatusError
		payment.GatewayError = gatewayErr.Error()
	case result.Declined:
		payment.Status = domain.PaymentStatusFailed
		payment.GatewayError = result.DeclineReason
	default:
		payment.Status = domain.PaymentStatusSuccess
		payment.TransactionRef = result.TransactionRef
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &payment); err != nil {
			return err
		}
		if payment.Status == domain.PaymentStatusSuccess {
			if _, err := s.invoices.ApplyPayment(ctx, tx, invoiceID, amount, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}

	s.metrics.RecordPaymentEvent(ctx, s.gateway.Name(), strings.ToLower(string(payment.Status)))
	s.recordAttemptEvent(ctx, payment)

	if payment.Status == domain.PaymentStatusSuccess {
		s.log.Info("payment collected",
			zap.String("invoice_id", invoiceID.String()),
			zap.String("amount", amount.String()),
			zap.Int("attempt", attemptNumber))
	} else {
		s.log.Warn("payment attempt failed",
			zap.String("invoice_id", invoiceID.String()),
			zap.String("status", string(payment.Status)),
			zap.String("gateway_error", payment.GatewayError),
			zap.Int("attempt", attemptNumber))
		if err := s.scheduleRetry(ctx, payment); err != nil {
			s.log.Error("failed to schedule payment retry",
				zap.String("invoice_id", invoiceID.String()),
				zap.Error(err))
		}
	}

	s.requestDelinquencyRefresh(ctx, payment.AccountID)

	return payment, nil
}

// recordAttemptEvent writes the attempt outcome to the outbox so push
// endpoints see every charge result. The payment row is already committed,
// so an outbox failure is logged, not surfaced.
func (s *Service) recordAttemptEvent(ctx context.Context, payment domain.Payment) {
	eventType := billingeventdomain.EventTypePaymentFailed
	if payment.Status == domain.PaymentStatusSuccess {
		eventType = billingeventdomain.EventTypePaymentSucceeded
	}

	_, err := s.events.Record(ctx, billingeventdomain.RecordRequest{
		EventType: eventType,
		DedupeKey: fmt.Sprintf("payment:%s", payment.ID),
		Payload: map[string]any{
			"payment_id":     payment.ID.String(),
			"account_id":     payment.AccountID.String(),
			"invoice_id":     payment.InvoiceID.String(),
			"status":         string(payment.Status),
			"gateway":        payment.Gateway,
			"gateway_error":  payment.GatewayError,
			"currency":       payment.Currency,
			"amount":         payment.Amount.String(),
			"attempt_number": payment.AttemptNumber,
		},
	})
	if err != nil {
		s.log.Error("failed to record payment event",
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err))
	}
}

// scheduleRetry queues the next attempt per the retry-day schedule. The
// schedule is indexed by failed attempts so far; attempts past its end are
// terminal.
func (s *Service) scheduleRetry(ctx context.Context, payment domain.Payment) error {
	if payment.AttemptNumber > len(s.retryDays) {
		s.log.Info("payment retries exhausted",
			zap.String("invoice_id", payment.InvoiceID.String()),
			zap.Int("attempts", payment.AttemptNumber))
		return nil
	}

	days := s.retryDays[payment.AttemptNumber-1]
	runAt := s.clock.Now().AddDate(0, 0, days)

	_, err := s.notifications.PostReplacing(ctx,
		notifdomain.QueuePaymentRetry,
		fmt.Sprintf("invoice:%s", payment.InvoiceID),
		"invoice",
		map[string]any{
			"account_id": payment.AccountID.String(),
			"invoice_id": payment.InvoiceID.String(),
		},
		runAt,
	)
	return err
}

// requestDelinquencyRefresh nudges the overdue pipeline after any attempt
// outcome. Failure to enqueue is logged, not surfaced.
func (s *Service) requestDelinquencyRefresh(ctx context.Context, accountID snowflake.ID) {
	_, err := s.notifications.PostReplacing(ctx,
		notifdomain.QueueOverdueCheck,
		fmt.Sprintf("account:%s", accountID),
		"account",
		map[string]any{
			"account_id": accountID.String(),
		},
		s.clock.Now(),
	)
	if err != nil {
		s.log.Error("failed to enqueue delinquency refresh",
			zap.String("account_id", accountID.String()),
			zap.Error(err))
	}
}

func (s *Service) Refund(ctx context.Context, req domain.RefundPaymentRequest) (domain.Payment, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.Payment{}, domain.ErrInvalidOrganization
	}

	paymentID, err := s.parseID(req.PaymentID)
	if err != nil {
		return domain.Payment{}, err
	}

	original, err := s.repo.FindByID(ctx, s.db, orgID, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if original == nil {
		return domain.Payment{}, domain.ErrNotFound
	}
	if original.Status != domain.PaymentStatusSuccess || original.TransactionRef == "" || !original.Amount.IsPositive() {
		return domain.Payment{}, domain.ErrNotRefundable
	}

	amount := req.Amount
	if amount.IsZero() {
		amount = original.Amount
	}
	if !amount.IsPositive() || amount.GreaterThan(original.Amount) {
		return domain.Payment{}, domain.ErrInvalidAmount
	}

	result, err := s.gateway.Refund(ctx, domain.RefundRequest{
		OrgID:          orgID,
		AccountID:      original.AccountID,
		TransactionRef: original.TransactionRef,
		Currency:       original.Currency,
		Amount:         amount,
	})
	if err != nil {
		return domain.Payment{}, err
	}

	now := s.clock.Now()
	refund := domain.Payment{
		ID:             s.genID.Generate(),
		OrgID:          orgID,
		AccountID:      original.AccountID,
		InvoiceID:      original.InvoiceID,
		Status:         domain.PaymentStatusSuccess,
		Gateway:        s.gateway.Name(),
		Currency:       original.Currency,
		Amount:         amount.Neg(),
		AttemptNumber:  1,
		TransactionRef: result.RefundRef,
		Metadata:       datatypes.JSONMap{"refund_of": original.ID.String()},
		EffectiveAt:    now,
		CreatedAt:      now,
	}

	if err := s.repo.Insert(ctx, s.db, &refund); err != nil {
		return domain.Payment{}, err
	}

	s.metrics.RecordPaymentEvent(ctx, s.gateway.Name(), "refunded")
	return refund, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Payment, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.Payment{}, domain.ErrInvalidOrganization
	}

	paymentID, err := s.parseID(id)
	if err != nil {
		return domain.Payment{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if item == nil {
		return domain.Payment{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListPaymentRequest) (domain.ListPaymentResponse, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.ListPaymentResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListPaymentFilter{Status: req.Status}
	if strings.TrimSpace(req.AccountID) != "" {
		accountID, err := s.parseID(req.AccountID)
		if err != nil {
			return domain.ListPaymentResponse{}, domain.ErrInvalidAccount
		}
		filter.AccountID = accountID
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListPaymentResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(payment *domain.Payment) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        payment.ID.String(),
			CreatedAt: payment.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	payments := make([]domain.Payment, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		payments = append(payments, *item)
	}

	resp := domain.ListPaymentResponse{Payments: payments}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) GetPaymentMethods(ctx context.Context, accountID string) ([]domain.PaymentMethod, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return nil, domain.ErrInvalidOrganization
	}

	id, err := s.parseID(accountID)
	if err != nil {
		return nil, domain.ErrInvalidAccount
	}
	return s.gateway.GetPaymentMethods(ctx, orgID, id)
}

func (s *Service) LastAttempt(ctx context.Context, accountID snowflake.ID) (*domain.Payment, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.FindLatestByAccount(ctx, s.db, orgID, accountID)
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
