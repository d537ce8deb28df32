package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duno/internal/clock"
	"github.com/smallbiznis/duno/internal/invoice/domain"
	"github.com/smallbiznis/duno/internal/orgcontext"
	"github.com/smallbiznis/duno/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateInvoiceRequest) (domain.Invoice, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvalidOrganization
	}

	accountID, err := s.parseID(req.AccountID)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvalidAccount
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return domain.Invoice{}, domain.ErrInvalidCurrency
	}

	if len(req.Items) == 0 {
		return domain.Invoice{}, domain.ErrInvalidItems
	}

	now := s.clock.Now()
	invoiceDate := now
	if req.InvoiceDate != nil {
		invoiceDate = req.InvoiceDate.UTC()
	}
	targetDate := invoiceDate
	if req.TargetDate != nil {
		targetDate = req.TargetDate.UTC()
	}

	var subscriptionID *snowflake.ID
	if strings.TrimSpace(req.SubscriptionID) != "" {
		id, err := s.parseID(req.SubscriptionID)
		if err != nil {
			return domain.Invoice{}, err
		}
		subscriptionID = &id
	}

	invoice := domain.Invoice{
		ID:             s.genID.Generate(),
		OrgID:          orgID,
		AccountID:      accountID,
		SubscriptionID: subscriptionID,
		Status:         domain.InvoiceStatusCommitted,
		Currency:       currency,
		InvoiceDate:    invoiceDate,
		TargetDate:     targetDate,
		Metadata:       datatypes.JSONMap{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	total := decimal.Zero
	items := make([]domain.InvoiceItem, 0, len(req.Items))
	for _, in := range req.Items {
		quantity := in.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		if in.UnitAmount.IsNegative() {
			return domain.Invoice{}, domain.ErrInvalidAmount
		}
		amount := in.UnitAmount.Mul(decimal.NewFromInt(quantity))
		total = total.Add(amount)
		items = append(items, domain.InvoiceItem{
			ID:          s.genID.Generate(),
			OrgID:       orgID,
			InvoiceID:   invoice.ID,
			Description: strings.TrimSpace(in.Description),
			Quantity:    quantity,
			UnitAmount:  in.UnitAmount,
			Amount:      amount,
			Metadata:    datatypes.JSONMap{},
			CreatedAt:   now,
		})
	}

	invoice.Amount = total
	invoice.Balance = total
	if total.IsZero() {
		invoice.Status = domain.InvoiceStatusPaid
		paidAt := now
		invoice.PaidAt = &paidAt
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Insert(ctx, tx, &invoice, items)
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	return invoice, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Invoice, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvalidOrganization
	}

	invoiceID, err := s.parseID(id)
	if err != nil {
		return domain.Invoice{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if item == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.ListInvoiceResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListInvoiceFilter{Status: req.Status, Unpaid: req.Unpaid}
	if strings.TrimSpace(req.AccountID) != "" {
		accountID, err := s.parseID(req.AccountID)
		if err != nil {
			return domain.ListInvoiceResponse{}, domain.ErrInvalidAccount
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
		return domain.ListInvoiceResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(invoice *domain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        invoice.ID.String(),
			CreatedAt: invoice.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	invoices := make([]domain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}

	resp := domain.ListInvoiceResponse{Invoices: invoices}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) Void(ctx context.Context, id string) (domain.Invoice, error) {
	return s.closeOut(ctx, id, domain.InvoiceStatusVoid)
}

func (s *Service) WriteOff(ctx context.Context, id string) (domain.Invoice, error) {
	return s.closeOut(ctx, id, domain.InvoiceStatusWrittenOff)
}

// closeOut zeroes the balance and freezes the invoice in a terminal status.
func (s *Service) closeOut(ctx context.Context, id string, status domain.InvoiceStatus) (domain.Invoice, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvalidOrganization
	}

	invoiceID, err := s.parseID(id)
	if err != nil {
		return domain.Invoice{}, err
	}

	var out domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}
		if item.Status == domain.InvoiceStatusPaid || item.Status == domain.InvoiceStatusVoid {
			return domain.ErrNotPayable
		}
		item.Status = status
		item.Balance = decimal.Zero
		item.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateStatus(ctx, tx, item); err != nil {
			return err
		}
		out = *item
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	return out, nil
}

func (s *Service) UnpaidAsOf(ctx context.Context, accountID snowflake.ID, asOf time.Time) ([]domain.Invoice, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.ListUnpaidAsOf(ctx, s.db, orgID, accountID, asOf.UTC())
}

func (s *Service) ApplyPayment(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID, amount decimal.Decimal, paidAt time.Time) (domain.Invoice, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvalidOrganization
	}
	if !amount.IsPositive() {
		return domain.Invoice{}, domain.ErrInvalidAmount
	}

	item, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if item == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}
	if !item.IsUnpaid() {
		return domain.Invoice{}, domain.ErrNotPayable
	}

	item.Balance = item.Balance.Sub(amount)
	if item.Balance.IsNegative() {
		item.Balance = decimal.Zero
	}
	if item.Balance.IsZero() {
		item.Status = domain.InvoiceStatusPaid
		at := paidAt.UTC()
		item.PaidAt = &at
	}
	item.UpdatedAt = s.clock.Now()

	if err := s.repo.UpdateBalance(ctx, tx, item); err != nil {
		return domain.Invoice{}, err
	}
	return *item, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
