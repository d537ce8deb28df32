package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/duno/internal/account/domain"
	"github.com/smallbiznis/duno/internal/billingstate/domain"
	invoicedomain "github.com/smallbiznis/duno/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/duno/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/duno/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log           *zap.Logger
	Accounts      accountdomain.Service
	Invoices      invoicedomain.Service
	Subscriptions subscriptiondomain.Service
	Payments      paymentdomain.Service
}

type Calculator struct {
	log           *zap.Logger
	accounts      accountdomain.Service
	invoices      invoicedomain.Service
	subscriptions subscriptiondomain.Service
	payments      paymentdomain.Service
}

func New(p Params) domain.Calculator {
	return &Calculator{
		log:           p.Log.Named("billingstate.calculator"),
		accounts:      p.Accounts,
		invoices:      p.Invoices,
		subscriptions: p.Subscriptions,
		payments:      p.Payments,
	}
}

// Calculate assembles the delinquency snapshot for one account at asOf.
// Invoices dated after asOf are invisible, so re-running with a historical
// timestamp reproduces the state seen back then.
func (c *Calculator) Calculate(ctx context.Context, accountID snowflake.ID, asOf time.Time) (domain.BillingState, error) {
	asOf = asOf.UTC()

	account, err := c.accounts.Get(ctx, accountID)
	if err != nil {
		return domain.BillingState{}, domain.NewCalculationError(accountID, "account", err)
	}

	unpaid, err := c.invoices.UnpaidAsOf(ctx, accountID, asOf)
	if err != nil {
		return domain.BillingState{}, domain.NewCalculationError(accountID, "invoices", err)
	}

	state := domain.BillingState{
		AccountID:               accountID,
		AccountTimezone:         account.Location(),
		Tags:                    account.TagNames(),
		BalanceOfUnpaidInvoices: decimal.Zero,
	}

	for i := range unpaid {
		inv := &unpaid[i]
		state.NumberOfUnpaidInvoices++
		state.BalanceOfUnpaidInvoices = state.BalanceOfUnpaidInvoices.Add(inv.Balance)
		if state.DateOfEarliestUnpaidInvoice == nil || inv.InvoiceDate.Before(*state.DateOfEarliestUnpaidInvoice) {
			date := inv.InvoiceDate
			id := inv.ID
			state.DateOfEarliestUnpaidInvoice = &date
			state.IDOfEarliestUnpaidInvoice = &id
		}
	}

	lastPayment, err := c.payments.LastAttempt(ctx, accountID)
	if err != nil {
		return domain.BillingState{}, domain.NewCalculationError(accountID, "payments", err)
	}
	if lastPayment != nil {
		state.LastPaymentState = string(lastPayment.Status)
	}

	planInfo, err := c.subscriptions.BasePlanInfo(ctx, accountID)
	if err != nil {
		return domain.BillingState{}, domain.NewCalculationError(accountID, "subscriptions", err)
	}
	if planInfo != nil {
		state.CurrentPlan = planInfo.PlanName
		state.CurrentProduct = planInfo.ProductName
		state.CurrentBillingPeriod = string(planInfo.BillingPeriod)
		state.CurrentPriceList = planInfo.PriceList
	}

	return state, nil
}
