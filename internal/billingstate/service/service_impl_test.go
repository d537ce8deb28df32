package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/duno/internal/account/domain"
	"github.com/smallbiznis/duno/internal/billingstate/domain"
	invoicedomain "github.com/smallbiznis/duno/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/duno/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/duno/internal/subscription/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// The fakes embed the service interfaces so only the methods the calculator
// reaches need implementations.

type fakeAccounts struct {
	accountdomain.Service
	account accountdomain.Account
	err     error
}

func (f *fakeAccounts) Get(ctx context.Context, id snowflake.ID) (accountdomain.Account, error) {
	if f.err != nil {
		return accountdomain.Account{}, f.err
	}
	return f.account, nil
}

type fakeInvoices struct {
	invoicedomain.Service
	unpaid []invoicedomain.Invoice
	err    error
}

func (f *fakeInvoices) UnpaidAsOf(ctx context.Context, accountID snowflake.ID, asOf time.Time) ([]invoicedomain.Invoice, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.unpaid, nil
}

type fakePayments struct {
	paymentdomain.Service
	last *paymentdomain.Payment
	err  error
}

func (f *fakePayments) LastAttempt(ctx context.Context, accountID snowflake.ID) (*paymentdomain.Payment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.last, nil
}

type fakeSubscriptions struct {
	subscriptiondomain.Service
	plan *subscriptiondomain.PlanInfo
	err  error
}

func (f *fakeSubscriptions) BasePlanInfo(ctx context.Context, accountID snowflake.ID) (*subscriptiondomain.PlanInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.plan, nil
}

type calculatorFixture struct {
	accounts      *fakeAccounts
	invoices      *fakeInvoices
	payments      *fakePayments
	subscriptions *fakeSubscriptions
	calculator    domain.Calculator
}

func setupCalculator(t *testing.T) *calculatorFixture {
	t.Helper()

	account := accountdomain.Account{
		ID:       42,
		OrgID:    100,
		Name:     "Acme",
		Currency: "USD",
		Timezone: "America/New_York",
	}
	account.SetTagNames([]string{"vip"})

	fixture := &calculatorFixture{
		accounts:      &fakeAccounts{account: account},
		invoices:      &fakeInvoices{},
		payments:      &fakePayments{},
		subscriptions: &fakeSubscriptions{},
	}
	fixture.calculator = New(Params{
		Log:           zap.NewNop(),
		Accounts:      fixture.accounts,
		Invoices:      fixture.invoices,
		Subscriptions: fixture.subscriptions,
		Payments:      fixture.payments,
	})
	return fixture
}

func unpaidInvoice(id int64, date time.Time, balance string) invoicedomain.Invoice {
	return invoicedomain.Invoice{
		ID:          snowflake.ID(id),
		OrgID:       100,
		AccountID:   42,
		Status:      invoicedomain.InvoiceStatusCommitted,
		Currency:    "USD",
		Balance:     decimal.RequireFromString(balance),
		InvoiceDate: date,
	}
}

func TestCalculateAggregatesUnpaidInvoices(t *testing.T) {
	fixture := setupCalculator(t)
	asOf := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	fixture.invoices.unpaid = []invoicedomain.Invoice{
		unpaidInvoice(2, asOf.AddDate(0, 0, -3), "20.00"),
		unpaidInvoice(1, asOf.AddDate(0, 0, -9), "10.00"),
	}
	fixture.payments.last = &paymentdomain.Payment{Status: paymentdomain.PaymentStatusFailed}
	fixture.subscriptions.plan = &subscriptiondomain.PlanInfo{
		PlanName:      "standard-monthly",
		ProductName:   "Standard",
		BillingPeriod: subscriptiondomain.BillingPeriodMonthly,
		PriceList:     "DEFAULT",
	}

	state, err := fixture.calculator.Calculate(context.Background(), 42, asOf)
	require.NoError(t, err)

	require.Equal(t, snowflake.ID(42), state.AccountID)
	require.Equal(t, 2, state.NumberOfUnpaidInvoices)
	require.True(t, state.BalanceOfUnpaidInvoices.Equal(decimal.RequireFromString("30.00")))
	require.NotNil(t, state.DateOfEarliestUnpaidInvoice)
	require.True(t, state.DateOfEarliestUnpaidInvoice.Equal(asOf.AddDate(0, 0, -9)))
	require.NotNil(t, state.IDOfEarliestUnpaidInvoice)
	require.Equal(t, snowflake.ID(1), *state.IDOfEarliestUnpaidInvoice)
	require.Equal(t, []string{"vip"}, state.Tags)
	require.Equal(t, "America/New_York", state.AccountTimezone.String())
	require.Equal(t, string(paymentdomain.PaymentStatusFailed), state.LastPaymentState)
	require.Equal(t, "standard-monthly", state.CurrentPlan)
	require.Equal(t, string(subscriptiondomain.BillingPeriodMonthly), state.CurrentBillingPeriod)
}

func TestCalculateEmptyStateForCurrentAccount(t *testing.T) {
	fixture := setupCalculator(t)
	asOf := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	state, err := fixture.calculator.Calculate(context.Background(), 42, asOf)
	require.NoError(t, err)

	require.Zero(t, state.NumberOfUnpaidInvoices)
	require.True(t, state.BalanceOfUnpaidInvoices.IsZero())
	require.Nil(t, state.DateOfEarliestUnpaidInvoice)
	require.Nil(t, state.IDOfEarliestUnpaidInvoice)
	require.Empty(t, state.LastPaymentState)
	require.Empty(t, state.CurrentPlan)
}

func TestCalculateWrapsCollaboratorFailures(t *testing.T) {
	cause := errors.New("connection refused")

	cases := []struct {
		name  string
		setup func(*calculatorFixture)
		stage string
	}{
		{"account lookup", func(f *calculatorFixture) { f.accounts.err = cause }, "account"},
		{"unpaid invoices", func(f *calculatorFixture) { f.invoices.err = cause }, "invoices"},
		{"last payment", func(f *calculatorFixture) { f.payments.err = cause }, "payments"},
		{"base plan", func(f *calculatorFixture) { f.subscriptions.err = cause }, "subscriptions"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fixture := setupCalculator(t)
			tc.setup(fixture)

			_, err := fixture.calculator.Calculate(context.Background(), 42, time.Now().UTC())
			require.Error(t, err)

			var calcErr *domain.CalculationError
			require.ErrorAs(t, err, &calcErr)
			require.Equal(t, tc.stage, calcErr.Stage)
			require.ErrorIs(t, err, cause)
		})
	}
}