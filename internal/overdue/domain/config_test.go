package domain

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingstatedomain "github.com/smallbiznis/duno/internal/billingstate/domain"
	blockingdomain "github.com/smallbiznis/duno/internal/blocking/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func testConfig() Config {
	return Config{
		InitialReevaluationIntervalDays: 1,
		States: []StateConfig{
			{
				Name:                         "OD3",
				BlockChanges:                 true,
				BlockEntitlement:             true,
				BlockBilling:                 true,
				AutoReevaluationIntervalDays: 1,
				Condition: Condition{
					TimeSinceEarliestUnpaidInvoiceDays: intPtr(15),
				},
			},
			{
				Name:                         "OD2",
				BlockChanges:                 true,
				BlockEntitlement:             true,
				AutoReevaluationIntervalDays: 1,
				Condition: Condition{
					TimeSinceEarliestUnpaidInvoiceDays: intPtr(10),
				},
			},
			{
				Name:                         "OD1",
				BlockChanges:                 true,
				AutoReevaluationIntervalDays: 1,
				Condition: Condition{
					TimeSinceEarliestUnpaidInvoiceDays: intPtr(5),
				},
			},
		},
	}
}

func stateWithEarliestUnpaid(daysAgo int, now time.Time) billingstatedomain.BillingState {
	date := now.AddDate(0, 0, -daysAgo)
	id := snowflake.ID(1)
	return billingstatedomain.BillingState{
		AccountID:                   snowflake.ID(42),
		NumberOfUnpaidInvoices:      1,
		BalanceOfUnpaidInvoices:     decimal.RequireFromString("50.00"),
		DateOfEarliestUnpaidInvoice: &date,
		IDOfEarliestUnpaidInvoice:   &id,
		AccountTimezone:             time.UTC,
	}
}

func TestEvaluateSelectsStateByInvoiceAge(t *testing.T) {
	cfg := testConfig()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	// 6 days past due crosses the 5 day threshold.
	target := cfg.Evaluate(stateWithEarliestUnpaid(6, now), now)
	assert.Equal(t, "OD1", target.Name)

	// 4 days past due is still clear.
	target = cfg.Evaluate(stateWithEarliestUnpaid(4, now), now)
	assert.True(t, target.IsClear())
	assert.Equal(t, blockingdomain.ClearStateName, target.Name)
}

func TestEvaluateFirstMatchWinsBySeverity(t *testing.T) {
	cfg := testConfig()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	// 20 days matches every state; the most severe (first) wins.
	target := cfg.Evaluate(stateWithEarliestUnpaid(20, now), now)
	assert.Equal(t, "OD3", target.Name)
	assert.True(t, target.BlockBilling)

	target = cfg.Evaluate(stateWithEarliestUnpaid(12, now), now)
	assert.Equal(t, "OD2", target.Name)
}

func TestEvaluateWithNoUnpaidInvoicesIsClear(t *testing.T) {
	cfg := testConfig()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	target := cfg.Evaluate(billingstatedomain.BillingState{AccountID: 42}, now)
	assert.True(t, target.IsClear())
}

func TestConditionBalanceAndCountThresholds(t *testing.T) {
	cfg := Config{
		States: []StateConfig{
			{
				Name: "HEAVY",
				Condition: Condition{
					MinUnpaidInvoiceBalance:   decimalPtr("100.00"),
					MinNumberOfUnpaidInvoices: intPtr(2),
				},
			},
		},
	}
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	state := billingstatedomain.BillingState{
		NumberOfUnpaidInvoices:  2,
		BalanceOfUnpaidInvoices: decimal.RequireFromString("150.00"),
	}
	assert.Equal(t, "HEAVY", cfg.Evaluate(state, now).Name)

	state.BalanceOfUnpaidInvoices = decimal.RequireFromString("99.99")
	assert.True(t, cfg.Evaluate(state, now).IsClear())

	state.BalanceOfUnpaidInvoices = decimal.RequireFromString("150.00")
	state.NumberOfUnpaidInvoices = 1
	assert.True(t, cfg.Evaluate(state, now).IsClear())
}

func TestConditionControlTags(t *testing.T) {
	cfg := testConfig()
	cfg.States[2].Condition.ControlTagExclusion = "OVERDUE_ENFORCEMENT_OFF"
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	state := stateWithEarliestUnpaid(6, now)
	state.Tags = []string{"OVERDUE_ENFORCEMENT_OFF"}
	assert.True(t, cfg.Evaluate(state, now).IsClear())

	state.Tags = nil
	assert.Equal(t, "OD1", cfg.Evaluate(state, now).Name)

	cfg.States[2].Condition.ControlTagInclusion = "ENFORCE"
	assert.True(t, cfg.Evaluate(state, now).IsClear())
	state.Tags = []string{"ENFORCE"}
	assert.Equal(t, "OD1", cfg.Evaluate(state, now).Name)
}

func TestConditionLastFailedPaymentResponse(t *testing.T) {
	cfg := Config{
		States: []StateConfig{
			{
				Name: "PAYMENT_TROUBLE",
				Condition: Condition{
					MinNumberOfUnpaidInvoices:    intPtr(1),
					ResponseForLastFailedPayment: []string{"FAILED", "ERROR"},
				},
			},
		},
	}
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	state := billingstatedomain.BillingState{
		NumberOfUnpaidInvoices: 1,
		LastPaymentState:       "FAILED",
	}
	assert.Equal(t, "PAYMENT_TROUBLE", cfg.Evaluate(state, now).Name)

	state.LastPaymentState = "SUCCESS"
	assert.True(t, cfg.Evaluate(state, now).IsClear())
}

func TestNextCheckAtPicksSoonestTrigger(t *testing.T) {
	cfg := testConfig()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	// In OD1 (6 days): the auto interval fires in 1 day, the OD2 threshold
	// in 4 days. The interval wins.
	state := stateWithEarliestUnpaid(6, now)
	target := cfg.Evaluate(state, now)
	require.Equal(t, "OD1", target.Name)

	next := cfg.NextCheckAt(target, state, now)
	require.NotNil(t, next)
	assert.True(t, next.Equal(now.AddDate(0, 0, 1)))
}

func TestNextCheckAtClearWithUnpaidInvoices(t *testing.T) {
	cfg := testConfig()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	// Clear but 4 days unpaid: recheck via the initial interval, before the
	// OD1 threshold crossing.
	state := stateWithEarliestUnpaid(4, now)
	target := cfg.Evaluate(state, now)
	require.True(t, target.IsClear())

	next := cfg.NextCheckAt(target, state, now)
	require.NotNil(t, next)
	assert.True(t, next.Equal(now.AddDate(0, 0, 1)))
}

func TestNextCheckAtNilWhenNothingPending(t *testing.T) {
	cfg := testConfig()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	state := billingstatedomain.BillingState{AccountID: 42}
	target := cfg.Evaluate(state, now)
	require.True(t, target.IsClear())

	assert.Nil(t, cfg.NextCheckAt(target, state, now))
}

func TestValidateRejectsBrokenDocuments(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"no states", Config{}},
		{"unnamed state", Config{States: []StateConfig{{Condition: Condition{MinNumberOfUnpaidInvoices: intPtr(1)}}}}},
		{"reserved name", Config{States: []StateConfig{{Name: blockingdomain.ClearStateName, Condition: Condition{MinNumberOfUnpaidInvoices: intPtr(1)}}}}},
		{"duplicate name", Config{States: []StateConfig{
			{Name: "OD1", Condition: Condition{MinNumberOfUnpaidInvoices: intPtr(1)}},
			{Name: "OD1", Condition: Condition{MinNumberOfUnpaidInvoices: intPtr(2)}},
		}}},
		{"empty condition", Config{States: []StateConfig{{Name: "OD1"}}}},
		{"negative threshold", Config{States: []StateConfig{{Name: "OD1", Condition: Condition{TimeSinceEarliestUnpaidInvoiceDays: intPtr(-1)}}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.cfg.Validate())
		})
	}
}

func TestValidateAcceptsOrderedDocument(t *testing.T) {
	assert.NoError(t, testConfig().Validate())
}
