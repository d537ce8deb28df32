package overdue

import (
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigParsesPolicyDocument(t *testing.T) {
	t.Chdir(t.TempDir())

	doc := `overdue:
  initialReevaluationIntervalDays: 1
  states:
    - name: OD3
      condition:
        timeSinceEarliestUnpaidInvoiceDays: 30
      blockChanges: true
      blockEntitlement: true
      blockBilling: true
      autoReevaluationIntervalDays: 1
    - name: OD1
      externalMessage: "Account is past due"
      condition:
        timeSinceEarliestUnpaidInvoiceDays: 5
        minUnpaidInvoiceBalance: "0.01"
      blockChanges: true
      autoReevaluationIntervalDays: 1
`
	require.NoError(t, os.WriteFile("overdue.yml", []byte(doc), 0o600))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 1, cfg.InitialReevaluationIntervalDays)
	require.Len(t, cfg.States, 2)

	od3 := cfg.States[0]
	require.Equal(t, "OD3", od3.Name)
	require.True(t, od3.BlockChanges)
	require.True(t, od3.BlockEntitlement)
	require.True(t, od3.BlockBilling)
	require.Equal(t, 1, od3.AutoReevaluationIntervalDays)
	require.NotNil(t, od3.Condition.TimeSinceEarliestUnpaidInvoiceDays)
	require.Equal(t, 30, *od3.Condition.TimeSinceEarliestUnpaidInvoiceDays)

	od1 := cfg.States[1]
	require.Equal(t, "OD1", od1.Name)
	require.Equal(t, "Account is past due", od1.ExternalMessage)
	require.NotNil(t, od1.Condition.TimeSinceEarliestUnpaidInvoiceDays)
	require.Equal(t, 5, *od1.Condition.TimeSinceEarliestUnpaidInvoiceDays)
	require.NotNil(t, od1.Condition.MinUnpaidInvoiceBalance)
	require.True(t, od1.Condition.MinUnpaidInvoiceBalance.Equal(decimal.RequireFromString("0.01")))
}

func TestLoadConfigMissingDocumentMeansNoEnforcement(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Empty(t, cfg.States)
}

func TestLoadConfigRejectsUnparseableBalance(t *testing.T) {
	t.Chdir(t.TempDir())

	doc := `overdue:
  states:
    - name: OD1
      condition:
        minUnpaidInvoiceBalance: "not-money"
`
	require.NoError(t, os.WriteFile("overdue.yml", []byte(doc), 0o600))

	_, err := LoadConfig()
	require.Error(t, err)
}
