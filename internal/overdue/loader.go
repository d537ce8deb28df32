// Package overdue implements the delinquency state machine: policy loading,
// evaluation and the queue-driven refresh dispatcher.
package overdue

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duno/internal/overdue/domain"
	"github.com/spf13/viper"
)

// wire mirrors the YAML document. Amounts travel as strings so decimal
// parsing stays exact.
type wireConfig struct {
	InitialReevaluationIntervalDays int         `mapstructure:"initialReevaluationIntervalDays"`
	States                          []wireState `mapstructure:"states"`
}

type wireState struct {
	Name                         string        `mapstructure:"name"`
	ExternalMessage              string        `mapstructure:"externalMessage"`
	BlockChanges                 bool          `mapstructure:"blockChanges"`
	BlockEntitlement             bool          `mapstructure:"blockEntitlement"`
	BlockBilling                 bool          `mapstructure:"blockBilling"`
	AutoReevaluationIntervalDays int           `mapstructure:"autoReevaluationIntervalDays"`
	Condition                    wireCondition `mapstructure:"condition"`
}

type wireCondition struct {
	TimeSinceEarliestUnpaidInvoiceDays *int     `mapstructure:"timeSinceEarliestUnpaidInvoiceDays"`
	MinUnpaidInvoiceBalance            string   `mapstructure:"minUnpaidInvoiceBalance"`
	MinNumberOfUnpaidInvoices          *int     `mapstructure:"minNumberOfUnpaidInvoices"`
	ControlTagInclusion                string   `mapstructure:"controlTagInclusion"`
	ControlTagExclusion                string   `mapstructure:"controlTagExclusion"`
	ResponseForLastFailedPayment       []string `mapstructure:"responseForLastFailedPayment"`
}

// LoadConfig reads the overdue policy document once at startup. Unlike the
// collections document it is never reloaded: a broken policy must fail the
// process, not limp along mid-run.
func LoadConfig() (domain.Config, error) {
	v := viper.New()

	v.SetConfigName("overdue")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/duno/config") // Volume-mounted config
	v.AddConfigPath("/etc/duno")            // System config
	v.AddConfigPath(".")                    // Current directory (dev mode)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No document means no overdue enforcement. Valid, if unusual.
			return domain.Config{}, nil
		}
		return domain.Config{}, fmt.Errorf("read overdue config: %w", err)
	}

	var wire wireConfig
	if err := v.UnmarshalKey("overdue", &wire); err != nil {
		return domain.Config{}, fmt.Errorf("parse overdue config: %w", err)
	}

	cfg, err := fromWire(wire)
	if err != nil {
		return domain.Config{}, err
	}
	if len(cfg.States) == 0 {
		return domain.Config{}, nil
	}
	if err := cfg.Validate(); err != nil {
		return domain.Config{}, err
	}
	return cfg, nil
}

func fromWire(wire wireConfig) (domain.Config, error) {
	cfg := domain.Config{
		InitialReevaluationIntervalDays: wire.InitialReevaluationIntervalDays,
	}
	for _, ws := range wire.States {
		state := domain.StateConfig{
			Name:                         strings.TrimSpace(ws.Name),
			ExternalMessage:              ws.ExternalMessage,
			BlockChanges:                 ws.BlockChanges,
			BlockEntitlement:             ws.BlockEntitlement,
			BlockBilling:                 ws.BlockBilling,
			AutoReevaluationIntervalDays: ws.AutoReevaluationIntervalDays,
			Condition: domain.Condition{
				TimeSinceEarliestUnpaidInvoiceDays: ws.Condition.TimeSinceEarliestUnpaidInvoiceDays,
				MinNumberOfUnpaidInvoices:          ws.Condition.MinNumberOfUnpaidInvoices,
				ControlTagInclusion:                strings.TrimSpace(ws.Condition.ControlTagInclusion),
				ControlTagExclusion:                strings.TrimSpace(ws.Condition.ControlTagExclusion),
				ResponseForLastFailedPayment:       ws.Condition.ResponseForLastFailedPayment,
			},
		}
		if raw := strings.TrimSpace(ws.Condition.MinUnpaidInvoiceBalance); raw != "" {
			amount, err := decimal.NewFromString(raw)
			if err != nil {
				return domain.Config{}, fmt.Errorf("overdue config: state %q has invalid minUnpaidInvoiceBalance %q: %w", ws.Name, raw, err)
			}
			state.Condition.MinUnpaidInvoiceBalance = &amount
		}
		cfg.States = append(cfg.States, state)
	}
	return cfg, nil
}
