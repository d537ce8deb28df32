// Package domain defines the overdue state graph: an ordered list of named
// delinquency states, most severe first, each guarded by a condition over
// the account's billing state. An implicit "clear" state applies when no
// condition matches.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	billingstatedomain "github.com/smallbiznis/duno/internal/billingstate/domain"
	blockingdomain "github.com/smallbiznis/duno/internal/blocking/domain"
)

// Condition guards entry into one overdue state. All set predicates must
// hold.
type Condition struct {
	// TimeSinceEarliestUnpaidInvoiceDays triggers once the oldest unpaid
	// invoice is at least this many days old.
	TimeSinceEarliestUnpaidInvoiceDays *int

	// MinUnpaidInvoiceBalance triggers once the unpaid balance reaches
	// this amount.
	MinUnpaidInvoiceBalance *decimal.Decimal

	// MinNumberOfUnpaidInvoices triggers once this many invoices are
	// unpaid.
	MinNumberOfUnpaidInvoices *int

	// ControlTagInclusion requires the account to carry the tag.
	ControlTagInclusion string

	// ControlTagExclusion suppresses the state while the account carries
	// the tag.
	ControlTagExclusion string

	// ResponseForLastFailedPayment requires the account's last payment
	// attempt to have one of these statuses.
	ResponseForLastFailedPayment []string
}

// IsEmpty reports whether the condition has no predicates at all.
func (c Condition) IsEmpty() bool {
	return c.TimeSinceEarliestUnpaidInvoiceDays == nil &&
		c.MinUnpaidInvoiceBalance == nil &&
		c.MinNumberOfUnpaidInvoices == nil &&
		c.ControlTagInclusion == "" &&
		c.ControlTagExclusion == "" &&
		len(c.ResponseForLastFailedPayment) == 0
}

// Matches evaluates the condition against one billing state snapshot.
func (c Condition) Matches(state billingstatedomain.BillingState, now time.Time) bool {
	if c.TimeSinceEarliestUnpaidInvoiceDays != nil {
		if state.DateOfEarliestUnpaidInvoice == nil {
			return false
		}
		threshold := state.DateOfEarliestUnpaidInvoice.AddDate(0, 0, *c.TimeSinceEarliestUnpaidInvoiceDays)
		if now.Before(threshold) {
			return false
		}
	}
	if c.MinUnpaidInvoiceBalance != nil {
		if state.BalanceOfUnpaidInvoices.LessThan(*c.MinUnpaidInvoiceBalance) {
			return false
		}
	}
	if c.MinNumberOfUnpaidInvoices != nil {
		if state.NumberOfUnpaidInvoices < *c.MinNumberOfUnpaidInvoices {
			return false
		}
	}
	if c.ControlTagInclusion != "" && !hasTag(state.Tags, c.ControlTagInclusion) {
		return false
	}
	if c.ControlTagExclusion != "" && hasTag(state.Tags, c.ControlTagExclusion) {
		return false
	}
	if len(c.ResponseForLastFailedPayment) == 0 {
		return true
	}
	for _, response := range c.ResponseForLastFailedPayment {
		if strings.EqualFold(response, state.LastPaymentState) {
			return true
		}
	}
	return false
}

func hasTag(tags []string, name string) bool {
	for _, tag := range tags {
		if tag == name {
			return true
		}
	}
	return false
}

// StateConfig is one named delinquency tier.
type StateConfig struct {
	Name            string
	ExternalMessage string

	BlockChanges     bool
	BlockEntitlement bool
	BlockBilling     bool

	// AutoReevaluationIntervalDays schedules the next check while the
	// account sits in this state. Zero disables interval-based rechecks.
	AutoReevaluationIntervalDays int

	Condition Condition
}

// IsClear reports whether this is the implicit clear state.
func (s StateConfig) IsClear() bool {
	return s.Name == blockingdomain.ClearStateName
}

// ClearState is the target when no configured condition matches.
func ClearState() StateConfig {
	return StateConfig{Name: blockingdomain.ClearStateName}
}

// Config is the immutable overdue policy loaded at startup.
type Config struct {
	// InitialReevaluationIntervalDays schedules the first recheck for a
	// clear account that still has unpaid invoices.
	InitialReevaluationIntervalDays int

	// States are ordered most severe first; evaluation is first match
	// wins.
	States []StateConfig
}

// Validate rejects documents the evaluator cannot act on.
func (c Config) Validate() error {
	if len(c.States) == 0 {
		return fmt.Errorf("overdue config: no states defined")
	}
	seen := map[string]bool{}
	for i, state := range c.States {
		name := strings.TrimSpace(state.Name)
		if name == "" {
			return fmt.Errorf("overdue config: state %d has no name", i)
		}
		if name == blockingdomain.ClearStateName {
			return fmt.Errorf("overdue config: state name %q is reserved", name)
		}
		if seen[name] {
			return fmt.Errorf("overdue config: duplicate state name %q", name)
		}
		seen[name] = true
		if state.Condition.IsEmpty() {
			return fmt.Errorf("overdue config: state %q has an empty condition", name)
		}
		if state.AutoReevaluationIntervalDays < 0 {
			return fmt.Errorf("overdue config: state %q has a negative reevaluation interval", name)
		}
		if days := state.Condition.TimeSinceEarliestUnpaidInvoiceDays; days != nil && *days < 0 {
			return fmt.Errorf("overdue config: state %q has a negative day threshold", name)
		}
	}
	if c.InitialReevaluationIntervalDays < 0 {
		return fmt.Errorf("overdue config: negative initial reevaluation interval")
	}
	return nil
}

// Evaluate picks the target state for one billing state snapshot: first
// configured state whose condition holds, otherwise clear. Pure.
func (c Config) Evaluate(state billingstatedomain.BillingState, now time.Time) StateConfig {
	for _, candidate := range c.States {
		if candidate.Condition.Matches(state, now) {
			return candidate
		}
	}
	return ClearState()
}

// NextCheckAt computes when the account should be re-evaluated: the sooner
// of the current state's reevaluation interval and the earliest future
// day-threshold crossing. Nil when nothing can change without new input.
func (c Config) NextCheckAt(target StateConfig, state billingstatedomain.BillingState, now time.Time) *time.Time {
	var next *time.Time

	consider := func(at time.Time) {
		if !at.After(now) {
			return
		}
		if next == nil || at.Before(*next) {
			next = &at
		}
	}

	if target.AutoReevaluationIntervalDays > 0 {
		consider(now.AddDate(0, 0, target.AutoReevaluationIntervalDays))
	}
	if target.IsClear() && state.NumberOfUnpaidInvoices > 0 && c.InitialReevaluationIntervalDays > 0 {
		consider(now.AddDate(0, 0, c.InitialReevaluationIntervalDays))
	}
	if state.DateOfEarliestUnpaidInvoice != nil {
		for _, candidate := range c.States {
			if days := candidate.Condition.TimeSinceEarliestUnpaidInvoiceDays; days != nil {
				consider(state.DateOfEarliestUnpaidInvoice.AddDate(0, 0, *days))
			}
		}
	}

	return next
}

// FindState resolves a configured state by name. The clear sentinel always
// resolves.
func (c Config) FindState(name string) (StateConfig, bool) {
	if name == blockingdomain.ClearStateName || name == "" {
		return ClearState(), true
	}
	for _, state := range c.States {
		if state.Name == name {
			return state, true
		}
	}
	return StateConfig{}, false
}
