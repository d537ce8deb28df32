// Package testing provides an in-memory gateway with scriptable outcomes.
package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duno/internal/payment/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "testing"
}

func (f *Factory) NewGateway(cfg domain.GatewayConfig) (domain.Gateway, error) {
	return NewGateway(), nil
}

// Gateway approves every charge unless told otherwise.
type Gateway struct {
	mu sync.Mutex

	seq     int
	decline bool
	reason  string
	err     error

	Charges []domain.ChargeRequest
	Refunds []domain.RefundRequest
}

func NewGateway() *Gateway {
	return &Gateway{}
}

func (g *Gateway) Name() string { return "testing" }

// DeclineNext makes subsequent charges come back declined.
func (g *Gateway) DeclineNext(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.decline = true
	g.reason = reason
}

// FailNext makes subsequent calls return err.
func (g *Gateway) FailNext(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// Approve resets the gateway to approving charges.
func (g *Gateway) Approve() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.decline = false
	g.reason = ""
	g.err = nil
}

func (g *Gateway) ProcessPayment(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Charges = append(g.Charges, req)
	if g.err != nil {
		return domain.ChargeResult{}, g.err
	}
	if g.decline {
		return domain.ChargeResult{Declined: true, DeclineReason: g.reason}, nil
	}
	g.seq++
	return domain.ChargeResult{TransactionRef: fmt.Sprintf("test-txn-%d", g.seq)}, nil
}

func (g *Gateway) Refund(ctx context.Context, req domain.RefundRequest) (domain.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Refunds = append(g.Refunds, req)
	if g.err != nil {
		return domain.RefundResult{}, g.err
	}
	g.seq++
	return domain.RefundResult{RefundRef: fmt.Sprintf("test-refund-%d", g.seq)}, nil
}

func (g *Gateway) GetPaymentMethods(ctx context.Context, orgID, accountID snowflake.ID) ([]domain.PaymentMethod, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return nil, g.err
	}
	return []domain.PaymentMethod{
		{Ref: "test-card", Type: "card", Last4: "4242", IsDefault: true},
	}, nil
}
