// Package email sends dunning and receipt mail over SMTP.
package email

import "context"

// OverdueNotice is the customer-facing mail sent on a delinquency transition.
type OverdueNotice struct {
	To             string
	AccountName    string
	TenantName     string
	StateName      string
	Message        string
	BalanceDue     string
	Currency       string
	SupportContact string
}

type Provider interface {
	Send(ctx context.Context, to []string, subject, htmlBody string) error
	SendOverdueNotice(ctx context.Context, notice OverdueNotice) error
}

// NoOpProvider is wired when mail is disabled.
type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	return nil
}

func (p *NoOpProvider) SendOverdueNotice(ctx context.Context, notice OverdueNotice) error {
	return nil
}
