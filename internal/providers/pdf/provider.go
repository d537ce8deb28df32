// Package pdf renders billing documents for download and dunning mail.
package pdf

import "context"

type Provider interface {
	RenderInvoice(ctx context.Context, doc InvoiceDocument) ([]byte, error)
	RenderReceipt(ctx context.Context, doc ReceiptDocument) ([]byte, error)
}

// InvoiceDocument carries everything the statement layout needs, already
// formatted. Money stays as strings so the renderer never rounds.
type InvoiceDocument struct {
	TenantName   string
	SupportEmail string

	InvoiceNumber string
	IssueDate     string
	DueDate       string
	Status        string

	AccountName  string
	AccountEmail string

	Items []LineItem

	Total     string
	AmountDue string
	Currency  string

	// OverdueMessage is the customer-facing dunning text, empty when the
	// account is in good standing.
	OverdueMessage string
}

type LineItem struct {
	Description string
	Amount      string
}

// ReceiptDocument confirms a captured payment.
type ReceiptDocument struct {
	TenantName   string
	SupportEmail string

	ReceiptNumber  string
	InvoiceNumber  string
	PaidAt         string
	AccountName    string
	AccountEmail   string
	Amount         string
	Currency       string
	Gateway        string
	TransactionRef string
}
