// Package payment wires the payment service, gateway registry and the
// retry queue handler.
package payment

import (
	"context"
	"errors"

	notifdomain "github.com/smallbiznis/duno/internal/notification/domain"
	"github.com/smallbiznis/duno/internal/payment/domain"
	"go.uber.org/zap"
)

// RetryHandler re-runs a failed invoice payment when its queue entry fires.
type RetryHandler struct {
	log      *zap.Logger
	payments domain.Service
}

func NewRetryHandler(log *zap.Logger, payments domain.Service) *RetryHandler {
	return &RetryHandler{
		log:      log.Named("payment.retry"),
		payments: payments,
	}
}

func (h *RetryHandler) Handle(ctx context.Context, entry notifdomain.Notification) error {
	accountID, _ := entry.Payload["account_id"].(string)
	invoiceID, _ := entry.Payload["invoice_id"].(string)
	if accountID == "" || invoiceID == "" {
		return errors.New("payment retry entry missing account_id or invoice_id")
	}

	_, err := h.payments.Process(ctx, domain.ProcessPaymentRequest{
		AccountID: accountID,
		InvoiceID: invoiceID,
	})
	switch {
	case errors.Is(err, domain.ErrInvalidInvoice):
		// Paid, voided or written off since the retry was scheduled.
		h.log.Info("payment retry skipped, invoice no longer payable",
			zap.String("invoice_id", invoiceID))
		return nil
	case errors.Is(err, domain.ErrNotFound):
		return nil
	default:
		return err
	}
}
