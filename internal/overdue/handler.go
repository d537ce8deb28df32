package overdue

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/duno/internal/account/domain"
	billingstatedomain "github.com/smallbiznis/duno/internal/billingstate/domain"
	notifdomain "github.com/smallbiznis/duno/internal/notification/domain"
	"github.com/smallbiznis/duno/internal/overdue/domain"
	"go.uber.org/zap"
)

// CheckHandler runs one delinquency refresh per overdue-check entry.
type CheckHandler struct {
	log     *zap.Logger
	overdue domain.Service
}

func NewCheckHandler(log *zap.Logger, overdue domain.Service) *CheckHandler {
	return &CheckHandler{
		log:     log.Named("overdue.check"),
		overdue: overdue,
	}
}

func (h *CheckHandler) Handle(ctx context.Context, entry notifdomain.Notification) error {
	raw, _ := entry.Payload["account_id"].(string)
	accountID, err := snowflake.ParseString(raw)
	if err != nil || accountID == 0 {
		return errors.New("overdue check entry missing account_id")
	}

	result, err := h.overdue.Refresh(ctx, accountID)
	if err != nil {
		var calcErr *billingstatedomain.CalculationError
		if errors.As(err, &calcErr) && errors.Is(calcErr.Err, accountdomain.ErrNotFound) {
			// Account deleted since the check was scheduled.
			h.log.Warn("overdue check skipped, account gone",
				zap.String("account_id", raw))
			return nil
		}
		return err
	}

	if result.Changed {
		h.log.Info("overdue check applied transition",
			zap.String("account_id", raw),
			zap.String("from", result.PreviousState),
			zap.String("to", result.NewState))
	}
	return nil
}
