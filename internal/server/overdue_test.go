package server

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/duno/internal/clock"
	invoicedomain "github.com/smallbiznis/duno/internal/invoice/domain"
	overduedomain "github.com/smallbiznis/duno/internal/overdue/domain"
	"github.com/stretchr/testify/require"
)

type stubOverdueService struct {
	status overduedomain.StatusResult
}

func (s *stubOverdueService) Refresh(ctx context.Context, accountID snowflake.ID) (overduedomain.RefreshResult, error) {
	return overduedomain.RefreshResult{}, nil
}

func (s *stubOverdueService) Status(ctx context.Context, accountID snowflake.ID) (overduedomain.StatusResult, error) {
	return s.status, nil
}

type stubInvoiceService struct {
	invoicedomain.Service
	unpaidAsOf time.Time
}

func (s *stubInvoiceService) UnpaidAsOf(ctx context.Context, accountID snowflake.ID, asOf time.Time) ([]invoicedomain.Invoice, error) {
	s.unpaidAsOf = asOf
	return nil, nil
}

func TestRenderOverdueNoticeUsesInjectedClock(t *testing.T) {
	gin.SetMode(gin.TestMode)

	fakeClock := clock.NewFakeClock(time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC))
	invoices := &stubInvoiceService{}
	srv := &Server{
		clock:      fakeClock,
		overdueSvc: &stubOverdueService{status: overduedomain.StatusResult{StateName: "OD1"}},
		invoiceSvc: invoices,
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/v1/accounts/100/overdue/notice.pdf", nil)
	c.Params = gin.Params{{Key: "id", Value: snowflake.ID(100).String()}}

	srv.RenderOverdueNotice(c)

	require.True(t, invoices.unpaidAsOf.Equal(fakeClock.Now()))
}
