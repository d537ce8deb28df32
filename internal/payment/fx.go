package payment

import (
	"github.com/smallbiznis/duno/internal/config"
	"github.com/smallbiznis/duno/internal/notification"
	notifdomain "github.com/smallbiznis/duno/internal/notification/domain"
	"github.com/smallbiznis/duno/internal/payment/domain"
	"github.com/smallbiznis/duno/internal/payment/gateway"
	"github.com/smallbiznis/duno/internal/payment/gateway/external"
	gwtesting "github.com/smallbiznis/duno/internal/payment/gateway/testing"
	"github.com/smallbiznis/duno/internal/payment/repository"
	"github.com/smallbiznis/duno/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newRegistry() *gateway.Registry {
	return gateway.NewRegistry(
		external.NewFactory(),
		gwtesting.NewFactory(),
	)
}

func newGateway(registry *gateway.Registry, cfg config.Config) (domain.Gateway, error) {
	return registry.NewGateway(cfg.Payment.Provider, domain.GatewayConfig{
		OrgID: 0,
		Config: map[string]any{
			"base_url": cfg.Payment.GatewayBaseURL,
			"api_key":  cfg.Payment.GatewayAPIKey,
		},
	})
}

func registerRetryHandler(registry *notification.Registry, log *zap.Logger, payments domain.Service) error {
	handler := NewRetryHandler(log, payments)
	return registry.Register(notifdomain.QueuePaymentRetry, notifdomain.HandlerFunc(handler.Handle))
}

var Module = fx.Module("payment.service",
	fx.Provide(newRegistry),
	fx.Provide(newGateway),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Invoke(registerRetryHandler),
)
