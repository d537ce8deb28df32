package overdue

import (
	"github.com/smallbiznis/duno/internal/notification"
	notifdomain "github.com/smallbiznis/duno/internal/notification/domain"
	"github.com/smallbiznis/duno/internal/overdue/domain"
	"github.com/smallbiznis/duno/internal/overdue/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func registerCheckHandler(registry *notification.Registry, log *zap.Logger, overdue domain.Service) error {
	handler := NewCheckHandler(log, overdue)
	return registry.Register(notifdomain.QueueOverdueCheck, notifdomain.HandlerFunc(handler.Handle))
}

var Module = fx.Module("overdue.service",
	fx.Provide(LoadConfig),
	fx.Provide(service.New),
	fx.Invoke(registerCheckHandler),
)
