package billingevent

import (
	accountdomain "github.com/smallbiznis/duno/internal/account/domain"
	"github.com/smallbiznis/duno/internal/billingevent/domain"
	"github.com/smallbiznis/duno/internal/billingevent/repository"
	"github.com/smallbiznis/duno/internal/billingevent/service"
	"github.com/smallbiznis/duno/internal/notification"
	notifdomain "github.com/smallbiznis/duno/internal/notification/domain"
	"github.com/smallbiznis/duno/internal/providers/email"
	pushdomain "github.com/smallbiznis/duno/internal/pushnotify/domain"
	tenantdomain "github.com/smallbiznis/duno/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func registerDispatchHandler(registry *notification.Registry, db *gorm.DB, log *zap.Logger, repo domain.Repository, push pushdomain.Service, mail email.Provider, accounts accountdomain.Service, tenants tenantdomain.Service) error {
	handler := NewDispatchHandler(db, log, repo, push, mail, accounts, tenants)
	return registry.Register(notifdomain.QueueEventDispatch, notifdomain.HandlerFunc(handler.Handle))
}

var Module = fx.Module("billingevent.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Invoke(registerDispatchHandler),
)
