package pushnotify

import (
	"github.com/smallbiznis/duno/internal/pushnotify/repository"
	"github.com/smallbiznis/duno/internal/pushnotify/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pushnotify.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
