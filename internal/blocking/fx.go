package blocking

import (
	"github.com/smallbiznis/duno/internal/blocking/repository"
	"github.com/smallbiznis/duno/internal/blocking/service"
	"go.uber.org/fx"
)

var Module = fx.Module("blocking.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
