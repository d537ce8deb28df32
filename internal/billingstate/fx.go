package billingstate

import (
	"github.com/smallbiznis/duno/internal/billingstate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingstate.calculator",
	fx.Provide(service.New),
)
