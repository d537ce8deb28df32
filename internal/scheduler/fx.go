package scheduler

import (
	"context"

	"go.uber.org/fx"
)

// ProvideConfig supplies the sweeper defaults. Deployments that need a
// different cadence override this provider with fx.Replace.
func ProvideConfig() Config {
	return DefaultConfig()
}

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(runSweeper),
)

func runSweeper(lc fx.Lifecycle, sched *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go sched.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
