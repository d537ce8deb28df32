package notification

import (
	"context"

	"github.com/smallbiznis/duno/internal/notification/repository"
	"github.com/smallbiznis/duno/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.queue",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(NewRegistry),
	fx.Provide(NewPoller),
	fx.Invoke(runPoller),
)

func runPoller(lc fx.Lifecycle, poller *Poller) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				poller.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
