// Package cloudmetrics pushes coarse billing telemetry to an external
// Prometheus collector. It is optional and entirely off the request path.
package cloudmetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/duno/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("cloud.metrics",
	fx.Provide(func() *prometheus.Registry {
		return prometheus.NewRegistry()
	}),
	fx.Provide(NewPusher),
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, cfg config.Config, registry *prometheus.Registry, pusher Pusher, db *gorm.DB, logger *zap.Logger) {
	if pusher == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	collector := NewCollector(registry, db, logger)
	interval := cfg.Telemetry.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				collector.Collect(ctx)
				if err := pusher.Push(ctx, registry); err != nil {
					logger.Warn("telemetry push failed", zap.Error(err))
				}

				for {
					select {
					case <-ticker.C:
						collector.Collect(ctx)
						if err := pusher.Push(ctx, registry); err != nil {
							logger.Warn("telemetry push failed", zap.Error(err))
						}
					case <-ctx.Done():
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
