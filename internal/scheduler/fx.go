package scheduler

import (
	"context"

	"github.com/mesahq/mesa/internal/config"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(New),
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Scheduler) error {
	if !cfg.Scheduler.Enabled {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(cfg.Scheduler.CronSpec, func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			c.Start()
			log.Info("billing scheduler started",
				zap.String("cron_spec", cfg.Scheduler.CronSpec),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopCtx := c.Stop()
			select {
			case <-stopCtx.Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return nil
}
