package observability

import (
	"github.com/mesahq/mesa/internal/config"
	"github.com/mesahq/mesa/internal/observability/logger"
	"github.com/mesahq/mesa/internal/observability/metrics"
	"github.com/mesahq/mesa/internal/observability/tracing"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(func(cfg config.Config) logger.Config {
		return logger.Config{Environment: cfg.Environment}
	}),
	fx.Provide(logger.New),
	fx.Provide(func(cfg config.Config) tracing.Config {
		return tracing.Config{
			Enabled:          cfg.Tracing.Enabled,
			ServiceName:      "mesa-billing",
			ServiceVersion:   "1.0",
			Environment:      cfg.Environment,
			ExporterEndpoint: cfg.Tracing.ExporterEndpoint,
			ExporterProtocol: cfg.Tracing.ExporterProtocol,
			SamplingRatio:    cfg.Tracing.SamplingRatio,
		}
	}),
	fx.Provide(tracing.NewProvider),
	fx.Provide(metrics.NewMeterProvider),
	fx.Provide(metrics.NewBillingMetrics),
)
