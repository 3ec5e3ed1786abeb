package webhook

import (
	"github.com/mesahq/mesa/internal/webhook/repository"
	"github.com/mesahq/mesa/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
