package subscription

import (
	"github.com/mesahq/mesa/internal/subscription/repository"
	"github.com/mesahq/mesa/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
