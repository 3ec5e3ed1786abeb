package tenant

import (
	"github.com/mesahq/mesa/internal/tenant/repository"
	"github.com/mesahq/mesa/internal/tenant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
