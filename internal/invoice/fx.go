package invoice

import (
	"github.com/mesahq/mesa/internal/invoice/render"
	"github.com/mesahq/mesa/internal/invoice/repository"
	"github.com/mesahq/mesa/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(render.NewRenderer),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
