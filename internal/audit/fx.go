package audit

import (
	"github.com/mesahq/mesa/internal/audit/repository"
	"github.com/mesahq/mesa/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
