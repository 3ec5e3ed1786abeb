package paymentmethod

import (
	"github.com/mesahq/mesa/internal/paymentmethod/repository"
	"github.com/mesahq/mesa/internal/paymentmethod/service"
	"go.uber.org/fx"
)

var Module = fx.Module("paymentmethod.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
