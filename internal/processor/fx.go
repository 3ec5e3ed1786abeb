package processor

import (
	"net/http"

	"github.com/mesahq/mesa/internal/config"
	"github.com/mesahq/mesa/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log *zap.Logger
	Cfg config.Config
}

// NewProcessor selects the payment backend from configuration. Anything
// other than "stripe" gets the local simulator, so a misconfigured
// environment never talks to a live processor by accident.
func NewProcessor(p Params) Processor {
	if p.Cfg.Processor.Mode == "stripe" {
		client := tracing.WrapHTTPClient(http.DefaultClient)
		return NewStripe(p.Log, p.Cfg.Processor.SecretKey, p.Cfg.Processor.WebhookSecret, client)
	}
	return NewLocal(p.Log, p.Cfg.Processor.WebhookSecret)
}

var Module = fx.Module("processor",
	fx.Provide(NewProcessor),
)
