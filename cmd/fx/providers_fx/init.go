package providers_fx

import (
	"bbpayment/internal/config"
	"bbpayment/internal/providers"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Every gateway joins the "gateways" group; the registry decides which are enabled.
var Module = fx.Provide(
	providers.NewHTTPClient,
	asGateway(providers.NewVNPayGateway),
	asGateway(providers.NewMoMoGateway),
	asGateway(providers.NewZaloPayGateway),
	asGateway(providers.NewStripeGateway),
	asGateway(providers.NewPayPalGateway),
	fx.Annotate(provideRegistry, fx.ParamTags(``, `group:"gateways"`)),
)

func asGateway(f any) any {
	return fx.Annotate(f, fx.As(new(providers.Gateway)), fx.ResultTags(`group:"gateways"`))
}

func provideRegistry(cfg *config.Config, gateways []providers.Gateway, log *zap.Logger) (*providers.Registry, error) {
	return providers.NewRegistry(cfg.Providers, providers.Normalizers, gateways, log)
}
