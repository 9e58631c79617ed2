package config_fx

import (
	"bbpayment/internal/config"
	"bbpayment/internal/infra"
	"bbpayment/pkg/utils"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Options(
	fx.Provide(config.Load, infra.NewLogger, provideClock),
	fx.Invoke(syncLogger),
)

func provideClock() utils.Clock {
	return utils.SystemClock{}
}

func syncLogger(lc fx.Lifecycle, log *zap.Logger) {
	lc.Append(fx.StopHook(func() {
		_ = log.Sync()
	}))
}
