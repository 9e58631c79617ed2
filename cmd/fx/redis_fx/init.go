package redis_fx

import (
	"bbpayment/internal/config"
	"bbpayment/internal/infra"
	"bbpayment/internal/repositories"
	"bbpayment/internal/services"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Provide(
	provideRedis,
	infra.NewRedsync,
	fx.Annotate(infra.NewLocker, fx.As(new(services.Locker))),
	repositories.NewExpiryIndex,
)

func provideRedis(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*redis.Client, error) {
	rdb, err := infra.NewRedis(cfg, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(rdb.Close))
	return rdb, nil
}
