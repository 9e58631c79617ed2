package events_fx

import (
	"bbpayment/internal/config"
	"bbpayment/internal/infra"
	"bbpayment/internal/services"
	"context"
	"fmt"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Options(
	fx.Provide(
		provideSink,
		provideSignal,
		services.NewEventPublisher,
		services.NewOutboxRelay,
	),
	fx.Invoke(runRelay),
)

func provideSink(lc fx.Lifecycle, cfg *config.Config, rdb *redis.Client, log *zap.Logger) (services.EventSink, error) {
	switch cfg.Events.Sink {
	case "redis":
		return infra.NewRedisStreamSink(rdb), nil
	case "nats":
		nc, js, err := infra.NewJetStream(cfg, log)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.StopHook(nc.Drain))
		return infra.NewJetStreamSink(js), nil
	case "log":
		return infra.NewLogSink(log), nil
	}
	return nil, fmt.Errorf("unknown event sink %q", cfg.Events.Sink)
}

func provideSignal(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (services.OutboxSignal, error) {
	l, err := infra.NewOutboxListener(cfg, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(l.Close))
	return l, nil
}

func runRelay(lc fx.Lifecycle, relay services.OutboxRelay, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				relay.Run(ctx)
			}()
			log.Info("outbox relay started")
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
			return nil
		},
	})
}
