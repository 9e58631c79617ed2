package scheduler_fx

import (
	"bbpayment/internal/config"
	"bbpayment/internal/services"
	"context"
	"fmt"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"time"
)

var Module = fx.Options(
	fx.Invoke(startScheduler, listenExpirations),
)

// cronLogger routes robfig/cron's own messages to zap.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.s.Errorw(msg, append(kv, "error", err)...)
}

func startScheduler(
	lc fx.Lifecycle,
	cfg *config.Config,
	expiry services.ExpiryService,
	reconcile services.ReconcileService,
	renewal services.RenewalService,
	log *zap.Logger,
) error {
	logger := cronLogger{log.Sugar()}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	ctx, cancel := context.WithCancel(context.Background())

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"expiry-sweep", cfg.Jobs.ExpirySweepSpec, func(ctx context.Context) error {
			n, err := expiry.Sweep(ctx)
			if n > 0 {
				log.Info("expiry sweep cancelled overdue transactions", zap.Int("count", n))
			}
			return err
		}},
		{"reconcile", cfg.Jobs.ReconcileSpec, func(ctx context.Context) error {
			_, err := reconcile.RunDaily(ctx)
			return err
		}},
		{"renewal", cfg.Jobs.RenewalSpec, func(ctx context.Context) error {
			_, err := renewal.Tick(ctx)
			return err
		}},
	}
	for _, j := range jobs {
		j := j
		if _, err := c.AddFunc(j.spec, func() {
			if err := j.run(ctx); err != nil {
				log.Error("scheduled job failed", zap.String("job", j.name), zap.Error(err))
			}
		}); err != nil {
			cancel()
			return fmt.Errorf("schedule %s (%q): %w", j.name, j.spec, err)
		}
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.Start()
			log.Info("scheduler started", zap.Int("jobs", len(c.Entries())))
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-c.Stop().Done():
			case <-stopCtx.Done():
			}
			return nil
		},
	})
	return nil
}

const (
	listenerMinBackoff = time.Second
	listenerMaxBackoff = time.Minute
)

func listenExpirations(lc fx.Lifecycle, expiry services.ExpiryService, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				keepListening(ctx, expiry.Listen, log, listenerMinBackoff, listenerMaxBackoff)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

// keepListening runs listen until ctx ends and resubscribes with exponential backoff each
// time it returns. Until it resubscribes, expiry relies on the sweep job alone.
func keepListening(ctx context.Context, listen func(context.Context) error, log *zap.Logger, minBackoff, maxBackoff time.Duration) {
	backoff := minBackoff
	for {
		started := time.Now()
		err := listen(ctx)
		if ctx.Err() != nil {
			return
		}
		// A subscription that stayed up longer than the cap was healthy.
		if time.Since(started) > maxBackoff {
			backoff = minBackoff
		}
		if err != nil {
			log.Error("expiry listener failed, resubscribing", zap.Duration("backoff", backoff), zap.Error(err))
		} else {
			log.Warn("expiry subscription closed, resubscribing", zap.Duration("backoff", backoff))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
