package infra

import (
	"bbpayment/internal/config"
	"bbpayment/internal/repositories"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"time"
)

// OutboxListener turns postgres NOTIFY on the outbox channel into relay wake-ups.
// On other drivers Wake returns nil and the relay falls back to polling.
type OutboxListener struct {
	l    *pq.Listener
	wake chan struct{}
	done chan struct{}
	log  *zap.Logger
}

func NewOutboxListener(cfg *config.Config, log *zap.Logger) (*OutboxListener, error) {
	if cfg.Database.Driver != "postgres" {
		return &OutboxListener{log: log}, nil
	}

	l := pq.NewListener(cfg.Database.URL, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn("outbox listener connection event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := l.Listen(repositories.OutboxChannel); err != nil {
		_ = l.Close()
		return nil, err
	}

	o := &OutboxListener{
		l:    l,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		log:  log,
	}
	go o.loop()
	return o, nil
}

func (o *OutboxListener) loop() {
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-o.done:
			return
		case _, ok := <-o.l.Notify:
			if !ok {
				return
			}
			// A nil notification follows a reconnect; rows may have landed meanwhile, so wake anyway.
			select {
			case o.wake <- struct{}{}:
			default:
			}
		case <-ping.C:
			if err := o.l.Ping(); err != nil {
				o.log.Warn("outbox listener ping failed", zap.Error(err))
			}
		}
	}
}

func (o *OutboxListener) Wake() <-chan struct{} {
	return o.wake
}

func (o *OutboxListener) Close() error {
	if o.l == nil {
		return nil
	}
	close(o.done)
	return o.l.Close()
}
