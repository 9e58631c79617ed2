package infra

import (
	"context"
	"errors"
	"github.com/go-redsync/redsync/v4"
	"time"
)

// RedsyncLocker is a non-blocking distributed lock over Redis.
type RedsyncLocker struct {
	rs *redsync.Redsync
}

func NewLocker(rs *redsync.Redsync) *RedsyncLocker {
	return &RedsyncLocker{rs: rs}
}

func (l *RedsyncLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	m := l.rs.NewMutex("lock:"+name, redsync.WithExpiry(ttl), redsync.WithTries(1))
	if err := m.TryLockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed) {
			return nil, false, nil
		}
		return nil, false, err
	}
	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = m.UnlockContext(ctx)
	}
	return unlock, true, nil
}
