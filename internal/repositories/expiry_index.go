package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"strings"
	"time"
)

const ExpiryKeyPrefix = "transaction:"

// ExpirySnapshot is the value stored under transaction:{providerTransactionId}. It only
// carries enough to find the row again; the database stays authoritative.
type ExpirySnapshot struct {
	TransactionID         uuid.UUID `json:"transaction_id"`
	Provider              string    `json:"provider"`
	ProviderTransactionID string    `json:"provider_transaction_id"`
	ExpiresAt             time.Time `json:"expires_at"`
}

// IExpiryIndex is the disposable TTL index over pending transactions.
type IExpiryIndex interface {
	Put(ctx context.Context, snap ExpirySnapshot, ttl time.Duration) error
	Clear(ctx context.Context, providerTransactionID string) error
	// Expirations streams provider references whose entry expired until ctx is done.
	Expirations(ctx context.Context) (<-chan string, error)
}

type RedisExpiryIndex struct {
	rdb *redis.Client
}

func NewExpiryIndex(rdb *redis.Client) IExpiryIndex {
	return &RedisExpiryIndex{rdb: rdb}
}

func ExpiryKey(providerTransactionID string) string {
	return ExpiryKeyPrefix + providerTransactionID
}

func (x *RedisExpiryIndex) Put(ctx context.Context, snap ExpirySnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return x.rdb.Set(ctx, ExpiryKey(snap.ProviderTransactionID), data, ttl).Err()
}

func (x *RedisExpiryIndex) Clear(ctx context.Context, providerTransactionID string) error {
	err := x.rdb.Del(ctx, ExpiryKey(providerTransactionID)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (x *RedisExpiryIndex) Expirations(ctx context.Context) (<-chan string, error) {
	channel := fmt.Sprintf("__keyevent@%d__:expired", x.rdb.Options().DB)
	sub := x.rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan string, 64)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ref, found := strings.CutPrefix(msg.Payload, ExpiryKeyPrefix)
				if !found || ref == "" {
					continue
				}
				select {
				case out <- ref:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
