package infra

import (
	"bbpayment/internal/config"
	"context"
	"fmt"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"time"
)

// streamMaxLen caps each Redis stream; consumers are expected to keep up well within it.
const streamMaxLen = 100_000

// RedisStreamSink appends every event to a Redis stream named after its subject.
type RedisStreamSink struct {
	rdb *redis.Client
}

func NewRedisStreamSink(rdb *redis.Client) *RedisStreamSink {
	return &RedisStreamSink{rdb: rdb}
}

func (s *RedisStreamSink) Publish(ctx context.Context, subject, msgID string, data []byte) error {
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: subject,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"event_id": msgID,
			"payload":  data,
		},
	}).Err()
}

// JetStreamSink publishes to NATS JetStream; the message id lets the server drop redeliveries
// inside the stream's duplicate window.
type JetStreamSink struct {
	js jetstream.JetStream
}

func NewJetStreamSink(js jetstream.JetStream) *JetStreamSink {
	return &JetStreamSink{js: js}
}

func (s *JetStreamSink) Publish(ctx context.Context, subject, msgID string, data []byte) error {
	_, err := s.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID))
	return err
}

// LogSink only logs events; for local runs without a broker.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Publish(_ context.Context, subject, msgID string, data []byte) error {
	s.log.Info("event", zap.String("subject", subject), zap.String("event_id", msgID), zap.ByteString("payload", data))
	return nil
}

// NewJetStream connects to NATS and makes sure the payments stream exists.
func NewJetStream(cfg *config.Config, log *zap.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(cfg.Events.NatsURL,
		nats.Name("bbpayment"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.Events.NatsStream,
		Subjects:   []string{"payment.>", "payments.>"},
		Storage:    jetstream.FileStorage,
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("ensure stream %s: %w", cfg.Events.NatsStream, err)
	}
	return nc, js, nil
}
