package services

import (
	"bbpayment/internal/config"
	"bbpayment/internal/models/db_models"
	"bbpayment/internal/repositories"
	"bbpayment/pkg/utils"
	"context"
	"encoding/json"
	"fmt"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"time"
)

const (
	SubjectPaymentSuccess      = "payment.success"
	SubjectPaymentFailed       = "payment.failed"
	SubjectPaymentRefunded     = "payment.refunded"
	SubjectRenewalUpcoming     = "payments.subscription.renewal.upcoming"
	SubjectRenewalCheckout     = "payments.subscription.renewal.checkout"
	SubjectSubscriptionExpired = "payments.subscription.expired"
)

// SettlementEvent is the published payload. Consumers dedupe on EventID, or on
// ProviderTransactionID for payment subjects.
type SettlementEvent struct {
	EventID               uuid.UUID        `json:"eventId"`
	Subject               string           `json:"subject"`
	TransactionID         *uuid.UUID       `json:"transactionId,omitempty"`
	SubscriptionID        *uuid.UUID       `json:"subscriptionId,omitempty"`
	ProviderTransactionID string           `json:"providerTransactionId,omitempty"`
	Provider              string           `json:"provider,omitempty"`
	UserID                string           `json:"userId"`
	UserEmail             string           `json:"userEmail,omitempty"`
	Status                string           `json:"status"`
	Amount                *decimal.Decimal `json:"amount,omitempty"`
	Currency              string           `json:"currency,omitempty"`
	PaymentURL            string           `json:"paymentUrl,omitempty"`
	NextPaymentDate       *time.Time       `json:"nextPaymentDate,omitempty"`
	Timestamp             time.Time        `json:"timestamp"`
}

func (e SettlementEvent) aggregateID() string {
	switch {
	case e.TransactionID != nil:
		return e.TransactionID.String()
	case e.SubscriptionID != nil:
		return e.SubscriptionID.String()
	}
	return e.UserID
}

// transactionEvent builds the payment.* event for txn's current state.
func transactionEvent(subject string, txn *db_models.PaymentTransaction, at time.Time) SettlementEvent {
	id := txn.ID
	amount := txn.Amount
	return SettlementEvent{
		Subject:               subject,
		TransactionID:         &id,
		SubscriptionID:        txn.SubscriptionID,
		ProviderTransactionID: txn.ProviderTransactionID,
		Provider:              string(txn.Provider),
		UserID:                txn.UserID,
		UserEmail:             txn.UserEmail,
		Status:                string(txn.Status),
		Amount:                &amount,
		Currency:              txn.Currency,
		Timestamp:             at,
	}
}

func subscriptionEvent(subject string, sub *db_models.UserSubscription, status string, at time.Time) SettlementEvent {
	id := sub.ID
	return SettlementEvent{
		Subject:         subject,
		SubscriptionID:  &id,
		Provider:        string(sub.PaymentProvider),
		UserID:          sub.UserID,
		UserEmail:       sub.UserEmail,
		Status:          status,
		Currency:        sub.Currency,
		NextPaymentDate: sub.NextPaymentDate,
		Timestamp:       at,
	}
}

// EventPublisher stages events in the outbox. Enqueue joins the database transaction carried
// by ctx, so an event exists if and only if the state change it describes committed.
type EventPublisher interface {
	Enqueue(ctx context.Context, evt SettlementEvent) error
}

type outboxPublisher struct {
	repo  repositories.IOutboxRepository
	clock utils.Clock
}

func NewEventPublisher(repo repositories.IOutboxRepository, clock utils.Clock) EventPublisher {
	return &outboxPublisher{repo: repo, clock: clock}
}

func (p *outboxPublisher) Enqueue(ctx context.Context, evt SettlementEvent) error {
	if evt.EventID == uuid.Nil {
		evt.EventID = uuid.New()
	}
	now := p.clock.Now()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = now
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", evt.Subject, err)
	}

	row := &db_models.OutboxEvent{
		Subject:       evt.Subject,
		AggregateID:   evt.aggregateID(),
		Payload:       datatypes.JSON(payload),
		NextAttemptAt: now,
	}
	row.ID = evt.EventID
	if err := p.repo.Insert(ctx, row); err != nil {
		return dbError("insert outbox event", err)
	}
	if err := p.repo.Notify(ctx); err != nil {
		return dbError("notify outbox", err)
	}
	return nil
}

// EventSink is the durable stream the relay delivers to. msgID lets the sink dedupe redeliveries.
type EventSink interface {
	Publish(ctx context.Context, subject, msgID string, data []byte) error
}

// OutboxSignal fires when new outbox rows committed. A nil channel means poll only.
type OutboxSignal interface {
	Wake() <-chan struct{}
}

const maxOutboxBackoff = 10 * time.Minute

// outboxBackoff is min(2^attempts seconds, 10 minutes).
func outboxBackoff(attempts int) time.Duration {
	if attempts >= 10 {
		return maxOutboxBackoff
	}
	d := time.Duration(1<<uint(attempts)) * time.Second
	if d > maxOutboxBackoff {
		return maxOutboxBackoff
	}
	return d
}

type OutboxRelay interface {
	// Run relays until ctx is cancelled.
	Run(ctx context.Context)
	// RelayOnce delivers one batch and returns how many events were published.
	RelayOnce(ctx context.Context) (int, error)
	List(ctx context.Context, failedOnly bool, limit int) ([]db_models.OutboxEvent, error)
	Retry(ctx context.Context, id uuid.UUID) error
}

type outboxRelay struct {
	repo   repositories.IOutboxRepository
	tm     repositories.TxManager
	sink   EventSink
	signal OutboxSignal
	clock  utils.Clock
	cfg    config.EventsConfig
	log    *zap.Logger
}

func NewOutboxRelay(
	repo repositories.IOutboxRepository,
	tm repositories.TxManager,
	sink EventSink,
	signal OutboxSignal,
	clock utils.Clock,
	cfg *config.Config,
	log *zap.Logger,
) OutboxRelay {
	return &outboxRelay{
		repo:   repo,
		tm:     tm,
		sink:   sink,
		signal: signal,
		clock:  clock,
		cfg:    cfg.Events,
		log:    log,
	}
}

func (r *outboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	var wake <-chan struct{}
	if r.signal != nil {
		wake = r.signal.Wake()
	}

	for {
		// Drain full batches back to back; a short batch means we caught up.
		for {
			n, err := r.RelayOnce(ctx)
			if err != nil {
				if ctx.Err() == nil {
					r.log.Error("outbox relay pass failed", zap.Error(err))
				}
				break
			}
			if n < r.cfg.BatchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		}
	}
}

// RelayOnce leases a batch in a short transaction, then publishes with no transaction open.
// A relay that dies mid-batch leaves its rows leased; they come due again when the lease ends.
func (r *outboxRelay) RelayOnce(ctx context.Context) (int, error) {
	now := r.clock.Now()
	var batch []db_models.OutboxEvent
	err := r.tm.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		batch, err = r.repo.ClaimDue(ctx, now, now.Add(r.leaseDuration()), r.cfg.BatchSize)
		return err
	})
	if err != nil {
		return 0, dbError("claim outbox events", err)
	}

	published := 0
	for i := range batch {
		evt := &batch[i]
		pubCtx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
		pubErr := r.sink.Publish(pubCtx, evt.Subject, evt.ID.String(), evt.Payload)
		cancel()

		if pubErr == nil {
			if err := r.repo.MarkPublished(ctx, evt.ID, r.clock.Now()); err != nil {
				return published, dbError("mark outbox event published", err)
			}
			published++
			continue
		}

		attempts := evt.Attempts + 1
		parked := attempts >= r.cfg.MaxAttempts
		r.log.Error("event publish failed",
			zap.String("event_id", evt.ID.String()),
			zap.String("subject", evt.Subject),
			zap.Int("attempt", attempts),
			zap.Bool("parked", parked),
			zap.Error(pubErr))
		next := now.Add(outboxBackoff(attempts))
		if err := r.repo.MarkFailed(ctx, evt.ID, attempts, next, parked, pubErr.Error()); err != nil {
			return published, dbError("mark outbox event failed", err)
		}
	}
	return published, nil
}

// leaseDuration covers a full batch of publishes timing out back to back.
func (r *outboxRelay) leaseDuration() time.Duration {
	return time.Duration(r.cfg.BatchSize+1) * r.cfg.PublishTimeout
}

func (r *outboxRelay) List(ctx context.Context, failedOnly bool, limit int) ([]db_models.OutboxEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	out, err := r.repo.List(ctx, failedOnly, limit)
	if err != nil {
		return nil, dbError("list outbox events", err)
	}
	return out, nil
}

func (r *outboxRelay) Retry(ctx context.Context, id uuid.UUID) error {
	ok, err := r.repo.Requeue(ctx, id, r.clock.Now())
	if err != nil {
		return dbError("requeue outbox event", err)
	}
	if !ok {
		return utils.ErrOutboxEventNotFound
	}
	return nil
}
