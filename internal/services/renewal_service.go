package services

import (
	"bbpayment/internal/config"
	"bbpayment/internal/models/db_models"
	"bbpayment/internal/repositories"
	"bbpayment/pkg/utils"
	"context"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"sync/atomic"
	"time"
)

const (
	renewalBatch   = 500
	renewalTickKey = "renewal:tick"
	tickLockTTL    = 10 * time.Minute
	itemLockTTL    = 2 * time.Minute
)

// Locker hands out short-lived distributed locks. ok is false when someone else holds name.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(), ok bool, err error)
}

type RenewalSummary struct {
	Expired  int `json:"expired"`
	Renewed  int `json:"renewed"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	Notified int `json:"notified"`
}

type RenewalService interface {
	// Tick runs one scheduler pass on at most one replica at a time.
	Tick(ctx context.Context) (RenewalSummary, error)
	FinalizeExpired(ctx context.Context) (int, error)
	RenewDue(ctx context.Context) (renewed, skipped, failed int, err error)
	NotifyUpcoming(ctx context.Context) (int, error)
}

type renewalService struct {
	subRepo  repositories.ISubscriptionRepository
	txnRepo  repositories.ITransactionRepository
	tm       repositories.TxManager
	payments PaymentService
	events   EventPublisher
	locker   Locker
	cfg      config.JobsConfig
	clock    utils.Clock
	log      *zap.Logger
}

func NewRenewalService(
	subRepo repositories.ISubscriptionRepository,
	txnRepo repositories.ITransactionRepository,
	tm repositories.TxManager,
	payments PaymentService,
	events EventPublisher,
	locker Locker,
	cfg *config.Config,
	clock utils.Clock,
	log *zap.Logger,
) RenewalService {
	return &renewalService{
		subRepo:  subRepo,
		txnRepo:  txnRepo,
		tm:       tm,
		payments: payments,
		events:   events,
		locker:   locker,
		cfg:      cfg.Jobs,
		clock:    clock,
		log:      log,
	}
}

func (s *renewalService) Tick(ctx context.Context) (RenewalSummary, error) {
	var sum RenewalSummary
	unlock, ok, err := s.locker.TryLock(ctx, renewalTickKey, tickLockTTL)
	if err != nil {
		return sum, err
	}
	if !ok {
		s.log.Debug("renewal tick already running elsewhere")
		return sum, nil
	}
	defer unlock()

	if sum.Expired, err = s.FinalizeExpired(ctx); err != nil {
		return sum, err
	}
	if sum.Renewed, sum.Skipped, sum.Failed, err = s.RenewDue(ctx); err != nil {
		return sum, err
	}
	if sum.Notified, err = s.NotifyUpcoming(ctx); err != nil {
		return sum, err
	}
	s.log.Info("renewal tick finished",
		zap.Int("expired", sum.Expired),
		zap.Int("renewed", sum.Renewed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
		zap.Int("notified", sum.Notified))
	return sum, nil
}

func (s *renewalService) FinalizeExpired(ctx context.Context) (int, error) {
	now := s.clock.Now()
	subs, err := s.subRepo.ListExpirable(ctx, now, s.cfg.RenewalGrace, renewalBatch)
	if err != nil {
		return 0, dbError("list expirable subscriptions", err)
	}

	expired := 0
	for i := range subs {
		sub := &subs[i]
		done := false
		err := s.tm.WithinTransaction(ctx, func(ctx context.Context) error {
			ok, err := s.subRepo.Deactivate(ctx, sub.ID)
			if err != nil {
				return dbError("deactivate subscription", err)
			}
			if !ok {
				return nil
			}
			done = true
			sub.Active = false
			return s.events.Enqueue(ctx, subscriptionEvent(SubjectSubscriptionExpired, sub, "EXPIRED", now))
		})
		if err != nil {
			s.log.Error("subscription finalization failed", zap.String("subscription_id", sub.ID.String()), zap.Error(err))
			continue
		}
		if done {
			expired++
		}
	}
	return expired, nil
}

type renewalResult int

const (
	renewalDone renewalResult = iota
	renewalSkipped
	renewalFailed
)

func (s *renewalService) RenewDue(ctx context.Context) (int, int, int, error) {
	due, err := s.subRepo.ListDueForRenewal(ctx, s.clock.Now(), renewalBatch)
	if err != nil {
		return 0, 0, 0, dbError("list due subscriptions", err)
	}

	var renewed, skipped, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.cfg.RenewalWorkers)
	for i := range due {
		sub := &due[i]
		g.Go(func() error {
			// Items never return errors so one failure cannot stop the batch.
			switch s.renewOne(ctx, sub) {
			case renewalDone:
				renewed.Add(1)
			case renewalSkipped:
				skipped.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(renewed.Load()), int(skipped.Load()), int(failed.Load()), nil
}

func (s *renewalService) renewOne(ctx context.Context, sub *db_models.UserSubscription) renewalResult {
	log := s.log.With(zap.String("subscription_id", sub.ID.String()), zap.String("user_id", sub.UserID))

	unlock, ok, err := s.locker.TryLock(ctx, "renewal:"+sub.ID.String(), itemLockTTL)
	if err != nil {
		log.Error("renewal lock failed", zap.Error(err))
		return renewalFailed
	}
	if !ok {
		return renewalSkipped
	}
	defer unlock()

	pending, err := s.txnRepo.HasPendingRenewal(ctx, sub.ID)
	if err != nil {
		log.Error("renewal pending check failed", zap.Error(err))
		return renewalFailed
	}
	if pending {
		return renewalSkipped
	}

	res, err := s.payments.StartRenewal(ctx, sub)
	if err != nil {
		log.Error("renewal checkout failed", zap.Error(err))
		return renewalFailed
	}

	evt := subscriptionEvent(SubjectRenewalCheckout, sub, string(res.Status), s.clock.Now())
	txnID := res.TransactionID
	amount := res.Amount
	evt.TransactionID = &txnID
	evt.ProviderTransactionID = res.ProviderReference
	evt.PaymentURL = res.PaymentURL
	evt.Amount = &amount
	evt.Currency = res.Currency
	if err := s.events.Enqueue(ctx, evt); err != nil {
		log.Error("renewal checkout event not staged", zap.Error(err))
	}
	log.Info("renewal checkout created", zap.String("transaction_id", txnID.String()))
	return renewalDone
}

func (s *renewalService) NotifyUpcoming(ctx context.Context) (int, error) {
	now := s.clock.Now()
	subs, err := s.subRepo.ListUpcomingRenewals(ctx, now, now.Add(s.cfg.RenewalLookahead), renewalBatch)
	if err != nil {
		return 0, dbError("list upcoming renewals", err)
	}

	notified := 0
	for i := range subs {
		sub := &subs[i]
		if sub.NextPaymentDate == nil {
			continue
		}
		done := false
		err := s.tm.WithinTransaction(ctx, func(ctx context.Context) error {
			ok, err := s.subRepo.MarkNoticeSent(ctx, sub.ID, *sub.NextPaymentDate)
			if err != nil {
				return dbError("mark renewal notice", err)
			}
			if !ok {
				return nil
			}
			done = true
			return s.events.Enqueue(ctx, subscriptionEvent(SubjectRenewalUpcoming, sub, "UPCOMING", now))
		})
		if err != nil {
			s.log.Error("renewal notice failed", zap.String("subscription_id", sub.ID.String()), zap.Error(err))
			continue
		}
		if done {
			notified++
		}
	}
	return notified, nil
}
