package services

import (
	"bbpayment/internal/models/db_models"
	"bbpayment/internal/repositories"
	"bbpayment/pkg/utils"
	"context"
	"go.uber.org/zap"
	"time"
)

const (
	expirySweepBatch = 200
	expiredMessage   = "Payment window expired without provider confirmation"
)

// ExpiryService auto-cancels transactions nobody called back for. The TTL index is only a
// trigger; the compare-and-swap in TransactionService decides who wins against a callback.
type ExpiryService interface {
	Track(ctx context.Context, txn *db_models.PaymentTransaction) error
	Untrack(ctx context.Context, providerTransactionID string)
	// HandleExpired reports whether this call moved the transaction to AUTO_CANCELLED.
	HandleExpired(ctx context.Context, providerTransactionID string) (bool, error)
	// Sweep cancels PENDING rows past their deadline whose TTL entry was lost.
	Sweep(ctx context.Context) (int, error)
	// Listen consumes TTL expiry notifications until ctx is done.
	Listen(ctx context.Context) error
}

type expiryService struct {
	index   repositories.IExpiryIndex
	txnRepo repositories.ITransactionRepository
	txns    TransactionService
	clock   utils.Clock
	log     *zap.Logger
}

func NewExpiryService(
	index repositories.IExpiryIndex,
	txnRepo repositories.ITransactionRepository,
	txns TransactionService,
	clock utils.Clock,
	log *zap.Logger,
) ExpiryService {
	return &expiryService{index: index, txnRepo: txnRepo, txns: txns, clock: clock, log: log}
}

func (s *expiryService) Track(ctx context.Context, txn *db_models.PaymentTransaction) error {
	ttl := txn.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		ttl = time.Second
	}
	return s.index.Put(ctx, repositories.ExpirySnapshot{
		TransactionID:         txn.ID,
		Provider:              string(txn.Provider),
		ProviderTransactionID: txn.ProviderTransactionID,
		ExpiresAt:             txn.ExpiresAt,
	}, ttl)
}

func (s *expiryService) Untrack(ctx context.Context, providerTransactionID string) {
	if err := s.index.Clear(ctx, providerTransactionID); err != nil {
		// The entry will fire later and find a non-PENDING row; harmless.
		s.log.Warn("failed to clear expiry entry", zap.String("provider_ref", providerTransactionID), zap.Error(err))
	}
}

func (s *expiryService) HandleExpired(ctx context.Context, providerTransactionID string) (bool, error) {
	txn, err := s.txnRepo.FindByProviderTransactionID(ctx, providerTransactionID)
	if err != nil {
		return false, dbError("find transaction", err)
	}
	if txn == nil {
		s.log.Debug("expiry for unknown transaction", zap.String("provider_ref", providerTransactionID))
		return false, nil
	}
	return s.expire(ctx, txn)
}

func (s *expiryService) expire(ctx context.Context, txn *db_models.PaymentTransaction) (bool, error) {
	if txn.Status != db_models.TxnStatusPending {
		s.log.Debug("expiry ignored, transaction already resolved",
			zap.String("transaction_id", txn.ID.String()), zap.String("status", string(txn.Status)))
		return false, nil
	}
	ok, err := s.txns.Resolve(ctx, txn, db_models.TxnStatusAutoCancelled, repositories.TransitionPatch{
		ResponseMessage: expiredMessage,
	})
	if err != nil {
		return false, err
	}
	if ok {
		s.log.Info("transaction auto-cancelled",
			zap.String("transaction_id", txn.ID.String()),
			zap.String("provider", string(txn.Provider)),
			zap.String("provider_ref", txn.ProviderTransactionID))
	}
	return ok, nil
}

func (s *expiryService) Sweep(ctx context.Context) (int, error) {
	txns, err := s.txnRepo.ListExpiredPending(ctx, s.clock.Now(), expirySweepBatch)
	if err != nil {
		return 0, dbError("list expired transactions", err)
	}
	cancelled := 0
	for i := range txns {
		ok, err := s.expire(ctx, &txns[i])
		if err != nil {
			s.log.Error("expiry sweep item failed", zap.String("transaction_id", txns[i].ID.String()), zap.Error(err))
			continue
		}
		if ok {
			cancelled++
		}
	}
	if cancelled > 0 {
		s.log.Info("expiry sweep finished", zap.Int("cancelled", cancelled), zap.Int("examined", len(txns)))
	}
	return cancelled, nil
}

func (s *expiryService) Listen(ctx context.Context) error {
	refs, err := s.index.Expirations(ctx)
	if err != nil {
		return err
	}
	for ref := range refs {
		if _, err := s.HandleExpired(ctx, ref); err != nil {
			s.log.Error("expiry handling failed", zap.String("provider_ref", ref), zap.Error(err))
		}
	}
	return ctx.Err()
}
