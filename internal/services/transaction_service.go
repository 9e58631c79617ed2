package services

import (
	"bbpayment/internal/models/db_models"
	"bbpayment/internal/repositories"
	"bbpayment/pkg/utils"
	"context"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"time"
)

// fraudWindow is how close two successful payments by one user must be to flag the later one.
const fraudWindow = 5 * time.Minute

// TransactionService owns every status change of a payment transaction. A change is one
// conditional UPDATE plus its side effects (outbox event, voucher use, subscription
// activation) committed together; losing the compare-and-swap commits nothing.
type TransactionService interface {
	// Resolve moves a PENDING transaction to a terminal outcome. It reports false, without
	// error, when the row had already left PENDING.
	Resolve(ctx context.Context, txn *db_models.PaymentTransaction, to db_models.TransactionStatus, patch repositories.TransitionPatch) (bool, error)
	// MarkRefunded moves a SUCCEEDED transaction to REFUNDED.
	MarkRefunded(ctx context.Context, txn *db_models.PaymentTransaction, patch repositories.TransitionPatch) (bool, error)
}

type transactionService struct {
	repo     repositories.ITransactionRepository
	tm       repositories.TxManager
	events   EventPublisher
	vouchers VoucherService
	subs     SubscriptionService
	clock    utils.Clock
	log      *zap.Logger
}

func NewTransactionService(
	repo repositories.ITransactionRepository,
	tm repositories.TxManager,
	events EventPublisher,
	vouchers VoucherService,
	subs SubscriptionService,
	clock utils.Clock,
	log *zap.Logger,
) TransactionService {
	return &transactionService{
		repo:     repo,
		tm:       tm,
		events:   events,
		vouchers: vouchers,
		subs:     subs,
		clock:    clock,
		log:      log,
	}
}

func (s *transactionService) Resolve(ctx context.Context, txn *db_models.PaymentTransaction, to db_models.TransactionStatus, patch repositories.TransitionPatch) (bool, error) {
	if to == db_models.TxnStatusSucceeded && patch.SettledAt == nil {
		now := s.clock.Now()
		patch.SettledAt = &now
	}
	return s.transition(ctx, txn, db_models.TxnStatusPending, to, patch)
}

func (s *transactionService) MarkRefunded(ctx context.Context, txn *db_models.PaymentTransaction, patch repositories.TransitionPatch) (bool, error) {
	if patch.RefundedAt == nil {
		now := s.clock.Now()
		patch.RefundedAt = &now
	}
	return s.transition(ctx, txn, db_models.TxnStatusSucceeded, db_models.TxnStatusRefunded, patch)
}

func (s *transactionService) transition(ctx context.Context, txn *db_models.PaymentTransaction, from, to db_models.TransactionStatus, patch repositories.TransitionPatch) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("%w: %s -> %s", utils.ErrIllegalTransition, from, to)
	}

	applied := false
	updated := *txn
	err := s.tm.WithinTransaction(ctx, func(ctx context.Context) error {
		ok, err := s.repo.CompareAndTransition(ctx, txn.ID, from, to, patch)
		if err != nil {
			return dbError("compare and transition", err)
		}
		if !ok {
			return nil
		}

		applied = true
		applyPatch(&updated, to, patch)
		return s.afterTransition(ctx, &updated, to)
	})
	if err != nil {
		return false, err
	}

	if !applied {
		s.log.Info("status write ignored, transaction already left source state",
			zap.String("transaction_id", txn.ID.String()),
			zap.String("expected", string(from)),
			zap.String("wanted", string(to)))
		return false, nil
	}
	*txn = updated
	s.log.Info("transaction transitioned",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("provider", string(txn.Provider)),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return true, nil
}

// afterTransition runs inside the database transaction that won the status change.
func (s *transactionService) afterTransition(ctx context.Context, txn *db_models.PaymentTransaction, to db_models.TransactionStatus) error {
	now := s.clock.Now()

	switch to {
	case db_models.TxnStatusSucceeded:
		if txn.VoucherCode != nil {
			// The money is already taken, so a voucher that ran out in the meantime is
			// only logged; the discount was granted at checkout.
			if err := s.vouchers.Redeem(ctx, *txn.VoucherCode, txn.UserID); err != nil {
				if !errors.Is(err, utils.ErrVoucherExhausted) && !errors.Is(err, utils.ErrVoucherNotFound) {
					return err
				}
				s.log.Warn("voucher redemption skipped",
					zap.String("transaction_id", txn.ID.String()),
					zap.String("voucher", *txn.VoucherCode),
					zap.Error(err))
			}
		}

		if _, err := s.subs.Activate(ctx, txn); err != nil {
			return err
		}

		if err := s.flagRapidRepeat(ctx, txn, now); err != nil {
			return err
		}
		return s.events.Enqueue(ctx, transactionEvent(SubjectPaymentSuccess, txn, now))

	case db_models.TxnStatusRefunded:
		return s.events.Enqueue(ctx, transactionEvent(SubjectPaymentRefunded, txn, now))

	default:
		return s.events.Enqueue(ctx, transactionEvent(SubjectPaymentFailed, txn, now))
	}
}

func (s *transactionService) flagRapidRepeat(ctx context.Context, txn *db_models.PaymentTransaction, now time.Time) error {
	n, err := s.repo.CountSucceededBetween(ctx, txn.UserID, now.Add(-fraudWindow), now, txn.ID)
	if err != nil {
		return dbError("count recent payments", err)
	}
	if n == 0 {
		return nil
	}

	reason := fmt.Sprintf("%d other successful payment(s) within %s", n, fraudWindow)
	if err := s.repo.UpdateFields(ctx, txn.ID, map[string]interface{}{
		"fraud_flag":   true,
		"fraud_reason": reason,
	}); err != nil {
		return dbError("flag transaction", err)
	}
	txn.FraudFlag = true
	txn.FraudReason = reason
	s.log.Warn("transaction flagged for review",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("user_id", txn.UserID),
		zap.String("reason", reason))
	return nil
}

// applyPatch mirrors a committed TransitionPatch onto the in-memory row.
func applyPatch(txn *db_models.PaymentTransaction, to db_models.TransactionStatus, patch repositories.TransitionPatch) {
	txn.Status = to
	if patch.ResponseCode != "" {
		txn.ResponseCode = patch.ResponseCode
	}
	if patch.ResponseMessage != "" {
		txn.ResponseMessage = patch.ResponseMessage
	}
	if patch.PaymentMethod != "" {
		txn.PaymentMethod = patch.PaymentMethod
	}
	if patch.ProviderPaymentID != "" {
		txn.ProviderPaymentID = patch.ProviderPaymentID
	}
	if len(patch.ProviderPayload) > 0 {
		txn.ProviderPayload = patch.ProviderPayload
	}
	if patch.SettledAt != nil {
		txn.SettledAt = patch.SettledAt
	}
	if patch.RefundedAt != nil {
		txn.RefundedAt = patch.RefundedAt
	}
	if patch.RefundID != "" {
		txn.RefundID = patch.RefundID
	}
}
