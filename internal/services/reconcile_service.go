package services

import (
	"bbpayment/internal/config"
	"bbpayment/internal/models/db_models"
	"bbpayment/internal/providers"
	"bbpayment/internal/repositories"
	"bbpayment/pkg/utils"
	"context"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"time"
)

const (
	reconcileLookback = 24 * time.Hour
	reconcileBatch    = 1000
)

type ReconcileSummary struct {
	Examined int `json:"examined"`
	Resolved int `json:"resolved"`
	Failed   int `json:"failed"`
}

// ReconcileService asks providers about transactions still PENDING and applies their answer
// through the same compare-and-swap as callbacks. It also serves the issue queue for operators.
type ReconcileService interface {
	RunDaily(ctx context.Context) (ReconcileSummary, error)
	ListIssues(ctx context.Context, unresolvedOnly bool, limit int) ([]db_models.ReconciliationIssue, error)
	ResolveIssue(ctx context.Context, id uuid.UUID, note string) error
}

type reconcileService struct {
	registry  *providers.Registry
	txnRepo   repositories.ITransactionRepository
	issueRepo repositories.IReconciliationRepository
	txns      TransactionService
	expiry    ExpiryService
	timeout   time.Duration
	clock     utils.Clock
	log       *zap.Logger
}

func NewReconcileService(
	registry *providers.Registry,
	txnRepo repositories.ITransactionRepository,
	issueRepo repositories.IReconciliationRepository,
	txns TransactionService,
	expiry ExpiryService,
	cfg *config.Config,
	clock utils.Clock,
	log *zap.Logger,
) ReconcileService {
	return &reconcileService{
		registry:  registry,
		txnRepo:   txnRepo,
		issueRepo: issueRepo,
		txns:      txns,
		expiry:    expiry,
		timeout:   cfg.ProviderTimeout,
		clock:     clock,
		log:       log,
	}
}

func (s *reconcileService) RunDaily(ctx context.Context) (ReconcileSummary, error) {
	var sum ReconcileSummary
	pending, err := s.txnRepo.ListPendingSince(ctx, s.clock.Now().Add(-reconcileLookback), reconcileBatch)
	if err != nil {
		return sum, dbError("list pending transactions", err)
	}

	for i := range pending {
		txn := &pending[i]
		sum.Examined++
		resolved, err := s.reconcileOne(ctx, txn)
		if err != nil {
			sum.Failed++
			s.log.Warn("reconcile query failed",
				zap.String("transaction_id", txn.ID.String()),
				zap.String("provider", string(txn.Provider)),
				zap.Error(err))
			continue
		}
		if resolved {
			sum.Resolved++
		}
	}

	s.log.Info("daily reconciliation finished",
		zap.Int("examined", sum.Examined), zap.Int("resolved", sum.Resolved), zap.Int("failed", sum.Failed))
	return sum, nil
}

func (s *reconcileService) reconcileOne(ctx context.Context, txn *db_models.PaymentTransaction) (bool, error) {
	gw, err := s.registry.CallbackGateway(txn.Provider)
	if err != nil {
		return false, err
	}
	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	result, err := gw.Query(qctx, txn)
	cancel()
	if err != nil {
		return false, err
	}

	norm, err := s.registry.Normalize(txn.Provider, result.StatusToken)
	if err != nil {
		return false, err
	}
	if norm.Status == db_models.TxnStatusPending {
		return false, nil
	}

	ok, err := s.txns.Resolve(ctx, txn, norm.Status, repositories.TransitionPatch{
		ResponseCode:      result.StatusToken,
		ResponseMessage:   norm.Message,
		ProviderPaymentID: result.ProviderPaymentID,
		ProviderPayload:   datatypes.JSON(result.Raw),
	})
	if err != nil {
		return false, err
	}
	if ok {
		s.expiry.Untrack(ctx, txn.ProviderTransactionID)
	}
	return ok, nil
}

func (s *reconcileService) ListIssues(ctx context.Context, unresolvedOnly bool, limit int) ([]db_models.ReconciliationIssue, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	out, err := s.issueRepo.List(ctx, unresolvedOnly, limit)
	if err != nil {
		return nil, dbError("list reconciliation issues", err)
	}
	return out, nil
}

func (s *reconcileService) ResolveIssue(ctx context.Context, id uuid.UUID, note string) error {
	ok, err := s.issueRepo.Resolve(ctx, id, note, s.clock.Now())
	if err != nil {
		return dbError("resolve reconciliation issue", err)
	}
	if !ok {
		return utils.ErrIssueNotFound
	}
	return nil
}
