package services

import (
	"bbpayment/internal/models/db_models"
	"bbpayment/internal/models/response_models"
	"bbpayment/internal/providers"
	"bbpayment/internal/repositories"
	"bbpayment/pkg/utils"
	"context"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// CallbackOutcome pairs what the payer is shown with what the provider must receive.
type CallbackOutcome struct {
	Result response_models.CallbackResult
	Ack    providers.Ack
}

// CallbackService verifies, normalizes and applies provider call-backs of every shape.
// Races and duplicates are absorbed here and acknowledged as success to the provider.
type CallbackService interface {
	Handle(ctx context.Context, provider string, req providers.CallbackRequest) (*CallbackOutcome, error)
}

type callbackService struct {
	registry  *providers.Registry
	txnRepo   repositories.ITransactionRepository
	issueRepo repositories.IReconciliationRepository
	txns      TransactionService
	expiry    ExpiryService
	log       *zap.Logger
}

func NewCallbackService(
	registry *providers.Registry,
	txnRepo repositories.ITransactionRepository,
	issueRepo repositories.IReconciliationRepository,
	txns TransactionService,
	expiry ExpiryService,
	log *zap.Logger,
) CallbackService {
	return &callbackService{
		registry:  registry,
		txnRepo:   txnRepo,
		issueRepo: issueRepo,
		txns:      txns,
		expiry:    expiry,
		log:       log,
	}
}

func (s *callbackService) Handle(ctx context.Context, provider string, req providers.CallbackRequest) (*CallbackOutcome, error) {
	p, ok := db_models.ParseProvider(provider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", utils.ErrUnsupportedProvider, provider)
	}
	gw, err := s.registry.CallbackGateway(p)
	if err != nil {
		return nil, err
	}
	log := s.log.With(zap.String("provider", provider), zap.String("shape", string(req.Shape)))
	reply := func(outcome providers.AckOutcome, res response_models.CallbackResult) *CallbackOutcome {
		return &CallbackOutcome{Result: res, Ack: gw.Acknowledge(outcome)}
	}

	data, err := gw.ParseCallback(ctx, req)
	switch {
	case errors.Is(err, utils.ErrInvalidSignature):
		log.Warn("callback signature verification failed, possible tampering", zap.Error(err))
		return reply(providers.AckInvalidSignature, response_models.CallbackResult{
			Message: "Invalid signature",
		}), nil
	case errors.Is(err, utils.ErrProviderTransient):
		log.Error("callback verification could not reach provider", zap.Error(err))
		return reply(providers.AckRetry, response_models.CallbackResult{Message: "Verification pending"}), nil
	case err != nil:
		log.Warn("malformed callback", zap.Error(err))
		return reply(providers.AckMalformed, response_models.CallbackResult{Message: "Malformed callback"}), nil
	}

	if data.Ignored {
		log.Debug("callback carries no payment outcome, acknowledged")
		return reply(providers.AckAccepted, response_models.CallbackResult{Verified: true}), nil
	}

	res := response_models.CallbackResult{Verified: true, ProviderReference: data.ProviderTransactionID}
	log = log.With(zap.String("provider_ref", data.ProviderTransactionID))

	txn, err := s.txnRepo.GetByProviderRef(ctx, p, data.ProviderTransactionID)
	if err != nil {
		log.Error("callback transaction lookup failed", zap.Error(err))
		return reply(providers.AckRetry, res), nil
	}
	if txn == nil {
		log.Warn("callback for unknown transaction")
		res.Message = "Transaction not found"
		return reply(providers.AckNotFound, res), nil
	}
	id := txn.ID
	res.TransactionID = &id

	if data.AmountMinor != 0 && data.AmountMinor != txn.AmountMinor {
		log.Warn("callback amount does not match transaction",
			zap.Int64("expected_minor", txn.AmountMinor), zap.Int64("reported_minor", data.AmountMinor))
		res.Status = txn.Status
		res.Message = "Amount mismatch"
		return reply(providers.AckAmountMismatch, res), nil
	}

	norm, err := s.registry.Normalize(p, data.StatusToken)
	if err != nil {
		return nil, err
	}
	res.Message = norm.Message

	if norm.Status == db_models.TxnStatusPending {
		res.Status = txn.Status
		return reply(providers.AckAccepted, res), nil
	}

	if txn.Status != db_models.TxnStatusPending {
		outcome := s.settled(ctx, log, txn, norm, data, &res)
		return reply(outcome, res), nil
	}

	applied, err := s.txns.Resolve(ctx, txn, norm.Status, repositories.TransitionPatch{
		ResponseCode:      data.StatusToken,
		ResponseMessage:   norm.Message,
		PaymentMethod:     data.PaymentMethod,
		ProviderPaymentID: data.ProviderPaymentID,
		ProviderPayload:   datatypes.JSON(data.Payload),
	})
	if err != nil {
		log.Error("callback transition failed", zap.Error(err))
		res.Status = txn.Status
		return reply(providers.AckRetry, res), nil
	}
	if !applied {
		// Lost the race to another callback or to the expiry reconciler.
		current, err := s.txnRepo.GetByID(ctx, txn.ID)
		if err != nil || current == nil {
			log.Error("reload after lost transition failed", zap.Error(err))
			return reply(providers.AckRetry, res), nil
		}
		outcome := s.settled(ctx, log, current, norm, data, &res)
		return reply(outcome, res), nil
	}

	s.expiry.Untrack(ctx, txn.ProviderTransactionID)
	res.Status = txn.Status
	res.Applied = true
	return reply(providers.AckAccepted, res), nil
}

// settled handles a callback for a transaction that already left PENDING. Agreeing outcomes
// are duplicates; a disagreement about whether money moved becomes a reconciliation issue.
func (s *callbackService) settled(ctx context.Context, log *zap.Logger, txn *db_models.PaymentTransaction, norm providers.Normalized, data *providers.CallbackData, res *response_models.CallbackResult) providers.AckOutcome {
	res.Status = txn.Status
	if !conflicting(txn.Status, norm.Status) {
		log.Info("duplicate callback on resolved transaction ignored",
			zap.String("transaction_id", txn.ID.String()), zap.String("status", string(txn.Status)))
		return providers.AckDuplicate
	}

	log.Warn("late callback contradicts resolved transaction",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("current_status", string(txn.Status)),
		zap.String("reported_status", string(norm.Status)))
	issue := &db_models.ReconciliationIssue{
		TransactionID:         txn.ID,
		Provider:              txn.Provider,
		ProviderTransactionID: txn.ProviderTransactionID,
		ReportedStatus:        norm.Status,
		CurrentStatus:         txn.Status,
		RawPayload:            datatypes.JSON(data.Payload),
	}
	if err := s.issueRepo.Create(ctx, issue); err != nil {
		log.Error("failed to record reconciliation issue", zap.Error(err))
		return providers.AckRetry
	}
	res.Message = "Payment is under review"
	return providers.AckDuplicate
}

// conflicting reports whether the provider and the store disagree on whether money moved.
func conflicting(current, reported db_models.TransactionStatus) bool {
	if reported == db_models.TxnStatusPending {
		return false
	}
	paidHere := current == db_models.TxnStatusSucceeded || current == db_models.TxnStatusRefunded
	paidThere := reported == db_models.TxnStatusSucceeded
	return paidHere != paidThere
}
