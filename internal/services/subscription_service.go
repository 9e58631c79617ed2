package services

import (
	"bbpayment/internal/models/db_models"
	"bbpayment/internal/models/response_models"
	"bbpayment/internal/repositories"
	"bbpayment/pkg/utils"
	"context"
	"fmt"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"time"
)

const analyticsWindow = 30 * 24 * time.Hour

type SubscriptionService interface {
	// Activate creates or extends the subscription txn paid for and links txn to it.
	// It runs inside the settlement transaction.
	Activate(ctx context.Context, txn *db_models.PaymentTransaction) (*db_models.UserSubscription, error)

	GetMine(ctx context.Context, userID string) ([]response_models.SubscriptionStatusResponse, error)
	Cancel(ctx context.Context, userID string, id uuid.UUID, immediate bool) (*response_models.SubscriptionStatusResponse, error)
	SetAutoRenew(ctx context.Context, userID string, id uuid.UUID, autoRenew bool) (*response_models.SubscriptionStatusResponse, error)
	Analytics(ctx context.Context) (*response_models.SubscriptionAnalytics, error)
}

type subscriptionService struct {
	subRepo   repositories.ISubscriptionRepository
	txnRepo   repositories.ITransactionRepository
	issueRepo repositories.IReconciliationRepository
	clock     utils.Clock
	log       *zap.Logger
}

func NewSubscriptionService(
	subRepo repositories.ISubscriptionRepository,
	txnRepo repositories.ITransactionRepository,
	issueRepo repositories.IReconciliationRepository,
	clock utils.Clock,
	log *zap.Logger,
) SubscriptionService {
	return &subscriptionService{
		subRepo:   subRepo,
		txnRepo:   txnRepo,
		issueRepo: issueRepo,
		clock:     clock,
		log:       log,
	}
}

func (s *subscriptionService) Activate(ctx context.Context, txn *db_models.PaymentTransaction) (*db_models.UserSubscription, error) {
	now := s.clock.Now()

	var sub *db_models.UserSubscription
	var err error
	if txn.SubscriptionID != nil {
		if sub, err = s.subRepo.GetByID(ctx, *txn.SubscriptionID); err != nil {
			return nil, dbError("get subscription", err)
		}
	}
	if sub == nil {
		if sub, err = s.subRepo.FindActiveByUserPlan(ctx, txn.UserID, txn.PlanID); err != nil {
			return nil, dbError("find subscription", err)
		}
	}

	isNew := sub == nil
	if isNew {
		sub = &db_models.UserSubscription{
			UserID:    txn.UserID,
			PlanID:    txn.PlanID,
			StartDate: now,
			AutoRenew: true,
		}
	}

	// Paying early extends from the current end date; a lapsed subscription restarts today.
	periodStart := sub.EndDate
	if !sub.Active || periodStart.Before(now) {
		periodStart = now
		if !isNew && !sub.Active {
			sub.StartDate = now
		}
	}
	if txn.Purpose == db_models.PurposeCheckout {
		sub.AutoRenew = true
		sub.CancelledAt = nil
	}

	sub.Active = true
	sub.BillingCycle = txn.BillingCycle
	sub.Currency = txn.Currency
	sub.PaymentProvider = txn.Provider
	if txn.PaymentMethod != "" {
		sub.PaymentMethod = txn.PaymentMethod
	}
	if txn.UserEmail != "" {
		sub.UserEmail = txn.UserEmail
	}
	sub.EndDate = txn.BillingCycle.Advance(periodStart)
	paidAt := now
	next := sub.EndDate
	sub.LastPaymentDate = &paidAt
	sub.NextPaymentDate = &next

	if isNew {
		err = s.subRepo.Create(ctx, sub)
	} else {
		err = s.subRepo.Save(ctx, sub)
	}
	if err != nil {
		return nil, dbError("save subscription", err)
	}

	if txn.SubscriptionID == nil || *txn.SubscriptionID != sub.ID {
		if err := s.txnRepo.UpdateFields(ctx, txn.ID, map[string]interface{}{"subscription_id": sub.ID}); err != nil {
			return nil, dbError("link transaction to subscription", err)
		}
		id := sub.ID
		txn.SubscriptionID = &id
	}

	s.log.Info("subscription activated",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("transaction_id", txn.ID.String()),
		zap.Time("end_date", sub.EndDate))
	return sub, nil
}

func (s *subscriptionService) GetMine(ctx context.Context, userID string) ([]response_models.SubscriptionStatusResponse, error) {
	subs, err := s.subRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, dbError("list subscriptions", err)
	}
	out := make([]response_models.SubscriptionStatusResponse, 0, len(subs))
	for i := range subs {
		out = append(out, toSubscriptionResponse(&subs[i]))
	}
	return out, nil
}

func (s *subscriptionService) owned(ctx context.Context, userID string, id uuid.UUID) (*db_models.UserSubscription, error) {
	sub, err := s.subRepo.GetByID(ctx, id)
	if err != nil {
		return nil, dbError("get subscription", err)
	}
	if sub == nil {
		return nil, utils.ErrSubscriptionNotFound
	}
	if sub.UserID != userID {
		return nil, utils.ErrForbidden
	}
	return sub, nil
}

func (s *subscriptionService) Cancel(ctx context.Context, userID string, id uuid.UUID, immediate bool) (*response_models.SubscriptionStatusResponse, error) {
	sub, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !sub.Active {
		res := toSubscriptionResponse(sub)
		return &res, nil
	}

	now := s.clock.Now()
	sub.AutoRenew = false
	sub.CancelledAt = &now
	if immediate {
		sub.Active = false
		sub.EndDate = now
		sub.NextPaymentDate = nil
	}
	if err := s.subRepo.Save(ctx, sub); err != nil {
		return nil, dbError("cancel subscription", err)
	}
	s.log.Info("subscription cancelled",
		zap.String("subscription_id", sub.ID.String()), zap.Bool("immediate", immediate))

	res := toSubscriptionResponse(sub)
	return &res, nil
}

func (s *subscriptionService) SetAutoRenew(ctx context.Context, userID string, id uuid.UUID, autoRenew bool) (*response_models.SubscriptionStatusResponse, error) {
	sub, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !sub.Active {
		return nil, fmt.Errorf("%w: subscription is not active", utils.ErrConflict)
	}

	sub.AutoRenew = autoRenew
	if autoRenew {
		sub.CancelledAt = nil
		if sub.NextPaymentDate == nil {
			next := sub.EndDate
			sub.NextPaymentDate = &next
		}
	}
	if err := s.subRepo.Save(ctx, sub); err != nil {
		return nil, dbError("update auto-renew", err)
	}
	res := toSubscriptionResponse(sub)
	return &res, nil
}

func (s *subscriptionService) Analytics(ctx context.Context) (*response_models.SubscriptionAnalytics, error) {
	now := s.clock.Now()
	from := now.Add(-analyticsWindow)

	active, err := s.subRepo.CountActive(ctx)
	if err != nil {
		return nil, dbError("count active subscriptions", err)
	}
	byPlan, err := s.subRepo.CountActiveByPlan(ctx)
	if err != nil {
		return nil, dbError("count subscriptions by plan", err)
	}
	created, err := s.subRepo.CountCreatedBetween(ctx, from, now)
	if err != nil {
		return nil, dbError("count new subscriptions", err)
	}
	cancelled, err := s.subRepo.CountCancelledBetween(ctx, from, now)
	if err != nil {
		return nil, dbError("count cancelled subscriptions", err)
	}
	issues, err := s.issueRepo.CountUnresolved(ctx)
	if err != nil {
		return nil, dbError("count reconciliation issues", err)
	}

	res := &response_models.SubscriptionAnalytics{
		ActiveSubscriptions:    active,
		ActiveByPlan:           make([]response_models.PlanSubscriptionCount, 0, len(byPlan)),
		NewSubscriptions:       created,
		CancelledSubscriptions: cancelled,
		UnresolvedIssues:       issues,
		Window:                 response_models.TimeRange{Start: from, End: now},
	}
	for _, pc := range byPlan {
		res.ActiveByPlan = append(res.ActiveByPlan, response_models.PlanSubscriptionCount{PlanID: pc.PlanID, Count: pc.Count})
	}
	return res, nil
}

func toSubscriptionResponse(sub *db_models.UserSubscription) response_models.SubscriptionStatusResponse {
	return response_models.SubscriptionStatusResponse{
		ID:              sub.ID,
		PlanID:          sub.PlanID,
		BillingCycle:    string(sub.BillingCycle),
		Active:          sub.Active,
		AutoRenew:       sub.AutoRenew,
		StartDate:       sub.StartDate,
		EndDate:         sub.EndDate,
		LastPaymentDate: sub.LastPaymentDate,
		NextPaymentDate: sub.NextPaymentDate,
		CancelledAt:     sub.CancelledAt,
		PaymentProvider: string(sub.PaymentProvider),
		PaymentMethod:   sub.PaymentMethod,
	}
}
