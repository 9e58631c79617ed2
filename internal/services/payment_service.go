package services

import (
	"bbpayment/internal/config"
	"bbpayment/internal/models/db_models"
	"bbpayment/internal/models/response_models"
	"bbpayment/internal/providers"
	"bbpayment/internal/repositories"
	"bbpayment/pkg/utils"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"strings"
	"time"
)

// referenceAttempts bounds retries when a generated provider reference collides.
const referenceAttempts = 3

// refundLease is how long a refund claim blocks other refund attempts when the provider
// outcome is unknown.
const refundLease = 10 * time.Minute

type CheckoutInput struct {
	PlanID         uuid.UUID              `validate:"required"`
	Cycle          db_models.BillingCycle `validate:"oneof=MONTHLY ANNUAL"`
	Currency       string                 `validate:"required,len=3"`
	Provider       string                 `validate:"required"`
	UserID         string                 `validate:"required,max=64"`
	UserEmail      string                 `validate:"omitempty,email"`
	ClientIP       string
	VoucherCode    string `validate:"max=64"`
	Purpose        db_models.TransactionPurpose
	SubscriptionID *uuid.UUID
}

// Caller is the authenticated principal of a request.
type Caller struct {
	UserID string
	Admin  bool
}

func (c Caller) canSee(txn *db_models.PaymentTransaction) bool {
	return c.Admin || txn.UserID == c.UserID
}

type PaymentService interface {
	CreatePayment(ctx context.Context, in CheckoutInput) (*response_models.CreatePaymentResponse, error)
	// StartRenewal opens a renewal checkout for sub through its original provider.
	StartRenewal(ctx context.Context, sub *db_models.UserSubscription) (*response_models.CreatePaymentResponse, error)
	RefundPayment(ctx context.Context, caller Caller, id uuid.UUID) (*response_models.RefundResponse, error)
	QueryPayment(ctx context.Context, caller Caller, id uuid.UUID) (*response_models.QueryResponse, error)
	GetPayment(ctx context.Context, caller Caller, id uuid.UUID) (*db_models.PaymentTransaction, error)
	ListPayments(ctx context.Context, userID string, page, pageSize int) (*response_models.PaymentListResponse, error)
}

type paymentService struct {
	registry *providers.Registry
	pricing  PricingService
	currency CurrencyService
	txnRepo  repositories.ITransactionRepository
	txns     TransactionService
	expiry   ExpiryService
	validate *validator.Validate
	cfg      *config.Config
	clock    utils.Clock
	log      *zap.Logger
}

func NewPaymentService(
	registry *providers.Registry,
	pricing PricingService,
	currency CurrencyService,
	txnRepo repositories.ITransactionRepository,
	txns TransactionService,
	expiry ExpiryService,
	cfg *config.Config,
	clock utils.Clock,
	log *zap.Logger,
) PaymentService {
	return &paymentService{
		registry: registry,
		pricing:  pricing,
		currency: currency,
		txnRepo:  txnRepo,
		txns:     txns,
		expiry:   expiry,
		validate: validator.New(),
		cfg:      cfg,
		clock:    clock,
		log:      log,
	}
}

func (p *paymentService) CreatePayment(ctx context.Context, in CheckoutInput) (*response_models.CreatePaymentResponse, error) {
	if err := p.validate.Struct(in); err != nil {
		return nil, utils.Validationf("%s", err.Error())
	}
	provider, ok := db_models.ParseProvider(strings.ToLower(in.Provider))
	if !ok {
		return nil, fmt.Errorf("%w: %s", utils.ErrUnsupportedProvider, in.Provider)
	}
	gw, err := p.registry.Gateway(provider)
	if err != nil {
		return nil, err
	}
	currency, err := p.currency.Normalize(in.Currency)
	if err != nil {
		return nil, err
	}
	if !gw.SupportsCurrency(currency) {
		return nil, fmt.Errorf("%w: %s does not accept %s", utils.ErrUnsupportedCurrency, provider, currency)
	}

	breakdown, err := p.pricing.Calculate(ctx, PricingInput{
		PlanID:      in.PlanID,
		Cycle:       in.Cycle,
		Currency:    currency,
		UserID:      in.UserID,
		IPAddress:   in.ClientIP,
		VoucherCode: in.VoucherCode,
	})
	if err != nil {
		return nil, err
	}
	if breakdown.FinalPriceMinor <= 0 {
		return nil, utils.Validationf("final price is zero, nothing to charge")
	}

	now := p.clock.Now()
	purpose := in.Purpose
	if purpose == "" {
		purpose = db_models.PurposeCheckout
	}
	snapshot, _ := json.Marshal(breakdown)
	txn := &db_models.PaymentTransaction{
		Provider:       provider,
		UserID:         in.UserID,
		UserEmail:      in.UserEmail,
		PlanID:         in.PlanID,
		SubscriptionID: in.SubscriptionID,
		BillingCycle:   in.Cycle,
		Purpose:        purpose,
		Amount:         breakdown.FinalPrice,
		AmountMinor:    breakdown.FinalPriceMinor,
		Currency:       currency,
		Status:         db_models.TxnStatusPending,
		ExpiresAt:      now.Add(p.cfg.PaymentTTL),
		Breakdown:      datatypes.JSON(snapshot),
	}
	if breakdown.VoucherCode != "" {
		code := breakdown.VoucherCode
		txn.VoucherCode = &code
	}

	for attempt := 1; ; attempt++ {
		txn.ProviderTransactionID = gw.NewReference(now)
		err = p.txnRepo.Create(ctx, txn)
		if err == nil || !errors.Is(err, repositories.ErrDuplicate) || attempt == referenceAttempts {
			break
		}
	}
	if err != nil {
		return nil, dbError("create transaction", err)
	}
	if err := p.expiry.Track(ctx, txn); err != nil {
		// The periodic sweep still cancels it after ExpiresAt.
		p.log.Warn("failed to write expiry entry", zap.String("transaction_id", txn.ID.String()), zap.Error(err))
	}

	// No database transaction or row lock is held across the provider call.
	orderCtx, cancel := context.WithTimeout(ctx, p.cfg.ProviderTimeout)
	order, err := gw.CreateOrder(orderCtx, providers.OrderRequest{
		TransactionID: txn.ID,
		Reference:     txn.ProviderTransactionID,
		Amount:        txn.Amount,
		AmountMinor:   txn.AmountMinor,
		Currency:      currency,
		Description:   fmt.Sprintf("Subscription %s %s", strings.ToLower(string(in.Cycle)), txn.ProviderTransactionID),
		ClientIP:      in.ClientIP,
		UserID:        in.UserID,
		UserEmail:     in.UserEmail,
		CreatedAt:     now,
		ExpiresAt:     txn.ExpiresAt,
	})
	cancel()
	if err != nil {
		return nil, p.orderFailed(ctx, txn, err)
	}

	fields := map[string]interface{}{"payment_url": order.PaymentURL}
	oldRef := txn.ProviderTransactionID
	if order.ProviderTransactionID != "" && order.ProviderTransactionID != oldRef {
		fields["provider_transaction_id"] = order.ProviderTransactionID
	}
	if err := p.txnRepo.UpdateFields(ctx, txn.ID, fields); err != nil {
		return nil, dbError("store provider order", err)
	}
	txn.PaymentURL = order.PaymentURL
	if ref, ok := fields["provider_transaction_id"].(string); ok {
		txn.ProviderTransactionID = ref
		p.expiry.Untrack(ctx, oldRef)
		if err := p.expiry.Track(ctx, txn); err != nil {
			p.log.Warn("failed to write expiry entry", zap.String("transaction_id", txn.ID.String()), zap.Error(err))
		}
	}

	p.log.Info("payment created",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("provider", string(provider)),
		zap.String("provider_ref", txn.ProviderTransactionID),
		zap.String("purpose", string(purpose)),
		zap.String("amount", txn.Amount.String()),
		zap.String("currency", currency))

	return &response_models.CreatePaymentResponse{
		TransactionID:     txn.ID,
		Status:            txn.Status,
		Provider:          provider,
		ProviderReference: txn.ProviderTransactionID,
		PaymentURL:        order.PaymentURL,
		ClientSecret:      order.ClientSecret,
		Amount:            txn.Amount,
		Currency:          currency,
		ExpiresAt:         txn.ExpiresAt,
		Breakdown:         breakdown,
	}, nil
}

// orderFailed settles the bookkeeping for a failed provider call. A definite rejection fails
// the transaction; a transient error leaves it PENDING for the caller to retry or for expiry.
func (p *paymentService) orderFailed(ctx context.Context, txn *db_models.PaymentTransaction, err error) error {
	if !errors.Is(err, utils.ErrProviderRejected) {
		p.log.Warn("provider order failed transiently, transaction left pending",
			zap.String("transaction_id", txn.ID.String()), zap.Error(err))
		return err
	}
	msg := err.Error()
	if len(msg) > 255 {
		msg = msg[:255]
	}
	if _, rerr := p.txns.Resolve(ctx, txn, db_models.TxnStatusFailed, repositories.TransitionPatch{ResponseMessage: msg}); rerr != nil {
		p.log.Error("failed to mark rejected order as failed", zap.String("transaction_id", txn.ID.String()), zap.Error(rerr))
	}
	p.expiry.Untrack(ctx, txn.ProviderTransactionID)
	return err
}

func (p *paymentService) StartRenewal(ctx context.Context, sub *db_models.UserSubscription) (*response_models.CreatePaymentResponse, error) {
	id := sub.ID
	return p.CreatePayment(ctx, CheckoutInput{
		PlanID:         sub.PlanID,
		Cycle:          sub.BillingCycle,
		Currency:       sub.Currency,
		Provider:       string(sub.PaymentProvider),
		UserID:         sub.UserID,
		UserEmail:      sub.UserEmail,
		Purpose:        db_models.PurposeRenewal,
		SubscriptionID: &id,
	})
}

func (p *paymentService) RefundPayment(ctx context.Context, caller Caller, id uuid.UUID) (*response_models.RefundResponse, error) {
	txn, err := p.GetPayment(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if txn.Status != db_models.TxnStatusSucceeded {
		return nil, fmt.Errorf("%w: transaction is %s", utils.ErrRefundNotAllowed, txn.Status)
	}
	gw, err := p.registry.CallbackGateway(txn.Provider)
	if err != nil {
		return nil, err
	}

	// Only the request holding the claim reaches the provider. Millisecond precision survives
	// both postgres and mysql datetime columns, so the release can match the stored value.
	claimedAt := p.clock.Now().Truncate(time.Millisecond)
	claimed, err := p.txnRepo.ClaimRefund(ctx, txn.ID, claimedAt, claimedAt.Add(-refundLease))
	if err != nil {
		return nil, dbError("claim refund", err)
	}
	if !claimed {
		return nil, fmt.Errorf("%w: a refund of transaction %s is already in progress", utils.ErrConflict, txn.ID)
	}

	refundCtx, cancel := context.WithTimeout(ctx, p.cfg.ProviderTimeout)
	result, err := gw.Refund(refundCtx, txn)
	cancel()
	if err != nil {
		p.log.Error("provider refund failed", zap.String("transaction_id", txn.ID.String()), zap.Error(err))
		// A definite rejection moved no money; anything else keeps the lease until it goes stale.
		if errors.Is(err, utils.ErrProviderRejected) {
			if rerr := p.txnRepo.ReleaseRefund(ctx, txn.ID, claimedAt); rerr != nil {
				p.log.Error("failed to release refund claim", zap.String("transaction_id", txn.ID.String()), zap.Error(rerr))
			}
		}
		return nil, err
	}

	ok, err := p.txns.MarkRefunded(ctx, txn, repositories.TransitionPatch{
		RefundID:        result.RefundID,
		ResponseMessage: "Refunded",
		ProviderPayload: datatypes.JSON(result.Raw),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s was refunded concurrently", utils.ErrConflict, txn.ID)
	}

	amount := txn.Amount
	if result.AmountMinor > 0 {
		amount = p.currency.FromMinor(result.AmountMinor, txn.Currency)
	}
	return &response_models.RefundResponse{
		TransactionID: txn.ID,
		RefundID:      result.RefundID,
		Status:        txn.Status,
		ProviderState: result.Status,
		Amount:        amount,
		Currency:      txn.Currency,
	}, nil
}

func (p *paymentService) QueryPayment(ctx context.Context, caller Caller, id uuid.UUID) (*response_models.QueryResponse, error) {
	txn, err := p.GetPayment(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	gw, err := p.registry.CallbackGateway(txn.Provider)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, p.cfg.ProviderTimeout)
	result, err := gw.Query(queryCtx, txn)
	cancel()
	if err != nil {
		return nil, err
	}
	norm, err := p.registry.Normalize(txn.Provider, result.StatusToken)
	if err != nil {
		return nil, err
	}
	return &response_models.QueryResponse{
		TransactionID:     txn.ID,
		Provider:          txn.Provider,
		ProviderReference: txn.ProviderTransactionID,
		ProviderStatus:    result.StatusToken,
		NormalizedStatus:  norm.Status,
		Message:           norm.Message,
		CurrentStatus:     txn.Status,
	}, nil
}

func (p *paymentService) GetPayment(ctx context.Context, caller Caller, id uuid.UUID) (*db_models.PaymentTransaction, error) {
	txn, err := p.txnRepo.GetByID(ctx, id)
	if err != nil {
		return nil, dbError("get transaction", err)
	}
	if txn == nil {
		return nil, utils.ErrTransactionNotFound
	}
	if !caller.canSee(txn) {
		return nil, utils.ErrForbidden
	}
	return txn, nil
}

func (p *paymentService) ListPayments(ctx context.Context, userID string, page, pageSize int) (*response_models.PaymentListResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	items, total, err := p.txnRepo.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, dbError("list transactions", err)
	}
	return &response_models.PaymentListResponse{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}
