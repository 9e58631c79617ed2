package services

import (
	"bbpayment/internal/models/db_models"
	"bbpayment/internal/repositories"
	"bbpayment/pkg/utils"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

type paymentFixture struct {
	*billingStack
	plan   *db_models.SubscriptionPlan
	vnpay  *fakeGateway
	stripe *fakeGateway
	svc    PaymentService
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	s := newBillingStack()
	plan := usdPlan("10.00")
	clock := utils.FixedClock{At: testNow}
	cfg := testConfig()
	currency := NewCurrencyService(cfg)
	pricing := NewPricingService(newFakePlanRepo(plan), &fakeCampaignRepo{}, s.vouchers, StaticTaxRate(decimal.Zero), currency, clock, nopLog)
	vnpay := &fakeGateway{provider: db_models.ProviderVNPay, currencies: []string{"VND"}}
	stripe := &fakeGateway{provider: db_models.ProviderStripe, currencies: []string{"USD", "EUR"}, assignRef: "pi_assigned"}
	return &paymentFixture{
		billingStack: s,
		plan:         plan,
		vnpay:        vnpay,
		stripe:       stripe,
		svc:          NewPaymentService(testRegistry(t, vnpay, stripe), pricing, currency, s.txnRepo, s.txns, s.expiry, cfg, clock, nopLog),
	}
}

func (f *paymentFixture) checkout(provider, currency string) CheckoutInput {
	return CheckoutInput{
		PlanID:    f.plan.ID,
		Cycle:     db_models.CycleMonthly,
		Currency:  currency,
		Provider:  provider,
		UserID:    "user-1",
		UserEmail: "buyer@example.com",
		ClientIP:  "203.0.113.7",
	}
}

func TestCreatePaymentOpensPendingTransaction(t *testing.T) {
	f := newPaymentFixture(t)

	res, err := f.svc.CreatePayment(context.Background(), f.checkout("vnpay", "vnd"))

	require.NoError(t, err)
	assert.Equal(t, db_models.TxnStatusPending, res.Status)
	assert.Equal(t, "REF0001", res.ProviderReference)
	assert.Equal(t, "https://pay.example/REF0001", res.PaymentURL)
	assert.Equal(t, "VND", res.Currency)
	assert.True(t, res.Amount.Equal(decimal.NewFromInt(250000)))
	assert.Equal(t, testNow.Add(testConfig().PaymentTTL), res.ExpiresAt)

	stored := f.txnRepo.get(t, res.TransactionID)
	assert.Equal(t, db_models.TxnStatusPending, stored.Status)
	assert.Equal(t, int64(250000), stored.AmountMinor)
	assert.Equal(t, db_models.PurposeCheckout, stored.Purpose)
	assert.Equal(t, res.PaymentURL, stored.PaymentURL)
	assert.True(t, f.index.has("REF0001"))

	var snapshot map[string]any
	require.NoError(t, json.Unmarshal(stored.Breakdown, &snapshot))
	assert.Equal(t, "VND", snapshot["currency"])

	require.Len(t, f.vnpay.orders, 1)
	assert.Equal(t, int64(250000), f.vnpay.orders[0].AmountMinor)
	assert.Equal(t, "203.0.113.7", f.vnpay.orders[0].ClientIP)
}

func TestCreatePaymentAdoptsProviderAssignedReference(t *testing.T) {
	f := newPaymentFixture(t)

	res, err := f.svc.CreatePayment(context.Background(), f.checkout("stripe", "USD"))

	require.NoError(t, err)
	assert.Equal(t, "pi_assigned", res.ProviderReference)
	assert.Equal(t, "pi_assigned", f.txnRepo.get(t, res.TransactionID).ProviderTransactionID)
	assert.True(t, f.index.has("pi_assigned"))
	assert.False(t, f.index.has("REF0001"))
}

func TestCreatePaymentRejectsBeforeCreatingRows(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreatePayment(ctx, f.checkout("momo", "VND"))
	assert.ErrorIs(t, err, utils.ErrProviderUnavailable)

	_, err = f.svc.CreatePayment(ctx, f.checkout("cash", "VND"))
	assert.ErrorIs(t, err, utils.ErrUnsupportedProvider)

	_, err = f.svc.CreatePayment(ctx, f.checkout("vnpay", "USD"))
	assert.ErrorIs(t, err, utils.ErrUnsupportedCurrency)

	in := f.checkout("vnpay", "VND")
	in.UserID = ""
	_, err = f.svc.CreatePayment(ctx, in)
	assert.ErrorIs(t, err, utils.ErrValidation)

	in = f.checkout("vnpay", "VND")
	in.PlanID = uuid.New()
	_, err = f.svc.CreatePayment(ctx, in)
	assert.ErrorIs(t, err, utils.ErrPlanNotFound)

	assert.Empty(t, f.txnRepo.all())
}

func TestCreatePaymentRejectsZeroPrice(t *testing.T) {
	f := newPaymentFixture(t)
	f.voucherRepo.vouchers[uuid.New()] = db_models.Voucher{
		Code: "FREE", Type: db_models.VoucherPercentage, Value: decimal.NewFromInt(100), Permanent: true, Active: true,
	}
	in := f.checkout("vnpay", "VND")
	in.VoucherCode = "free"

	_, err := f.svc.CreatePayment(context.Background(), in)

	assert.ErrorIs(t, err, utils.ErrValidation)
	assert.Empty(t, f.txnRepo.all())
}

func TestProviderRejectionFailsTransaction(t *testing.T) {
	f := newPaymentFixture(t)
	f.vnpay.orderErr = utils.RejectedProviderError("vnpay", "create order", errors.New("invalid merchant"))

	_, err := f.svc.CreatePayment(context.Background(), f.checkout("vnpay", "VND"))

	assert.ErrorIs(t, err, utils.ErrProviderRejected)
	txns := f.txnRepo.all()
	require.Len(t, txns, 1)
	assert.Equal(t, db_models.TxnStatusFailed, txns[0].Status)
	assert.False(t, f.index.has(txns[0].ProviderTransactionID))
	assert.Equal(t, []string{SubjectPaymentFailed}, f.outbox.subjects())
}

func TestTransientProviderErrorLeavesTransactionPending(t *testing.T) {
	f := newPaymentFixture(t)
	f.vnpay.orderErr = utils.TransientProviderError("vnpay", "create order", errors.New("timeout"))

	_, err := f.svc.CreatePayment(context.Background(), f.checkout("vnpay", "VND"))

	assert.ErrorIs(t, err, utils.ErrProviderTransient)
	txns := f.txnRepo.all()
	require.Len(t, txns, 1)
	assert.Equal(t, db_models.TxnStatusPending, txns[0].Status)
	assert.True(t, f.index.has(txns[0].ProviderTransactionID), "expiry still armed")
}

func TestRefundPayment(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	res, err := f.svc.CreatePayment(ctx, f.checkout("stripe", "USD"))
	require.NoError(t, err)

	_, err = f.svc.RefundPayment(ctx, Caller{UserID: "user-1"}, res.TransactionID)
	assert.ErrorIs(t, err, utils.ErrRefundNotAllowed)

	txn := f.txnRepo.get(t, res.TransactionID)
	_, err = f.txns.Resolve(ctx, &txn, db_models.TxnStatusSucceeded, repositories.TransitionPatch{})
	require.NoError(t, err)

	_, err = f.svc.RefundPayment(ctx, Caller{UserID: "user-2"}, res.TransactionID)
	assert.ErrorIs(t, err, utils.ErrForbidden)

	refund, err := f.svc.RefundPayment(ctx, Caller{UserID: "admin", Admin: true}, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, db_models.TxnStatusRefunded, refund.Status)
	assert.Equal(t, "RF-pi_assigned", refund.RefundID)
	assert.True(t, refund.Amount.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, db_models.TxnStatusRefunded, f.txnRepo.get(t, res.TransactionID).Status)
}

// succeededStripePayment returns the id of a settled stripe checkout.
func (f *paymentFixture) succeededStripePayment(t *testing.T) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	res, err := f.svc.CreatePayment(ctx, f.checkout("stripe", "USD"))
	require.NoError(t, err)
	txn := f.txnRepo.get(t, res.TransactionID)
	_, err = f.txns.Resolve(ctx, &txn, db_models.TxnStatusSucceeded, repositories.TransitionPatch{})
	require.NoError(t, err)
	return res.TransactionID
}

func TestConcurrentRefundsReachProviderOnce(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	id := f.succeededStripePayment(t)
	admin := Caller{UserID: "admin", Admin: true}

	f.stripe.refundGate = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.RefundPayment(ctx, admin, id)
		done <- err
	}()
	require.Eventually(t, func() bool { return f.stripe.refunds.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err := f.svc.RefundPayment(ctx, admin, id)
	assert.ErrorIs(t, err, utils.ErrConflict)

	close(f.stripe.refundGate)
	require.NoError(t, <-done)

	assert.Equal(t, int32(1), f.stripe.refunds.Load())
	assert.Equal(t, db_models.TxnStatusRefunded, f.txnRepo.get(t, id).Status)
}

func TestRejectedRefundCanBeRetried(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	id := f.succeededStripePayment(t)
	admin := Caller{UserID: "admin", Admin: true}

	f.stripe.refundErr = fmt.Errorf("%w: charge already disputed", utils.ErrProviderRejected)
	_, err := f.svc.RefundPayment(ctx, admin, id)
	require.ErrorIs(t, err, utils.ErrProviderRejected)
	assert.Nil(t, f.txnRepo.get(t, id).RefundRequestedAt)

	f.stripe.refundErr = nil
	refund, err := f.svc.RefundPayment(ctx, admin, id)
	require.NoError(t, err)
	assert.Equal(t, db_models.TxnStatusRefunded, refund.Status)
	assert.Equal(t, int32(2), f.stripe.refunds.Load())
}

func TestRefundWithUnknownOutcomeHoldsClaim(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	id := f.succeededStripePayment(t)
	admin := Caller{UserID: "admin", Admin: true}

	f.stripe.refundErr = fmt.Errorf("%w: read timeout", utils.ErrProviderTransient)
	_, err := f.svc.RefundPayment(ctx, admin, id)
	require.ErrorIs(t, err, utils.ErrProviderTransient)

	f.stripe.refundErr = nil
	_, err = f.svc.RefundPayment(ctx, admin, id)
	assert.ErrorIs(t, err, utils.ErrConflict)
	assert.Equal(t, int32(1), f.stripe.refunds.Load())
	assert.Equal(t, db_models.TxnStatusSucceeded, f.txnRepo.get(t, id).Status)
}

func TestQueryPaymentNormalizesProviderStatus(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	res, err := f.svc.CreatePayment(ctx, f.checkout("vnpay", "VND"))
	require.NoError(t, err)
	f.vnpay.queryTok = "24"

	q, err := f.svc.QueryPayment(ctx, Caller{UserID: "user-1"}, res.TransactionID)

	require.NoError(t, err)
	assert.Equal(t, "24", q.ProviderStatus)
	assert.Equal(t, db_models.TxnStatusCancelled, q.NormalizedStatus)
	assert.Equal(t, db_models.TxnStatusPending, q.CurrentStatus, "query never writes")
}

func TestListPaymentsPaginates(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.CreatePayment(ctx, f.checkout("vnpay", "VND"))
		require.NoError(t, err)
	}

	page, err := f.svc.ListPayments(ctx, "user-1", 2, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	assert.Len(t, page.Items, 1)

	page, err = f.svc.ListPayments(ctx, "user-1", 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
	assert.Len(t, page.Items, 3)

	_, err = f.svc.GetPayment(ctx, Caller{UserID: "user-1"}, uuid.New())
	assert.ErrorIs(t, err, utils.ErrTransactionNotFound)
}
