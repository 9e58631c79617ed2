package services

import (
	"bbpayment/internal/models/db_models"
	"bbpayment/internal/repositories"
	"bbpayment/pkg/utils"
	"context"
	"encoding/json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestResolveSuccessActivatesSubscriptionAndStagesEvent(t *testing.T) {
	txn := pendingTxn(db_models.ProviderVNPay, "REF1", 250000)
	s := newBillingStack(txn)

	ok, err := s.txns.Resolve(context.Background(), txn, db_models.TxnStatusSucceeded, repositories.TransitionPatch{
		ResponseCode:      "00",
		ProviderPaymentID: "14000001",
	})

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, db_models.TxnStatusSucceeded, txn.Status)
	require.NotNil(t, txn.SettledAt)
	assert.Equal(t, testNow, *txn.SettledAt)

	stored := s.txnRepo.get(t, txn.ID)
	assert.Equal(t, db_models.TxnStatusSucceeded, stored.Status)
	assert.Equal(t, "14000001", stored.ProviderPaymentID)
	require.NotNil(t, stored.SubscriptionID)

	sub, err := s.subRepo.GetByID(context.Background(), *stored.SubscriptionID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.True(t, sub.Active)
	assert.Equal(t, testNow.AddDate(0, 1, 0), sub.EndDate)

	assert.Equal(t, []string{SubjectPaymentSuccess}, s.outbox.subjects())
	assert.Equal(t, 1, s.outbox.notifies)

	var evt SettlementEvent
	require.NoError(t, json.Unmarshal(s.outbox.events[0].Payload, &evt))
	assert.Equal(t, s.outbox.events[0].ID, evt.EventID)
	assert.Equal(t, "REF1", evt.ProviderTransactionID)
	assert.Equal(t, "SUCCEEDED", evt.Status)
	assert.Equal(t, "user-1", evt.UserID)
}

func TestResolveIsSingleShot(t *testing.T) {
	txn := pendingTxn(db_models.ProviderVNPay, "REF1", 250000)
	s := newBillingStack(txn)
	ctx := context.Background()

	stale := *txn
	ok, err := s.txns.Resolve(ctx, txn, db_models.TxnStatusFailed, repositories.TransitionPatch{ResponseCode: "51"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.txns.Resolve(ctx, &stale, db_models.TxnStatusSucceeded, repositories.TransitionPatch{ResponseCode: "00"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, db_models.TxnStatusPending, stale.Status, "loser's copy is untouched")

	assert.Equal(t, db_models.TxnStatusFailed, s.txnRepo.get(t, txn.ID).Status)
	assert.Equal(t, []string{SubjectPaymentFailed}, s.outbox.subjects())
	assert.Empty(t, s.subRepo.rows)
}

func TestIllegalTransitionsAreRejected(t *testing.T) {
	txn := pendingTxn(db_models.ProviderVNPay, "REF1", 250000)
	s := newBillingStack(txn)

	_, err := s.txns.Resolve(context.Background(), txn, db_models.TxnStatusRefunded, repositories.TransitionPatch{})
	assert.ErrorIs(t, err, utils.ErrIllegalTransition)

	ok, err := s.txns.MarkRefunded(context.Background(), txn, repositories.TransitionPatch{RefundID: "R1"})
	require.NoError(t, err)
	assert.False(t, ok, "refund needs SUCCEEDED")
	assert.Equal(t, db_models.TxnStatusPending, s.txnRepo.get(t, txn.ID).Status)
}

func TestMarkRefundedFromSucceeded(t *testing.T) {
	txn := pendingTxn(db_models.ProviderStripe, "pi_1", 1000)
	s := newBillingStack(txn)
	ctx := context.Background()
	_, err := s.txns.Resolve(ctx, txn, db_models.TxnStatusSucceeded, repositories.TransitionPatch{})
	require.NoError(t, err)

	ok, err := s.txns.MarkRefunded(ctx, txn, repositories.TransitionPatch{RefundID: "re_1"})

	require.NoError(t, err)
	assert.True(t, ok)
	stored := s.txnRepo.get(t, txn.ID)
	assert.Equal(t, db_models.TxnStatusRefunded, stored.Status)
	assert.Equal(t, "re_1", stored.RefundID)
	require.NotNil(t, stored.RefundedAt)
	assert.Equal(t, []string{SubjectPaymentSuccess, SubjectPaymentRefunded}, s.outbox.subjects())
}

func TestSuccessRedeemsVoucherAndToleratesExhaustion(t *testing.T) {
	code := "WELCOME"
	first := pendingTxn(db_models.ProviderVNPay, "REF1", 1000)
	first.VoucherCode = &code
	second := pendingTxn(db_models.ProviderVNPay, "REF2", 1000)
	second.VoucherCode = &code
	s := newBillingStack(first, second)
	s.voucherRepo = newFakeVoucherRepo(&db_models.Voucher{
		Code:          code,
		Type:          db_models.VoucherPercentage,
		Value:         decimal.NewFromInt(10),
		MaxUsePerUser: 1,
		Active:        true,
	})
	s = rewireVouchers(s)
	ctx := context.Background()

	ok, err := s.txns.Resolve(ctx, first, db_models.TxnStatusSucceeded, repositories.TransitionPatch{})
	require.NoError(t, err)
	require.True(t, ok)

	// The second payment was priced before the first redeemed; it still settles.
	ok, err = s.txns.Resolve(ctx, second, db_models.TxnStatusSucceeded, repositories.TransitionPatch{})
	require.NoError(t, err)
	assert.True(t, ok)

	v, _ := s.voucherRepo.GetByCode(ctx, code)
	used, _ := s.voucherRepo.UsedCount(ctx, v.ID, "user-1")
	assert.Equal(t, 1, used)
}

func TestRapidRepeatPaymentIsFlagged(t *testing.T) {
	settled := testNow.Add(-2 * time.Minute)
	earlier := pendingTxn(db_models.ProviderMoMo, "M1", 1000)
	earlier.Status = db_models.TxnStatusSucceeded
	earlier.SettledAt = &settled
	txn := pendingTxn(db_models.ProviderMoMo, "M2", 1000)
	s := newBillingStack(earlier, txn)

	ok, err := s.txns.Resolve(context.Background(), txn, db_models.TxnStatusSucceeded, repositories.TransitionPatch{})

	require.NoError(t, err)
	require.True(t, ok)
	stored := s.txnRepo.get(t, txn.ID)
	assert.True(t, stored.FraudFlag)
	assert.Contains(t, stored.FraudReason, "1 other successful payment")
	assert.Equal(t, db_models.TxnStatusSucceeded, stored.Status, "flagging never blocks settlement")
}

func rewireVouchers(s *billingStack) *billingStack {
	clock := utils.FixedClock{At: testNow}
	s.vouchers = NewVoucherService(s.voucherRepo, clock, nopLog)
	s.txns = NewTransactionService(s.txnRepo, fakeTxManager{}, NewEventPublisher(s.outbox, clock), s.vouchers, s.subs, clock, nopLog)
	s.expiry = NewExpiryService(s.index, s.txnRepo, s.txns, clock, nopLog)
	return s
}
