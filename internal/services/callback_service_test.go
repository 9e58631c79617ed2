package services

import (
	"bbpayment/internal/models/db_models"
	"bbpayment/internal/providers"
	"bbpayment/pkg/utils"
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/url"
	"strconv"
	"sync"
	"testing"
)

type callbackFixture struct {
	*billingStack
	gw  *fakeGateway
	svc CallbackService
}

func newCallbackFixture(t *testing.T, txns ...*db_models.PaymentTransaction) *callbackFixture {
	s := newBillingStack(txns...)
	gw := &fakeGateway{provider: db_models.ProviderVNPay, currencies: []string{"VND"}}
	return &callbackFixture{
		billingStack: s,
		gw:           gw,
		svc:          NewCallbackService(testRegistry(t, gw), s.txnRepo, s.issueRepo, s.txns, s.expiry, nopLog),
	}
}

func ipn(ref, code string, amount int64) providers.CallbackRequest {
	q := url.Values{}
	q.Set("ref", ref)
	q.Set("code", code)
	if amount > 0 {
		q.Set("amount", strconv.FormatInt(amount, 10))
	}
	return providers.CallbackRequest{Shape: providers.ShapeIPN, Query: q}
}

func ackOf(out *CallbackOutcome) providers.AckOutcome {
	return out.Ack.Body.(providers.AckOutcome)
}

func TestCallbackSuccessSettlesTransaction(t *testing.T) {
	txn := pendingTxn(db_models.ProviderVNPay, "REF1", 250000)
	f := newCallbackFixture(t, txn)
	require.NoError(t, f.expiry.Track(context.Background(), txn))

	out, err := f.svc.Handle(context.Background(), "vnpay", ipn("REF1", "00", 250000))

	require.NoError(t, err)
	assert.Equal(t, providers.AckAccepted, ackOf(out))
	assert.True(t, out.Result.Applied)
	assert.True(t, out.Result.Verified)
	assert.Equal(t, db_models.TxnStatusSucceeded, out.Result.Status)
	require.NotNil(t, out.Result.TransactionID)
	assert.Equal(t, txn.ID, *out.Result.TransactionID)

	stored := f.txnRepo.get(t, txn.ID)
	assert.Equal(t, db_models.TxnStatusSucceeded, stored.Status)
	assert.Equal(t, "00", stored.ResponseCode)
	assert.Equal(t, "P-REF1", stored.ProviderPaymentID)
	assert.False(t, f.index.has("REF1"), "expiry entry cleared")
}

func TestCallbackRejectsBadInput(t *testing.T) {
	txn := pendingTxn(db_models.ProviderVNPay, "REF1", 250000)
	f := newCallbackFixture(t, txn)
	ctx := context.Background()

	tampered := ipn("REF1", "00", 250000)
	tampered.Query.Set("sig", "bad")
	out, err := f.svc.Handle(ctx, "vnpay", tampered)
	require.NoError(t, err)
	assert.Equal(t, providers.AckInvalidSignature, ackOf(out))
	assert.False(t, out.Result.Verified)

	out, err = f.svc.Handle(ctx, "vnpay", ipn("", "00", 0))
	require.NoError(t, err)
	assert.Equal(t, providers.AckMalformed, ackOf(out))

	out, err = f.svc.Handle(ctx, "vnpay", ipn("NOPE", "00", 0))
	require.NoError(t, err)
	assert.Equal(t, providers.AckNotFound, ackOf(out))

	out, err = f.svc.Handle(ctx, "vnpay", ipn("REF1", "00", 1))
	require.NoError(t, err)
	assert.Equal(t, providers.AckAmountMismatch, ackOf(out))

	_, err = f.svc.Handle(ctx, "bitcoin", ipn("REF1", "00", 0))
	assert.ErrorIs(t, err, utils.ErrUnsupportedProvider)

	_, err = f.svc.Handle(ctx, "stripe", ipn("REF1", "00", 0))
	assert.ErrorIs(t, err, utils.ErrProviderUnavailable)

	assert.Equal(t, db_models.TxnStatusPending, f.txnRepo.get(t, txn.ID).Status)
	assert.Empty(t, f.outbox.subjects())
}

func TestCallbackPendingTokenLeavesTransactionOpen(t *testing.T) {
	txn := pendingTxn(db_models.ProviderVNPay, "REF1", 250000)
	f := newCallbackFixture(t, txn)

	out, err := f.svc.Handle(context.Background(), "vnpay", ipn("REF1", "01", 0))

	require.NoError(t, err)
	assert.Equal(t, providers.AckAccepted, ackOf(out))
	assert.False(t, out.Result.Applied)
	assert.Equal(t, db_models.TxnStatusPending, f.txnRepo.get(t, txn.ID).Status)
}

func TestCallbackUnknownTokenFailsTransaction(t *testing.T) {
	txn := pendingTxn(db_models.ProviderVNPay, "REF1", 250000)
	f := newCallbackFixture(t, txn)

	out, err := f.svc.Handle(context.Background(), "vnpay", ipn("REF1", "ZZ", 0))

	require.NoError(t, err)
	assert.True(t, out.Result.Applied)
	assert.Equal(t, db_models.TxnStatusFailed, f.txnRepo.get(t, txn.ID).Status)
	assert.Equal(t, []string{SubjectPaymentFailed}, f.outbox.subjects())
}

func TestDuplicateCallbackIsAcknowledgedWithoutSideEffects(t *testing.T) {
	txn := pendingTxn(db_models.ProviderVNPay, "REF1", 250000)
	f := newCallbackFixture(t, txn)
	ctx := context.Background()

	_, err := f.svc.Handle(ctx, "vnpay", ipn("REF1", "00", 250000))
	require.NoError(t, err)

	out, err := f.svc.Handle(ctx, "vnpay", ipn("REF1", "00", 250000))

	require.NoError(t, err)
	assert.Equal(t, providers.AckDuplicate, ackOf(out))
	assert.False(t, out.Result.Applied)
	assert.Equal(t, db_models.TxnStatusSucceeded, out.Result.Status)
	assert.Equal(t, []string{SubjectPaymentSuccess}, f.outbox.subjects())
	assert.Empty(t, f.issueRepo.issues)
}

func TestConcurrentSuccessCallbacksSettleOnce(t *testing.T) {
	txn := pendingTxn(db_models.ProviderVNPay, "REF1", 250000)
	f := newCallbackFixture(t, txn)

	const n = 16
	outcomes := make([]*CallbackOutcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := f.svc.Handle(context.Background(), "vnpay", ipn("REF1", "00", 250000))
			assert.NoError(t, err)
			outcomes[i] = out
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, out := range outcomes {
		require.NotNil(t, out)
		if out.Result.Applied {
			applied++
			assert.Equal(t, providers.AckAccepted, ackOf(out))
		} else {
			assert.Equal(t, providers.AckDuplicate, ackOf(out))
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, []string{SubjectPaymentSuccess}, f.outbox.subjects())
	assert.Len(t, f.subRepo.rows, 1)
}

func TestLateSuccessAfterCancellationBecomesIssue(t *testing.T) {
	txn := pendingTxn(db_models.ProviderVNPay, "REF1", 250000)
	txn.Status = db_models.TxnStatusAutoCancelled
	f := newCallbackFixture(t, txn)

	out, err := f.svc.Handle(context.Background(), "vnpay", ipn("REF1", "00", 250000))

	require.NoError(t, err)
	assert.Equal(t, providers.AckDuplicate, ackOf(out))
	assert.Equal(t, db_models.TxnStatusAutoCancelled, out.Result.Status)
	assert.Equal(t, db_models.TxnStatusAutoCancelled, f.txnRepo.get(t, txn.ID).Status)

	require.Len(t, f.issueRepo.issues, 1)
	issue := f.issueRepo.issues[0]
	assert.Equal(t, txn.ID, issue.TransactionID)
	assert.Equal(t, db_models.TxnStatusSucceeded, issue.ReportedStatus)
	assert.Equal(t, db_models.TxnStatusAutoCancelled, issue.CurrentStatus)
	assert.Empty(t, f.outbox.subjects())
}

func TestConflicting(t *testing.T) {
	cases := []struct {
		current, reported db_models.TransactionStatus
		want              bool
	}{
		{db_models.TxnStatusSucceeded, db_models.TxnStatusSucceeded, false},
		{db_models.TxnStatusFailed, db_models.TxnStatusCancelled, false},
		{db_models.TxnStatusAutoCancelled, db_models.TxnStatusSucceeded, true},
		{db_models.TxnStatusSucceeded, db_models.TxnStatusFailed, true},
		{db_models.TxnStatusRefunded, db_models.TxnStatusSucceeded, false},
		{db_models.TxnStatusFailed, db_models.TxnStatusPending, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, conflicting(c.current, c.reported), "%s vs %s", c.current, c.reported)
	}
}
