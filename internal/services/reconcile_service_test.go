package services

import (
	"bbpayment/internal/models/db_models"
	"bbpayment/internal/repositories"
	"bbpayment/pkg/utils"
	"context"
	"errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestRunDailyAppliesProviderAnswers(t *testing.T) {
	paid := pendingTxn(db_models.ProviderVNPay, "V1", 1000)
	waiting := pendingTxn(db_models.ProviderMoMo, "M1", 1000)
	unreachable := pendingTxn(db_models.ProviderStripe, "pi_1", 1000)
	stale := pendingTxn(db_models.ProviderVNPay, "V0", 1000)
	stale.CreatedAt = testNow.Add(-48 * time.Hour).UnixMilli()
	s := newBillingStack(paid, waiting, unreachable, stale)
	ctx := context.Background()
	require.NoError(t, s.index.Put(ctx, repositories.ExpirySnapshot{ProviderTransactionID: "V1"}, time.Minute))

	registry := testRegistry(t,
		&fakeGateway{provider: db_models.ProviderVNPay, queryTok: "00"},
		&fakeGateway{provider: db_models.ProviderMoMo, queryTok: "1000"},
		&fakeGateway{provider: db_models.ProviderStripe, queryErr: utils.TransientProviderError("stripe", "query", errors.New("timeout"))},
	)
	svc := NewReconcileService(registry, s.txnRepo, s.issueRepo, s.txns, s.expiry, testConfig(), utils.FixedClock{At: testNow}, nopLog)

	sum, err := svc.RunDaily(ctx)

	require.NoError(t, err)
	assert.Equal(t, ReconcileSummary{Examined: 3, Resolved: 1, Failed: 1}, sum)
	got := s.txnRepo.get(t, paid.ID)
	assert.Equal(t, db_models.TxnStatusSucceeded, got.Status)
	assert.Equal(t, "Q-1", got.ProviderPaymentID)
	assert.NotNil(t, got.SubscriptionID, "reconciled success settles like a callback")
	assert.False(t, s.index.has("V1"))
	assert.Equal(t, db_models.TxnStatusPending, s.txnRepo.get(t, waiting.ID).Status)
	assert.Equal(t, db_models.TxnStatusPending, s.txnRepo.get(t, stale.ID).Status)

	// Nothing left to move on a second pass.
	sum, err = svc.RunDaily(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Resolved)
}

func TestIssueQueue(t *testing.T) {
	s := newBillingStack()
	ctx := context.Background()
	issue := &db_models.ReconciliationIssue{
		TransactionID:  uuid.New(),
		Provider:       db_models.ProviderZaloPay,
		ReportedStatus: db_models.TxnStatusSucceeded,
		CurrentStatus:  db_models.TxnStatusAutoCancelled,
	}
	require.NoError(t, s.issueRepo.Create(ctx, issue))
	svc := NewReconcileService(testRegistry(t), s.txnRepo, s.issueRepo, s.txns, s.expiry, testConfig(), utils.FixedClock{At: testNow}, nopLog)

	open, err := svc.ListIssues(ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, svc.ResolveIssue(ctx, issue.ID, "refunded manually"))
	assert.ErrorIs(t, svc.ResolveIssue(ctx, issue.ID, "again"), utils.ErrIssueNotFound)

	open, err = svc.ListIssues(ctx, true, 10)
	require.NoError(t, err)
	assert.Empty(t, open)

	all, err := svc.ListIssues(ctx, false, 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "refunded manually", all[0].Note)
	assert.Equal(t, testNow, *all[0].ResolvedAt)
}
