package services

import (
	"bbpayment/internal/config"
	"bbpayment/internal/models/db_models"
	"bbpayment/internal/providers"
	"bbpayment/internal/repositories"
	"bbpayment/pkg/utils"
	"context"
	"fmt"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var (
	testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	nopLog  = zap.NewNop()
)

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:          "test",
		PaymentTTL:      15 * time.Minute,
		ProviderTimeout: time.Second,
		Events: config.EventsConfig{
			Sink:           "log",
			PollInterval:   time.Second,
			BatchSize:      10,
			MaxAttempts:    3,
			PublishTimeout: time.Second,
		},
		Jobs: config.JobsConfig{
			RenewalLookahead: 72 * time.Hour,
			RenewalGrace:     72 * time.Hour,
			RenewalWorkers:   4,
		},
		Pricing: config.PricingConfig{
			ExchangeRates: map[string]decimal.Decimal{
				"USD": decimal.NewFromInt(1),
				"EUR": decimal.RequireFromString("0.92"),
				"VND": decimal.NewFromInt(25000),
				"JPY": decimal.NewFromInt(150),
			},
		},
	}
}

type fakeTxManager struct{}

func (fakeTxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ---- transactions ----

type fakeTxnRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]db_models.PaymentTransaction
}

func newFakeTxnRepo(txns ...*db_models.PaymentTransaction) *fakeTxnRepo {
	r := &fakeTxnRepo{rows: make(map[uuid.UUID]db_models.PaymentTransaction)}
	for _, t := range txns {
		r.rows[t.ID] = *t
	}
	return r
}

func (r *fakeTxnRepo) Create(_ context.Context, txn *db_models.PaymentTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Provider == txn.Provider && row.ProviderTransactionID == txn.ProviderTransactionID {
			return repositories.ErrDuplicate
		}
	}
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if txn.CreatedAt == 0 {
		txn.CreatedAt = testNow.UnixMilli()
	}
	r.rows[txn.ID] = *txn
	return nil
}

func (r *fakeTxnRepo) GetByID(_ context.Context, id uuid.UUID) (*db_models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (r *fakeTxnRepo) GetByProviderRef(_ context.Context, p db_models.PaymentProvider, ref string) (*db_models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Provider == p && row.ProviderTransactionID == ref {
			return &row, nil
		}
	}
	return nil, nil
}

func (r *fakeTxnRepo) FindByProviderTransactionID(_ context.Context, ref string) (*db_models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ProviderTransactionID == ref {
			return &row, nil
		}
	}
	return nil, nil
}

func (r *fakeTxnRepo) CompareAndTransition(_ context.Context, id uuid.UUID, from, to db_models.TransactionStatus, patch repositories.TransitionPatch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Status != from {
		return false, nil
	}
	applyPatch(&row, to, patch)
	r.rows[id] = row
	return true, nil
}

func (r *fakeTxnRepo) ClaimRefund(_ context.Context, id uuid.UUID, at, staleBefore time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Status != db_models.TxnStatusSucceeded {
		return false, nil
	}
	if row.RefundRequestedAt != nil && !row.RefundRequestedAt.Before(staleBefore) {
		return false, nil
	}
	row.RefundRequestedAt = &at
	r.rows[id] = row
	return true, nil
}

func (r *fakeTxnRepo) ReleaseRefund(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if ok && row.RefundRequestedAt != nil && row.RefundRequestedAt.Equal(at) {
		row.RefundRequestedAt = nil
		r.rows[id] = row
	}
	return nil
}

func (r *fakeTxnRepo) UpdateFields(_ context.Context, id uuid.UUID, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return fmt.Errorf("no row %s", id)
	}
	for k, v := range fields {
		switch k {
		case "payment_url":
			row.PaymentURL = v.(string)
		case "provider_transaction_id":
			row.ProviderTransactionID = v.(string)
		case "subscription_id":
			sid := v.(uuid.UUID)
			row.SubscriptionID = &sid
		case "fraud_flag":
			row.FraudFlag = v.(bool)
		case "fraud_reason":
			row.FraudReason = v.(string)
		default:
			return fmt.Errorf("unexpected field %s", k)
		}
	}
	r.rows[id] = row
	return nil
}

func (r *fakeTxnRepo) ListByUser(_ context.Context, userID string, page, pageSize int) ([]db_models.PaymentTransaction, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []db_models.PaymentTransaction
	for _, row := range r.rows {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	total := int64(len(out))
	start := (page - 1) * pageSize
	if start >= len(out) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (r *fakeTxnRepo) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]db_models.PaymentTransaction, error) {
	return r.filter(limit, func(t db_models.PaymentTransaction) bool {
		return t.Status == db_models.TxnStatusPending && t.ExpiresAt.Before(now)
	}), nil
}

func (r *fakeTxnRepo) ListPendingSince(_ context.Context, since time.Time, limit int) ([]db_models.PaymentTransaction, error) {
	return r.filter(limit, func(t db_models.PaymentTransaction) bool {
		return t.Status == db_models.TxnStatusPending && t.CreatedAt >= since.UnixMilli()
	}), nil
}

func (r *fakeTxnRepo) CountSucceededBetween(_ context.Context, userID string, from, to time.Time, excludeID uuid.UUID) (int64, error) {
	return int64(len(r.filter(0, func(t db_models.PaymentTransaction) bool {
		return t.UserID == userID && t.ID != excludeID && t.Status == db_models.TxnStatusSucceeded &&
			t.SettledAt != nil && !t.SettledAt.Before(from) && !t.SettledAt.After(to)
	}))), nil
}

func (r *fakeTxnRepo) HasPendingRenewal(_ context.Context, subscriptionID uuid.UUID) (bool, error) {
	return len(r.filter(1, func(t db_models.PaymentTransaction) bool {
		return t.Status == db_models.TxnStatusPending && t.Purpose == db_models.PurposeRenewal &&
			t.SubscriptionID != nil && *t.SubscriptionID == subscriptionID
	})) > 0, nil
}

func (r *fakeTxnRepo) filter(limit int, keep func(db_models.PaymentTransaction) bool) []db_models.PaymentTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []db_models.PaymentTransaction
	for _, row := range r.rows {
		if keep(row) {
			out = append(out, row)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

func (r *fakeTxnRepo) get(t *testing.T, id uuid.UUID) db_models.PaymentTransaction {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	require.True(t, ok, "transaction %s missing", id)
	return row
}

func (r *fakeTxnRepo) all() []db_models.PaymentTransaction {
	return r.filter(0, func(db_models.PaymentTransaction) bool { return true })
}

func pendingTxn(provider db_models.PaymentProvider, ref string, amountMinor int64) *db_models.PaymentTransaction {
	txn := &db_models.PaymentTransaction{
		Provider:              provider,
		ProviderTransactionID: ref,
		UserID:                "user-1",
		PlanID:                uuid.New(),
		BillingCycle:          db_models.CycleMonthly,
		Purpose:               db_models.PurposeCheckout,
		Amount:                decimal.NewFromInt(amountMinor),
		AmountMinor:           amountMinor,
		Currency:              "VND",
		Status:                db_models.TxnStatusPending,
		ExpiresAt:             testNow.Add(15 * time.Minute),
	}
	txn.ID = uuid.New()
	txn.CreatedAt = testNow.UnixMilli()
	return txn
}

// ---- outbox ----

type fakeOutboxRepo struct {
	mu       sync.Mutex
	events   []db_models.OutboxEvent
	notifies int
}

func (r *fakeOutboxRepo) Insert(_ context.Context, evt *db_models.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	r.events = append(r.events, *evt)
	return nil
}

func (r *fakeOutboxRepo) ClaimDue(_ context.Context, now, leaseUntil time.Time, limit int) ([]db_models.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []db_models.OutboxEvent
	for i, e := range r.events {
		if e.PublishedAt == nil && !e.Parked && !e.NextAttemptAt.After(now) {
			r.events[i].NextAttemptAt = leaseUntil
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeOutboxRepo) update(id uuid.UUID, fn func(e *db_models.OutboxEvent)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.events {
		if r.events[i].ID == id {
			fn(&r.events[i])
			return true
		}
	}
	return false
}

func (r *fakeOutboxRepo) MarkPublished(_ context.Context, id uuid.UUID, at time.Time) error {
	r.update(id, func(e *db_models.OutboxEvent) { e.PublishedAt = &at })
	return nil
}

func (r *fakeOutboxRepo) MarkFailed(_ context.Context, id uuid.UUID, attempts int, next time.Time, parked bool, lastErr string) error {
	r.update(id, func(e *db_models.OutboxEvent) {
		e.Attempts = attempts
		e.NextAttemptAt = next
		e.Parked = parked
		e.LastError = lastErr
	})
	return nil
}

func (r *fakeOutboxRepo) GetByID(_ context.Context, id uuid.UUID) (*db_models.OutboxEvent, error) {
	var out *db_models.OutboxEvent
	r.update(id, func(e *db_models.OutboxEvent) {
		c := *e
		out = &c
	})
	return out, nil
}

func (r *fakeOutboxRepo) List(_ context.Context, failedOnly bool, limit int) ([]db_models.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []db_models.OutboxEvent
	for _, e := range r.events {
		if failedOnly && e.Attempts == 0 && !e.Parked {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeOutboxRepo) Requeue(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	return r.update(id, func(e *db_models.OutboxEvent) {
		e.Parked = false
		e.Attempts = 0
		e.NextAttemptAt = now
	}), nil
}

func (r *fakeOutboxRepo) Notify(context.Context) error {
	r.mu.Lock()
	r.notifies++
	r.mu.Unlock()
	return nil
}

func (r *fakeOutboxRepo) subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Subject)
	}
	return out
}

// ---- subscriptions ----

type fakeSubRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]db_models.UserSubscription
}

func newFakeSubRepo(subs ...*db_models.UserSubscription) *fakeSubRepo {
	r := &fakeSubRepo{rows: make(map[uuid.UUID]db_models.UserSubscription)}
	for _, s := range subs {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		r.rows[s.ID] = *s
	}
	return r
}

func (r *fakeSubRepo) Create(_ context.Context, sub *db_models.UserSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.CreatedAt == 0 {
		sub.CreatedAt = testNow.UnixMilli()
	}
	r.rows[sub.ID] = *sub
	return nil
}

func (r *fakeSubRepo) Save(_ context.Context, sub *db_models.UserSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[sub.ID] = *sub
	return nil
}

func (r *fakeSubRepo) GetByID(_ context.Context, id uuid.UUID) (*db_models.UserSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (r *fakeSubRepo) ListByUser(_ context.Context, userID string) ([]db_models.UserSubscription, error) {
	return r.filter(func(s db_models.UserSubscription) bool { return s.UserID == userID }), nil
}

func (r *fakeSubRepo) FindActiveByUserPlan(_ context.Context, userID string, planID uuid.UUID) (*db_models.UserSubscription, error) {
	found := r.filter(func(s db_models.UserSubscription) bool {
		return s.UserID == userID && s.PlanID == planID && s.Active
	})
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (r *fakeSubRepo) ListDueForRenewal(_ context.Context, now time.Time, _ int) ([]db_models.UserSubscription, error) {
	return r.filter(func(s db_models.UserSubscription) bool {
		return s.Active && s.AutoRenew && s.NextPaymentDate != nil && !s.NextPaymentDate.After(now)
	}), nil
}

func (r *fakeSubRepo) ListUpcomingRenewals(_ context.Context, now, until time.Time, _ int) ([]db_models.UserSubscription, error) {
	return r.filter(func(s db_models.UserSubscription) bool {
		return s.Active && s.AutoRenew && s.NextPaymentDate != nil &&
			s.NextPaymentDate.After(now) && !s.NextPaymentDate.After(until) &&
			(s.RenewalNoticeFor == nil || !s.RenewalNoticeFor.Equal(*s.NextPaymentDate))
	}), nil
}

func (r *fakeSubRepo) ListExpirable(_ context.Context, now time.Time, grace time.Duration, _ int) ([]db_models.UserSubscription, error) {
	return r.filter(func(s db_models.UserSubscription) bool {
		if !s.Active {
			return false
		}
		if s.AutoRenew {
			return !s.EndDate.After(now.Add(-grace))
		}
		return !s.EndDate.After(now)
	}), nil
}

func (r *fakeSubRepo) MarkNoticeSent(_ context.Context, id uuid.UUID, nextPayment time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || (row.RenewalNoticeFor != nil && row.RenewalNoticeFor.Equal(nextPayment)) {
		return false, nil
	}
	row.RenewalNoticeFor = &nextPayment
	r.rows[id] = row
	return true, nil
}

func (r *fakeSubRepo) Deactivate(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || !row.Active {
		return false, nil
	}
	row.Active = false
	row.NextPaymentDate = nil
	r.rows[id] = row
	return true, nil
}

func (r *fakeSubRepo) CountActive(context.Context) (int64, error) {
	return int64(len(r.filter(func(s db_models.UserSubscription) bool { return s.Active }))), nil
}

func (r *fakeSubRepo) CountActiveByPlan(context.Context) ([]repositories.PlanCount, error) {
	counts := map[uuid.UUID]int64{}
	for _, s := range r.filter(func(s db_models.UserSubscription) bool { return s.Active }) {
		counts[s.PlanID]++
	}
	out := make([]repositories.PlanCount, 0, len(counts))
	for id, n := range counts {
		out = append(out, repositories.PlanCount{PlanID: id, Count: n})
	}
	return out, nil
}

func (r *fakeSubRepo) CountCreatedBetween(_ context.Context, from, to time.Time) (int64, error) {
	return int64(len(r.filter(func(s db_models.UserSubscription) bool {
		return s.CreatedAt >= from.UnixMilli() && s.CreatedAt < to.UnixMilli()
	}))), nil
}

func (r *fakeSubRepo) CountCancelledBetween(_ context.Context, from, to time.Time) (int64, error) {
	return int64(len(r.filter(func(s db_models.UserSubscription) bool {
		return s.CancelledAt != nil && !s.CancelledAt.Before(from) && s.CancelledAt.Before(to)
	}))), nil
}

func (r *fakeSubRepo) filter(keep func(db_models.UserSubscription) bool) []db_models.UserSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []db_models.UserSubscription
	for _, row := range r.rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	return out
}

// ---- vouchers ----

type fakeVoucherRepo struct {
	mu       sync.Mutex
	vouchers map[uuid.UUID]db_models.Voucher
	used     map[string]int
}

func newFakeVoucherRepo(vs ...*db_models.Voucher) *fakeVoucherRepo {
	r := &fakeVoucherRepo{vouchers: map[uuid.UUID]db_models.Voucher{}, used: map[string]int{}}
	for _, v := range vs {
		if v.ID == uuid.Nil {
			v.ID = uuid.New()
		}
		v.Code = repositories.NormalizeVoucherCode(v.Code)
		r.vouchers[v.ID] = *v
	}
	return r
}

func (r *fakeVoucherRepo) Create(_ context.Context, v *db_models.Voucher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v.Code = repositories.NormalizeVoucherCode(v.Code)
	for _, existing := range r.vouchers {
		if existing.Code == v.Code {
			return repositories.ErrDuplicate
		}
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	r.vouchers[v.ID] = *v
	return nil
}

func (r *fakeVoucherRepo) Save(_ context.Context, v *db_models.Voucher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vouchers[v.ID] = *v
	return nil
}

func (r *fakeVoucherRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.vouchers[id]
	delete(r.vouchers, id)
	return ok, nil
}

func (r *fakeVoucherRepo) GetByID(_ context.Context, id uuid.UUID) (*db_models.Voucher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vouchers[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (r *fakeVoucherRepo) GetByCode(_ context.Context, code string) (*db_models.Voucher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code = repositories.NormalizeVoucherCode(code)
	for _, v := range r.vouchers {
		if v.Code == code {
			return &v, nil
		}
	}
	return nil, nil
}

func (r *fakeVoucherRepo) List(context.Context) ([]db_models.Voucher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]db_models.Voucher, 0, len(r.vouchers))
	for _, v := range r.vouchers {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *fakeVoucherRepo) UsedCount(_ context.Context, voucherID uuid.UUID, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used[voucherID.String()+"/"+userID], nil
}

func (r *fakeVoucherRepo) IncrementUse(_ context.Context, voucherID uuid.UUID, userID string, limit int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := voucherID.String() + "/" + userID
	if limit > 0 && r.used[key] >= limit {
		return false, nil
	}
	r.used[key]++
	return true, nil
}

// ---- plans, campaigns, issues ----

type fakePlanRepo struct {
	plans map[uuid.UUID]db_models.SubscriptionPlan
}

func newFakePlanRepo(plans ...*db_models.SubscriptionPlan) *fakePlanRepo {
	r := &fakePlanRepo{plans: map[uuid.UUID]db_models.SubscriptionPlan{}}
	for _, p := range plans {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		r.plans[p.ID] = *p
	}
	return r
}

func (r *fakePlanRepo) GetPlanByID(_ context.Context, id uuid.UUID) (*db_models.SubscriptionPlan, error) {
	p, ok := r.plans[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *fakePlanRepo) GetAllPlans(_ context.Context, activeOnly bool) ([]db_models.SubscriptionPlan, error) {
	var out []db_models.SubscriptionPlan
	for _, p := range r.plans {
		if !activeOnly || p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePlanRepo) Create(_ context.Context, p *db_models.SubscriptionPlan) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.plans[p.ID] = *p
	return nil
}

type fakeCampaignRepo struct {
	campaigns []db_models.DiscountCampaign
}

func (r *fakeCampaignRepo) Create(_ context.Context, c *db_models.DiscountCampaign) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.campaigns = append(r.campaigns, *c)
	return nil
}

func (r *fakeCampaignRepo) Save(_ context.Context, c *db_models.DiscountCampaign) error {
	for i := range r.campaigns {
		if r.campaigns[i].ID == c.ID {
			r.campaigns[i] = *c
			return nil
		}
	}
	return r.Create(context.Background(), c)
}

func (r *fakeCampaignRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	for i := range r.campaigns {
		if r.campaigns[i].ID == id {
			r.campaigns = append(r.campaigns[:i], r.campaigns[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeCampaignRepo) GetByID(_ context.Context, id uuid.UUID) (*db_models.DiscountCampaign, error) {
	for i := range r.campaigns {
		if r.campaigns[i].ID == id {
			c := r.campaigns[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeCampaignRepo) List(_ context.Context, planID *uuid.UUID) ([]db_models.DiscountCampaign, error) {
	var out []db_models.DiscountCampaign
	for _, c := range r.campaigns {
		if planID == nil || c.PlanID == *planID {
			out = append(out, c)
		}
	}
	return out, nil
}

// ListActiveForPlan returns every campaign of the plan; the service applies the window itself.
func (r *fakeCampaignRepo) ListActiveForPlan(_ context.Context, planID uuid.UUID, _ time.Time) ([]db_models.DiscountCampaign, error) {
	return r.List(context.Background(), &planID)
}

type fakeIssueRepo struct {
	mu     sync.Mutex
	issues []db_models.ReconciliationIssue
}

func (r *fakeIssueRepo) Create(_ context.Context, issue *db_models.ReconciliationIssue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if issue.ID == uuid.Nil {
		issue.ID = uuid.New()
	}
	r.issues = append(r.issues, *issue)
	return nil
}

func (r *fakeIssueRepo) List(_ context.Context, unresolvedOnly bool, _ int) ([]db_models.ReconciliationIssue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []db_models.ReconciliationIssue
	for _, i := range r.issues {
		if !unresolvedOnly || !i.Resolved {
			out = append(out, i)
		}
	}
	return out, nil
}

func (r *fakeIssueRepo) Resolve(_ context.Context, id uuid.UUID, note string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.issues {
		if r.issues[i].ID == id && !r.issues[i].Resolved {
			r.issues[i].Resolved = true
			r.issues[i].ResolvedAt = &at
			r.issues[i].Note = note
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeIssueRepo) CountUnresolved(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, i := range r.issues {
		if !i.Resolved {
			n++
		}
	}
	return n, nil
}

// ---- expiry index ----

type fakeExpiryIndex struct {
	mu      sync.Mutex
	entries map[string]time.Duration
	expired chan string
}

func newFakeExpiryIndex() *fakeExpiryIndex {
	return &fakeExpiryIndex{entries: map[string]time.Duration{}, expired: make(chan string, 8)}
}

func (x *fakeExpiryIndex) Put(_ context.Context, snap repositories.ExpirySnapshot, ttl time.Duration) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries[snap.ProviderTransactionID] = ttl
	return nil
}

func (x *fakeExpiryIndex) Clear(_ context.Context, ref string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.entries, ref)
	return nil
}

func (x *fakeExpiryIndex) Expirations(context.Context) (<-chan string, error) {
	return x.expired, nil
}

func (x *fakeExpiryIndex) has(ref string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.entries[ref]
	return ok
}

// ---- gateway ----

// fakeGateway reads call-backs from the query string: ref, code, amount, and sig=bad to
// fail verification.
type fakeGateway struct {
	provider   db_models.PaymentProvider
	currencies []string

	mu        sync.Mutex
	seq       int
	orders    []providers.OrderRequest
	orderErr  error
	assignRef string
	queryTok  string
	queryErr  error
	refundErr error

	refunds atomic.Int32
	// refundGate, when set, holds every Refund call until it is closed.
	refundGate chan struct{}
}

func (g *fakeGateway) Provider() db_models.PaymentProvider { return g.provider }

func (g *fakeGateway) SupportsCurrency(code string) bool {
	for _, c := range g.currencies {
		if c == code {
			return true
		}
	}
	return false
}

func (g *fakeGateway) NewReference(time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("REF%04d", g.seq)
}

func (g *fakeGateway) CreateOrder(_ context.Context, req providers.OrderRequest) (*providers.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders = append(g.orders, req)
	if g.orderErr != nil {
		return nil, g.orderErr
	}
	return &providers.OrderResult{
		ProviderTransactionID: g.assignRef,
		PaymentURL:            "https://pay.example/" + req.Reference,
	}, nil
}

func (g *fakeGateway) ParseCallback(_ context.Context, req providers.CallbackRequest) (*providers.CallbackData, error) {
	if req.Query.Get("sig") == "bad" {
		return nil, utils.ErrInvalidSignature
	}
	ref := req.Query.Get("ref")
	if ref == "" {
		return nil, fmt.Errorf("%w: missing ref", utils.ErrMalformedCallback)
	}
	amount, _ := strconv.ParseInt(req.Query.Get("amount"), 10, 64)
	return &providers.CallbackData{
		ProviderTransactionID: ref,
		ProviderPaymentID:     "P-" + ref,
		StatusToken:           req.Query.Get("code"),
		AmountMinor:           amount,
		Payload:               []byte(`{"ref":"` + ref + `"}`),
	}, nil
}

func (g *fakeGateway) Acknowledge(outcome providers.AckOutcome) providers.Ack {
	return providers.Ack{Status: 200, Body: outcome}
}

func (g *fakeGateway) Query(context.Context, *db_models.PaymentTransaction) (*providers.QueryResult, error) {
	if g.queryErr != nil {
		return nil, g.queryErr
	}
	return &providers.QueryResult{StatusToken: g.queryTok, ProviderPaymentID: "Q-1"}, nil
}

func (g *fakeGateway) Refund(_ context.Context, txn *db_models.PaymentTransaction) (*providers.RefundResult, error) {
	g.refunds.Add(1)
	if g.refundGate != nil {
		<-g.refundGate
	}
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return &providers.RefundResult{RefundID: "RF-" + txn.ProviderTransactionID, Status: "done", AmountMinor: txn.AmountMinor}, nil
}

// testRegistry enables only the given gateways' providers.
func testRegistry(t *testing.T, gateways ...providers.Gateway) *providers.Registry {
	t.Helper()
	toggles := map[string]config.ProviderToggle{}
	for _, p := range db_models.AllProviders {
		toggles[string(p)] = config.ProviderToggle{Enabled: false, Reason: "off in tests"}
	}
	for _, g := range gateways {
		toggles[string(g.Provider())] = config.ProviderToggle{Enabled: true}
	}
	reg, err := providers.NewRegistry(config.ProvidersConfig{Toggles: toggles}, providers.Normalizers, gateways, zap.NewNop())
	require.NoError(t, err)
	return reg
}

// ---- stack ----

// billingStack wires the settlement path over in-memory repositories.
type billingStack struct {
	txnRepo     *fakeTxnRepo
	outbox      *fakeOutboxRepo
	subRepo     *fakeSubRepo
	voucherRepo *fakeVoucherRepo
	issueRepo   *fakeIssueRepo
	index       *fakeExpiryIndex

	vouchers VoucherService
	subs     SubscriptionService
	txns     TransactionService
	expiry   ExpiryService
}

func newBillingStack(txns ...*db_models.PaymentTransaction) *billingStack {
	clock := utils.FixedClock{At: testNow}
	log := zap.NewNop()
	s := &billingStack{
		txnRepo:     newFakeTxnRepo(txns...),
		outbox:      &fakeOutboxRepo{},
		subRepo:     newFakeSubRepo(),
		voucherRepo: newFakeVoucherRepo(),
		issueRepo:   &fakeIssueRepo{},
		index:       newFakeExpiryIndex(),
	}
	s.vouchers = NewVoucherService(s.voucherRepo, clock, log)
	s.subs = NewSubscriptionService(s.subRepo, s.txnRepo, s.issueRepo, clock, log)
	s.txns = NewTransactionService(s.txnRepo, fakeTxManager{}, NewEventPublisher(s.outbox, clock), s.vouchers, s.subs, clock, log)
	s.expiry = NewExpiryService(s.index, s.txnRepo, s.txns, clock, log)
	return s
}
