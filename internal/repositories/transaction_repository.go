package repositories

import (
	"bbpayment/internal/models/db_models"
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"time"
)

// TransitionPatch carries the non-status columns written together with a status change.
type TransitionPatch struct {
	ResponseCode      string
	ResponseMessage   string
	PaymentMethod     string
	ProviderPaymentID string
	ProviderPayload   datatypes.JSON
	SettledAt         *time.Time
	RefundedAt        *time.Time
	RefundID          string
}

func (p TransitionPatch) values(to db_models.TransactionStatus) map[string]interface{} {
	v := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UnixMilli(),
	}
	if p.ResponseCode != "" {
		v["response_code"] = p.ResponseCode
	}
	if p.ResponseMessage != "" {
		v["response_message"] = p.ResponseMessage
	}
	if p.PaymentMethod != "" {
		v["payment_method"] = p.PaymentMethod
	}
	if p.ProviderPaymentID != "" {
		v["provider_payment_id"] = p.ProviderPaymentID
	}
	if len(p.ProviderPayload) > 0 {
		v["provider_payload"] = p.ProviderPayload
	}
	if p.SettledAt != nil {
		v["settled_at"] = *p.SettledAt
	}
	if p.RefundedAt != nil {
		v["refunded_at"] = *p.RefundedAt
	}
	if p.RefundID != "" {
		v["refund_id"] = p.RefundID
	}
	return v
}

type ITransactionRepository interface {
	Create(ctx context.Context, txn *db_models.PaymentTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*db_models.PaymentTransaction, error)
	GetByProviderRef(ctx context.Context, provider db_models.PaymentProvider, ref string) (*db_models.PaymentTransaction, error)
	FindByProviderTransactionID(ctx context.Context, ref string) (*db_models.PaymentTransaction, error)

	// CompareAndTransition moves id from `from` to `to` in a single conditional UPDATE.
	// It returns false when the row was not in `from` (someone else won, or it never was).
	CompareAndTransition(ctx context.Context, id uuid.UUID, from, to db_models.TransactionStatus, patch TransitionPatch) (bool, error)

	// ClaimRefund stamps a SUCCEEDED transaction as having a refund in flight. It returns false
	// when the row is not SUCCEEDED or holds a claim taken at or after staleBefore.
	ClaimRefund(ctx context.Context, id uuid.UUID, at, staleBefore time.Time) (bool, error)
	// ReleaseRefund drops the claim taken at `at`.
	ReleaseRefund(ctx context.Context, id uuid.UUID, at time.Time) error

	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]db_models.PaymentTransaction, int64, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]db_models.PaymentTransaction, error)
	ListPendingSince(ctx context.Context, since time.Time, limit int) ([]db_models.PaymentTransaction, error)
	CountSucceededBetween(ctx context.Context, userID string, from, to time.Time, excludeID uuid.UUID) (int64, error)
	HasPendingRenewal(ctx context.Context, subscriptionID uuid.UUID) (bool, error)
}

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) ITransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *db_models.PaymentTransaction) error {
	err := conn(ctx, r.db).Create(txn).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("duplicate provider reference %s/%s: %w", txn.Provider, txn.ProviderTransactionID, ErrDuplicate)
	}
	return err
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*db_models.PaymentTransaction, error) {
	var txn db_models.PaymentTransaction
	err := conn(ctx, r.db).First(&txn, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *TransactionRepository) GetByProviderRef(ctx context.Context, provider db_models.PaymentProvider, ref string) (*db_models.PaymentTransaction, error) {
	var txn db_models.PaymentTransaction
	err := conn(ctx, r.db).
		Where("provider = ? AND provider_transaction_id = ?", provider, ref).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *TransactionRepository) FindByProviderTransactionID(ctx context.Context, ref string) (*db_models.PaymentTransaction, error) {
	var txn db_models.PaymentTransaction
	err := conn(ctx, r.db).
		Where("provider_transaction_id = ?", ref).
		Order("created_at DESC").
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *TransactionRepository) CompareAndTransition(ctx context.Context, id uuid.UUID, from, to db_models.TransactionStatus, patch TransitionPatch) (bool, error) {
	res := compareAndTransitionQuery(conn(ctx, r.db), id, from, to, patch)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func compareAndTransitionQuery(db *gorm.DB, id uuid.UUID, from, to db_models.TransactionStatus, patch TransitionPatch) *gorm.DB {
	return db.Model(&db_models.PaymentTransaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(patch.values(to))
}

func (r *TransactionRepository) ClaimRefund(ctx context.Context, id uuid.UUID, at, staleBefore time.Time) (bool, error) {
	res := claimRefundQuery(conn(ctx, r.db), id, at, staleBefore)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func claimRefundQuery(db *gorm.DB, id uuid.UUID, at, staleBefore time.Time) *gorm.DB {
	return db.Model(&db_models.PaymentTransaction{}).
		Where("id = ? AND status = ? AND (refund_requested_at IS NULL OR refund_requested_at < ?)",
			id, db_models.TxnStatusSucceeded, staleBefore).
		Updates(map[string]interface{}{
			"refund_requested_at": at,
			"updated_at":          time.Now().UnixMilli(),
		})
}

func (r *TransactionRepository) ReleaseRefund(ctx context.Context, id uuid.UUID, at time.Time) error {
	return conn(ctx, r.db).Model(&db_models.PaymentTransaction{}).
		Where("id = ? AND refund_requested_at = ?", id, at).
		Updates(map[string]interface{}{
			"refund_requested_at": nil,
			"updated_at":          time.Now().UnixMilli(),
		}).Error
}

func (r *TransactionRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	if _, ok := fields["status"]; ok {
		return errors.New("status must change through CompareAndTransition")
	}
	return conn(ctx, r.db).Model(&db_models.PaymentTransaction{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]db_models.PaymentTransaction, int64, error) {
	var (
		txns  []db_models.PaymentTransaction
		total int64
	)
	q := conn(ctx, r.db).Model(&db_models.PaymentTransaction{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&txns).Error
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

func (r *TransactionRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]db_models.PaymentTransaction, error) {
	var txns []db_models.PaymentTransaction
	err := conn(ctx, r.db).
		Where("status = ? AND expires_at < ?", db_models.TxnStatusPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

func (r *TransactionRepository) ListPendingSince(ctx context.Context, since time.Time, limit int) ([]db_models.PaymentTransaction, error) {
	var txns []db_models.PaymentTransaction
	err := conn(ctx, r.db).
		Where("status = ? AND created_at >= ?", db_models.TxnStatusPending, since.UnixMilli()).
		Order("created_at ASC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

func (r *TransactionRepository) CountSucceededBetween(ctx context.Context, userID string, from, to time.Time, excludeID uuid.UUID) (int64, error) {
	var n int64
	err := conn(ctx, r.db).Model(&db_models.PaymentTransaction{}).
		Where("user_id = ? AND status = ? AND settled_at >= ? AND settled_at <= ? AND id <> ?",
			userID, db_models.TxnStatusSucceeded, from, to, excludeID).
		Count(&n).Error
	return n, err
}

func (r *TransactionRepository) HasPendingRenewal(ctx context.Context, subscriptionID uuid.UUID) (bool, error) {
	var n int64
	err := conn(ctx, r.db).Model(&db_models.PaymentTransaction{}).
		Where("subscription_id = ? AND purpose = ? AND status = ?",
			subscriptionID, db_models.PurposeRenewal, db_models.TxnStatusPending).
		Count(&n).Error
	return n > 0, err
}
