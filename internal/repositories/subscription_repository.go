package repositories

import (
	"bbpayment/internal/models/db_models"
	"context"
	"errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"time"
)

type ISubscriptionRepository interface {
	Create(ctx context.Context, sub *db_models.UserSubscription) error
	Save(ctx context.Context, sub *db_models.UserSubscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*db_models.UserSubscription, error)
	ListByUser(ctx context.Context, userID string) ([]db_models.UserSubscription, error)
	FindActiveByUserPlan(ctx context.Context, userID string, planID uuid.UUID) (*db_models.UserSubscription, error)

	ListDueForRenewal(ctx context.Context, now time.Time, limit int) ([]db_models.UserSubscription, error)
	ListUpcomingRenewals(ctx context.Context, now, until time.Time, limit int) ([]db_models.UserSubscription, error)
	ListExpirable(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]db_models.UserSubscription, error)

	// MarkNoticeSent records that the renewal notice for nextPayment went out. False when
	// another worker already recorded it.
	MarkNoticeSent(ctx context.Context, id uuid.UUID, nextPayment time.Time) (bool, error)
	// Deactivate flips Active off only if it is still on.
	Deactivate(ctx context.Context, id uuid.UUID) (bool, error)

	CountActive(ctx context.Context) (int64, error)
	CountActiveByPlan(ctx context.Context) ([]PlanCount, error)
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error)
	CountCancelledBetween(ctx context.Context, from, to time.Time) (int64, error)
}

type PlanCount struct {
	PlanID uuid.UUID `json:"plan_id"`
	Count  int64     `json:"count"`
}

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) ISubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *db_models.UserSubscription) error {
	return conn(ctx, r.db).Create(sub).Error
}

func (r *SubscriptionRepository) Save(ctx context.Context, sub *db_models.UserSubscription) error {
	return conn(ctx, r.db).Save(sub).Error
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*db_models.UserSubscription, error) {
	var sub db_models.UserSubscription
	if err := conn(ctx, r.db).First(&sub, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]db_models.UserSubscription, error) {
	var out []db_models.UserSubscription
	err := conn(ctx, r.db).
		Where("user_id = ?", userID).
		Order("active DESC").
		Order("end_date DESC").
		Find(&out).Error
	return out, err
}

func (r *SubscriptionRepository) FindActiveByUserPlan(ctx context.Context, userID string, planID uuid.UUID) (*db_models.UserSubscription, error) {
	var sub db_models.UserSubscription
	err := conn(ctx, r.db).
		Where("user_id = ? AND plan_id = ? AND active = ?", userID, planID, true).
		Order("end_date DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepository) ListDueForRenewal(ctx context.Context, now time.Time, limit int) ([]db_models.UserSubscription, error) {
	var out []db_models.UserSubscription
	err := conn(ctx, r.db).
		Where("active = ? AND auto_renew = ? AND next_payment_date IS NOT NULL AND next_payment_date <= ?", true, true, now).
		Order("next_payment_date ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *SubscriptionRepository) ListUpcomingRenewals(ctx context.Context, now, until time.Time, limit int) ([]db_models.UserSubscription, error) {
	var out []db_models.UserSubscription
	err := conn(ctx, r.db).
		Where("active = ? AND auto_renew = ? AND next_payment_date > ? AND next_payment_date <= ?", true, true, now, until).
		Where("renewal_notice_for IS NULL OR renewal_notice_for <> next_payment_date").
		Order("next_payment_date ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListExpirable returns active subscriptions whose period is over: end_date passed for
// non-renewing ones, end_date plus grace for auto-renewing ones.
func (r *SubscriptionRepository) ListExpirable(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]db_models.UserSubscription, error) {
	var out []db_models.UserSubscription
	err := conn(ctx, r.db).
		Where("active = ?", true).
		Where("(auto_renew = ? AND end_date <= ?) OR (auto_renew = ? AND end_date <= ?)", false, now, true, now.Add(-grace)).
		Order("end_date ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *SubscriptionRepository) MarkNoticeSent(ctx context.Context, id uuid.UUID, nextPayment time.Time) (bool, error) {
	res := conn(ctx, r.db).Model(&db_models.UserSubscription{}).
		Where("id = ? AND (renewal_notice_for IS NULL OR renewal_notice_for <> ?)", id, nextPayment).
		Updates(map[string]interface{}{
			"renewal_notice_for": nextPayment,
			"updated_at":         time.Now().UnixMilli(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *SubscriptionRepository) Deactivate(ctx context.Context, id uuid.UUID) (bool, error) {
	res := conn(ctx, r.db).Model(&db_models.UserSubscription{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]interface{}{
			"active":            false,
			"next_payment_date": nil,
			"updated_at":        time.Now().UnixMilli(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *SubscriptionRepository) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := conn(ctx, r.db).Model(&db_models.UserSubscription{}).Where("active = ?", true).Count(&n).Error
	return n, err
}

func (r *SubscriptionRepository) CountActiveByPlan(ctx context.Context) ([]PlanCount, error) {
	var out []PlanCount
	err := conn(ctx, r.db).Model(&db_models.UserSubscription{}).
		Select("plan_id, COUNT(*) AS count").
		Where("active = ?", true).
		Group("plan_id").
		Scan(&out).Error
	return out, err
}

func (r *SubscriptionRepository) CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := conn(ctx, r.db).Model(&db_models.UserSubscription{}).
		Where("created_at >= ? AND created_at < ?", from.UnixMilli(), to.UnixMilli()).
		Count(&n).Error
	return n, err
}

func (r *SubscriptionRepository) CountCancelledBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := conn(ctx, r.db).Model(&db_models.UserSubscription{}).
		Where("cancelled_at >= ? AND cancelled_at < ?", from, to).
		Count(&n).Error
	return n, err
}
