package repositories

import (
	"bbpayment/internal/models/db_models"
	"context"
	"errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"time"
)

type ICampaignRepository interface {
	Create(ctx context.Context, c *db_models.DiscountCampaign) error
	Save(ctx context.Context, c *db_models.DiscountCampaign) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*db_models.DiscountCampaign, error)
	List(ctx context.Context, planID *uuid.UUID) ([]db_models.DiscountCampaign, error)
	ListActiveForPlan(ctx context.Context, planID uuid.UUID, now time.Time) ([]db_models.DiscountCampaign, error)
}

type CampaignRepository struct {
	db *gorm.DB
}

func NewCampaignRepository(db *gorm.DB) ICampaignRepository {
	return &CampaignRepository{db: db}
}

func (r *CampaignRepository) Create(ctx context.Context, c *db_models.DiscountCampaign) error {
	return conn(ctx, r.db).Create(c).Error
}

func (r *CampaignRepository) Save(ctx context.Context, c *db_models.DiscountCampaign) error {
	return conn(ctx, r.db).Save(c).Error
}

func (r *CampaignRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := conn(ctx, r.db).Delete(&db_models.DiscountCampaign{}, "id = ?", id)
	return res.RowsAffected > 0, res.Error
}

func (r *CampaignRepository) GetByID(ctx context.Context, id uuid.UUID) (*db_models.DiscountCampaign, error) {
	var c db_models.DiscountCampaign
	if err := conn(ctx, r.db).First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) List(ctx context.Context, planID *uuid.UUID) ([]db_models.DiscountCampaign, error) {
	var out []db_models.DiscountCampaign
	q := conn(ctx, r.db)
	if planID != nil {
		q = q.Where("plan_id = ?", *planID)
	}
	err := q.Order("created_at DESC").Find(&out).Error
	return out, err
}

// ListActiveForPlan returns live campaigns newest first; the pricing engine relies on that order for ties.
func (r *CampaignRepository) ListActiveForPlan(ctx context.Context, planID uuid.UUID, now time.Time) ([]db_models.DiscountCampaign, error) {
	var out []db_models.DiscountCampaign
	err := conn(ctx, r.db).
		Where("plan_id = ? AND active = ? AND start_at <= ? AND end_at >= ?", planID, true, now, now).
		Order("created_at DESC").
		Order("id DESC").
		Find(&out).Error
	return out, err
}
