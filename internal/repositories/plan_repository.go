package repositories

import (
	"bbpayment/internal/models/db_models"
	"context"
	"errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type IPlanRepository interface {
	GetPlanByID(ctx context.Context, planID uuid.UUID) (*db_models.SubscriptionPlan, error)
	GetAllPlans(ctx context.Context, activeOnly bool) ([]db_models.SubscriptionPlan, error)
	Create(ctx context.Context, plan *db_models.SubscriptionPlan) error
}

type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) IPlanRepository {
	return &PlanRepository{db: db}
}

func (p PlanRepository) GetPlanByID(ctx context.Context, planID uuid.UUID) (*db_models.SubscriptionPlan, error) {

	var plan db_models.SubscriptionPlan
	err := conn(ctx, p.db).First(&plan, "id = ?", planID).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &plan, nil
}

func (p PlanRepository) GetAllPlans(ctx context.Context, activeOnly bool) ([]db_models.SubscriptionPlan, error) {

	var plans []db_models.SubscriptionPlan
	q := conn(ctx, p.db)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Order("monthly_price ASC").Find(&plans).Error; err != nil {
		return nil, err
	}

	return plans, nil
}

func (p PlanRepository) Create(ctx context.Context, plan *db_models.SubscriptionPlan) error {
	err := conn(ctx, p.db).Create(plan).Error
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}
