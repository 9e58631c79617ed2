package services

import (
	"bbpayment/internal/models/db_models"
	"bbpayment/internal/models/request_models"
	"bbpayment/internal/models/response_models"
	"bbpayment/internal/repositories"
	"bbpayment/pkg/utils"
	"context"
	"encoding/json"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PlanServiceInterface interface {
	GetPlans(ctx context.Context) ([]response_models.SubscriptionPlan, error)
	GetPlanInfoById(ctx context.Context, planId string) (response_models.SubscriptionPlan, error)
	CreatePlan(ctx context.Context, req request_models.PlanRequest) (response_models.SubscriptionPlan, error)
}

func NewPlanService(planRepo repositories.IPlanRepository, currency CurrencyService) PlanServiceInterface {
	return &PlanService{
		planRepo: planRepo,
		currency: currency,
	}
}

type PlanService struct {
	planRepo repositories.IPlanRepository
	currency CurrencyService
}

func (p *PlanService) GetPlans(ctx context.Context) ([]response_models.SubscriptionPlan, error) {
	plans, err := p.planRepo.GetAllPlans(ctx, true)
	if err != nil {
		return nil, dbError("list plans", err)
	}

	result := make([]response_models.SubscriptionPlan, 0, len(plans))
	for i := range plans {
		result = append(result, toPlanResponse(&plans[i]))
	}
	return result, nil
}

func (p *PlanService) GetPlanInfoById(ctx context.Context, planId string) (response_models.SubscriptionPlan, error) {
	id, err := uuid.Parse(planId)
	if err != nil {
		return response_models.SubscriptionPlan{}, utils.Validationf("invalid plan id")
	}

	plan, err := p.planRepo.GetPlanByID(ctx, id)
	if err != nil {
		return response_models.SubscriptionPlan{}, dbError("get plan", err)
	}

	if plan == nil {
		return response_models.SubscriptionPlan{}, utils.ErrPlanNotFound
	}

	return toPlanResponse(plan), nil
}

func (p *PlanService) CreatePlan(ctx context.Context, req request_models.PlanRequest) (response_models.SubscriptionPlan, error) {
	currency, err := p.currency.Normalize(req.Currency)
	if err != nil {
		return response_models.SubscriptionPlan{}, err
	}
	if !req.MonthlyPrice.IsPositive() {
		return response_models.SubscriptionPlan{}, utils.Validationf("monthly_price must be positive")
	}
	if req.AnnualDiscountPercent.IsNegative() || req.AnnualDiscountPercent.GreaterThan(hundred) {
		return response_models.SubscriptionPlan{}, utils.Validationf("annual_discount_percent must be in [0, 100]")
	}
	if req.AnnualDiscountAmount.IsNegative() {
		return response_models.SubscriptionPlan{}, utils.Validationf("annual_discount_amount must not be negative")
	}

	plan := &db_models.SubscriptionPlan{
		Code:                  req.Code,
		Name:                  req.Name,
		Description:           req.Description,
		MonthlyPrice:          req.MonthlyPrice,
		Currency:              currency,
		AnnualDiscountPercent: req.AnnualDiscountPercent,
		AnnualDiscountAmount:  req.AnnualDiscountAmount,
		IsActive:              true,
	}
	if len(req.Features) > 0 {
		raw, _ := json.Marshal(req.Features)
		plan.Features = datatypes.JSON(raw)
	}

	if err := p.planRepo.Create(ctx, plan); err != nil {
		return response_models.SubscriptionPlan{}, dbError("create plan", err)
	}
	return toPlanResponse(plan), nil
}

func toPlanResponse(plan *db_models.SubscriptionPlan) response_models.SubscriptionPlan {
	result := response_models.SubscriptionPlan{
		ID:                    plan.ID,
		Code:                  plan.Code,
		Name:                  plan.Name,
		Description:           plan.Description,
		MonthlyPrice:          plan.MonthlyPrice,
		Currency:              plan.Currency,
		AnnualDiscountPercent: plan.AnnualDiscountPercent,
		AnnualDiscountAmount:  plan.AnnualDiscountAmount,
		IsActive:              plan.IsActive,
	}
	if len(plan.Features) > 0 {
		_ = json.Unmarshal(plan.Features, &result.Features)
	}
	return result
}
