package services

import (
	"bbpayment/internal/models/db_models"
	"bbpayment/internal/models/request_models"
	"bbpayment/internal/repositories"
	"bbpayment/pkg/utils"
	"context"
	"github.com/google/uuid"
)

type CampaignService interface {
	Create(ctx context.Context, req request_models.CampaignRequest) (*db_models.DiscountCampaign, error)
	Update(ctx context.Context, id uuid.UUID, req request_models.CampaignRequest) (*db_models.DiscountCampaign, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*db_models.DiscountCampaign, error)
	List(ctx context.Context, planID *uuid.UUID) ([]db_models.DiscountCampaign, error)
}

type campaignService struct {
	repo     repositories.ICampaignRepository
	planRepo repositories.IPlanRepository
}

func NewCampaignService(repo repositories.ICampaignRepository, planRepo repositories.IPlanRepository) CampaignService {
	return &campaignService{repo: repo, planRepo: planRepo}
}

func (s *campaignService) Create(ctx context.Context, req request_models.CampaignRequest) (*db_models.DiscountCampaign, error) {
	c := &db_models.DiscountCampaign{Active: true}
	if err := s.apply(ctx, c, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, dbError("create campaign", err)
	}
	return c, nil
}

func (s *campaignService) Update(ctx context.Context, id uuid.UUID, req request_models.CampaignRequest) (*db_models.DiscountCampaign, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, c, req); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, dbError("update campaign", err)
	}
	return c, nil
}

func (s *campaignService) apply(ctx context.Context, c *db_models.DiscountCampaign, req request_models.CampaignRequest) error {
	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		return utils.Validationf("invalid plan_id")
	}
	if !req.DiscountPercent.IsPositive() || req.DiscountPercent.GreaterThan(hundred) {
		return utils.Validationf("discount_percent must be in (0, 100]")
	}
	if !req.StartAt.Before(req.EndAt) {
		return utils.Validationf("start_at must be before end_at")
	}
	plan, err := s.planRepo.GetPlanByID(ctx, planID)
	if err != nil {
		return dbError("get plan", err)
	}
	if plan == nil {
		return utils.ErrPlanNotFound
	}

	c.Name = req.Name
	c.PlanID = planID
	c.DiscountPercent = req.DiscountPercent
	c.StartAt = req.StartAt
	c.EndAt = req.EndAt
	if req.Active != nil {
		c.Active = *req.Active
	}
	return nil
}

func (s *campaignService) Delete(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return dbError("delete campaign", err)
	}
	if !ok {
		return utils.ErrCampaignNotFound
	}
	return nil
}

func (s *campaignService) Get(ctx context.Context, id uuid.UUID) (*db_models.DiscountCampaign, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, dbError("get campaign", err)
	}
	if c == nil {
		return nil, utils.ErrCampaignNotFound
	}
	return c, nil
}

func (s *campaignService) List(ctx context.Context, planID *uuid.UUID) ([]db_models.DiscountCampaign, error) {
	out, err := s.repo.List(ctx, planID)
	if err != nil {
		return nil, dbError("list campaigns", err)
	}
	return out, nil
}
