package controllers

import (
	"bbpayment/internal/models/db_models"
	"bbpayment/internal/models/request_models"
	"bbpayment/internal/services"
	"bbpayment/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"net/http"
)

type PricingController struct {
	pricingService services.PricingService
	planService    services.PlanServiceInterface
}

func NewPricingController(pricingService services.PricingService, planService services.PlanServiceInterface) *PricingController {
	return &PricingController{
		pricingService: pricingService,
		planService:    planService,
	}
}

// Quote godoc
// @Summary Price a plan without creating a transaction
// @Description Applies the billing cycle, the best running campaign, an optional voucher and tax, in that order
// @Tags Pricing
// @Accept json
// @Produce json
// @Param request body request_models.PricingQuoteRequest true "Quote request"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Security BearerAuth
// @Router /pricing/quote [post]
func (p *PricingController) Quote(c *gin.Context) {
	var req request_models.PricingQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}
	planID, _ := uuid.Parse(req.PlanID)

	breakdown, err := p.pricingService.Calculate(c.Request.Context(), services.PricingInput{
		PlanID:      planID,
		Cycle:       db_models.BillingCycle(req.BillingCycle),
		Currency:    req.Currency,
		UserID:      c.GetString("user_id"),
		IPAddress:   c.ClientIP(),
		VoucherCode: req.VoucherCode,
	})
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, breakdown, "Quote calculated successfully")
}

// ListPlans godoc
// @Summary List active subscription plans
// @Tags Plans
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /plans [get]
func (p *PricingController) ListPlans(c *gin.Context) {
	plans, err := p.planService.GetPlans(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, plans, "Plans fetched successfully")
}

func (p *PricingController) GetPlan(c *gin.Context) {
	plan, err := p.planService.GetPlanInfoById(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, plan, "Plan fetched successfully")
}

// CreatePlan godoc
// @Summary Create a subscription plan
// @Tags Admin
// @Accept json
// @Produce json
// @Param request body request_models.PlanRequest true "Plan"
// @Success 201 {object} utils.APIResponse
// @Security BearerAuth
// @Router /admin/plans [post]
func (p *PricingController) CreatePlan(c *gin.Context) {
	var req request_models.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}
	plan, err := p.planService.CreatePlan(c.Request.Context(), req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondCreated(c, plan, "Plan created successfully")
}
