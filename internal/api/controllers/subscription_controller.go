package controllers

import (
	"bbpayment/internal/models/request_models"
	"bbpayment/internal/services"
	"bbpayment/pkg/utils"
	"github.com/gin-gonic/gin"
	"net/http"
)

type SubscriptionController struct {
	subscriptionService services.SubscriptionService
}

func NewSubscriptionController(subscriptionService services.SubscriptionService) *SubscriptionController {
	return &SubscriptionController{subscriptionService: subscriptionService}
}

// GetMine godoc
// @Summary List the caller's subscriptions
// @Tags Subscriptions
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /subscriptions/me [get]
func (s *SubscriptionController) GetMine(c *gin.Context) {
	subs, err := s.subscriptionService.GetMine(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, subs, "Subscriptions fetched successfully")
}

// Cancel godoc
// @Summary Cancel a subscription
// @Description immediate=true ends access now, otherwise the subscription stops renewing and runs to its end date
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param id path string true "Subscription ID"
// @Param request body request_models.CancelSubscriptionRequest false "Cancel options"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /subscriptions/{id}/cancel [post]
func (s *SubscriptionController) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req request_models.CancelSubscriptionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
			return
		}
	}
	res, err := s.subscriptionService.Cancel(c.Request.Context(), c.GetString("user_id"), id, req.Immediate)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, res, "Subscription cancelled")
}

func (s *SubscriptionController) SetAutoRenew(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req request_models.AutoRenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "auto_renew is required")
		return
	}
	res, err := s.subscriptionService.SetAutoRenew(c.Request.Context(), c.GetString("user_id"), id, *req.AutoRenew)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, res, "Auto-renew updated")
}
