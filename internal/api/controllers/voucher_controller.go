package controllers

import (
	"bbpayment/internal/models/request_models"
	"bbpayment/internal/services"
	"bbpayment/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"net/http"
)

type VoucherController struct {
	voucherService  services.VoucherService
	campaignService services.CampaignService
}

func NewVoucherController(voucherService services.VoucherService, campaignService services.CampaignService) *VoucherController {
	return &VoucherController{
		voucherService:  voucherService,
		campaignService: campaignService,
	}
}

// CheckVoucher godoc
// @Summary Check whether the caller can use a voucher
// @Tags Vouchers
// @Produce json
// @Param code path string true "Voucher code"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /vouchers/{code}/check [get]
func (v *VoucherController) CheckVoucher(c *gin.Context) {
	res, err := v.voucherService.Check(c.Request.Context(), c.Param("code"), c.GetString("user_id"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, res, res.Reason)
}

func (v *VoucherController) ListAvailable(c *gin.Context) {
	res, err := v.voucherService.ListAvailable(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, res, "Vouchers fetched successfully")
}

// ---- admin: vouchers ----

func (v *VoucherController) CreateVoucher(c *gin.Context) {
	var req request_models.VoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}
	voucher, err := v.voucherService.Create(c.Request.Context(), req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondCreated(c, voucher, "Voucher created successfully")
}

func (v *VoucherController) UpdateVoucher(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req request_models.VoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}
	voucher, err := v.voucherService.Update(c.Request.Context(), id, req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, voucher, "Voucher updated successfully")
}

func (v *VoucherController) DeleteVoucher(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := v.voucherService.Delete(c.Request.Context(), id); err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, nil, "Voucher deleted successfully")
}

func (v *VoucherController) GetVoucher(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	voucher, err := v.voucherService.Get(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, voucher, "")
}

func (v *VoucherController) ListVouchers(c *gin.Context) {
	vouchers, err := v.voucherService.List(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, vouchers, "")
}

// ---- admin: campaigns ----

func (v *VoucherController) CreateCampaign(c *gin.Context) {
	var req request_models.CampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}
	campaign, err := v.campaignService.Create(c.Request.Context(), req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondCreated(c, campaign, "Campaign created successfully")
}

func (v *VoucherController) UpdateCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req request_models.CampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}
	campaign, err := v.campaignService.Update(c.Request.Context(), id, req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, campaign, "Campaign updated successfully")
}

func (v *VoucherController) DeleteCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := v.campaignService.Delete(c.Request.Context(), id); err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, nil, "Campaign deleted successfully")
}

func (v *VoucherController) GetCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	campaign, err := v.campaignService.Get(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, campaign, "")
}

// ListCampaigns accepts an optional plan_id filter.
func (v *VoucherController) ListCampaigns(c *gin.Context) {
	var planID *uuid.UUID
	if raw := c.Query("plan_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			utils.RespondError(c, http.StatusBadRequest, "Invalid plan_id")
			return
		}
		planID = &id
	}
	campaigns, err := v.campaignService.List(c.Request.Context(), planID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, campaigns, "")
}
