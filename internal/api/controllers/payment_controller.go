package controllers

import (
	"bbpayment/internal/models/db_models"
	"bbpayment/internal/models/request_models"
	"bbpayment/internal/providers"
	"bbpayment/internal/services"
	"bbpayment/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"net/http"
)

type PaymentController struct {
	paymentService services.PaymentService
	registry       *providers.Registry
}

func NewPaymentController(paymentService services.PaymentService, registry *providers.Registry) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		registry:       registry,
	}
}

// CreatePayment godoc
// @Summary Start a checkout for a subscription plan
// @Description Prices the plan, opens a PENDING transaction and returns the provider payment link
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body request_models.CreatePaymentRequest true "Checkout request"
// @Success 201 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Failure 503 {object} utils.APIResponse
// @Security BearerAuth
// @Router /payments [post]
func (p *PaymentController) CreatePayment(c *gin.Context) {
	var request request_models.CreatePaymentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	userID := c.GetString("user_id")
	if userID == "" {
		utils.RespondError(c, http.StatusUnauthorized, "user_id is required")
		return
	}
	planID, _ := uuid.Parse(request.PlanID)

	res, err := p.paymentService.CreatePayment(c.Request.Context(), services.CheckoutInput{
		PlanID:      planID,
		Cycle:       db_models.BillingCycle(request.BillingCycle),
		Currency:    request.Currency,
		Provider:    request.Provider,
		UserID:      userID,
		UserEmail:   c.GetString("user_email"),
		ClientIP:    c.ClientIP(),
		VoucherCode: request.VoucherCode,
		Purpose:     db_models.PurposeCheckout,
	})
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondCreated(c, res, "Payment created successfully")
}

// GetPayment godoc
// @Summary Get a payment transaction
// @Tags Payments
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse
// @Security BearerAuth
// @Router /payments/{id} [get]
func (p *PaymentController) GetPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	txn, err := p.paymentService.GetPayment(c.Request.Context(), callerFrom(c), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, txn, "Payment fetched successfully")
}

// ListPayments godoc
// @Summary List the caller's payments
// @Tags Payments
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20) minimum(1) maximum(100)
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /payments [get]
func (p *PaymentController) ListPayments(c *gin.Context) {
	var q request_models.ListPaymentsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid pagination parameters")
		return
	}
	page, err := p.paymentService.ListPayments(c.Request.Context(), c.GetString("user_id"), q.Page, q.PageSize)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, page, "Payments fetched successfully")
}

// RefundPayment godoc
// @Summary Refund a succeeded payment
// @Tags Payments
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} utils.APIResponse
// @Failure 409 {object} utils.APIResponse
// @Security BearerAuth
// @Router /payments/{id}/refund [post]
func (p *PaymentController) RefundPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := p.paymentService.RefundPayment(c.Request.Context(), callerFrom(c), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, res, "Payment refunded successfully")
}

// QueryPayment asks the provider for its current view of the payment without changing ours.
func (p *PaymentController) QueryPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := p.paymentService.QueryPayment(c.Request.Context(), callerFrom(c), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, res, "Provider status fetched successfully")
}

func (p *PaymentController) ListProviders(c *gin.Context) {
	utils.RespondSuccess(c, p.registry.List(), "")
}
