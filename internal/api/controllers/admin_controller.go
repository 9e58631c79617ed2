package controllers

import (
	"bbpayment/internal/models/request_models"
	"bbpayment/internal/services"
	"bbpayment/pkg/utils"
	"github.com/gin-gonic/gin"
	"net/http"
	"strconv"
)

type AdminController struct {
	subscriptionService services.SubscriptionService
	reconcileService    services.ReconcileService
	renewalService      services.RenewalService
	expiryService       services.ExpiryService
	relay               services.OutboxRelay
}

func NewAdminController(
	subscriptionService services.SubscriptionService,
	reconcileService services.ReconcileService,
	renewalService services.RenewalService,
	expiryService services.ExpiryService,
	relay services.OutboxRelay,
) *AdminController {
	return &AdminController{
		subscriptionService: subscriptionService,
		reconcileService:    reconcileService,
		renewalService:      renewalService,
		expiryService:       expiryService,
		relay:               relay,
	}
}

// Analytics godoc
// @Summary Subscription analytics
// @Description Active subscriptions overall and per plan, new and cancelled subscriptions over the last 30 days, unresolved reconciliation issues
// @Tags Admin
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Failure 500 {object} utils.APIResponse
// @Security BearerAuth
// @Router /admin/subscriptions/analytics [get]
func (a *AdminController) Analytics(c *gin.Context) {
	report, err := a.subscriptionService.Analytics(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, report, "Analytics fetched successfully")
}

// ListOutbox godoc
// @Summary List outbox events
// @Tags Admin
// @Produce json
// @Param failed query bool false "Only events that failed at least once or are parked"
// @Param limit query int false "Max rows" default(100)
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /admin/outbox [get]
func (a *AdminController) ListOutbox(c *gin.Context) {
	failed, err := strconv.ParseBool(c.DefaultQuery("failed", "false"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "failed must be a boolean")
		return
	}
	events, err := a.relay.List(c.Request.Context(), failed, queryLimit(c))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, events, "")
}

func (a *AdminController) RetryOutbox(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := a.relay.Retry(c.Request.Context(), id); err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, nil, "Event re-queued")
}

func (a *AdminController) ListIssues(c *gin.Context) {
	all, _ := strconv.ParseBool(c.DefaultQuery("all", "false"))
	issues, err := a.reconcileService.ListIssues(c.Request.Context(), !all, queryLimit(c))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, issues, "")
}

func (a *AdminController) ResolveIssue(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req request_models.ResolveIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "note is required")
		return
	}
	if err := a.reconcileService.ResolveIssue(c.Request.Context(), id, req.Note); err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, nil, "Issue resolved")
}

// RunJob triggers a scheduled job by hand: reconcile, renewal or expiry-sweep.
func (a *AdminController) RunJob(c *gin.Context) {
	ctx := c.Request.Context()
	switch c.Param("job") {
	case "reconcile":
		sum, err := a.reconcileService.RunDaily(ctx)
		if err != nil {
			utils.HandleServiceError(c, err)
			return
		}
		utils.RespondSuccess(c, sum, "Reconciliation finished")
	case "renewal":
		sum, err := a.renewalService.Tick(ctx)
		if err != nil {
			utils.HandleServiceError(c, err)
			return
		}
		utils.RespondSuccess(c, sum, "Renewal tick finished")
	case "expiry-sweep":
		n, err := a.expiryService.Sweep(ctx)
		if err != nil {
			utils.HandleServiceError(c, err)
			return
		}
		utils.RespondSuccess(c, gin.H{"cancelled": n}, "Expiry sweep finished")
	default:
		utils.RespondError(c, http.StatusNotFound, "Unknown job")
	}
}
