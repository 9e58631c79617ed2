package controllers

import (
	"bbpayment/internal/providers"
	"bbpayment/internal/services"
	"bbpayment/pkg/utils"
	"github.com/gin-gonic/gin"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxCallbackBody = 1 << 20

type CallbackController struct {
	callbackService services.CallbackService
}

func NewCallbackController(callbackService services.CallbackService) *CallbackController {
	return &CallbackController{callbackService: callbackService}
}

// HandleCallback godoc
// @Summary Receive a provider return redirect, IPN or webhook
// @Description Verifies and applies the call-back. IPN and webhook shapes answer with the provider's own acknowledgment body.
// @Tags Callbacks
// @Param provider path string true "vnpay | momo | zalopay | stripe | paypal"
// @Param shape path string true "return | ipn | webhook"
// @Success 200 {object} utils.APIResponse
// @Router /callbacks/{provider}/{shape} [post]
func (cb *CallbackController) HandleCallback(c *gin.Context) {
	shape, ok := providers.ParseShape(c.Param("shape"))
	if !ok {
		utils.RespondError(c, http.StatusNotFound, "Unknown callback shape")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Unreadable body")
		return
	}
	req := providers.CallbackRequest{
		Shape:  shape,
		Query:  c.Request.URL.Query(),
		Body:   body,
		Header: c.Request.Header,
	}
	if strings.HasPrefix(c.ContentType(), "application/x-www-form-urlencoded") {
		if req.Form, err = url.ParseQuery(string(body)); err != nil {
			utils.RespondError(c, http.StatusBadRequest, "Malformed form body")
			return
		}
	}

	out, err := cb.callbackService.Handle(c.Request.Context(), c.Param("provider"), req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	if shape == providers.ShapeReturn {
		if !out.Result.Verified {
			utils.RespondError(c, http.StatusBadRequest, out.Result.Message)
			return
		}
		utils.RespondSuccess(c, out.Result, out.Result.Message)
		return
	}

	if out.Ack.Body == nil {
		c.Status(out.Ack.Status)
		return
	}
	c.JSON(out.Ack.Status, out.Ack.Body)
}
