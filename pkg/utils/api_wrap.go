package utils

import (
	"errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"net/http"
	"strings"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func traceID(c *gin.Context) string {
	return c.GetString("trace_id")
}

func RespondSuccess(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, APIResponse{
		Status:  "success",
		Code:    http.StatusOK,
		Message: message,
		TraceID: traceID(c),
		Data:    data,
	})
}

func RespondCreated(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusCreated, APIResponse{
		Status:  "success",
		Code:    http.StatusCreated,
		Message: message,
		TraceID: traceID(c),
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, message string) {
	c.JSON(code, APIResponse{
		Status:  "error",
		Code:    code,
		Message: message,
		TraceID: traceID(c),
	})
}

var errorStatuses = []struct {
	err  error
	code int
}{
	{ErrValidation, http.StatusBadRequest},
	{ErrUnsupportedCurrency, http.StatusBadRequest},
	{ErrUnsupportedProvider, http.StatusBadRequest},
	{ErrInvalidSignature, http.StatusBadRequest},
	{ErrMalformedCallback, http.StatusBadRequest},
	{ErrForbidden, http.StatusForbidden},
	{ErrPlanNotFound, http.StatusNotFound},
	{ErrTransactionNotFound, http.StatusNotFound},
	{ErrSubscriptionNotFound, http.StatusNotFound},
	{ErrVoucherNotFound, http.StatusNotFound},
	{ErrCampaignNotFound, http.StatusNotFound},
	{ErrIssueNotFound, http.StatusNotFound},
	{ErrOutboxEventNotFound, http.StatusNotFound},
	{ErrRefundNotAllowed, http.StatusConflict},
	{ErrIllegalTransition, http.StatusConflict},
	{ErrConflict, http.StatusConflict},
	{ErrVoucherExhausted, http.StatusConflict},
	{ErrVoucherNotUsable, http.StatusConflict},
	{ErrProviderRejected, http.StatusBadGateway},
}

// HandleServiceError maps the service error taxonomy onto HTTP responses.
func HandleServiceError(c *gin.Context, err error) {
	var unavailable *UnavailableError
	if errors.As(err, &unavailable) {
		RespondError(c, http.StatusServiceUnavailable, unavailable.Error())
		return
	}
	if errors.Is(err, ErrProviderTransient) {
		c.Header("Retry-After", "30")
		RespondError(c, http.StatusServiceUnavailable, "Payment provider temporarily unreachable, please retry")
		return
	}

	for _, m := range errorStatuses {
		if errors.Is(err, m.err) {
			msg := m.err.Error()
			if m.err == ErrValidation {
				msg = validationDetail(err)
			}
			RespondError(c, m.code, capitalize(msg))
			return
		}
	}

	if errors.Is(err, ErrDatabaseError) {
		zap.L().Error("database error", zap.String("trace_id", traceID(c)), zap.Error(err))
	} else {
		zap.L().Error("unhandled service error", zap.String("trace_id", traceID(c)), zap.Error(err))
	}
	RespondError(c, http.StatusInternalServerError, "Internal server error")
}

// validationDetail strips the "validation failed: " prefix added by Validationf.
func validationDetail(err error) string {
	msg := err.Error()
	prefix := ErrValidation.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return msg
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
