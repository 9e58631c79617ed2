package controllers

import (
	"bbpayment/internal/services"
	"bbpayment/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"net/http"
	"strconv"
)

func callerFrom(c *gin.Context) services.Caller {
	return services.Caller{
		UserID: c.GetString("user_id"),
		Admin:  c.GetString("Role") == utils.RoleAdmin,
	}
}

// pathID parses the :id segment, answering 400 itself when it is not a uuid.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		return 0
	}
	return limit
}
