package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/incentive/services"
	"github.com/cppla/incentive/utils"
)

// ActivityController receives client heartbeats.
type ActivityController struct {
	activity *services.Activity
}

// NewActivityController creates a new controller instance.
func NewActivityController(activity *services.Activity) *ActivityController {
	return &ActivityController{activity: activity}
}

// Heartbeat adds active minutes (1..60, default 1) to today's counter.
func (a *ActivityController) Heartbeat(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req struct {
		Minutes int `json:"minutes"`
	}
	// empty body means one minute
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request payload")
			return
		}
	}
	row, err := a.activity.Record(ctx.Request.Context(), userID, req.Minutes)
	if err != nil {
		writeServiceError(ctx, err, 50030, "failed to record activity")
		return
	}
	utils.Success(ctx, gin.H{"date": row.ActivityDate.Format("2006-01-02"), "minutes": row.Minutes})
}
