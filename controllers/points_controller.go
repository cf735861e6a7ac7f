package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/incentive/services"
	"github.com/cppla/incentive/utils"
)

// PointsController exposes balances, history, leaderboards and reward requests.
type PointsController struct {
	ledger  *services.Ledger
	rewards *services.Rewards
}

// NewPointsController creates a new PointsController instance.
func NewPointsController(ledger *services.Ledger, rewards *services.Rewards) *PointsController {
	return &PointsController{ledger: ledger, rewards: rewards}
}

// Balance returns the caller's current points.
func (p *PointsController) Balance(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	points, err := p.ledger.Balance(ctx.Request.Context(), userID)
	if err != nil {
		writeServiceError(ctx, err, 50070, "failed to load balance")
		return
	}
	utils.Success(ctx, gin.H{"points": points})
}

// History returns the caller's newest ledger entries.
func (p *PointsController) History(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	limit, _ := strconv.Atoi(ctx.Query("limit"))
	entries, err := p.ledger.History(ctx.Request.Context(), userID, limit)
	if err != nil {
		writeServiceError(ctx, err, 50071, "failed to load history")
		return
	}
	utils.Success(ctx, gin.H{"items": entries})
}

// Leaderboard ranks employees by current points. The rendered response is cached briefly and
// dropped whenever points move through the API or the weekly job.
func (p *PointsController) Leaderboard(ctx *gin.Context) {
	if b, ok := utils.CachedLeaderboard("live"); ok {
		ctx.Data(http.StatusOK, "application/json; charset=utf-8", b)
		return
	}
	ranking, err := p.rewards.Live(ctx.Request.Context())
	if err != nil {
		writeServiceError(ctx, err, 50072, "failed to load leaderboard")
		return
	}
	payload := gin.H{"items": ranking}
	utils.StoreLeaderboard("live", utils.JSONResponse{Code: 0, Message: "success", Data: payload})
	utils.Success(ctx, payload)
}

// WeeklySummaries lists stored weekly leaderboards, newest first.
func (p *PointsController) WeeklySummaries(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.Query("limit"))
	summaries, err := p.rewards.Summaries(ctx.Request.Context(), limit)
	if err != nil {
		writeServiceError(ctx, err, 50073, "failed to load weekly summaries")
		return
	}
	utils.Success(ctx, gin.H{"items": summaries})
}

// RequestReward lets a weekly top-three employee claim a reward.
func (p *PointsController) RequestReward(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req struct {
		Option string `json:"option" binding:"max=64"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40070, "invalid request payload")
		return
	}
	reward, err := p.rewards.Request(ctx.Request.Context(), userID, utils.SanitizeText(req.Option))
	if err != nil {
		writeServiceError(ctx, err, 50074, "failed to request reward")
		return
	}
	utils.Created(ctx, reward)
}
