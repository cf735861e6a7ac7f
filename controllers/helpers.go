package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/incentive/middleware"
	"github.com/cppla/incentive/services"
	"github.com/cppla/incentive/utils"
)

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 10
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}

func parseID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(ctx.Param(name)), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// serviceErrors maps engine errors to HTTP status and envelope code.
var serviceErrors = []struct {
	err    error
	status int
	code   int
}{
	{services.ErrUserNotFound, http.StatusNotFound, 40401},
	{services.ErrTaskNotFound, http.StatusNotFound, 40402},
	{services.ErrSubmissionNotFound, http.StatusNotFound, 40403},
	{services.ErrWrongAnswerNotFound, http.StatusNotFound, 40404},
	{services.ErrNoSummary, http.StatusNotFound, 40405},
	{services.ErrUnknownReason, http.StatusBadRequest, 40001},
	{services.ErrMalformedAnswers, http.StatusBadRequest, 40002},
	{services.ErrMalformedHeartbeat, http.StatusBadRequest, 40003},
	{services.ErrInvalidCode, http.StatusBadRequest, 40004},
	{services.ErrInvalidToken, http.StatusUnauthorized, 40106},
	{services.ErrInvalidCredentials, http.StatusUnauthorized, 40107},
	{services.ErrEmailNotVerified, http.StatusForbidden, 40302},
	{services.ErrNotEligibleForReward, http.StatusForbidden, 40303},
	{services.ErrAlreadySubmitted, http.StatusConflict, 40901},
	{services.ErrAlreadyReviewed, http.StatusConflict, 40902},
	{services.ErrQuizAlreadyTaken, http.StatusConflict, 40903},
	{services.ErrAlreadyRegistered, http.StatusConflict, 40904},
	{services.ErrRewardAlreadyRequested, http.StatusConflict, 40905},
	{services.ErrWeekStillOpen, http.StatusConflict, 40906},
	{services.ErrJobNotFound, http.StatusNotFound, 40406},
	{services.ErrQuotaExceeded, http.StatusTooManyRequests, 42902},
	{services.ErrCodeCooldown, http.StatusTooManyRequests, 42903},
	{utils.ErrPasswordTooShort, http.StatusBadRequest, 40005},
}

// writeServiceError renders err in the response envelope; unknown errors are logged and
// reported as 500 with fallbackCode.
func writeServiceError(ctx *gin.Context, err error, fallbackCode int, fallbackMsg string) {
	var disabled *services.TokenDisabledError
	if errors.As(err, &disabled) {
		utils.ErrorWithData(ctx, http.StatusForbidden, 40310, "exclusive token disabled", gin.H{
			"disabled_at": disabled.DisabledAt.Format(time.RFC3339),
			"reason":      disabled.Reason,
		})
		return
	}
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			utils.Error(ctx, m.status, m.code, m.err.Error())
			return
		}
	}
	if utils.Logger != nil {
		utils.Logger.Error(fallbackMsg, zap.String("path", ctx.FullPath()), zap.Error(err))
	}
	utils.Error(ctx, http.StatusInternalServerError, fallbackCode, fallbackMsg)
}
