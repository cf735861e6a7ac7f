package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/incentive/models"
	"github.com/cppla/incentive/services"
	"github.com/cppla/incentive/utils"
)

// AdminController exposes job triggering and user administration.
type AdminController struct {
	db        *gorm.DB
	scheduler *services.Scheduler
	tokens    *services.TokenService
}

// NewAdminController creates a new AdminController instance.
func NewAdminController(db *gorm.DB, scheduler *services.Scheduler, tokens *services.TokenService) *AdminController {
	return &AdminController{db: db, scheduler: scheduler, tokens: tokens}
}

// Jobs lists the registered job names.
func (a *AdminController) Jobs(ctx *gin.Context) {
	utils.Success(ctx, gin.H{"items": a.scheduler.Jobs()})
}

// RunJob triggers a job immediately.
func (a *AdminController) RunJob(ctx *gin.Context) {
	name := strings.TrimSpace(ctx.Param("name"))
	if err := a.scheduler.RunNow(ctx.Request.Context(), name); err != nil {
		if errors.Is(err, services.ErrJobNotFound) || errors.Is(err, services.ErrWeekStillOpen) {
			writeServiceError(ctx, err, 50090, "job failed")
			return
		}
		utils.ErrorWithData(ctx, http.StatusInternalServerError, 50090, "job failed", gin.H{"error": err.Error()})
		return
	}
	utils.Success(ctx, gin.H{"job": name, "status": "completed"})
}

// ListUsers returns paginated users with their token state.
func (a *AdminController) ListUsers(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	db := a.db.WithContext(ctx.Request.Context())

	var total int64
	if err := db.Model(&models.User{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50000, "failed to count users")
		return
	}
	var users []models.User
	if err := db.Preload("PointsAccount").Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&users).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to retrieve users")
		return
	}

	items := make([]gin.H, 0, len(users))
	for _, u := range users {
		items = append(items, sanitizeUserResponse(u))
	}
	utils.Paginated(ctx, items, page, pageSize, total)
}

// DisableToken disables a user's token by hand.
func (a *AdminController) DisableToken(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40090, "invalid user id")
		return
	}
	var req struct {
		Reason string `json:"reason" binding:"max=255"`
	}
	_ = ctx.ShouldBindJSON(&req)
	changed, err := a.tokens.Disable(ctx.Request.Context(), id, utils.SanitizeText(req.Reason))
	if err != nil {
		writeServiceError(ctx, err, 50091, "failed to disable token")
		return
	}
	utils.Success(ctx, gin.H{"id": id, "changed": changed})
}

// ReactivateToken clears a disabled token.
func (a *AdminController) ReactivateToken(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40090, "invalid user id")
		return
	}
	changed, err := a.tokens.Reactivate(ctx.Request.Context(), id)
	if err != nil {
		writeServiceError(ctx, err, 50092, "failed to reactivate token")
		return
	}
	utils.Success(ctx, gin.H{"id": id, "changed": changed})
}

// CreateQuestion adds a question to the quiz pool.
func (a *AdminController) CreateQuestion(ctx *gin.Context) {
	var req struct {
		Prompt              string   `json:"prompt" binding:"required"`
		Options             []string `json:"options" binding:"required,min=2,max=8"`
		CorrectOptionIndex  int      `json:"correct_option_index" binding:"min=0"`
		ExplanationText     string   `json:"explanation_text"`
		ExplanationVideoURL string   `json:"explanation_video_url" binding:"omitempty,url"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40091, "invalid request payload")
		return
	}
	if req.CorrectOptionIndex >= len(req.Options) {
		utils.Error(ctx, http.StatusBadRequest, 40092, "correct option out of range")
		return
	}
	options := make([]string, len(req.Options))
	for i, o := range req.Options {
		options[i] = utils.SanitizeText(o)
	}
	q := models.ExamQuestion{
		Prompt:              utils.Sanitize(req.Prompt),
		Options:             options,
		CorrectOptionIndex:  req.CorrectOptionIndex,
		ExplanationText:     utils.Sanitize(req.ExplanationText),
		ExplanationVideoURL: strings.TrimSpace(req.ExplanationVideoURL),
	}
	if err := a.db.WithContext(ctx.Request.Context()).Create(&q).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50093, "failed to create question")
		return
	}
	utils.Created(ctx, q)
}
