package controllers

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/incentive/models"
	"github.com/cppla/incentive/services"
	"github.com/cppla/incentive/utils"
)

// InboxController collects inactivity remediation reports and lets admins resolve them.
type InboxController struct {
	db     *gorm.DB
	tokens *services.TokenService
	clock  utils.Clock
}

// NewInboxController creates a new InboxController instance.
func NewInboxController(db *gorm.DB, tokens *services.TokenService, clock utils.Clock) *InboxController {
	return &InboxController{db: db, tokens: tokens, clock: clock}
}

// Submit files a report. It is public because a disabled token cannot log in.
func (i *InboxController) Submit(ctx *gin.Context) {
	var req struct {
		Email  string `json:"email" binding:"required,email"`
		Reason string `json:"reason" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40080, "invalid request payload")
		return
	}
	reason := utils.SanitizeText(req.Reason)
	if n := utf8.RuneCountInString(reason); n < 3 || n > 500 {
		utils.Error(ctx, http.StatusBadRequest, 40081, "reason must be 3 to 500 characters")
		return
	}

	email := services.NormalizeEmail(req.Email)
	report := models.InactivityReport{Email: email, Reason: reason, Status: models.ReportPending}
	var user models.User
	if err := i.db.WithContext(ctx.Request.Context()).Select("id").Where("email = ?", email).First(&user).Error; err == nil {
		report.UserID = &user.ID
	}
	if err := i.db.WithContext(ctx.Request.Context()).Create(&report).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50080, "failed to submit report")
		return
	}
	utils.Created(ctx, report)
}

// List returns reports filtered by status (admin).
func (i *InboxController) List(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	query := i.db.WithContext(ctx.Request.Context()).Model(&models.InactivityReport{})
	if status := strings.ToUpper(strings.TrimSpace(ctx.Query("status"))); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50081, "failed to count reports")
		return
	}
	var reports []models.InactivityReport
	if err := query.Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&reports).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50082, "failed to list reports")
		return
	}
	utils.Paginated(ctx, reports, page, pageSize, total)
}

// Resolve closes a report and, when it belongs to a known user, reactivates their token (admin).
func (i *InboxController) Resolve(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40082, "invalid report id")
		return
	}
	var req struct {
		Note       string `json:"note"`
		Reactivate *bool  `json:"reactivate"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40083, "invalid request payload")
		return
	}
	reactivate := req.Reactivate == nil || *req.Reactivate

	db := i.db.WithContext(ctx.Request.Context())
	var report models.InactivityReport
	if err := db.First(&report, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40480, "report not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50083, "failed to load report")
		return
	}
	if report.Status == models.ReportResolved {
		utils.Error(ctx, http.StatusConflict, 40980, "report already resolved")
		return
	}

	now := i.clock.Now()
	if err := db.Model(&report).Updates(map[string]interface{}{
		"status":      models.ReportResolved,
		"admin_note":  utils.SanitizeText(req.Note),
		"resolved_at": now,
	}).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50084, "failed to resolve report")
		return
	}

	reactivated := false
	if reactivate && report.UserID != nil {
		changed, err := i.tokens.Reactivate(ctx.Request.Context(), *report.UserID)
		if err != nil && !errors.Is(err, services.ErrUserNotFound) {
			writeServiceError(ctx, err, 50085, "failed to reactivate token")
			return
		}
		reactivated = changed
	}
	utils.Success(ctx, gin.H{"id": report.ID, "status": models.ReportResolved, "reactivated": reactivated})
}
