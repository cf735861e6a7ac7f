package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/incentive/models"
	"github.com/cppla/incentive/services"
	"github.com/cppla/incentive/utils"
)

// TaskController manages daily tasks, submissions and reviews.
type TaskController struct {
	db        *gorm.DB
	evaluator *services.Evaluator
	clock     utils.Clock
}

// NewTaskController creates a new TaskController instance.
func NewTaskController(db *gorm.DB, evaluator *services.Evaluator, clock utils.Clock) *TaskController {
	return &TaskController{db: db, evaluator: evaluator, clock: clock}
}

// Today lists the tasks scheduled for the current day.
func (t *TaskController) Today(ctx *gin.Context) {
	tasks, err := t.evaluator.TasksFor(ctx.Request.Context(), t.clock.Now())
	if err != nil {
		writeServiceError(ctx, err, 50020, "failed to list tasks")
		return
	}
	utils.Success(ctx, gin.H{"items": tasks})
}

// Submit records the caller's submission and scores its timeliness.
func (t *TaskController) Submit(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	taskID, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid task id")
		return
	}
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40021, "invalid request payload")
		return
	}
	content := utils.Sanitize(strings.TrimSpace(req.Content))
	if content == "" {
		utils.Error(ctx, http.StatusBadRequest, 40022, "content cannot be empty")
		return
	}

	sub, err := t.evaluator.Submit(ctx.Request.Context(), userID, taskID, content, nil)
	if err != nil {
		writeServiceError(ctx, err, 50021, "failed to submit task")
		return
	}
	utils.InvalidateLeaderboards()
	utils.Created(ctx, gin.H{"submission": sub})
}

// MySubmissions lists the caller's submissions.
func (t *TaskController) MySubmissions(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	subs, err := t.evaluator.Submissions(ctx.Request.Context(), userID)
	if err != nil {
		writeServiceError(ctx, err, 50022, "failed to list submissions")
		return
	}
	utils.Success(ctx, gin.H{"items": subs})
}

// Create schedules a task (admin).
func (t *TaskController) Create(ctx *gin.Context) {
	var req struct {
		Title        string    `json:"title" binding:"required,min=1,max=255"`
		Description  string    `json:"description"`
		ScheduledFor time.Time `json:"scheduled_for" binding:"required"`
		DueAt        time.Time `json:"due_at" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40023, "invalid request payload")
		return
	}
	if req.DueAt.Before(req.ScheduledFor) {
		utils.Error(ctx, http.StatusBadRequest, 40024, "due_at must not precede scheduled_for")
		return
	}
	title := utils.SanitizeText(req.Title)
	if title == "" {
		utils.Error(ctx, http.StatusBadRequest, 40025, "title cannot be empty")
		return
	}

	task := models.Task{
		Title:        title,
		Description:  utils.Sanitize(req.Description),
		ScheduledFor: req.ScheduledFor,
		DueAt:        req.DueAt,
	}
	if adminID, ok := getUserID(ctx); ok {
		task.CreatedByID = &adminID
	}
	if err := t.db.WithContext(ctx.Request.Context()).Create(&task).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to create task")
		return
	}
	utils.Created(ctx, gin.H{"task": task})
}

// List returns paginated tasks, newest due first (admin).
func (t *TaskController) List(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	db := t.db.WithContext(ctx.Request.Context())

	var total int64
	if err := db.Model(&models.Task{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to count tasks")
		return
	}
	var tasks []models.Task
	if err := db.Order("due_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&tasks).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to list tasks")
		return
	}
	utils.Paginated(ctx, tasks, page, pageSize, total)
}

// Delete removes a task that has no submissions yet (admin).
func (t *TaskController) Delete(ctx *gin.Context) {
	taskID, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid task id")
		return
	}
	db := t.db.WithContext(ctx.Request.Context())
	var subs int64
	db.Model(&models.TaskSubmission{}).Where("task_id = ?", taskID).Count(&subs)
	if subs > 0 {
		utils.Error(ctx, http.StatusConflict, 40920, "task already has submissions")
		return
	}
	res := db.Delete(&models.Task{}, taskID)
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50026, "failed to delete task")
		return
	}
	if res.RowsAffected == 0 {
		utils.Error(ctx, http.StatusNotFound, 40402, "task not found")
		return
	}
	utils.Success(ctx, gin.H{"deleted": taskID})
}

// PendingReviews lists submissions awaiting review (admin).
func (t *TaskController) PendingReviews(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	var subs []models.TaskSubmission
	if err := t.db.WithContext(ctx.Request.Context()).
		Preload("Task").
		Where("status = ?", models.SubmissionPendingReview).
		Order("submitted_at").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&subs).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50027, "failed to list submissions")
		return
	}
	utils.Success(ctx, gin.H{"items": subs})
}

// Review approves or rejects a pending submission (admin).
func (t *TaskController) Review(ctx *gin.Context) {
	subID, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40026, "invalid submission id")
		return
	}
	var req struct {
		Approved bool   `json:"approved"`
		Score    int    `json:"score" binding:"min=0,max=100"`
		Feedback string `json:"feedback"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40027, "invalid request payload")
		return
	}
	feedback := utils.Sanitize(req.Feedback)

	var (
		sub *models.TaskSubmission
		err error
	)
	if req.Approved {
		sub, err = t.evaluator.ApproveReview(ctx.Request.Context(), subID, req.Score, feedback)
	} else {
		sub, err = t.evaluator.RejectReview(ctx.Request.Context(), subID, feedback)
	}
	if err != nil {
		writeServiceError(ctx, err, 50028, "failed to review submission")
		return
	}
	utils.InvalidateLeaderboards()
	utils.Success(ctx, gin.H{"submission": sub})
}
