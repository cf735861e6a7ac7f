package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/incentive/models"
	"github.com/cppla/incentive/utils"
)

// Evaluator turns task submissions and reviews into ledger entries.
type Evaluator struct {
	db     *gorm.DB
	ledger *Ledger
	clock  utils.Clock
	rules  Rules
	log    *zap.Logger
}

func NewEvaluator(db *gorm.DB, ledger *Ledger, clock utils.Clock, rules Rules, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{db: db, ledger: ledger, clock: clock, rules: rules, log: log.Named("evaluator")}
}

// Evaluate awards +1 for an on-time submission and -1 for a late one. Submitting exactly at
// the due time is on time.
func (e *Evaluator) Evaluate(tx *gorm.DB, sub *models.TaskSubmission, task *models.Task) (*models.PointsAccount, error) {
	meta := map[string]interface{}{
		"task_id":      task.ID,
		"submitted_at": sub.SubmittedAt.Format(time.RFC3339),
	}
	if sub.SubmittedAt.After(task.DueAt) {
		return e.ledger.AdjustTx(tx, sub.UserID, -1, models.ReasonTaskLate, "late task submission", meta)
	}
	return e.ledger.AdjustTx(tx, sub.UserID, 1, models.ReasonTaskOnTime, "on-time task submission", meta)
}

// Submit records the user's only submission for a task and evaluates it in the same
// transaction. A nil submittedAt means now.
func (e *Evaluator) Submit(ctx context.Context, userID, taskID uint, content string, submittedAt *time.Time) (*models.TaskSubmission, error) {
	at := e.clock.Now()
	if submittedAt != nil {
		at = *submittedAt
	}

	var sub models.TaskSubmission
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.Task
		if err := tx.First(&task, taskID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTaskNotFound
			}
			return fmt.Errorf("load task %d: %w", taskID, err)
		}

		var existing int64
		if err := tx.Model(&models.TaskSubmission{}).
			Where("task_id = ? AND user_id = ?", taskID, userID).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("check submission: %w", err)
		}
		if existing > 0 {
			return ErrAlreadySubmitted
		}

		sub = models.TaskSubmission{
			TaskID:      taskID,
			UserID:      userID,
			Content:     content,
			SubmittedAt: at,
			IsLate:      at.After(task.DueAt),
			Status:      models.SubmissionPendingReview,
		}
		if err := tx.Create(&sub).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadySubmitted
			}
			return fmt.Errorf("create submission: %w", err)
		}

		_, err := e.Evaluate(tx, &sub, &task)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("task submitted",
		zap.Uint("user_id", userID),
		zap.Uint("task_id", taskID),
		zap.Bool("late", sub.IsLate),
	)
	return &sub, nil
}

// ApproveReview approves a pending submission; a score at or above ReviewBonusScore earns
// one AI_REVIEW_BONUS. The status guard keeps the bonus single.
func (e *Evaluator) ApproveReview(ctx context.Context, submissionID uint, score int, feedback string) (*models.TaskSubmission, error) {
	return e.review(ctx, submissionID, models.SubmissionApproved, &score, feedback)
}

// RejectReview closes a pending submission without a bonus.
func (e *Evaluator) RejectReview(ctx context.Context, submissionID uint, feedback string) (*models.TaskSubmission, error) {
	return e.review(ctx, submissionID, models.SubmissionRejected, nil, feedback)
}

func (e *Evaluator) review(ctx context.Context, submissionID uint, status string, score *int, feedback string) (*models.TaskSubmission, error) {
	var sub models.TaskSubmission
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sub, submissionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSubmissionNotFound
			}
			return fmt.Errorf("load submission %d: %w", submissionID, err)
		}
		if sub.Status != models.SubmissionPendingReview {
			return ErrAlreadyReviewed
		}

		res := tx.Model(&models.TaskSubmission{}).
			Where("id = ? AND status = ?", sub.ID, models.SubmissionPendingReview).
			Updates(map[string]interface{}{
				"status":       status,
				"review_score": score,
				"feedback":     feedback,
			})
		if res.Error != nil {
			return fmt.Errorf("update submission %d: %w", submissionID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyReviewed
		}
		sub.Status = status
		sub.ReviewScore = score
		sub.Feedback = feedback

		if status != models.SubmissionApproved || score == nil || *score < e.rules.ReviewBonusScore {
			return nil
		}
		_, err := e.ledger.AdjustTx(tx, sub.UserID, 1, models.ReasonAIReviewBonus, "high review score", map[string]interface{}{
			"submission_id": sub.ID,
			"task_id":       sub.TaskID,
			"score":         *score,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// TasksFor lists tasks scheduled on the calendar day of now.
func (e *Evaluator) TasksFor(ctx context.Context, now time.Time) ([]models.Task, error) {
	from := utils.StartOfDay(now)
	var tasks []models.Task
	if err := e.db.WithContext(ctx).
		Where("scheduled_for >= ? AND scheduled_for < ?", from, from.AddDate(0, 0, 1)).
		Order("due_at").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Submissions lists the user's submissions, newest first.
func (e *Evaluator) Submissions(ctx context.Context, userID uint) ([]models.TaskSubmission, error) {
	var subs []models.TaskSubmission
	if err := e.db.WithContext(ctx).
		Preload("Task").
		Where("user_id = ?", userID).
		Order("submitted_at DESC").
		Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return subs, nil
}
