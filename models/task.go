package models

import "time"

// Submission review states.
const (
	SubmissionPendingReview = "PENDING_REVIEW"
	SubmissionApproved      = "APPROVED"
	SubmissionRejected      = "REJECTED"
)

// Task is a daily assignment with a due time.
type Task struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	Description  string    `gorm:"type:text" json:"description"`
	ScheduledFor time.Time `gorm:"index;not null" json:"scheduled_for"`
	DueAt        time.Time `gorm:"index;not null" json:"due_at"`
	CreatedByID  *uint     `json:"created_by_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TaskSubmission is unique per (task, user); the constraint keeps evaluation at most once.
type TaskSubmission struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TaskID      uint      `gorm:"uniqueIndex:idx_submission_task_user;not null" json:"task_id"`
	UserID      uint      `gorm:"uniqueIndex:idx_submission_task_user;index;not null" json:"user_id"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	SubmittedAt time.Time `gorm:"not null" json:"submitted_at"`
	IsLate      bool      `gorm:"not null;default:false" json:"is_late"`
	Status      string    `gorm:"size:16;index;not null;default:'PENDING_REVIEW'" json:"status"`
	ReviewScore *int      `json:"review_score,omitempty"`
	Feedback    string    `gorm:"type:text" json:"feedback,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Task        *Task     `gorm:"foreignKey:TaskID" json:"task,omitempty"`
}

// MissedTaskPenalty marks a (task, user) pair that already received the missed-task penalty.
type MissedTaskPenalty struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TaskID    uint      `gorm:"uniqueIndex:idx_missed_task_user;not null" json:"task_id"`
	UserID    uint      `gorm:"uniqueIndex:idx_missed_task_user;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
