package models

import (
	"time"

	"gorm.io/datatypes"
)

// PointReason is the closed set of causes recorded on the ledger.
type PointReason string

const (
	ReasonTaskOnTime         PointReason = "TASK_ON_TIME"
	ReasonTaskLate           PointReason = "TASK_LATE"
	ReasonQuizBonus          PointReason = "QUIZ_BONUS"
	ReasonAIReviewBonus      PointReason = "AI_REVIEW_BONUS"
	ReasonRankingBonus       PointReason = "RANKING_BONUS"
	ReasonWeeklyReset        PointReason = "WEEKLY_RESET"
	ReasonWrongAnswerPenalty PointReason = "WRONG_ANSWER_PENALTY"
	ReasonMissedTaskPenalty  PointReason = "MISSED_TASK_PENALTY"
)

// Valid reports whether r belongs to the closed reason set.
func (r PointReason) Valid() bool {
	switch r {
	case ReasonTaskOnTime, ReasonTaskLate, ReasonQuizBonus, ReasonAIReviewBonus,
		ReasonRankingBonus, ReasonWeeklyReset, ReasonWrongAnswerPenalty, ReasonMissedTaskPenalty:
		return true
	}
	return false
}

// PointsAccount is the clamped balance of one user. Only the ledger writes it.
type PointsAccount struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	CurrentPoints int       `gorm:"not null;default:0" json:"current_points"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PointTransaction is an append-only audit row. Change is the requested delta,
// which may differ from what the clamp actually applied to the account.
type PointTransaction struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    uint              `gorm:"index;not null" json:"user_id"`
	Change    int               `gorm:"not null" json:"change"`
	Reason    PointReason       `gorm:"size:32;index;not null" json:"reason"`
	Note      string            `gorm:"size:255" json:"note,omitempty"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"index" json:"created_at"`
}
