package models

import (
	"time"

	"gorm.io/datatypes"
)

// ExamQuestion is one multiple-choice question of the daily quiz pool.
type ExamQuestion struct {
	ID                  uint                        `gorm:"primaryKey" json:"id"`
	Prompt              string                      `gorm:"type:text;not null" json:"prompt"`
	Options             datatypes.JSONSlice[string] `json:"options"`
	CorrectOptionIndex  int                         `gorm:"not null" json:"-"`
	ExplanationText     string                      `gorm:"type:text" json:"-"`
	ExplanationVideoURL string                      `gorm:"size:512" json:"-"`
	CreatedAt           time.Time                   `gorm:"index" json:"created_at"`
}

// ExamSession is the single quiz attempt of a user on a calendar day.
type ExamSession struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	UserID         uint         `gorm:"uniqueIndex:idx_session_user_date;not null" json:"user_id"`
	SessionDate    time.Time    `gorm:"uniqueIndex:idx_session_user_date;type:date;not null" json:"session_date"`
	TotalQuestions int          `gorm:"not null" json:"total_questions"`
	CorrectCount   int          `gorm:"not null" json:"correct_count"`
	Score          int          `gorm:"not null" json:"score"`
	CreatedAt      time.Time    `json:"created_at"`
	Answers        []ExamAnswer `gorm:"foreignKey:SessionID" json:"answers,omitempty"`
}

// ExamAnswer records one answer of a session.
type ExamAnswer struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SessionID      uint      `gorm:"index;not null" json:"session_id"`
	QuestionID     uint      `gorm:"index;not null" json:"question_id"`
	UserID         uint      `gorm:"index;not null" json:"user_id"`
	SelectedOption int       `gorm:"not null" json:"selected_option"`
	IsCorrect      bool      `gorm:"not null" json:"is_correct"`
	CreatedAt      time.Time `json:"created_at"`
}

// WrongAnswer tracks a missed question that must be reviewed before CorrectionDeadline.
// PenaltyApplied is the at-most-once guard for the correction penalty.
type WrongAnswer struct {
	ID                 uint          `gorm:"primaryKey" json:"id"`
	UserID             uint          `gorm:"index;not null" json:"user_id"`
	QuestionID         uint          `gorm:"index;not null" json:"question_id"`
	AnswerID           uint          `gorm:"not null" json:"answer_id"`
	RecordedAt         time.Time     `gorm:"not null" json:"recorded_at"`
	CorrectionDeadline time.Time     `gorm:"index;not null" json:"correction_deadline"`
	CorrectionText     string        `gorm:"type:text" json:"correction_text"`
	CorrectionVideoURL string        `gorm:"size:512" json:"correction_video_url"`
	IsResolved         bool          `gorm:"index;not null;default:false" json:"is_resolved"`
	ResolvedAt         *time.Time    `json:"resolved_at"`
	PenaltyApplied     bool          `gorm:"index;not null;default:false" json:"penalty_applied"`
	Question           *ExamQuestion `gorm:"foreignKey:QuestionID" json:"question,omitempty"`
}
