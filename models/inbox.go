package models

import "time"

// Inactivity report states.
const (
	ReportPending  = "PENDING"
	ReportResolved = "RESOLVED"
)

// InactivityReport is a remediation note submitted after a token was disabled.
type InactivityReport struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Email      string     `gorm:"size:255;index;not null" json:"email"`
	UserID     *uint      `gorm:"index" json:"user_id"`
	Reason     string     `gorm:"type:text;not null" json:"reason"`
	Status     string     `gorm:"size:16;index;not null;default:'PENDING'" json:"status"`
	AdminNote  string     `gorm:"type:text" json:"admin_note,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
