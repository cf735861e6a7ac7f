package models

import "time"

// DailyActivity accumulates heartbeat minutes per user and calendar day.
type DailyActivity struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"uniqueIndex:idx_activity_user_date;not null" json:"user_id"`
	ActivityDate time.Time `gorm:"uniqueIndex:idx_activity_user_date;index;type:date;not null" json:"activity_date"`
	Minutes      int       `gorm:"not null;default:0" json:"minutes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
