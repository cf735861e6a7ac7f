package models

import (
	"time"

	"gorm.io/datatypes"
)

// RankEntry is one row of a weekly leaderboard snapshot.
type RankEntry struct {
	Rank        int    `json:"rank"`
	UserID      uint   `json:"user_id"`
	DisplayName string `json:"display_name"`
	Points      int    `json:"points"`
}

// WeeklySummary is the immutable leaderboard of a Monday-anchored week.
type WeeklySummary struct {
	ID          uint                           `gorm:"primaryKey" json:"id"`
	WeekStart   time.Time                      `gorm:"uniqueIndex;not null" json:"week_start"`
	WeekEnd     time.Time                      `gorm:"not null" json:"week_end"`
	Leaderboard datatypes.JSONSlice[RankEntry] `json:"leaderboard"`
	GeneratedAt time.Time                      `gorm:"index;not null" json:"generated_at"`
}

// RewardRequest lets a top-3 employee claim a reward once per week.
type RewardRequest struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"uniqueIndex:idx_reward_user_week;not null" json:"user_id"`
	WeekStart       time.Time `gorm:"uniqueIndex:idx_reward_user_week;not null" json:"week_start"`
	PointsAtRequest int       `gorm:"not null" json:"points_at_request"`
	RewardOption    string    `gorm:"size:64" json:"reward_option"`
	CreatedAt       time.Time `json:"created_at"`
}
