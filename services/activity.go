package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/incentive/models"
	"github.com/cppla/incentive/utils"
)

const maxHeartbeatMinutes = 60

// Activity accumulates heartbeat minutes per calendar day; the inactivity scan reads them.
type Activity struct {
	db    *gorm.DB
	clock utils.Clock
	log   *zap.Logger
}

func NewActivity(db *gorm.DB, clock utils.Clock, log *zap.Logger) *Activity {
	if log == nil {
		log = zap.NewNop()
	}
	return &Activity{db: db, clock: clock, log: log.Named("activity")}
}

// Record adds minutes (default 1, at most 60) to today's counter.
func (a *Activity) Record(ctx context.Context, userID uint, minutes int) (*models.DailyActivity, error) {
	if minutes == 0 {
		minutes = 1
	}
	if minutes < 0 || minutes > maxHeartbeatMinutes {
		return nil, ErrMalformedHeartbeat
	}
	day := utils.StartOfDay(a.clock.Now())
	db := a.db.WithContext(ctx)

	row := models.DailyActivity{UserID: userID, ActivityDate: day, Minutes: minutes}
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "activity_date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"minutes":    gorm.Expr("minutes + ?", minutes),
			"updated_at": time.Now(),
		}),
	}).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("record activity: %w", err)
	}

	var current models.DailyActivity
	if err := db.Where("user_id = ? AND activity_date = ?", userID, day).First(&current).Error; err != nil {
		return nil, fmt.Errorf("load activity: %w", err)
	}
	return &current, nil
}

// Minutes returns the counter of the calendar day containing t; no row reads as zero.
func (a *Activity) Minutes(ctx context.Context, userID uint, t time.Time) (int, error) {
	var minutes []int
	if err := a.db.WithContext(ctx).Model(&models.DailyActivity{}).
		Where("user_id = ? AND activity_date = ?", userID, utils.StartOfDay(t)).
		Pluck("minutes", &minutes).Error; err != nil {
		return 0, fmt.Errorf("load activity: %w", err)
	}
	if len(minutes) == 0 {
		return 0, nil
	}
	return minutes[0], nil
}
