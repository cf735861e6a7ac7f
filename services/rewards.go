package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/incentive/models"
	"github.com/cppla/incentive/utils"
)

var (
	ErrNoSummary              = errors.New("no weekly summary yet")
	ErrNotEligibleForReward   = errors.New("only the weekly top three can request a reward")
	ErrRewardAlreadyRequested = errors.New("reward already requested for this week")
)

// Rewards serves leaderboards and the top-three reward requests.
type Rewards struct {
	db    *gorm.DB
	clock utils.Clock
	log   *zap.Logger
}

func NewRewards(db *gorm.DB, clock utils.Clock, log *zap.Logger) *Rewards {
	if log == nil {
		log = zap.NewNop()
	}
	return &Rewards{db: db, clock: clock, log: log.Named("rewards")}
}

// Live ranks employees by their current balances.
func (r *Rewards) Live(ctx context.Context) ([]models.RankEntry, error) {
	db := r.db.WithContext(ctx)
	var accounts []models.PointsAccount
	if err := db.Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	balances := make(map[uint]int, len(accounts))
	for _, a := range accounts {
		balances[a.UserID] = a.CurrentPoints
	}
	var employees []models.User
	if err := db.Select("id", "display_name").Where("role = ?", models.RoleEmployee).Order("id").Find(&employees).Error; err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return RankUsers(employees, balances), nil
}

// Summaries returns stored weekly summaries, newest first.
func (r *Rewards) Summaries(ctx context.Context, limit int) ([]models.WeeklySummary, error) {
	if limit <= 0 || limit > 52 {
		limit = 8
	}
	var out []models.WeeklySummary
	if err := r.db.WithContext(ctx).Order("week_start DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	return out, nil
}

// Request files a reward claim against the latest summary. Each user may claim once per week.
func (r *Rewards) Request(ctx context.Context, userID uint, option string) (*models.RewardRequest, error) {
	db := r.db.WithContext(ctx)
	var summary models.WeeklySummary
	if err := db.Order("week_start DESC").First(&summary).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSummary
		}
		return nil, fmt.Errorf("load summary: %w", err)
	}

	var entry *models.RankEntry
	for i := range summary.Leaderboard {
		e := summary.Leaderboard[i]
		if e.UserID == userID && e.Rank <= rankingBonusSlots && e.Points > 0 {
			entry = &e
			break
		}
	}
	if entry == nil {
		return nil, ErrNotEligibleForReward
	}

	req := models.RewardRequest{
		UserID:          userID,
		WeekStart:       summary.WeekStart,
		PointsAtRequest: entry.Points,
		RewardOption:    option,
	}
	if err := db.Create(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrRewardAlreadyRequested
		}
		return nil, fmt.Errorf("store reward request: %w", err)
	}
	r.log.Info("reward requested", zap.Uint("user_id", userID), zap.Int("rank", entry.Rank))
	return &req, nil
}
