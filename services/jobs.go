package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/incentive/models"
	"github.com/cppla/incentive/utils"
)

// Job names used for registration and manual triggering.
const (
	JobInactivityScan     = "inactivity-scan"
	JobMissedTaskPenalty  = "missed-task-penalty"
	JobWrongAnswerPenalty = "wrong-answer-penalty"
	JobWeeklyLeaderboard  = "weekly-leaderboard"
)

// rankingBonusSlots is how many leaderboard positions earn RANKING_BONUS.
const rankingBonusSlots = 3

// Jobs holds the time-driven rules. Every job is safe to rerun for the same now.
type Jobs struct {
	db     *gorm.DB
	ledger *Ledger
	tokens *TokenService
	rules  Rules
	log    *zap.Logger
}

func NewJobs(db *gorm.DB, ledger *Ledger, tokens *TokenService, rules Rules, log *zap.Logger) *Jobs {
	if log == nil {
		log = zap.NewNop()
	}
	return &Jobs{db: db, ledger: ledger, tokens: tokens, rules: rules, log: log.Named("jobs")}
}

// JobTimes are the fire schedules of the built-in jobs.
type JobTimes struct {
	InactivityScan     Schedule
	MissedTaskPenalty  Schedule
	WrongAnswerPenalty Schedule
	WeeklyLeaderboard  Schedule
}

// DefaultJobTimes: inactivity 00:30, wrong answers 21:00, missed tasks 22:00, leaderboard
// Sunday 23:00.
func DefaultJobTimes(loc *time.Location) JobTimes {
	return JobTimes{
		InactivityScan:     Daily(0, 30, loc),
		MissedTaskPenalty:  Daily(22, 0, loc),
		WrongAnswerPenalty: Daily(21, 0, loc),
		WeeklyLeaderboard:  Weekly(time.Sunday, 23, 0, loc),
	}
}

// RegisterAll registers the built-in jobs. afterWeekly, when set, runs after a successful
// leaderboard job. The leaderboard refuses to run before its slot in the current week, so a
// manual trigger cannot close a week early.
func (j *Jobs) RegisterAll(s *Scheduler, times JobTimes, afterWeekly func()) error {
	weekly := func(ctx context.Context, now time.Time) error {
		slot := times.WeeklyLeaderboard.Next(utils.StartOfWeek(now).Add(-time.Nanosecond))
		if now.Before(slot) {
			return fmt.Errorf("%w: closes at %s", ErrWeekStillOpen, slot.Format(time.RFC3339))
		}
		if err := j.WeeklyLeaderboard(ctx, now); err != nil {
			return err
		}
		if afterWeekly != nil {
			afterWeekly()
		}
		return nil
	}
	for _, job := range []Job{
		{Name: JobInactivityScan, Schedule: times.InactivityScan, Run: j.InactivityScan},
		{Name: JobMissedTaskPenalty, Schedule: times.MissedTaskPenalty, Run: j.MissedTaskPenalty},
		{Name: JobWrongAnswerPenalty, Schedule: times.WrongAnswerPenalty, Run: j.WrongAnswerPenalty},
		{Name: JobWeeklyLeaderboard, Schedule: times.WeeklyLeaderboard, Run: weekly},
	} {
		if err := s.Register(job); err != nil {
			return err
		}
	}
	return nil
}

// InactivityScan disables the token of every employee whose minutes stayed below the floor
// on each of the previous InactivityDays calendar days. Missing days count as zero. Tokens
// issued inside the window are skipped since the holder could not have met the floor yet.
func (j *Jobs) InactivityScan(ctx context.Context, now time.Time) error {
	db := j.db.WithContext(ctx)
	today := utils.StartOfDay(now)
	from := today.AddDate(0, 0, -j.rules.InactivityDays)

	var candidates []models.User
	if err := db.Select("id", "email", "token_issued_at").
		Where("role = ? AND exclusive_token IS NOT NULL AND token_disabled_at IS NULL", models.RoleEmployee).
		Where("token_issued_at IS NULL OR token_issued_at < ?", from).
		Order("id").
		Find(&candidates).Error; err != nil {
		return fmt.Errorf("list token holders: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	var activeIDs []uint
	if err := db.Model(&models.DailyActivity{}).
		Where("activity_date >= ? AND activity_date < ? AND minutes >= ?", from, today, j.rules.InactivityFloorMinutes).
		Distinct().
		Pluck("user_id", &activeIDs).Error; err != nil {
		return fmt.Errorf("load activity: %w", err)
	}
	active := make(map[uint]struct{}, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = struct{}{}
	}

	var errs []error
	disabled := 0
	for _, user := range candidates {
		if _, ok := active[user.ID]; ok {
			continue
		}
		changed, err := j.tokens.Disable(ctx, user.ID, j.rules.InactivityReason)
		if err != nil {
			j.log.Error("disable inactive token failed", zap.Uint("user_id", user.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if changed {
			disabled++
		}
	}
	j.log.Info("inactivity scan done", zap.Int("candidates", len(candidates)), zap.Int("disabled", disabled))
	return errors.Join(errs...)
}

// MissedTaskPenalty charges -1 to each employee with no submission for a task that fell
// due within the lookback window. A marker row written in the same transaction keeps the
// penalty single per (task, user).
func (j *Jobs) MissedTaskPenalty(ctx context.Context, now time.Time) error {
	db := j.db.WithContext(ctx)

	var tasks []models.Task
	if err := db.Where("due_at < ? AND due_at >= ?", now, now.Add(-j.rules.MissedTaskLookback)).
		Order("due_at").
		Find(&tasks).Error; err != nil {
		return fmt.Errorf("list due tasks: %w", err)
	}

	var errs []error
	penalized := 0
	for _, task := range tasks {
		var employees []uint
		if err := db.Model(&models.User{}).
			Where("role = ? AND created_at < ?", models.RoleEmployee, task.DueAt).
			Where("id NOT IN (?)", db.Model(&models.TaskSubmission{}).Select("user_id").Where("task_id = ?", task.ID)).
			Where("id NOT IN (?)", db.Model(&models.MissedTaskPenalty{}).Select("user_id").Where("task_id = ?", task.ID)).
			Order("id").
			Pluck("id", &employees).Error; err != nil {
			errs = append(errs, fmt.Errorf("list missing submitters of task %d: %w", task.ID, err))
			continue
		}

		for _, userID := range employees {
			err := db.Transaction(func(tx *gorm.DB) error {
				marker := models.MissedTaskPenalty{TaskID: task.ID, UserID: userID}
				res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&marker)
				if res.Error != nil {
					return fmt.Errorf("mark missed task: %w", res.Error)
				}
				if res.RowsAffected == 0 {
					return nil
				}
				_, err := j.ledger.AdjustTx(tx, userID, -1, models.ReasonMissedTaskPenalty, "task not submitted", map[string]interface{}{
					"task_id": task.ID,
					"due_at":  task.DueAt.Format(time.RFC3339),
				})
				if err == nil {
					penalized++
				}
				return err
			})
			if err != nil {
				j.log.Error("missed task penalty failed", zap.Uint("task_id", task.ID), zap.Uint("user_id", userID), zap.Error(err))
				errs = append(errs, err)
			}
		}
	}
	j.log.Info("missed task scan done", zap.Int("tasks", len(tasks)), zap.Int("penalized", penalized))
	return errors.Join(errs...)
}

// WrongAnswerPenalty charges -1 once for each unresolved wrong answer past its deadline.
func (j *Jobs) WrongAnswerPenalty(ctx context.Context, now time.Time) error {
	db := j.db.WithContext(ctx)

	var overdue []models.WrongAnswer
	if err := db.Where("is_resolved = ? AND penalty_applied = ? AND correction_deadline < ?", false, false, now).
		Order("id").
		Find(&overdue).Error; err != nil {
		return fmt.Errorf("list overdue wrong answers: %w", err)
	}

	var errs []error
	penalized := 0
	for _, record := range overdue {
		err := db.Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.WrongAnswer{}).
				Where("id = ? AND is_resolved = ? AND penalty_applied = ?", record.ID, false, false).
				Update("penalty_applied", true)
			if res.Error != nil {
				return fmt.Errorf("flag wrong answer %d: %w", record.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return nil
			}
			_, err := j.ledger.AdjustTx(tx, record.UserID, -1, models.ReasonWrongAnswerPenalty, "wrong answer not reviewed in time", map[string]interface{}{
				"wrong_answer_id": record.ID,
				"question_id":     record.QuestionID,
			})
			if err == nil {
				penalized++
			}
			return err
		})
		if err != nil {
			j.log.Error("wrong answer penalty failed", zap.Uint("wrong_answer_id", record.ID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	j.log.Info("wrong answer scan done", zap.Int("overdue", len(overdue)), zap.Int("penalized", penalized))
	return errors.Join(errs...)
}

// WeeklyLeaderboard snapshots the ranking of the week containing now, awards RANKING_BONUS to
// the top positions with positive points and resets every balance, all in one transaction
// holding the account locks. A week that already has a summary is left alone.
func (j *Jobs) WeeklyLeaderboard(ctx context.Context, now time.Time) error {
	weekStart := utils.StartOfWeek(now)
	skipped := false
	var ranking []models.RankEntry

	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.WeeklySummary{}).Where("week_start = ?", weekStart).Count(&existing).Error; err != nil {
			return fmt.Errorf("check summary: %w", err)
		}
		if existing > 0 {
			skipped = true
			return nil
		}

		var accounts []models.PointsAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Order("user_id").Find(&accounts).Error; err != nil {
			return fmt.Errorf("lock accounts: %w", err)
		}
		balances := make(map[uint]int, len(accounts))
		for _, a := range accounts {
			balances[a.UserID] = a.CurrentPoints
		}

		var employees []models.User
		if err := tx.Select("id", "display_name").Where("role = ?", models.RoleEmployee).Order("id").Find(&employees).Error; err != nil {
			return fmt.Errorf("list employees: %w", err)
		}
		ranking = RankUsers(employees, balances)

		summary := models.WeeklySummary{
			WeekStart:   weekStart,
			WeekEnd:     utils.EndOfWeek(now),
			Leaderboard: ranking,
			GeneratedAt: now,
		}
		if err := tx.Create(&summary).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				skipped = true
				return nil
			}
			return fmt.Errorf("store summary: %w", err)
		}

		for _, entry := range ranking {
			if entry.Rank > rankingBonusSlots {
				break
			}
			if entry.Points <= 0 {
				continue
			}
			if _, err := j.ledger.AdjustTx(tx, entry.UserID, 1, models.ReasonRankingBonus, "weekly ranking bonus", map[string]interface{}{
				"rank":       entry.Rank,
				"week_start": weekStart.Format("2006-01-02"),
			}); err != nil {
				return err
			}
		}
		return j.ledger.ResetAllTx(tx)
	})
	if err != nil {
		return err
	}
	if skipped {
		j.log.Info("weekly summary already exists", zap.Time("week_start", weekStart))
		return nil
	}
	j.log.Info("weekly leaderboard stored", zap.Time("week_start", weekStart), zap.Int("ranked", len(ranking)))
	return nil
}

// RankUsers orders users by points descending, ties by ascending user id. Positions are
// distinct: equal points still take consecutive ranks.
func RankUsers(users []models.User, balances map[uint]int) []models.RankEntry {
	ranking := make([]models.RankEntry, 0, len(users))
	for _, u := range users {
		ranking = append(ranking, models.RankEntry{
			UserID:      u.ID,
			DisplayName: u.DisplayName,
			Points:      balances[u.ID],
		})
	}
	sort.SliceStable(ranking, func(a, b int) bool {
		if ranking[a].Points != ranking[b].Points {
			return ranking[a].Points > ranking[b].Points
		}
		return ranking[a].UserID < ranking[b].UserID
	})
	for i := range ranking {
		ranking[i].Rank = i + 1
	}
	return ranking
}
