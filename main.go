package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/incentive/config"
	"github.com/cppla/incentive/models"
	"github.com/cppla/incentive/routes"
	"github.com/cppla/incentive/services"
	"github.com/cppla/incentive/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer utils.Logger.Sync()

	loc, err := time.LoadLocation(cfg.Incentive.Timezone)
	if err != nil {
		utils.Sugar.Fatalf("invalid timezone %q: %v", cfg.Incentive.Timezone, err)
	}
	times, err := jobTimesFromConfig(cfg.Incentive, loc)
	if err != nil {
		utils.Sugar.Fatalf("invalid job calendar: %v", err)
	}

	db := config.InitDatabase(models.All()...)
	clock := utils.NewRealClock(loc)
	engine := services.NewEngine(db, clock, rulesFromConfig(cfg.Incentive), services.EngineOptions{
		Mailer:     utils.SMTPMailer{},
		IsAdmin:    cfg.IsAdminEmail,
		Lease:      utils.NewJobLease("job:lease:"),
		JobTimeout: time.Duration(cfg.Incentive.JobTimeoutSeconds) * time.Second,
		Log:        utils.Logger,
	})
	if err := engine.Jobs.RegisterAll(engine.Scheduler, times, func() {
		utils.InvalidateLeaderboards()
	}); err != nil {
		utils.Sugar.Fatalf("register jobs: %v", err)
	}

	if cfg.Incentive.SchedulerDisabled {
		utils.Sugar.Warn("scheduler disabled; jobs run only via the admin trigger")
	} else {
		go func() {
			if err := engine.Scheduler.Start(context.Background()); err != nil {
				utils.Logger.Error("scheduler exited", zap.Error(err))
			}
		}()
	}

	r := routes.SetupRouter(db, engine)

	addr := ":" + cfg.AppPort
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		utils.Sugar.Infof("Starting HTTPS server on port %s (graceful)", cfg.AppPort)
		err = utils.GraceServerTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile, r, engine.Scheduler.Stop, utils.CloseRedis)
	} else {
		utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
		err = utils.GraceServer(addr, r, engine.Scheduler.Stop, utils.CloseRedis)
	}
	if err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}

func rulesFromConfig(ic config.IncentiveConfig) services.Rules {
	rules := services.DefaultRules()
	rules.PointLimit = ic.PointLimit
	rules.DailyQuizCount = ic.DailyQuizCount
	rules.RequiredCorrectForBonus = ic.RequiredCorrectForBonus
	rules.CorrectionWindow = time.Duration(ic.CorrectionWindowDays) * 24 * time.Hour
	rules.TokenPrefix = ic.TokenPrefix
	rules.MonthlyTokenQuota = ic.MonthlyTokenQuota
	rules.InactivityDays = ic.InactivityDays
	rules.InactivityFloorMinutes = ic.InactivityFloorMinutes
	rules.MissedTaskLookback = time.Duration(ic.MissedTaskLookbackDays) * 24 * time.Hour
	return rules
}

func jobTimesFromConfig(ic config.IncentiveConfig, loc *time.Location) (services.JobTimes, error) {
	daily := func(name, at string) (services.Schedule, error) {
		h, m, err := services.ParseClock(at)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return services.Daily(h, m, loc), nil
	}

	var times services.JobTimes
	var errs []error
	var err error
	if times.InactivityScan, err = daily("inactivity scan", ic.InactivityScanAt); err != nil {
		errs = append(errs, err)
	}
	if times.MissedTaskPenalty, err = daily("missed task", ic.MissedTaskAt); err != nil {
		errs = append(errs, err)
	}
	if times.WrongAnswerPenalty, err = daily("wrong answer", ic.WrongAnswerAt); err != nil {
		errs = append(errs, err)
	}
	day, err := services.ParseWeekday(ic.WeeklyDay)
	if err != nil {
		errs = append(errs, fmt.Errorf("weekly: %w", err))
	}
	h, m, err := services.ParseClock(ic.WeeklyAt)
	if err != nil {
		errs = append(errs, fmt.Errorf("weekly: %w", err))
	}
	times.WeeklyLeaderboard = services.Weekly(day, h, m, loc)
	return times, errors.Join(errs...)
}
