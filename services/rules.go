package services

import "time"

// Rules is the accounting and quota configuration injected into every engine component.
type Rules struct {
	PointLimit              int
	DailyQuizCount          int
	RequiredCorrectForBonus int
	CorrectionWindow        time.Duration
	ReviewBonusScore        int
	TokenPrefix             string
	MonthlyTokenQuota       int
	InactivityDays          int
	InactivityFloorMinutes  int
	InactivityReason        string
	MissedTaskLookback      time.Duration
}

// DefaultRules mirrors the production defaults.
func DefaultRules() Rules {
	return Rules{
		PointLimit:              15,
		DailyQuizCount:          5,
		RequiredCorrectForBonus: 4,
		CorrectionWindow:        3 * 24 * time.Hour,
		ReviewBonusScore:        80,
		TokenPrefix:             "GV",
		MonthlyTokenQuota:       3,
		InactivityDays:          3,
		InactivityFloorMinutes:  10,
		InactivityReason:        "3-day inactivity",
		MissedTaskLookback:      7 * 24 * time.Hour,
	}
}

// Clamp restricts points to [0, PointLimit].
func (r Rules) Clamp(points int) int {
	if points > r.PointLimit {
		return r.PointLimit
	}
	if points < 0 {
		return 0
	}
	return points
}
