package models

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&PointsAccount{},
		&PointTransaction{},
		&Task{},
		&TaskSubmission{},
		&MissedTaskPenalty{},
		&ExamQuestion{},
		&ExamSession{},
		&ExamAnswer{},
		&WrongAnswer{},
		&DailyActivity{},
		&TokenIssuance{},
		&WeeklySummary{},
		&RewardRequest{},
		&InactivityReport{},
	}
}
