package services

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/incentive/utils"
)

// EngineOptions carries the collaborators that differ between production and tests.
type EngineOptions struct {
	Mailer     Mailer
	IsAdmin    func(email string) bool
	Lease      Lease
	JobTimeout time.Duration
	Log        *zap.Logger
}

// Engine wires every component over one database and clock.
type Engine struct {
	Clock     utils.Clock
	Rules     Rules
	Ledger    *Ledger
	Evaluator *Evaluator
	Quiz      *QuizScorer
	Tokens    *TokenService
	OTP       *OTPService
	Activity  *Activity
	Rewards   *Rewards
	Jobs      *Jobs
	Scheduler *Scheduler
}

func NewEngine(db *gorm.DB, clock utils.Clock, rules Rules, opts EngineOptions) *Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	ledger := NewLedger(db, rules, log)
	tokens := NewTokenService(db, ledger, clock, rules, log)
	return &Engine{
		Clock:     clock,
		Rules:     rules,
		Ledger:    ledger,
		Evaluator: NewEvaluator(db, ledger, clock, rules, log),
		Quiz:      NewQuizScorer(db, ledger, clock, rules, log),
		Tokens:    tokens,
		OTP:       NewOTPService(db, opts.Mailer, clock, opts.IsAdmin, log),
		Activity:  NewActivity(db, clock, log),
		Rewards:   NewRewards(db, clock, log),
		Jobs:      NewJobs(db, ledger, tokens, rules, log),
		Scheduler: NewScheduler(clock, opts.Lease, opts.JobTimeout, log),
	}
}
