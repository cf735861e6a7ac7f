package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/incentive/models"
	"github.com/cppla/incentive/utils"
)

// AnswerInput is one selected option of a quiz submission.
type AnswerInput struct {
	QuestionID     uint `json:"question_id" binding:"required"`
	SelectedOption int  `json:"selected_option"`
}

// QuizResult summarises a graded session.
type QuizResult struct {
	SessionID      uint   `json:"session_id"`
	TotalQuestions int    `json:"total_questions"`
	CorrectCount   int    `json:"correct_count"`
	Score          int    `json:"score"`
	BonusAwarded   bool   `json:"bonus_awarded"`
	WrongAnswerIDs []uint `json:"wrong_answer_ids"`
}

// QuizScorer grades the once-per-day quiz and keeps the wrong-answer book.
type QuizScorer struct {
	db     *gorm.DB
	ledger *Ledger
	clock  utils.Clock
	rules  Rules
	log    *zap.Logger
}

func NewQuizScorer(db *gorm.DB, ledger *Ledger, clock utils.Clock, rules Rules, log *zap.Logger) *QuizScorer {
	if log == nil {
		log = zap.NewNop()
	}
	return &QuizScorer{db: db, ledger: ledger, clock: clock, rules: rules, log: log.Named("quiz")}
}

// DailyQuestions returns the question set of the day and the user's session if already taken.
func (q *QuizScorer) DailyQuestions(ctx context.Context, userID uint) ([]models.ExamQuestion, *models.ExamSession, error) {
	db := q.db.WithContext(ctx)
	questions, err := q.questionSet(db)
	if err != nil {
		return nil, nil, err
	}

	var session models.ExamSession
	err = db.Preload("Answers").
		Where("user_id = ? AND session_date = ?", userID, utils.StartOfDay(q.clock.Now())).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return questions, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load session: %w", err)
	}
	return questions, &session, nil
}

func (q *QuizScorer) questionSet(db *gorm.DB) ([]models.ExamQuestion, error) {
	var questions []models.ExamQuestion
	if err := db.Order("created_at").Order("id").Limit(q.rules.DailyQuizCount).Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return questions, nil
}

// Submit grades a full answer batch. Session, answers, wrong-answer records and the bonus
// are committed together; a second attempt on the same day is rejected.
func (q *QuizScorer) Submit(ctx context.Context, userID uint, answers []AnswerInput) (*QuizResult, error) {
	if len(answers) == 0 || len(answers) != q.rules.DailyQuizCount {
		return nil, ErrMalformedAnswers
	}
	ids := make([]uint, 0, len(answers))
	seen := make(map[uint]struct{}, len(answers))
	for _, a := range answers {
		if _, dup := seen[a.QuestionID]; dup {
			return nil, ErrMalformedAnswers
		}
		seen[a.QuestionID] = struct{}{}
		ids = append(ids, a.QuestionID)
	}

	now := q.clock.Now()
	day := utils.StartOfDay(now)
	result := &QuizResult{TotalQuestions: len(answers)}

	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var questions []models.ExamQuestion
		if err := tx.Where("id IN ?", ids).Find(&questions).Error; err != nil {
			return fmt.Errorf("load questions: %w", err)
		}
		if len(questions) != len(ids) {
			return ErrMalformedAnswers
		}
		byID := make(map[uint]models.ExamQuestion, len(questions))
		for _, question := range questions {
			byID[question.ID] = question
		}

		var taken int64
		if err := tx.Model(&models.ExamSession{}).
			Where("user_id = ? AND session_date = ?", userID, day).
			Count(&taken).Error; err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if taken > 0 {
			return ErrQuizAlreadyTaken
		}

		session := models.ExamSession{
			UserID:         userID,
			SessionDate:    day,
			TotalQuestions: len(answers),
		}
		if err := tx.Create(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrQuizAlreadyTaken
			}
			return fmt.Errorf("create session: %w", err)
		}
		result.SessionID = session.ID

		for _, a := range answers {
			question := byID[a.QuestionID]
			answer := models.ExamAnswer{
				SessionID:      session.ID,
				QuestionID:     question.ID,
				UserID:         userID,
				SelectedOption: a.SelectedOption,
				IsCorrect:      a.SelectedOption == question.CorrectOptionIndex,
			}
			if err := tx.Create(&answer).Error; err != nil {
				return fmt.Errorf("create answer: %w", err)
			}
			if answer.IsCorrect {
				result.CorrectCount++
				continue
			}
			wrong := models.WrongAnswer{
				UserID:             userID,
				QuestionID:         question.ID,
				AnswerID:           answer.ID,
				RecordedAt:         now,
				CorrectionDeadline: now.Add(q.rules.CorrectionWindow),
				CorrectionText:     question.ExplanationText,
				CorrectionVideoURL: question.ExplanationVideoURL,
			}
			if err := tx.Create(&wrong).Error; err != nil {
				return fmt.Errorf("create wrong answer: %w", err)
			}
			result.WrongAnswerIDs = append(result.WrongAnswerIDs, wrong.ID)
		}

		result.Score = int(math.Round(100 * float64(result.CorrectCount) / float64(result.TotalQuestions)))
		if err := tx.Model(&session).Updates(map[string]interface{}{
			"correct_count": result.CorrectCount,
			"score":         result.Score,
		}).Error; err != nil {
			return fmt.Errorf("update session: %w", err)
		}

		if result.CorrectCount < q.rules.RequiredCorrectForBonus {
			return nil
		}
		if _, err := q.ledger.AdjustTx(tx, userID, 1, models.ReasonQuizBonus, "daily quiz bonus", map[string]interface{}{
			"session_id": session.ID,
			"score":      result.Score,
		}); err != nil {
			return err
		}
		result.BonusAwarded = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	q.log.Info("quiz graded",
		zap.Uint("user_id", userID),
		zap.Int("correct", result.CorrectCount),
		zap.Int("score", result.Score),
		zap.Bool("bonus", result.BonusAwarded),
	)
	return result, nil
}

// WrongAnswers lists the user's wrong-answer book, open items first.
func (q *QuizScorer) WrongAnswers(ctx context.Context, userID uint) ([]models.WrongAnswer, error) {
	var records []models.WrongAnswer
	if err := q.db.WithContext(ctx).
		Preload("Question").
		Where("user_id = ?", userID).
		Order("is_resolved").
		Order("correction_deadline").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list wrong answers: %w", err)
	}
	return records, nil
}

// ResolveWrongAnswer marks one of the user's records reviewed. Resolving an already
// resolved record is a no-op.
func (q *QuizScorer) ResolveWrongAnswer(ctx context.Context, userID, id uint) (*models.WrongAnswer, error) {
	db := q.db.WithContext(ctx)
	var record models.WrongAnswer
	if err := db.Where("id = ? AND user_id = ?", id, userID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWrongAnswerNotFound
		}
		return nil, fmt.Errorf("load wrong answer %d: %w", id, err)
	}
	if record.IsResolved {
		return &record, nil
	}
	now := q.clock.Now()
	if err := db.Model(&record).Updates(map[string]interface{}{
		"is_resolved": true,
		"resolved_at": now,
	}).Error; err != nil {
		return nil, fmt.Errorf("resolve wrong answer %d: %w", id, err)
	}
	record.IsResolved = true
	record.ResolvedAt = &now
	return &record, nil
}
