package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cppla/incentive/models"
)

// questions seeds n questions whose correct option is 0.
func (e *engine) questions(t *testing.T, n int) []models.ExamQuestion {
	t.Helper()
	out := make([]models.ExamQuestion, 0, n)
	for i := 0; i < n; i++ {
		q := models.ExamQuestion{
			Prompt:              fmt.Sprintf("question %d", i+1),
			Options:             []string{"right", "wrong", "also wrong"},
			CorrectOptionIndex:  0,
			ExplanationText:     fmt.Sprintf("explanation %d", i+1),
			ExplanationVideoURL: fmt.Sprintf("https://videos.example.com/%d", i+1),
			CreatedAt:           longAgo.Add(time.Duration(i) * time.Minute),
		}
		if err := e.db.Create(&q).Error; err != nil {
			t.Fatalf("create question: %v", err)
		}
		out = append(out, q)
	}
	return out
}

// answersWith answers the first `correct` questions right and the rest wrong.
func answersWith(questions []models.ExamQuestion, correct int) []AnswerInput {
	out := make([]AnswerInput, len(questions))
	for i, q := range questions {
		selected := 1
		if i < correct {
			selected = 0
		}
		out[i] = AnswerInput{QuestionID: q.ID, SelectedOption: selected}
	}
	return out
}

func TestQuizScoringAndBonus(t *testing.T) {
	cases := []struct {
		correct int
		score   int
		bonus   bool
	}{
		{5, 100, true},
		{4, 80, true},
		{3, 60, false},
		{0, 0, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d correct", tc.correct), func(t *testing.T) {
			e := newEngine(t)
			u := e.employee(t, "ann@example.com")
			qs := e.questions(t, 5)

			res, err := e.quiz.Submit(t.Context(), u.ID, answersWith(qs, tc.correct))
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if res.Score != tc.score || res.CorrectCount != tc.correct || res.BonusAwarded != tc.bonus {
				t.Fatalf("result = %+v", res)
			}
			wantBonus := 0
			if tc.bonus {
				wantBonus = 1
			}
			if n := len(e.entries(t, u.ID, models.ReasonQuizBonus)); n != wantBonus {
				t.Fatalf("bonus entries = %d, want %d", n, wantBonus)
			}

			var wrong []models.WrongAnswer
			e.db.Where("user_id = ?", u.ID).Order("id").Find(&wrong)
			if len(wrong) != 5-tc.correct || len(res.WrongAnswerIDs) != len(wrong) {
				t.Fatalf("wrong answers = %d, want %d", len(wrong), 5-tc.correct)
			}
			for _, w := range wrong {
				if !w.CorrectionDeadline.Equal(baseTime.Add(72 * time.Hour)) {
					t.Fatalf("deadline = %v, want %v", w.CorrectionDeadline, baseTime.Add(72*time.Hour))
				}
				if w.CorrectionText == "" || w.CorrectionVideoURL == "" || w.IsResolved || w.PenaltyApplied {
					t.Fatalf("wrong answer = %+v", w)
				}
			}

			var answers int64
			e.db.Model(&models.ExamAnswer{}).Where("session_id = ?", res.SessionID).Count(&answers)
			if answers != 5 {
				t.Fatalf("answers = %d, want 5", answers)
			}
		})
	}
}

func TestQuizOncePerDay(t *testing.T) {
	e := newEngine(t)
	u := e.employee(t, "ann@example.com")
	qs := e.questions(t, 5)
	ctx := t.Context()

	if _, err := e.quiz.Submit(ctx, u.ID, answersWith(qs, 5)); err != nil {
		t.Fatalf("first: %v", err)
	}
	e.clock.Advance(3 * time.Hour)
	if _, err := e.quiz.Submit(ctx, u.ID, answersWith(qs, 5)); !errors.Is(err, ErrQuizAlreadyTaken) {
		t.Fatalf("second err = %v, want ErrQuizAlreadyTaken", err)
	}
	if got := e.balance(t, u.ID); got != 1 {
		t.Fatalf("balance = %d, want 1", got)
	}
	var sessions int64
	e.db.Model(&models.ExamSession{}).Where("user_id = ?", u.ID).Count(&sessions)
	if sessions != 1 {
		t.Fatalf("sessions = %d, want 1", sessions)
	}

	e.clock.Set(baseTime.AddDate(0, 0, 1))
	if _, err := e.quiz.Submit(ctx, u.ID, answersWith(qs, 5)); err != nil {
		t.Fatalf("next day: %v", err)
	}
	if got := e.balance(t, u.ID); got != 2 {
		t.Fatalf("balance = %d, want 2", got)
	}
}

func TestQuizRejectsMalformedBatches(t *testing.T) {
	e := newEngine(t)
	u := e.employee(t, "ann@example.com")
	qs := e.questions(t, 5)
	full := answersWith(qs, 5)

	duplicate := append([]AnswerInput(nil), full...)
	duplicate[4] = duplicate[0]
	unknown := append([]AnswerInput(nil), full...)
	unknown[2].QuestionID = 9999

	cases := map[string][]AnswerInput{
		"empty":     nil,
		"short":     full[:4],
		"long":      append(append([]AnswerInput(nil), full...), full[0]),
		"duplicate": duplicate,
		"unknown":   unknown,
	}
	for name, answers := range cases {
		if _, err := e.quiz.Submit(t.Context(), u.ID, answers); !errors.Is(err, ErrMalformedAnswers) {
			t.Fatalf("%s: err = %v, want ErrMalformedAnswers", name, err)
		}
	}
	var sessions int64
	e.db.Model(&models.ExamSession{}).Count(&sessions)
	if sessions != 0 {
		t.Fatalf("sessions = %d, want none", sessions)
	}
}

func TestDailyQuestionsReportsCompletion(t *testing.T) {
	e := newEngine(t)
	u := e.employee(t, "ann@example.com")
	qs := e.questions(t, 7)
	ctx := t.Context()

	set, session, err := e.quiz.DailyQuestions(ctx, u.ID)
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	if len(set) != 5 || set[0].ID != qs[0].ID || session != nil {
		t.Fatalf("set = %d questions, session = %v", len(set), session)
	}

	if _, err := e.quiz.Submit(ctx, u.ID, answersWith(qs[:5], 2)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, session, err = e.quiz.DailyQuestions(ctx, u.ID)
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	if session == nil || session.Score != 40 || len(session.Answers) != 5 {
		t.Fatalf("session = %+v", session)
	}
}

func TestResolveWrongAnswerOwnerOnly(t *testing.T) {
	e := newEngine(t)
	ann := e.employee(t, "ann@example.com")
	bob := e.employee(t, "bob@example.com")
	qs := e.questions(t, 5)
	ctx := t.Context()

	res, err := e.quiz.Submit(ctx, ann.ID, answersWith(qs, 4))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	id := res.WrongAnswerIDs[0]

	if _, err := e.quiz.ResolveWrongAnswer(ctx, bob.ID, id); !errors.Is(err, ErrWrongAnswerNotFound) {
		t.Fatalf("other user err = %v", err)
	}
	record, err := e.quiz.ResolveWrongAnswer(ctx, ann.ID, id)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !record.IsResolved || record.ResolvedAt == nil {
		t.Fatalf("record = %+v", record)
	}

	list, err := e.quiz.WrongAnswers(ctx, ann.ID)
	if err != nil || len(list) != 1 || !list[0].IsResolved || list[0].Question == nil {
		t.Fatalf("list = %+v, err = %v", list, err)
	}
}
