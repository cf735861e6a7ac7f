package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/incentive/services"
	"github.com/cppla/incentive/utils"
)

// QuizController serves the daily quiz and the wrong-answer book.
type QuizController struct {
	quiz *services.QuizScorer
}

// NewQuizController creates a new QuizController instance.
func NewQuizController(quiz *services.QuizScorer) *QuizController {
	return &QuizController{quiz: quiz}
}

// Daily returns today's questions and, once taken, the caller's session.
func (q *QuizController) Daily(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	questions, session, err := q.quiz.DailyQuestions(ctx.Request.Context(), userID)
	if err != nil {
		writeServiceError(ctx, err, 50060, "failed to load quiz")
		return
	}
	utils.Success(ctx, gin.H{
		"questions": questions,
		"completed": session != nil,
		"session":   session,
	})
}

// Submit grades the caller's answers for today.
func (q *QuizController) Submit(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req struct {
		Answers []services.AnswerInput `json:"answers" binding:"required,dive"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40060, "invalid request payload")
		return
	}
	result, err := q.quiz.Submit(ctx.Request.Context(), userID, req.Answers)
	if err != nil {
		writeServiceError(ctx, err, 50061, "failed to submit quiz")
		return
	}
	if result.BonusAwarded {
		utils.InvalidateLeaderboards()
	}
	utils.Created(ctx, result)
}

// WrongAnswers lists the caller's wrong answers with their explanations.
func (q *QuizController) WrongAnswers(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	records, err := q.quiz.WrongAnswers(ctx.Request.Context(), userID)
	if err != nil {
		writeServiceError(ctx, err, 50062, "failed to list wrong answers")
		return
	}
	utils.Success(ctx, gin.H{"items": records})
}

// Resolve marks one wrong answer as reviewed.
func (q *QuizController) Resolve(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40061, "invalid wrong answer id")
		return
	}
	record, err := q.quiz.ResolveWrongAnswer(ctx.Request.Context(), userID, id)
	if err != nil {
		writeServiceError(ctx, err, 50063, "failed to resolve wrong answer")
		return
	}
	utils.Success(ctx, record)
}
