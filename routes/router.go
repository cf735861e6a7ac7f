package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/incentive/config"
	"github.com/cppla/incentive/controllers"
	"github.com/cppla/incentive/middleware"
	"github.com/cppla/incentive/services"
	"github.com/cppla/incentive/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB, engine *services.Engine) *gin.Engine {
	// Load config and set Gin mode from configuration
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	ginLogPath := cfg.GinPath
	// Use application log level as reference
	gl, err := utils.NewRollingFileLogger(ginLogPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}

	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok", "time": engine.Clock.Now()})
	})

	authController := controllers.NewAuthController(db, engine.OTP, engine.Tokens)
	taskController := controllers.NewTaskController(db, engine.Evaluator, engine.Clock)
	quizController := controllers.NewQuizController(engine.Quiz)
	activityController := controllers.NewActivityController(engine.Activity)
	pointsController := controllers.NewPointsController(engine.Ledger, engine.Rewards)
	inboxController := controllers.NewInboxController(db, engine.Tokens, engine.Clock)
	adminController := controllers.NewAdminController(db, engine.Scheduler, engine.Tokens)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimit(cfg.RateLimitPerMinute))
	authGroup.POST("/otp/request", middleware.RateLimit(5), authController.RequestCode)
	authGroup.POST("/otp/verify", authController.VerifyCode)
	authGroup.POST("/token", authController.IssueToken)
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)

	// Public: a disabled token cannot log in to file its remediation report
	api.POST("/inbox", middleware.RateLimit(10), inboxController.Submit)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimit(cfg.RateLimitPerMinute))
	protected.GET("/tasks/today", taskController.Today)
	protected.POST("/tasks/:id/submit", taskController.Submit)
	protected.GET("/submissions/me", taskController.MySubmissions)
	protected.GET("/quiz/daily", quizController.Daily)
	protected.POST("/quiz/submit", quizController.Submit)
	protected.GET("/wrong-answers", quizController.WrongAnswers)
	protected.POST("/wrong-answers/:id/resolve", quizController.Resolve)
	protected.POST("/activity/heartbeat", activityController.Heartbeat)
	protected.GET("/points", pointsController.Balance)
	protected.GET("/points/history", pointsController.History)
	protected.GET("/leaderboard", pointsController.Leaderboard)
	protected.GET("/leaderboard/weekly", pointsController.WeeklySummaries)
	protected.POST("/rewards", pointsController.RequestReward)

	admin := protected.Group("/admin")
	admin.Use(middleware.AdminRequired())
	admin.GET("/users", adminController.ListUsers)
	admin.POST("/users/:id/token/disable", adminController.DisableToken)
	admin.POST("/users/:id/token/reactivate", adminController.ReactivateToken)
	admin.GET("/tasks", taskController.List)
	admin.POST("/tasks", taskController.Create)
	admin.DELETE("/tasks/:id", taskController.Delete)
	admin.GET("/submissions/pending", taskController.PendingReviews)
	admin.POST("/submissions/:id/review", taskController.Review)
	admin.POST("/questions", adminController.CreateQuestion)
	admin.GET("/inbox", inboxController.List)
	admin.POST("/inbox/:id/resolve", inboxController.Resolve)
	admin.GET("/jobs", adminController.Jobs)
	admin.POST("/jobs/:name/run", adminController.RunJob)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
