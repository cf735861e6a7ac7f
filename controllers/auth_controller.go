package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/incentive/config"
	"github.com/cppla/incentive/middleware"
	"github.com/cppla/incentive/models"
	"github.com/cppla/incentive/services"
	"github.com/cppla/incentive/utils"
)

// AuthController handles the email-code, exclusive-token and password flows.
type AuthController struct {
	db     *gorm.DB
	otp    *services.OTPService
	tokens *services.TokenService
}

// NewAuthController creates a new AuthController instance.
func NewAuthController(db *gorm.DB, otp *services.OTPService, tokens *services.TokenService) *AuthController {
	return &AuthController{db: db, otp: otp, tokens: tokens}
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// RequestCode mails a one-time verification code.
func (a *AuthController) RequestCode(ctx *gin.Context) {
	var req emailRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, "invalid request payload")
		return
	}
	if err := a.otp.Request(ctx.Request.Context(), req.Email); err != nil {
		writeServiceError(ctx, err, 50040, "failed to send verification code")
		return
	}
	utils.Success(ctx, gin.H{"message": "verification code sent"})
}

// VerifyCode marks the email verified so a token can be issued.
func (a *AuthController) VerifyCode(ctx *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		Code  string `json:"code" binding:"required,len=6"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40041, "invalid request payload")
		return
	}
	user, err := a.otp.Verify(ctx.Request.Context(), req.Email, req.Code)
	if err != nil {
		writeServiceError(ctx, err, 50041, "failed to verify code")
		return
	}
	utils.Success(ctx, gin.H{"email": user.Email, "verified_at": user.EmailVerifiedAt})
}

// IssueToken returns the caller's exclusive token, minting one within the monthly quota.
func (a *AuthController) IssueToken(ctx *gin.Context) {
	var req emailRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40042, "invalid request payload")
		return
	}
	token, err := a.tokens.Issue(ctx.Request.Context(), req.Email)
	if err != nil {
		writeServiceError(ctx, err, 50042, "failed to issue token")
		return
	}
	issued, _ := a.tokens.IssuedThisMonth(ctx.Request.Context(), req.Email)
	utils.Success(ctx, gin.H{"token": token, "issued_this_month": issued})
}

// Register sets the password of a verified account that presents its token.
func (a *AuthController) Register(ctx *gin.Context) {
	var req struct {
		Email       string `json:"email" binding:"required,email"`
		Token       string `json:"token" binding:"required"`
		DisplayName string `json:"display_name" binding:"max=64"`
		Password    string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid request payload")
		return
	}
	user, err := a.tokens.Register(ctx.Request.Context(), services.RegisterInput{
		Email:       req.Email,
		Token:       req.Token,
		DisplayName: utils.SanitizeText(req.DisplayName),
		Password:    req.Password,
	})
	if err != nil {
		writeServiceError(ctx, err, 50010, "failed to register")
		return
	}
	utils.Created(ctx, sanitizeUserResponse(*user))
}

// Login verifies email, exclusive token and password, then issues a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	type request struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Token    string `json:"token" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}

	user, err := a.tokens.Authenticate(ctx.Request.Context(), req.Email, req.Password, req.Token)
	if err != nil {
		writeServiceError(ctx, err, 50003, "failed to log in")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Email, user.Role, sessionTTL())
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token": token,
		"user":  sanitizeUserResponse(*user),
	})
}

// Logout invalidates the token by blacklisting it until expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	token := ctx.GetString(middleware.ContextBearerKey)
	claims, err := utils.ParseToken(token)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
		return
	}

	expiresAt := time.Now().Add(sessionTTL())
	if claims.RegisteredClaims.ExpiresAt != nil {
		expiresAt = claims.RegisteredClaims.ExpiresAt.Time
	}

	utils.BlacklistToken(token, expiresAt)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the current authenticated user's information.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	var user models.User
	if err := a.db.WithContext(ctx.Request.Context()).Preload("PointsAccount").First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}

	utils.Success(ctx, sanitizeUserResponse(user))
}

func sessionTTL() time.Duration {
	hours := config.Get().JWTExpiresHours
	if hours <= 0 {
		hours = 72
	}
	return time.Duration(hours) * time.Hour
}

func sanitizeUserResponse(user models.User) gin.H {
	points := 0
	if user.PointsAccount != nil {
		points = user.PointsAccount.CurrentPoints
	}
	return gin.H{
		"id":                    user.ID,
		"email":                 user.Email,
		"display_name":          user.DisplayName,
		"role":                  user.Role,
		"is_admin":              strings.EqualFold(user.Role, models.RoleAdmin),
		"points":                points,
		"has_token":             user.HasToken(),
		"token_issued_at":       user.TokenIssuedAt,
		"token_disabled_at":     user.TokenDisabledAt,
		"token_disabled_reason": user.TokenDisabledReason,
		"created_at":            user.CreatedAt,
	}
}
