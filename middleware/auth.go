package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/incentive/models"
	"github.com/cppla/incentive/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	ContextEmailKey  = "email"
	ContextRoleKey   = "role"
	// ContextBearerKey keeps the raw session JWT so logout can revoke it.
	ContextBearerKey = "bearer"
)

func abort(ctx *gin.Context, status, code int, message string) {
	utils.Error(ctx, status, code, message)
	ctx.Abort()
}

// bearerToken extracts the session JWT, or returns the envelope code explaining why not.
func bearerToken(header string) (string, int, string) {
	if header == "" {
		return "", 40101, "authorization header missing"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", 40102, "invalid authorization header format"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", 40103, "empty bearer token"
	}
	return token, 0, ""
}

// AuthRequired admits requests carrying a valid, unrevoked session JWT. Only logins that
// passed the exclusive-token gate hold one.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, code, msg := bearerToken(ctx.GetHeader("Authorization"))
		if code != 0 {
			abort(ctx, http.StatusUnauthorized, code, msg)
			return
		}
		if utils.IsTokenBlacklisted(token) {
			abort(ctx, http.StatusUnauthorized, 40104, "token revoked")
			return
		}
		claims, err := utils.ParseToken(token)
		if err != nil {
			abort(ctx, http.StatusUnauthorized, 40105, "invalid token")
			return
		}

		ctx.Set(ContextUserIDKey, claims.UserID)
		ctx.Set(ContextEmailKey, claims.Email)
		ctx.Set(ContextRoleKey, claims.Role)
		ctx.Set(ContextBearerKey, token)
		ctx.Next()
	}
}

// AdminRequired must run after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.GetString(ContextRoleKey) != models.RoleAdmin {
			abort(ctx, http.StatusForbidden, 40301, "administrator only")
			return
		}
		ctx.Next()
	}
}
