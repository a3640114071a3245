package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/aiblog/auth"
	"github.com/cppla/aiblog/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUsernameKey stores the username inside Gin context.
	ContextUsernameKey = "username"
	// ContextClaimsKey stores the parsed JWT claims.
	ContextClaimsKey = "claims"
	// ContextTokenKey stores the raw bearer token.
	ContextTokenKey = "token"

	// LoginPath is where unauthenticated callers are sent.
	LoginPath = "/auth/login"
)

// RevocationChecker reports whether a token was revoked before expiry.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) bool
}

// AuthRequired ensures the request is authenticated via JWT.
func AuthRequired(revoked RevocationChecker) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			Unauthenticated(ctx, 40101, "authorization header missing")
			return
		}

		tokenString, ok := bearerToken(authHeader)
		if !ok {
			Unauthenticated(ctx, 40102, "invalid authorization header format")
			return
		}
		if tokenString == "" {
			Unauthenticated(ctx, 40103, "empty bearer token")
			return
		}

		if revoked != nil && revoked.IsRevoked(ctx.Request.Context(), tokenString) {
			Unauthenticated(ctx, 40104, "token revoked")
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			Unauthenticated(ctx, 40105, "invalid token")
			return
		}

		attach(ctx, tokenString, claims)
		ctx.Next()
	}
}

// OptionalAuth attaches the caller identity when a valid token is sent and
// lets every other request through as a guest.
func OptionalAuth(revoked RevocationChecker) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenString, ok := bearerToken(ctx.GetHeader("Authorization"))
		if !ok || tokenString == "" {
			ctx.Next()
			return
		}
		if revoked != nil && revoked.IsRevoked(ctx.Request.Context(), tokenString) {
			ctx.Next()
			return
		}
		if claims, err := utils.ParseToken(tokenString); err == nil {
			attach(ctx, tokenString, claims)
		}
		ctx.Next()
	}
}

// Unauthenticated answers 401 with a bearer challenge and the login location.
func Unauthenticated(ctx *gin.Context, code int, message string) {
	ctx.Header("WWW-Authenticate", `Bearer realm="aiblog"`)
	utils.Abort(ctx, http.StatusUnauthorized, code, message, gin.H{"redirect": LoginPath})
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func attach(ctx *gin.Context, token string, claims *utils.Claims) {
	ctx.Set(ContextUserIDKey, claims.UserID)
	ctx.Set(ContextUsernameKey, claims.Username)
	ctx.Set(ContextClaimsKey, claims)
	ctx.Set(ContextTokenKey, token)

	id := &auth.Identity{UserID: claims.UserID, Username: claims.Username}
	ctx.Request = ctx.Request.WithContext(auth.WithIdentity(ctx.Request.Context(), id))
}
