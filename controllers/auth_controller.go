package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/aiblog/middleware"
	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/repository"
	"github.com/cppla/aiblog/utils"
)

// TokenRevoker blacklists a token until it would have expired.
type TokenRevoker interface {
	Revoke(ctx context.Context, token string, expiresAt time.Time)
}

// AuthController handles account registration and token sessions.
type AuthController struct {
	users    *repository.UserRepo
	revoker  TokenRevoker
	guard    *utils.LoginGuard
	tokenTTL time.Duration
}

// NewAuthController creates an AuthController.
func NewAuthController(users *repository.UserRepo, revoker TokenRevoker, guard *utils.LoginGuard, tokenTTL time.Duration) *AuthController {
	if tokenTTL <= 0 {
		tokenTTL = 72 * time.Hour
	}
	return &AuthController{users: users, revoker: revoker, guard: guard, tokenTTL: tokenTTL}
}

// Register handles local account registration with bcrypt hashing.
func (a *AuthController) Register(ctx *gin.Context) {
	type request struct {
		Username string `json:"username" form:"username" binding:"required,min=3,max=64"`
		Email    string `json:"email" form:"email" binding:"omitempty,email"`
		Password string `json:"password" form:"password" binding:"required,min=6,max=72"`
		Confirm  string `json:"confirm" form:"confirm"`
	}

	var req request
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if !validUsername(req.Username) {
		utils.Error(ctx, http.StatusBadRequest, 40002, "username may only contain letters, digits, '-' and '_'")
		return
	}
	if req.Confirm != "" && req.Password != req.Confirm {
		utils.Error(ctx, http.StatusBadRequest, 40002, "passwords do not match")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to hash password")
		return
	}

	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	}
	if err := a.users.Create(ctx.Request.Context(), &user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			utils.Error(ctx, http.StatusConflict, 40901, "username already exists")
			return
		}
		utils.Logger.Error("register failed", zap.String("username", req.Username), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to create user")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Username, a.tokenTTL)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to generate token")
		return
	}

	utils.Logger.Info("user registered", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	utils.Respond(ctx, http.StatusCreated, 0, "success", gin.H{
		"token": token,
		"user":  sanitizeUserResponse(user),
	})
}

// Login verifies user credentials and issues a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	type request struct {
		Username string `json:"username" form:"username" binding:"required"`
		Password string `json:"password" form:"password" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}

	ip := ctx.ClientIP()
	username := strings.TrimSpace(req.Username)
	if a.guard.Locked(ctx.Request.Context(), ip, username) {
		utils.Error(ctx, http.StatusTooManyRequests, 42910, "too many failed logins, try again later")
		return
	}

	user, err := a.users.FindByUsername(ctx.Request.Context(), username)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			utils.Logger.Error("login lookup failed", zap.Error(err))
		}
		a.guard.Fail(ctx.Request.Context(), ip, username)
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid username or password")
		return
	}

	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		a.guard.Fail(ctx.Request.Context(), ip, username)
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid username or password")
		return
	}
	a.guard.Reset(ctx.Request.Context(), ip, username)

	token, err := utils.GenerateToken(user.ID, user.Username, a.tokenTTL)
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
	token := ctx.GetString(middleware.ContextTokenKey)
	value, _ := ctx.Get(middleware.ContextClaimsKey)
	claims, ok := value.(*utils.Claims)
	if token == "" || !ok {
		middleware.Unauthenticated(ctx, 40107, "invalid authorization header")
		return
	}

	expiresAt := time.Now().Add(a.tokenTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	a.revoker.Revoke(ctx.Request.Context(), token, expiresAt)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the current authenticated user's information.
func (a *AuthController) Me(ctx *gin.Context) {
	id := identity(ctx)
	if id == nil {
		middleware.Unauthenticated(ctx, 40108, "unauthorized")
		return
	}

	user, err := a.users.FindByID(ctx.Request.Context(), id.UserID)
	if err != nil {
		utils.Error(ctx, http.StatusNotFound, 40402, "user not found")
		return
	}

	utils.Success(ctx, sanitizeUserResponse(*user))
}

// Usernames allow letters, digits, '-' and '_'.
func validUsername(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r == '-' || r == '_' {
			continue
		}
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		return false
	}
	return true
}

func sanitizeUserResponse(user models.User) gin.H {
	return gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"email":      user.Email,
		"created_at": user.CreatedAt,
	}
}
