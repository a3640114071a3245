package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/aiblog/auth"
	"github.com/cppla/aiblog/middleware"
	"github.com/cppla/aiblog/services"
	"github.com/cppla/aiblog/utils"
)

const flashCookie = "flash"

// respondError maps service errors onto the response envelope.
func respondError(ctx *gin.Context, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		utils.Respond(ctx, http.StatusUnprocessableEntity, 42201, "the given data was invalid", gin.H{"errors": verr.Fields})
	case errors.Is(err, services.ErrUnauthenticated):
		middleware.Unauthenticated(ctx, 40110, "unauthenticated")
	case errors.Is(err, services.ErrForbidden):
		utils.Error(ctx, http.StatusForbidden, 40301, "This action is unauthorized.")
	case errors.Is(err, services.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
	case errors.Is(err, services.ErrInvalidRequest):
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
	default:
		utils.Logger.Error("request failed",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.Request.URL.Path),
			zap.String("request_id", ctx.GetString(middleware.ContextRequestIDKey)),
			zap.Error(err),
		)
		utils.Error(ctx, http.StatusInternalServerError, 50020, "internal server error")
	}
}

// respondMutation reports a successful write. Browsers are redirected with the
// flash message in a cookie; API clients get the envelope plus the redirect target.
func respondMutation(ctx *gin.Context, status int, flash, redirect string, data gin.H) {
	ctx.Header("Location", redirect)
	if wantsHTML(ctx) {
		ctx.SetSameSite(http.SameSiteLaxMode)
		ctx.SetCookie(flashCookie, flash, 60, "/", "", false, true)
		ctx.Redirect(http.StatusSeeOther, redirect)
		return
	}
	if data == nil {
		data = gin.H{}
	}
	data["redirect"] = redirect
	utils.Respond(ctx, status, 0, flash, data)
}

func wantsHTML(ctx *gin.Context) bool {
	accept := strings.ToLower(ctx.GetHeader("Accept"))
	return strings.Contains(accept, "text/html")
}

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 0
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= services.MaxPageSize {
		pageSize = s
	}
	return page, pageSize
}

// parseID reads the :id path parameter. Anything but a positive integer is
// reported as 0, which the service treats as a missing post.
func parseID(ctx *gin.Context) uint {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

func identity(ctx *gin.Context) *auth.Identity {
	id, _ := auth.FromContext(ctx.Request.Context())
	return id
}
