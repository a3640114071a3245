package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/aiblog/services"
	"github.com/cppla/aiblog/utils"
)

// StatsController reports post counts.
type StatsController struct {
	svc *services.PostService
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(svc *services.PostService) *StatsController {
	return &StatsController{svc: svc}
}

// GetStats returns the number of posts per status and how many are public right now.
func (s *StatsController) GetStats(ctx *gin.Context) {
	stats, err := s.svc.Stats(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}

	utils.Success(ctx, gin.H{
		"post_count":       stats.Total,
		"by_status":        stats.ByStatus,
		"publicly_visible": stats.PubliclyVisible,
		"as_of":            s.svc.Now(),
	})
}
