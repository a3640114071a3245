package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/aiblog/config"
	"github.com/cppla/aiblog/controllers"
	"github.com/cppla/aiblog/middleware"
	"github.com/cppla/aiblog/repository"
	"github.com/cppla/aiblog/services"
	"github.com/cppla/aiblog/utils"
)

// Deps carries the shared infrastructure the routes are built on.
type Deps struct {
	DB         *gorm.DB
	Cache      services.Cache
	Blacklist  *utils.TokenBlacklist
	LoginGuard *utils.LoginGuard
	// AccessLog receives one line per request; nil falls back to gin.Recovery only.
	AccessLog *zap.Logger
	// Clock overrides time.Now for the post service.
	Clock func() time.Time
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(deps Deps) *gin.Engine {
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
	r.Use(middleware.RequestID())
	if deps.AccessLog != nil {
		r.Use(ginzap.Ginzap(deps.AccessLog, time.RFC3339, true))
		r.Use(ginzap.RecoveryWithZap(deps.AccessLog, true))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Location", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	opts := []services.Option{
		services.WithLocation(cfg.Location()),
		services.WithPageSize(cfg.PageSize),
	}
	if deps.Cache != nil {
		opts = append(opts, services.WithCache(deps.Cache, cfg.PublicListCacheTTL()))
	}
	if deps.Clock != nil {
		opts = append(opts, services.WithClock(deps.Clock))
	}
	postService := services.NewPostService(repository.NewPostRepo(deps.DB), opts...)

	blacklist := deps.Blacklist
	if blacklist == nil {
		blacklist = utils.NewTokenBlacklist(nil)
	}

	authController := controllers.NewAuthController(repository.NewUserRepo(deps.DB), blacklist, deps.LoginGuard, cfg.TokenTTL())
	postController := controllers.NewPostController(postService)
	statsController := controllers.NewStatsController(postService)

	requireAuth := middleware.AuthRequired(blacklist)
	optionalAuth := middleware.OptionalAuth(blacklist)

	authGroup := r.Group("/auth")
	authGroup.Use(middleware.RateLimit(cfg.RateLimitPerMinute))
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/logout", requireAuth, authController.Logout)
	authGroup.GET("/me", requireAuth, authController.Me)

	r.GET("/", optionalAuth, postController.Home)
	r.GET("/stats", statsController.GetStats)

	posts := r.Group("/posts")
	posts.GET("", postController.ListPosts)
	posts.GET("/create", requireAuth, postController.CreateForm)
	posts.POST("", requireAuth, postController.CreatePost)
	posts.GET("/:id", optionalAuth, postController.GetPost)
	posts.GET("/:id/edit", requireAuth, postController.EditForm)
	posts.PUT("/:id", requireAuth, postController.UpdatePost)
	posts.PATCH("/:id", requireAuth, postController.UpdatePost)
	posts.DELETE("/:id", requireAuth, postController.DeletePost)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r
}
