package main

import (
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cppla/aiblog/config"
	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/routes"
	"github.com/cppla/aiblog/services"
	"github.com/cppla/aiblog/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase(&models.User{}, &models.Post{})

	var rc *redis.Client
	var cache services.Cache = utils.NopCache{}
	if cfg.CacheEnabled {
		client, err := utils.NewRedisClient(cfg)
		if err != nil {
			utils.Logger.Warn("redis unavailable, caching disabled and token revocation kept in memory", zap.Error(err))
			_ = client.Close()
		} else {
			rc = client
			cache = utils.NewRedisCache(rc)
		}
	}

	accessLog, err := utils.NewRollingFileLogger(cfg.AccessLogPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err != nil {
		utils.Logger.Warn("access log disabled", zap.Error(err))
	}

	r := routes.SetupRouter(routes.Deps{
		DB:         db,
		Cache:      cache,
		Blacklist:  utils.NewTokenBlacklist(rc),
		LoginGuard: utils.NewLoginGuard(rc, 5, 15*time.Minute),
		AccessLog:  accessLog,
	})

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
