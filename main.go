package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"debate_arena/internal/api"
	"debate_arena/internal/logger"
	"debate_arena/internal/middleware"
	"debate_arena/internal/repository"
	"debate_arena/internal/repository/memory"
	"debate_arena/internal/service"
	"debate_arena/internal/storage"
	"debate_arena/internal/utils"
	"debate_arena/pkg/config"
)

func main() {
	// 載入應用程式配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	appLogger := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	// 初始化資料存取層
	var repos *repository.Repositories
	switch cfg.DB.Driver {
	case "memory":
		appLogger.Warn().Msg("using in-memory store, data is lost on restart")
		repos = memory.New().Repositories()
	default:
		db, err := storage.NewPostgresDB(cfg.DB)
		if err != nil {
			appLogger.Fatal().Err(err).Msg("Failed to initialize database")
		}
		// 確保在程序結束時關閉數據庫連接
		defer db.Close()

		if err := db.Migrate(); err != nil {
			appLogger.Fatal().Err(err).Msg("Failed to migrate database")
		}
		repos = repository.NewRepositories(db)
	}

	// 初始化 services
	services := service.NewServices(repos, cfg, appLogger)
	defer services.Debouncer.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go services.Sweeper.Run(ctx)

	// 設置 Gin 路由
	if !cfg.Log.Pretty {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(appLogger))
	api.SetupRoutes(r, services, utils.NewTokenManager(cfg.JWT.Secret, 0), cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info().Str("address", cfg.Server.Address).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error().Err(err).Msg("Failed to run server")
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error().Err(err).Msg("server shutdown failed")
	}
}
