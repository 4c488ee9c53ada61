package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/kinoplex/auth-api/api/swagger"
	"github.com/kinoplex/auth-api/internal/handler"
	"github.com/kinoplex/auth-api/internal/middleware"
	"github.com/kinoplex/auth-api/internal/models"
	"github.com/kinoplex/auth-api/internal/repository"
	"github.com/kinoplex/auth-api/internal/service"
	"github.com/kinoplex/auth-api/internal/token"
	"github.com/kinoplex/auth-api/pkg/cache"
	"github.com/kinoplex/auth-api/pkg/config"
	"github.com/kinoplex/auth-api/pkg/database"
	"github.com/kinoplex/auth-api/pkg/logger"
	corsmiddleware "github.com/kinoplex/auth-api/pkg/middleware/cors"
	reqidmiddleware "github.com/kinoplex/auth-api/pkg/middleware/requestid"
)

// @title Auth API
// @version 0.1.0
// @description Token lifecycle and session revocation service
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	issuer, err := token.NewIssuer(cfg.Token)
	if err != nil {
		logr.Sugar().Fatalw("failed to init token issuer", "error", err)
	}
	if issuer.GeneratedKeys() {
		if cfg.Env == config.EnvProduction {
			logr.Sugar().Fatalw("refusing to start with generated keys in production")
		}
		logr.Warn("running on a generated key pair; tokens will not survive a restart")
	}

	userRepo := repository.NewUserRepository(db)
	ledgerRepo := repository.NewRefreshLedgerRepository(db)
	historyRepo := repository.NewAccountHistoryRepository(db)
	sessionRepo := repository.NewSessionIndexRepository(redisClient, cfg.Redis.KeyPrefix, cfg.Token.AccessExpiry, logr)

	metricsSvc := service.NewMetricsService()

	historySvc := service.NewHistoryService(historyRepo, service.HistoryConfig{
		Workers:    cfg.History.Workers,
		BufferSize: cfg.History.BufferSize,
		MaxRetries: cfg.History.MaxRetries,
	}, logr)
	historyCtx, historyCancel := context.WithCancel(context.Background())
	historySvc.Start(historyCtx)

	authSvc := service.NewAuthService(
		userRepo,
		ledgerRepo,
		sessionRepo,
		issuer,
		historySvc,
		metricsSvc,
		validator.New(),
		logr,
		service.AuthConfig{
			Pepper:        cfg.Password.Pepper,
			AccessExpiry:  cfg.Token.AccessExpiry,
			RefreshExpiry: cfg.Token.RefreshExpiry,
		},
	)

	authHandler := handler.NewAuthHandler(authSvc, historySvc, cfg.Token.RefreshExpiry)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db, redisClient)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		protected := auth.Group("")
		protected.Use(middleware.JWT(authSvc))
		{
			protected.POST("/logout", authHandler.Logout)
			protected.POST("/logout-all", authHandler.LogoutAll)
			protected.POST("/change-password", authHandler.ChangePassword)
			protected.GET("/me", authHandler.Me)
			protected.GET("/sessions", authHandler.Sessions)
			protected.GET("/history", authHandler.History)

			protected.POST("/users/:id/logout-all", middleware.RBAC(models.RoleAdmin), authHandler.ForceLogoutAll)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}

	historyCancel()
	historySvc.Stop()
}
