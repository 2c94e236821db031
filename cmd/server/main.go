// Command lotmarket-server starts the marketplace auth API server.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"lotmarket/internal/api"
	"lotmarket/internal/auth"
	"lotmarket/internal/certs"
	"lotmarket/internal/config"
	"lotmarket/internal/database"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.DevMode {
		logger.Warn("dev mode enabled: identity assertions are NOT verified")
	}

	logger.Info("initializing database", zap.String("path", cfg.DBPath))
	if err := database.Open(database.Config{Path: cfg.DBPath}); err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	authSvc := auth.NewService(auth.Options{
		BotSecret:  cfg.BotSecret,
		SessionTTL: cfg.SessionTTL,
		DevMode:    cfg.DevMode,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := auth.NewSweeper(authSvc, cfg.SweepInterval, logger)
	go sweeper.Run(ctx)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	apiGroup := e.Group("/api")
	api.RegisterRoutes(apiGroup, authSvc, cfg.CleanupSecret, logger, auth.DefaultRateLimiter())

	go func() {
		addr := ":" + cfg.Port
		if cfg.TLSCertDir != "" {
			certPath, keyPath, err := certs.Ensure(cfg.TLSCertDir)
			if err != nil {
				logger.Fatal("failed to provision TLS certificates", zap.Error(err))
			}
			logger.Info("starting lotmarket server with TLS", zap.String("port", cfg.Port))
			if err := e.StartTLS(addr, certPath, keyPath); err != nil && err != http.ErrServerClosed {
				logger.Fatal("server stopped", zap.Error(err))
			}
			return
		}
		logger.Info("starting lotmarket server", zap.String("port", cfg.Port))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
