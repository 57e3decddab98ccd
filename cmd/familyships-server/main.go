package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/familyships/familyships/pkg/familyships/auth"
	"github.com/familyships/familyships/pkg/familyships/config"
	"github.com/familyships/familyships/pkg/familyships/database"
	"github.com/familyships/familyships/pkg/familyships/logging"
	"github.com/familyships/familyships/pkg/familyships/models"
	"github.com/familyships/familyships/pkg/familyships/oauth"
	"github.com/familyships/familyships/pkg/familyships/ratelimit"
	"github.com/familyships/familyships/pkg/familyships/server"
	"github.com/familyships/familyships/pkg/familyships/store"
	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Connect to database
	if err := database.Connect(cfg.DBDriver, cfg.DBDSN); err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run auto-migrations
	if err := models.AutoMigrate(database.GetDB()); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations completed", zap.String("driver", cfg.DBDriver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.Run(ctx, time.Minute, 10*time.Minute)

	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(server.Options{
		Store:   store.New(database.GetDB(), cfg.StoreTimeout),
		Tokens:  auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL),
		Limiter: limiter,
		Logger:  logger,
		OAuth: oauth.Config{
			BaseURL:            cfg.BaseURL,
			GoogleClientID:     cfg.GoogleClientID,
			GoogleClientSecret: cfg.GoogleClientSecret,
			GitHubClientID:     cfg.GitHubClientID,
			GitHubClientSecret: cfg.GitHubClientSecret,
		},
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", logging.RequestIDHeader},
		ExposedHeaders:   []string{logging.RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           corsHandler.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting familyships server", zap.String("addr", srv.Addr), zap.String("base_url", cfg.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
