package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/wanderline/auth-api/internal/handler"
	"github.com/wanderline/auth-api/internal/middleware"
	"github.com/wanderline/auth-api/internal/models"
	"github.com/wanderline/auth-api/internal/repository"
	"github.com/wanderline/auth-api/internal/service"
	"github.com/wanderline/auth-api/pkg/cache"
	"github.com/wanderline/auth-api/pkg/config"
	"github.com/wanderline/auth-api/pkg/database"
	"github.com/wanderline/auth-api/pkg/logger"
	corsmiddleware "github.com/wanderline/auth-api/pkg/middleware/cors"
	reqidmiddleware "github.com/wanderline/auth-api/pkg/middleware/requestid"
	"github.com/wanderline/auth-api/pkg/notifier"
	"github.com/wanderline/auth-api/pkg/storage"
)

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	// repositories
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	eventRepo := repository.NewEventRepository(db)
	revocationRepo := repository.NewRevocationRepository(redisClient)
	rateLimitRepo := repository.NewRateLimitRepository(redisClient)

	// services
	metricsSvc := service.NewMetricsService()
	validationSvc := service.NewValidationService(cfg.Password, logr)
	tokenSvc := service.NewTokenService(revocationRepo, logr, service.TokenConfig{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		Issuer:        cfg.JWT.Issuer,
		AccessExpiry:  cfg.JWT.AccessExpiry,
		RefreshExpiry: cfg.JWT.RefreshExpiry,
	})
	rateLimitSvc := service.NewRateLimitService(rateLimitRepo, logr, cfg.RateLimit)
	lockoutSvc := service.NewLockoutService(attemptRepo, logr, cfg.Lockout)
	fraudSvc := service.NewFraudService(attemptRepo, logr, cfg.Fraud)
	sessionSvc := service.NewSessionService(sessionRepo, logr, cfg.Session)
	eventSvc := service.NewEventService(eventRepo, logr)

	exportStore, err := storage.NewStore(cfg.Export.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	exportSigner := storage.NewSigner(cfg.Export.SigningSecret, cfg.Export.URLTTL)
	exportSvc := service.NewExportService(eventRepo, eventSvc, exportStore, exportSigner, logr, cfg.Export.Retention)

	var mailer notifier.Mailer = notifier.NopMailer{}
	if cfg.Notify.Enabled {
		mailer = notifier.NewSMTPMailer(cfg.Notify)
	}
	notifySvc := notifier.New(mailer, cfg.Notify, logr)
	notifySvc.Start(context.Background())
	defer notifySvc.Stop()

	authSvc := service.NewAuthService(
		userRepo,
		validationSvc,
		tokenSvc,
		rateLimitSvc,
		lockoutSvc,
		fraudSvc,
		sessionSvc,
		eventSvc,
		notifySvc,
		validator.New(),
		logr,
		cfg.Lockout.Window,
	)

	// handlers
	authHandler := handler.NewAuthHandler(authSvc, metricsSvc)
	securityHandler := handler.NewSecurityHandler(authSvc, exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	authLimit := middleware.RateLimit(rateLimitSvc, eventSvc, metricsSvc, service.ClassAuth)
	generalLimit := middleware.RateLimit(rateLimitSvc, eventSvc, metricsSvc, service.ClassGeneral)
	authenticated := middleware.JWT(tokenSvc, sessionSvc, logr)
	adminOnly := middleware.RBAC(authSvc, models.RoleAdmin)

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		{
			// signup and signin consume the auth window inside the
			// service, keyed ip:email once the body is parsed
			auth.POST("/signup", authHandler.Signup)
			auth.POST("/signin", authHandler.Signin)
			auth.POST("/refresh", authLimit, authHandler.Refresh)
			auth.POST("/signout", generalLimit, authenticated, authHandler.Signout)
			auth.POST("/change-password", authLimit, authenticated, authHandler.ChangePassword)
			auth.GET("/me", generalLimit, authenticated, authHandler.Me)
		}

		// the signed token is the credential for downloads
		api.GET("/security/exports", generalLimit, securityHandler.DownloadExport)

		security := api.Group("/security", generalLimit, authenticated)
		{
			security.GET("/status", securityHandler.Status)
			security.GET("/events", adminOnly, securityHandler.Events)
			security.POST("/events/export", adminOnly, securityHandler.ExportEvents)
			security.DELETE("/lockouts", adminOnly, securityHandler.ClearLockout)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
