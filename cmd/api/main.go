package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairlines/authcore/internal/audit"
	"github.com/fairlines/authcore/internal/auth"
	"github.com/fairlines/authcore/internal/background"
	"github.com/fairlines/authcore/internal/config"
	"github.com/fairlines/authcore/internal/database"
	"github.com/fairlines/authcore/internal/handlers"
	"github.com/fairlines/authcore/internal/lockout"
	middlewareCustom "github.com/fairlines/authcore/internal/middleware"
	"github.com/fairlines/authcore/internal/repositories"
	"github.com/fairlines/authcore/internal/routes"
	"github.com/fairlines/authcore/internal/services"
	pkghttp "github.com/fairlines/authcore/pkg/http"
	pkglogger "github.com/fairlines/authcore/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)

	// Token issuer and authenticator enrollment
	issuer := auth.NewTokenIssuer(cfg.Auth.SigningSecret, cfg.Auth.AccessTokenExpiry)
	totpManager := auth.NewTOTPManager(cfg.Auth.TwoFactorIssuer)

	// Lockout tracker
	tracker := lockout.NewTracker(lockout.Policy{
		Threshold: cfg.Auth.LockoutThreshold,
		Window:    cfg.Auth.LockoutWindow,
		Duration:  cfg.Auth.LockoutDuration,
	})

	// Security event log, optionally alerting to Sentry
	auditOpts := []audit.Option{}
	notifier, err := audit.NewSentryNotifier(cfg.Alerting.SentryDSN, cfg.Server.Env)
	if err != nil {
		logger.Error("failed to initialize sentry notifier", slog.Any("error", err))
		os.Exit(1)
	}
	if notifier != nil {
		defer notifier.Flush()
		auditOpts = append(auditOpts, audit.WithNotifier(notifier))
	}
	auditLog := audit.NewLog(logger, auditOpts...)

	// Timing delay pads failure paths
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   100,
		RandomDelayMs: 100,
	})

	// Initialize services
	verifier := services.NewCredentialVerifier(userRepo, cfg.Auth.HashWorkers, logger)
	gateway := services.NewAuthGateway(services.AuthGatewayConfig{
		Users:            userRepo,
		Sessions:         sessionRepo,
		Verifier:         verifier,
		Issuer:           issuer,
		TOTP:             totpManager,
		Tracker:          tracker,
		AuditLog:         auditLog,
		Delay:            timingDelay,
		Logger:           logger,
		AttemptLogger:    pkglogger.NewAuditLogger(logger),
		RefreshExpiry:    cfg.Auth.RefreshTokenExpiry,
		RememberMeExpiry: cfg.Auth.RememberMeExpiry,
	})
	userService := services.NewUserService(userRepo, logger)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(sessionRepo, tracker, logger, cfg.Auth.CleanupInterval)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	cookieConfig := auth.CookieConfig{Secure: cfg.Auth.CookieSecure}
	authHandler := handlers.NewAuthHandler(gateway, ipConfig, cookieConfig)
	twoFactorHandler := handlers.NewTwoFactorHandler(gateway, ipConfig)
	sessionHandler := handlers.NewSessionHandler(gateway, ipConfig)
	userHandler := handlers.NewUserHandler(userService)
	auditHandler := handlers.NewAuditHandler(auditLog)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.Env, cfg.Server.AllowedOrigins)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, issuer, authHandler, twoFactorHandler, sessionHandler, userHandler, auditHandler)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
