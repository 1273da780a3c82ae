package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/background"
	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/counter"
	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/middleware"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/BradenHooton/bastion/internal/routes"
	"github.com/BradenHooton/bastion/internal/services"
	"github.com/BradenHooton/bastion/internal/threat"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
	"github.com/jonboulle/clockwork"
)

// sweepableStore is a counter store the cleanup manager can sweep
type sweepableStore interface {
	counter.Store
	background.CounterSweeper
}

func main() {
	logger := pkglogger.New(os.Stdout, os.Getenv("LOG_LEVEL"))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = pkglogger.New(os.Stdout, cfg.Server.LogLevel)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	clock := clockwork.NewRealClock()

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), time.Minute)
	err = db.Migrate(migrateCtx, "up")
	migrateCancel()
	if err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	revokeRepo := repositories.NewTokenRevocationRepository(db)
	auditRepo := repositories.NewAuditEventRepository(db)

	var counters sweepableStore
	switch cfg.Security.CounterBackend {
	case config.CounterBackendMemory:
		counters = counter.NewMemoryStore(clock)
	default:
		counters = repositories.NewCounterRepository(db, clock)
	}
	logger.Info("counter store selected", slog.String("backend", cfg.Security.CounterBackend))

	// Audit sink
	audit := services.NewAuditService(auditRepo, cfg.Security.AuditQueueSize, clock, logger)
	auditCtx, auditCancel := context.WithCancel(context.Background())
	defer auditCancel()
	go audit.Start(auditCtx)

	// Security core
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry, clock)
	limiter := services.NewRateLimitService(counters, cfg.Security.RateLimitSaturation, audit, clock, logger)
	lockout := services.NewLockoutService(accountRepo, services.LockoutConfig{
		Threshold: cfg.Security.LockoutThreshold,
		Duration:  cfg.Security.LockoutDuration,
	}, audit, clock, logger)
	activation := services.NewActivationService(accountRepo, services.ActivationConfig{
		CodeTTL:     cfg.Security.ActivationCodeTTL,
		MaxAttempts: cfg.Security.ActivationCodeMaxAttempts,
	}, clock, logger)

	// AWS SES email delivery
	notifierCtx, notifierCancel := context.WithTimeout(context.Background(), 10*time.Second)
	notifier, err := services.NewSESCodeNotifier(notifierCtx,
		cfg.Email.AWSRegion,
		cfg.Email.FromAddress,
		cfg.Email.ActivationURLBase,
		logger,
	)
	notifierCancel()
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	accountService := services.NewAccountService(accountRepo, activation, notifier, limiter, audit, services.AccountConfig{
		ResendCooldown:        cfg.Security.ActivationResendCooldown,
		RegisterFailureLimit:  cfg.Security.RegisterFailureLimit,
		RegisterFailureWindow: cfg.Security.RegisterFailureWindow,
	}, clock, logger)
	authService := services.NewAuthService(accountRepo, lockout, limiter, tokenManager, revokeRepo, audit, services.LoginConfig{
		FailureLimit:  cfg.Security.LoginFailureLimit,
		FailureWindow: cfg.Security.LoginFailureWindow,
	}, clock, logger)

	resolver, err := pkghttp.NewIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid trusted proxy configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, accountService, resolver, cfg.Security.LoginFailureWindow)
	adminHandler := handlers.NewAdminHandler(lockout, accountService, limiter)

	// Bootstrap first admin account if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminAccount(ctx, accountRepo, logger); err != nil {
		logger.Error("failed to ensure admin account", slog.Any("error", err))
	}
	cancel()

	router := routes.NewRouter(routes.Dependencies{
		Env:            cfg.Server.Env,
		Production:     cfg.Server.IsProduction(),
		RequestTimeout: 60 * time.Second,
		AuthHandler:    authHandler,
		AdminHandler:   adminHandler,
		Health:         db,
		Authenticator:  auth.NewAuthenticator(tokenManager, revokeRepo, logger),
		Detector:       threat.NewDetector(clock),
		Limiter:        limiter,
		TierPolicy: services.TierPolicy{
			Window:        cfg.Security.RateLimitWindow,
			Anonymous:     cfg.Security.AnonymousLimit,
			Authenticated: cfg.Security.AuthenticatedLimit,
			Staff:         cfg.Security.StaffLimit,
		},
		Locks:         authService,
		Audit:         audit,
		Resolver:      resolver,
		EndpointLimit: middleware.RateLimitConfig{RequestsPerMinute: cfg.Security.EndpointRequestsPerMin},
		Clock:         clock,
		Logger:        logger,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(counters, revokeRepo, clock, logger, cfg.Auth.CleanupInterval)
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
	}

	// Flush queued audit events after the last request finished
	audit.Stop()
	if dropped := audit.Dropped(); dropped > 0 {
		logger.Warn("audit events dropped during run", slog.Int64("dropped", dropped))
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminAccount creates the first admin account if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminAccount(ctx context.Context, repo *repositories.AccountRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin account creation")
		return nil
	}

	// Check if admin already exists
	_, err := repo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin account already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	if err := pkgauth.ValidatePassword(adminPassword); err != nil {
		return fmt.Errorf("admin password rejected: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	_, err = repo.Create(ctx, &models.Account{
		Email:         adminEmail,
		PasswordHash:  hashedPassword,
		Role:          models.RoleAdmin,
		IsActive:      true,
		EmailVerified: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}

	logger.Info("admin account created successfully")
	return nil
}
