package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/background"
	"github.com/BradenHooton/sentinel/internal/config"
	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/handlers"
	middlewareCustom "github.com/BradenHooton/sentinel/internal/middleware"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/repositories"
	"github.com/BradenHooton/sentinel/internal/routes"
	"github.com/BradenHooton/sentinel/internal/services"
	pkgauth "github.com/BradenHooton/sentinel/pkg/auth"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	pkglogger "github.com/BradenHooton/sentinel/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := pkglogger.New(os.Stdout, cfg.Server.LogLevel, cfg.Server.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), time.Minute)
	db, err := database.NewConnection(connectCtx, &cfg.Database, logger)
	cancelConnect()
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	lockoutRepo := repositories.NewLockoutRepository(db)
	resetTokenRepo := repositories.NewResetTokenRepository(db)
	deviceRepo := repositories.NewDeviceRepository(db)
	eventRepo := repositories.NewSecurityEventRepository(db)

	windowStore, closeWindowStore, err := newWindowCounterStore(cfg, db, logger)
	if err != nil {
		logger.Error("failed to initialize window counter store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeWindowStore()

	// Email delivery
	var (
		mailer      services.MailSender
		resetMailer services.ResetMailer
		notifier    services.Notifier = services.NopNotifier{}
	)
	if cfg.Email.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		ses, err := services.NewSESMailer(ctx, cfg.Email.AWSRegion, cfg.Email.FromAddress, cfg.Email.ResetURLBase, logger)
		cancel()
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		mailer, resetMailer = ses, ses
		notifier = services.NewEmailNotifier(accountRepo, mailer, logger)
	} else {
		nop := services.NopMailer{Logger: logger}
		mailer, resetMailer = nop, nop
		logger.Info("email delivery disabled")
	}

	var resolver services.LocationResolver = services.StaticLocationResolver{}
	if cfg.Risk.ResolverURL != "" {
		resolver = services.NewHTTPLocationResolver(&http.Client{Timeout: cfg.Risk.ResolverTimeout}, cfg.Risk.ResolverURL, logger)
	}

	// Initialize services
	timing := auth.NewTimingDelay(auth.TimingConfig{Base: cfg.Timing.Base, Jitter: cfg.Timing.Jitter})
	auditService := services.NewAuditService(eventRepo, logger)

	lockoutService := services.NewLockoutService(lockoutRepo, auditService, services.LockoutConfig{
		Enabled:           cfg.Lockout.Enabled,
		MaxFailedAttempts: cfg.Lockout.MaxFailedAttempts,
		Window:            cfg.Lockout.Window,
		Duration:          cfg.Lockout.Duration,
	}, logger)

	rateLimitService := services.NewRateLimitService(windowStore, services.RateLimitConfig{
		EmailMax: cfg.RateLimit.EmailMax,
		IPMax:    cfg.RateLimit.IPMax,
		Window:   cfg.RateLimit.Window,
	}, logger)

	tokenService := services.NewResetTokenService(resetTokenRepo, cfg.Reset.TTL, logger)
	deviceService := services.NewDeviceService(deviceRepo, auditService, logger)

	riskService := services.NewRiskService(accountRepo, eventRepo, deviceService, resolver, services.RiskConfig{
		ResolverTimeout:  cfg.Risk.ResolverTimeout,
		UnusualHourStart: cfg.Risk.UnusualHourStart,
		UnusualHourEnd:   cfg.Risk.UnusualHourEnd,
		FailureLookback:  cfg.Risk.FailureLookback,
		FailureThreshold: cfg.Risk.FailureThreshold,
		NewAccountAge:    cfg.Risk.NewAccountAge,
		HistoryLookback:  cfg.Risk.HistoryLookback,
	}, logger)

	analyzer := services.NewAuditAnalyzer(eventRepo, notifier, services.AuditAnalyzerConfig{
		RuleCap:       cfg.Audit.RuleCap,
		TotalCap:      cfg.Audit.TotalCap,
		MaxScan:       cfg.Audit.MaxScan,
		OffHoursStart: cfg.Risk.UnusualHourStart,
		OffHoursEnd:   cfg.Risk.UnusualHourEnd,
	}, logger)

	loginService := services.NewLoginService(accountRepo, lockoutService, riskService, deviceService, auditService, notifier, timing, logger)
	resetService := services.NewPasswordResetService(accountRepo, rateLimitService, tokenService, lockoutService,
		resetMailer, auditService, timing, cfg.Reset.TTL, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureSeedAccount(ctx, accountRepo, logger); err != nil {
		logger.Error("failed to ensure seed account", slog.Any("error", err))
	}
	cancel()

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager([]background.CleanupTask{
		{Name: "reset_rate_limits", Run: rateLimitService.Cleanup},
		{Name: "reset_tokens", Run: tokenService.CleanupExpired},
		{Name: "inactive_devices", Run: func(ctx context.Context) (int64, error) {
			return deviceService.CleanupInactive(ctx, cfg.Device.InactivityDays)
		}},
	}, logger, cfg.Cleanup.Interval)

	// Setup router
	ipConfig := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	publicLimit := middlewareCustom.DefaultPublicRateLimit(ipConfig)
	publicLimit.RequestsPerMinute = cfg.Server.PublicRequestsPerMinute

	routes.RegisterRoutes(router, routes.Handlers{
		Login:   handlers.NewLoginHandler(loginService, ipConfig, logger),
		Reset:   handlers.NewPasswordResetHandler(resetService, ipConfig, logger),
		Lockout: handlers.NewLockoutHandler(lockoutService, logger),
		Devices: handlers.NewDeviceHandler(deviceService, logger),
		Audit:   handlers.NewAuditHandler(analyzer, logger),
		Health:  handlers.NewHealthHandler(db, logger),
	}, publicLimit, cfg.Server.AdminAPIKey)

	if cfg.Server.AdminAPIKey == "" {
		logger.Warn("ADMIN_API_KEY not set, administrative routes are disabled")
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	// Let unusual-activity alerts already dispatched finish sending
	loginService.Wait()

	logger.Info("server stopped gracefully")
}

// newWindowCounterStore picks the reset rate limit backend. The returned func
// releases whatever the store holds open.
func newWindowCounterStore(cfg *config.Config, db *database.DB, logger *slog.Logger) (services.WindowCounterStore, func(), error) {
	if cfg.RateLimit.Backend != "redis" {
		return repositories.NewWindowCounterRepository(db), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("unable to reach redis: %w", err)
	}

	logger.Info("using redis window counter store", slog.String("addr", cfg.Redis.Addr))
	// Keys outlive the cleanup horizon so Cleanup and expiry agree
	store := repositories.NewRedisWindowCounterStore(client, "", 2*cfg.RateLimit.Window)
	return store, func() { _ = client.Close() }, nil
}

// ensureSeedAccount creates a local account when SEED_ACCOUNT_EMAIL and
// SEED_ACCOUNT_PASSWORD are set. Accounts are otherwise owned by the identity service.
func ensureSeedAccount(ctx context.Context, accounts *repositories.AccountRepository, logger *slog.Logger) error {
	email := strings.ToLower(strings.TrimSpace(os.Getenv("SEED_ACCOUNT_EMAIL")))
	password := os.Getenv("SEED_ACCOUNT_PASSWORD")

	if email == "" || password == "" {
		return nil
	}

	_, err := accounts.GetByEmail(ctx, email)
	if err == nil {
		logger.Info("seed account already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check seed account: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash seed account password: %w", err)
	}

	if _, err := accounts.Create(ctx, &models.Account{Email: email, PasswordHash: hashedPassword}); err != nil {
		return fmt.Errorf("failed to create seed account: %w", err)
	}

	logger.Info("seed account created", slog.String("email", pkglogger.SanitizedEmail(email)))
	return nil
}
