package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flexidesk/backend/internal/application/balance"
	"github.com/flexidesk/backend/internal/application/evidence"
	"github.com/flexidesk/backend/internal/application/exports"
	identityapp "github.com/flexidesk/backend/internal/application/identity"
	"github.com/flexidesk/backend/internal/application/matching"
	"github.com/flexidesk/backend/internal/infrastructure/auth"
	"github.com/flexidesk/backend/internal/infrastructure/cache"
	"github.com/flexidesk/backend/internal/infrastructure/config"
	"github.com/flexidesk/backend/internal/infrastructure/flexi"
	"github.com/flexidesk/backend/internal/infrastructure/logger"
	"github.com/flexidesk/backend/internal/infrastructure/migration"
	"github.com/flexidesk/backend/internal/infrastructure/persistence"
	"github.com/flexidesk/backend/internal/infrastructure/storage"
	"github.com/flexidesk/backend/internal/infrastructure/telemetry"
	"github.com/flexidesk/backend/internal/interfaces/http/handler"
	"github.com/flexidesk/backend/internal/interfaces/http/middleware"
	"github.com/flexidesk/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const slowQueryThreshold = 200 * time.Millisecond

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logger.DefaultTimeFormat,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	telCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsEnabled:    cfg.Telemetry.MetricsEnabled,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	logProvider, err := telemetry.NewLoggerProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	log = logProvider.Bridge(log, logger.ParseLevel(cfg.Telemetry.LogsLevel))
	defer func() {
		for name, shutdown := range map[string]func(context.Context) error{
			"tracer": tracerProvider.Shutdown,
			"meter":  meterProvider.Shutdown,
			"logs":   logProvider.Shutdown,
		} {
			if err := shutdown(context.Background()); err != nil {
				log.Error("Telemetry shutdown failed", zap.String("provider", name), zap.Error(err))
			}
		}
	}()

	log.Info("Starting Flexidesk",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", cfg.App.Version),
	)

	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithLogger(logger.NewGormLogger(log, logger.GormLevel(cfg.Log.Level), slowQueryThreshold)),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Telemetry.DBTraceEnabled {
		if err := db.EnableTracing(); err != nil {
			log.Fatal("Failed to enable database tracing", zap.Error(err))
		}
	}
	if cfg.Database.AutoMigrate {
		if err := migrate(cfg, log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}
	log.Info("Database connected", zap.String("driver", db.Driver()))

	revocation, err := cache.NewRevocationBackend(ctx, cfg.Redis, cfg.IsProduction(), log)
	if err != nil {
		log.Fatal("Failed to initialize session revocation", zap.Error(err))
	}
	defer func() {
		_ = revocation.Close()
	}()

	flexiClient, err := flexi.NewClient(flexi.Config{
		BaseURL:         cfg.Flexi.BaseURL,
		Company:         cfg.Flexi.Company,
		Username:        cfg.Flexi.Username,
		Password:        cfg.Flexi.Password,
		Timeout:         cfg.Flexi.Timeout,
		MaxResponseSize: cfg.Flexi.MaxResponseSize,
	}, flexi.WithLogger(log))
	if err != nil {
		log.Fatal("Invalid Flexi configuration", zap.Error(err))
	}

	archive, err := newArchive(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize export archive", zap.Error(err))
	}
	publisher := exports.NewPublisher(archive)

	userRepo := persistence.NewGormUserRepository(db.DB)
	sessions := auth.NewSessionService(cfg.Session)
	authService := identityapp.NewAuthService(userRepo, sessions, revocation.Store, log)
	userService := identityapp.NewUserService(userRepo, revocation.Store, sessions.MaxAge(), log)

	if _, err := userService.EnsureDefaultAdmin(ctx, cfg.Session.AdminDefaultPassword); err != nil {
		log.Error("Failed to seed default admin", zap.Error(err))
	}

	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitEnabled {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		defer limiter.Stop()
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	middleware.SetupValidator()
	engine, err := router.New(router.Options{
		Logger:        log,
		HTTP:          cfg.HTTP,
		Tracing:       middleware.TracingConfig{ServiceName: cfg.Telemetry.ServiceName, Enabled: tracerProvider.IsEnabled()},
		Meter:         meterProvider.Meter(telemetry.TracerName),
		RateLimiter:   limiter,
		Authenticator: authService,
	}, router.Handlers{
		Auth:     handler.NewAuthHandler(authService, userService, cfg.Session),
		Balance:  handler.NewBalanceHandler(balance.NewService(flexiClient, publisher)),
		Matching: handler.NewMatchingHandler(matching.NewService(flexiClient, publisher)),
		Evidence: handler.NewEvidenceHandler(evidence.NewService(flexiClient)),
		Export:   handler.NewExportHandler(publisher),
		System: handler.NewSystemHandler(cfg.App.Version, map[string]handler.Pinger{
			"database":   db,
			"revocation": revocation,
		}),
	})
	if err != nil {
		log.Fatal("Failed to build router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return
	}
	log.Info("Server exited gracefully")
}

// migrate runs the embedded migrations on a dedicated connection.
func migrate(cfg *config.Config, log *zap.Logger) error {
	sqlDB, err := migration.Open(&cfg.Database)
	if err != nil {
		return err
	}
	m, err := migration.New(sqlDB, cfg.Database.Driver, log)
	if err != nil {
		_ = sqlDB.Close()
		return err
	}
	defer func() {
		_ = m.Close()
	}()
	return m.Up()
}

func newArchive(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.ExportArchive, error) {
	if !cfg.Storage.Enabled {
		log.Info("Export archive disabled")
		return storage.DisabledArchive{}, nil
	}
	archive, err := storage.NewS3Archive(ctx, &cfg.Storage, storage.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if err := archive.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	log.Info("Export archive enabled", zap.String("bucket", archive.Bucket()))
	return archive, nil
}
