/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave credit engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment), apply flag overrides
  2. Build the zap logger
  3. Open the SQLite store (migrations run on open)
  4. Load the leave catalog (default CSC catalog or LEAVE_CATALOG_PATH)
  5. Start the notification queue (log sink, plus SMTP when enabled)
  6. Build the engine, HTTP router and cron scheduler
  7. Serve until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -addr    Listen address (overrides APP_ADDR)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler, waiting for a running job
  2. Stop accepting new connections, drain active requests (30s timeout)
  3. Drain queued notifications
  4. Close database connection

ENVIRONMENT:
  See config/config.go for every key.

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Cron jobs
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/govhr/leave-engine/api"
	"github.com/govhr/leave-engine/config"
	"github.com/govhr/leave-engine/factory"
	"github.com/govhr/leave-engine/leave"
	"github.com/govhr/leave-engine/notify"
	"github.com/govhr/leave-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "leave-engine: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	// Flags
	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	cfg.Addr, cfg.DBPath = *addr, *dbPath

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
		logger.Warn("JWT_SECRET not set, using the development secret")
	}

	// Initialize store
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	registry, err := factory.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load leave catalog: %w", err)
	}
	logger.Info("leave catalog loaded",
		zap.String("path", cfg.CatalogPath),
		zap.Int("categories", len(registry.All())))

	// Notifications are delivered off the request path
	sinks := notify.Fanout{notify.LogSink{Logger: logger.Named("notify")}}
	if cfg.EmailEnabled {
		sinks = append(sinks, notify.MailSink{Mailer: notify.NewMailer(cfg), From: cfg.EmailFrom})
	}
	queue := notify.NewQueue(sinks, cfg.NotifyQueueSize, logger.Named("notify"))

	engine := leave.NewEngine(store, registry,
		leave.WithNotifier(queue),
		leave.WithLogger(logger.Named("engine")),
	)

	handler := api.NewHandler(engine, store, logger.Named("api"), cfg.AlertWindowDays)
	router := api.NewRouter(handler, api.RouterConfig{
		JWTSecret:   cfg.JWTSecret,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger.Named("http"),
	})

	var scheduler *api.Scheduler
	if cfg.SchedulerEnabled {
		scheduler, err = api.NewScheduler(engine, api.ScheduleConfig{
			AccrualSpec:     cfg.AccrualSchedule,
			SweepSpec:       cfg.ExpirySweepSchedule,
			AlertWindowDays: cfg.AlertWindowDays,
		}, logger.Named("scheduler"))
		if err != nil {
			return err
		}
		scheduler.Start()
	} else {
		logger.Info("scheduler disabled")
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Addr), zap.String("env", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if scheduler != nil {
		if err := scheduler.Stop(ctx); err != nil {
			logger.Warn("scheduler did not stop cleanly", zap.Error(err))
		}
	}
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := queue.Close(ctx); err != nil {
		logger.Warn("notification queue not drained", zap.Error(err))
	}

	logger.Info("server stopped")
	return nil
}

// newLogger builds a JSON production logger or a console development
// logger, at LOG_LEVEL.
func newLogger(cfg config.Config) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.IsProduction() {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zapConfig.Level = level
	zapConfig.EncoderConfig.FunctionKey = "func"
	return zapConfig.Build()
}
