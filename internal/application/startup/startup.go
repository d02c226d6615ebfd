// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dnastack/ddap-admin/internal/application/container"
	"github.com/dnastack/ddap-admin/internal/application/realm"
	"github.com/dnastack/ddap-admin/internal/infrastructure/dam"
	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
	"github.com/dnastack/ddap-admin/internal/infrastructure/persistence/damdb"
	"github.com/dnastack/ddap-admin/internal/presentation/http/fakedam"
	"github.com/dnastack/ddap-admin/internal/presentation/http/server"
	"github.com/dnastack/ddap-admin/pkg/config"
)

const shutdownTimeout = 30 * time.Second

// NewLogger builds the channeled logger from the logging settings.
func NewLogger() (*logging.ChanneledLogger, error) {
	level, err := logging.ParseLevel(config.LogLevel)
	if err != nil {
		log.Printf("Invalid LOG_LEVEL %q, using INFO", config.LogLevel)
		level = slog.LevelInfo
	}

	cfg := logging.DefaultLoggerConfig()
	cfg.DefaultLevel = level
	cfg.JSONFormat = config.LogJSON
	cfg.OutputToFile = config.LogToFile
	cfg.LogDirectory = config.LogDirectory
	return logging.NewChanneledLogger(cfg)
}

// NewTransport builds the DAM transport from the DAM settings.
func NewTransport(logger *logging.ChanneledLogger) *dam.HTTPTransport {
	return dam.NewHTTPTransport(logger,
		dam.WithRequestTimeout(config.DamRequestTimeout),
		dam.WithRetryBackoffs(config.DamRetryBackoffs...),
	)
}

// Initialize runs the admin console until SIGINT or SIGTERM.
func Initialize() error {
	setupLogging()
	start := time.Now().UTC()

	logger, err := NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	// Step 1: Load the DAM registry
	logger.Startup().Info("Loading DAM registry", "path", config.DamRegistryPath)
	registry, err := dam.LoadRegistry(config.DamRegistryPath)
	if err != nil {
		return fmt.Errorf("failed to load DAM registry: %w", err)
	}
	logger.Startup().Info("DAM registry loaded", "dams", registry.IDs())

	// Step 2: Create dependency injection container
	appContainer := container.NewContainer(registry, NewTransport(logger), logger)
	logger.Startup().Info("Dependency injection container created")

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	// Step 3: Warm the default realm so the first page load is served from cache
	if _, err := appContainer.RealmManager.Get(config.DefaultRealm); err != nil {
		logger.Startup().Warn("Default realm not opened", "realm", config.DefaultRealm, "error", err)
	}

	// Step 4: Start background workers
	go appContainer.StatusBroadcaster.Run(ctx)
	cleanupWorker := realm.NewCleanupWorker(appContainer.RealmManager, realm.NewCleanupConfig())
	go cleanupWorker.Start(ctx)
	logger.Startup().Info("Background workers started", "statusInterval", config.StatusBroadcastInterval, "cleanupInterval", config.RealmCleanupInterval)

	// Step 5: Start HTTP server
	httpServer := server.New(config.Port, appContainer)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	logger.Startup().Info("Application startup complete", "totalDuration", time.Since(start), "port", config.Port)

	err = waitForShutdown(serverErr)
	shutdownStart := time.Now()
	logger.Shutdown().Info("Starting graceful shutdown")
	cancelBackgroundTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if stopErr := httpServer.Stop(shutdownCtx); stopErr != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", stopErr.Error())
	}

	appContainer.Close()
	logger.Shutdown().Info("Application shutdown complete", "totalUptime", time.Since(start), "shutdownDuration", time.Since(shutdownStart))
	return err
}

// FakeDamOptions configures RunFakeDam.
type FakeDamOptions struct {
	Port         string
	Label        string
	ClientID     string
	ClientSecret string
}

// RunFakeDam serves the DAM emulator until SIGINT or SIGTERM.
func RunFakeDam(opts FakeDamOptions) error {
	setupLogging()

	logger, err := NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	db, err := damdb.Open(context.Background(), damdb.ConfigFromEnv(), logger)
	if err != nil {
		return fmt.Errorf("failed to open fake DAM database: %w", err)
	}
	defer db.Close()

	handlers := fakedam.NewHandlers(damdb.NewRepository(db), fakedam.Options{
		Label:        opts.Label,
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		SeedRealms:   true,
	}, logger)
	httpServer := server.NewWithHandler(opts.Port, fakedam.SetupRoutes(handlers), nil)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()
	logger.Startup().Info("Fake DAM listening", "addr", httpServer.Addr(), "turso", db.UseTurso)

	err = waitForShutdown(serverErr)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if stopErr := httpServer.Stop(shutdownCtx); stopErr != nil {
		logger.Shutdown().Error("Error during fake DAM shutdown", "error", stopErr.Error())
	}
	return err
}

// waitForShutdown blocks until a signal arrives or the server exits on its own.
func waitForShutdown(serverErr <-chan error) error {
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(gracefulShutdown)

	select {
	case <-gracefulShutdown:
		return nil
	case err := <-serverErr:
		return err
	}
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
