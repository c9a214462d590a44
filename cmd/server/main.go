// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "micmgmt-service/docs"
	"micmgmt-service/internal/config"
	"micmgmt-service/internal/database"
	"micmgmt-service/internal/device"
	"micmgmt-service/internal/discovery"
	"micmgmt-service/internal/handler"
	"micmgmt-service/internal/repository"
	"micmgmt-service/internal/routes"
	"micmgmt-service/internal/scif"
	"micmgmt-service/internal/service"
	"micmgmt-service/internal/utils"
)

const (
	memorySampleCapacity = 50000
	shutdownTimeout      = 30 * time.Second
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB

	manager  *device.Manager
	eventBus *service.EventBus

	// Services
	deviceService    *service.DeviceService
	operationService *service.OperationService
	discoveryService *service.DiscoveryService
	sampler          *service.Sampler
	wsHandler        *handler.WebSocketHandler

	// Repositories
	telemetryRepo repository.TelemetryRepository
	operationRepo repository.OperationRepository
}

// @title MIC Management Service API
// @version 1.0.0
// @description Management daemon for Knights Landing coprocessor cards: sensor queries, controls, SMC register access and telemetry history

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8084
// @BasePath /api/v1
func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		app.logger.Error("Application stopped with error", zap.Error(err))
		utils.CloseLogger(app.logger)
		os.Exit(1)
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "micmgmt-service")
	serviceLogger.LogServiceStart(cfg.App.Version,
		zap.String("environment", cfg.App.Environment),
		zap.Bool("database", cfg.Database.Enabled),
		zap.String("sysfs_root", cfg.Device.SysfsRoot),
	)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.initializeRepositories()
	app.initializeServices()
	app.initializeServer()

	return app, nil
}

// initializeDatabase sets up database connection and runs migrations
func (app *Application) initializeDatabase() error {
	if !app.config.Database.Enabled {
		app.logger.Info("Database disabled, keeping history in memory")
		return nil
	}

	db, err := database.NewConnection(app.config, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	migrator := database.NewMigrator(db, app.logger, &app.config.Database)
	if err := migrator.Up(); err != nil {
		db.Close()
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeRepositories creates repository instances
func (app *Application) initializeRepositories() {
	if app.database != nil {
		app.telemetryRepo = repository.NewTelemetryRepository(app.database, app.logger)
		app.operationRepo = repository.NewOperationRepository(app.database, app.logger)
	} else {
		app.telemetryRepo = repository.NewMemoryTelemetryRepository(memorySampleCapacity)
		app.operationRepo = repository.NewMemoryOperationRepository()
	}
	app.logger.Info("Repositories initialized successfully", zap.Bool("persistent", app.database != nil))
}

// initializeServices creates service instances
func (app *Application) initializeServices() {
	deviceConfig := device.ConfigFromSettings(app.config, scif.IsAdministrator())
	app.manager = device.NewManager(deviceConfig, app.logger)
	app.eventBus = service.NewEventBus(app.logger)

	scanner := discovery.NewSysfsScanner(app.config.Device.SysfsRoot, app.logger)
	app.discoveryService = service.NewDiscoveryService(scanner, app.manager, app.eventBus, app.config, app.logger)
	app.deviceService = service.NewDeviceService(app.manager, app.discoveryService, app.eventBus, app.config, app.logger)
	app.operationService = service.NewOperationService(app.manager, app.operationRepo, app.eventBus, app.config, app.logger)
	app.sampler = service.NewSampler(
		app.manager,
		app.discoveryService,
		app.deviceService,
		app.telemetryRepo,
		app.operationRepo,
		app.eventBus,
		app.config,
		app.logger,
	)
	app.wsHandler = handler.NewWebSocketHandler(app.eventBus, &app.config.Security, app.logger)

	app.logger.Info("Services initialized successfully",
		zap.Bool("privileged_bind", deviceConfig.SCIF.PrivilegedBind),
		zap.String("scif_library", deviceConfig.SCIF.LibraryName),
	)
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.deviceService,
		app.operationService,
		app.discoveryService,
		app.sampler,
		app.wsHandler,
	)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      routerManager.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
		zap.Bool("tls_enabled", app.config.Server.TLS.Enabled),
	)
}

// Run discovers the cards, starts the background loops and serves HTTP until
// ctx is cancelled.
func (app *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if _, err := app.discoveryService.Sync(ctx); err != nil {
		app.logger.Warn("Initial card scan failed", zap.Error(err))
	}
	if app.config.Device.OpenOnStart {
		app.deviceService.OpenAll(ctx)
	}

	var wg sync.WaitGroup
	background := func(run func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(ctx)
		}()
	}
	background(app.eventBus.Start)
	background(app.wsHandler.Start)
	background(app.sampler.Run)
	app.logger.Info("Background services started")

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))

		var err error
		if app.config.Server.TLS.Enabled {
			err = app.server.ListenAndServeTLS(app.config.Server.TLS.CertFile, app.config.Server.TLS.KeyFile)
		} else {
			err = app.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info("Received shutdown signal")
	case err := <-serverErr:
		runErr = fmt.Errorf("HTTP server failed: %w", err)
	}

	app.stopServer()
	cancel()
	wg.Wait()
	app.shutdown()
	return runErr
}

func (app *Application) stopServer() {
	serviceLogger := utils.NewServiceLogger(app.logger, "micmgmt-service")
	serviceLogger.LogServiceStop("shutdown requested")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}
}

// shutdown releases the cards and the database once the loops have stopped
func (app *Application) shutdown() {
	if err := app.deviceService.CloseAll(); err != nil {
		app.logger.Error("Failed to close devices", zap.Error(err))
	}

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		}
	}

	app.logger.Info("Application shutdown completed")
	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}
