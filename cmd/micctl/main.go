// cmd/micctl/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertbit/grumble"
	"go.uber.org/zap"

	"micmgmt-service/internal/config"
	"micmgmt-service/internal/device"
	"micmgmt-service/internal/discovery"
	"micmgmt-service/internal/repository"
	"micmgmt-service/internal/scif"
	"micmgmt-service/internal/service"
	"micmgmt-service/internal/utils"
)

// session holds the services the shell commands drive. It talks to the
// local cards directly; no daemon is required.
type session struct {
	config     *config.Config
	logger     *zap.Logger
	cancel     context.CancelFunc
	discovery  *service.DiscoveryService
	devices    *service.DeviceService
	operations *service.OperationService
}

var current *session

func main() {
	app := setupCLI()
	AddCommands(app)

	if err := app.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupCLI() *grumble.App {
	histFile := ".micctl_history"
	if home, err := os.UserHomeDir(); err == nil {
		histFile = filepath.Join(home, ".micctl_history")
	}

	app := grumble.New(&grumble.Config{
		Name:        "micctl",
		Description: "interactive management shell for Knights Landing coprocessors",
		HistoryFile: histFile,
		Prompt:      "micctl » ",
		Flags: func(f *grumble.Flags) {
			f.String("c", "config", "", "directory holding config.yaml")
			f.String("l", "log-level", "warn", "log level written to stderr")
		},
	})

	app.OnInit(func(a *grumble.App, flags grumble.FlagMap) error {
		s, err := newSession(flags.String("config"), flags.String("log-level"))
		if err != nil {
			return err
		}
		current = s
		return nil
	})

	app.OnClose(func() error {
		if current == nil {
			return nil
		}
		return current.close()
	})

	return app
}

func newSession(configDir, logLevel string) (*session, error) {
	var paths []string
	if configDir != "" {
		paths = append(paths, configDir)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Shell output goes to stdout; keep logs out of the way.
	cfg.Logging.Output = "stderr"
	cfg.Logging.Format = "console"
	cfg.Logging.Level = logLevel
	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	eventBus := service.NewEventBus(logger)
	go eventBus.Start(ctx)

	manager := device.NewManager(device.ConfigFromSettings(cfg, scif.IsAdministrator()), logger)
	scanner := discovery.NewSysfsScanner(cfg.Device.SysfsRoot, logger)
	discoveryService := service.NewDiscoveryService(scanner, manager, eventBus, cfg, logger)

	s := &session{
		config:     cfg,
		logger:     logger,
		cancel:     cancel,
		discovery:  discoveryService,
		devices:    service.NewDeviceService(manager, discoveryService, eventBus, cfg, logger),
		operations: service.NewOperationService(manager, repository.NewMemoryOperationRepository(), eventBus, cfg, logger),
	}

	if _, err := discoveryService.Sync(ctx); err != nil {
		logger.Warn("Card scan failed", zap.Error(err))
	}
	return s, nil
}

func (s *session) close() error {
	err := s.devices.CloseAll()
	s.cancel()
	utils.CloseLogger(s.logger)
	return err
}
