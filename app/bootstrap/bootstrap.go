package bootstrap

import (
	"log"

	"github.com/aihub/ragbot/internal/config"
	"github.com/aihub/ragbot/internal/di"
	"github.com/aihub/ragbot/internal/logger"
	"github.com/joho/godotenv"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// App encapsulates the loaded configuration, the DI container and the
// resources that need to be cleaned up on shutdown.
type App struct {
	Config    *config.Config
	container *dig.Container
}

// Init loads .env and configuration, initializes the logger and registers
// every provider. Components are built lazily on first Invoke.
func Init(configFile string) (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.NewConfigLoader().WithFile(configFile).Load()
	if err != nil {
		return nil, err
	}

	if err := logger.InitLogger(cfg.App.Env, cfg.App.LogLevel); err != nil {
		return nil, err
	}

	container := di.InitContainer()
	if err := di.RegisterProviders(container, cfg); err != nil {
		return nil, err
	}

	logger.Info("application bootstrapped",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("store", cfg.Store.Path))
	return &App{Config: cfg, container: container}, nil
}

// Invoke resolves the function's arguments from the container and calls it.
func (a *App) Invoke(function interface{}) error {
	return a.container.Invoke(function)
}

// Shutdown closes resources gracefully and flushes the logger.
func (a *App) Shutdown() {
	if err := a.container.Invoke(func(lc *di.Lifecycle) { lc.Stop() }); err != nil {
		log.Printf("Cleanup error: %v\n", err)
	}
	logger.Sync()
}
