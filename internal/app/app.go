// Package app wires the deptrack components together: configuration,
// logging, the sqlite state store, the fact source, the alert engine and
// the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deptrack/deptrack/internal/alerting"
	"github.com/deptrack/deptrack/internal/config"
	"github.com/deptrack/deptrack/internal/facts"
	"github.com/deptrack/deptrack/internal/server"
	"github.com/deptrack/deptrack/internal/sqlite"
	"github.com/deptrack/deptrack/pkg/logger"
)

// App holds the application's wired components.
type App struct {
	Config  *config.Config
	SQLite  *sqlite.DB
	Logger  *slog.Logger
	Engine  *alerting.Engine
	Version string

	server *server.Server
}

// Options contains configuration needed when creating a new App instance.
type Options struct {
	ConfigPath string
	Version    string
}

// New creates and configures a new App instance.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &App{
		Config:  cfg,
		Logger:  logger.New(cfg.Logging.Level == "debug"),
		Version: opts.Version,
	}, nil
}

// Initialize sets up the database, fact source, engine and HTTP server.
func (a *App) Initialize(ctx context.Context) error {
	var err error

	a.SQLite, err = sqlite.New(sqlite.Options{
		Config: a.Config.SQLite,
		Logger: a.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sqlite: %w", err)
	}

	var source alerting.FactSource
	if a.Config.Facts.Path != "" {
		source, err = facts.NewFileSource(a.Config.Facts.Path)
		if err != nil {
			return fmt.Errorf("failed to initialize fact source: %w", err)
		}
		a.Logger.Info("using file-backed fact source", "path", a.Config.Facts.Path)
	} else {
		return fmt.Errorf("facts.path is required when running standalone")
	}

	a.Engine = alerting.New(alerting.Options{
		Config:  a.Config.Alerts,
		DB:      a.SQLite,
		Facts:   source,
		Devices: facts.NewLogDeviceWriter(a.Logger),
		Logger:  a.Logger,
	})

	a.server = server.New(server.Options{
		Config: a.Config,
		Logger: a.Logger,
		DB:     a.SQLite,
		Engine: a.Engine,
	})
	return nil
}

// Start runs the HTTP server. It blocks until the listener stops.
func (a *App) Start() error {
	a.Logger.Info("starting deptrack", "version", a.Version)
	return a.server.Start()
}

// Shutdown stops the server and closes the database.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down")
	if a.server != nil {
		if err := a.server.Shutdown(); err != nil {
			a.Logger.Error("failed to shut down server", "error", err)
		}
	}
	if a.SQLite != nil {
		if err := a.SQLite.Close(); err != nil {
			return fmt.Errorf("failed to close sqlite: %w", err)
		}
	}
	return nil
}
