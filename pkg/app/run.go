// Package app provides the shared entry point for the expiry binary and its
// service wrapper.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/flemzord/expiry/internal/config"
	"github.com/flemzord/expiry/internal/core"
	"github.com/flemzord/expiry/internal/metrics"
	"github.com/flemzord/expiry/internal/reload"
	"github.com/flemzord/expiry/internal/security"
	"github.com/flemzord/expiry/internal/settings"
	"github.com/flemzord/expiry/internal/telemetry"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel overrides log.level from the configuration when non-empty.
	LogLevel string

	// Stop, when set, ends the loop like SIGTERM does. The service wrapper
	// uses it because the service manager owns the process signals.
	Stop <-chan struct{}
}

// Runtime is a loaded, not yet started application.
type Runtime struct {
	App      *core.App
	Logger   *slog.Logger
	Config   *config.Config
	Handler  *reload.Handler
	shutdown telemetry.ShutdownFunc
}

// Close stops the modules, releases any that never started, and flushes
// traces.
func (rt *Runtime) Close(ctx context.Context) {
	rt.App.Stop()
	rt.App.Close()
	if err := rt.shutdown(ctx); err != nil {
		rt.Logger.Warn("telemetry shutdown failed", "error", err)
	}
}

// Load reads and validates the configuration, builds the logger and
// shared services, and loads every configured module. The caller must
// Start the returned App, or Close the runtime to release resources.
func Load(ctx context.Context, params RunParams, out io.Writer) (*Runtime, error) {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if params.LogLevel != "" {
		cfg.Log.Level = params.LogLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Log.SlogLevel())

	redactor := security.NewRedactor()
	redactor.SetLiterals(reload.ConfigSecrets(cfg))
	logger := slog.New(security.NewRedactingHandler(newLogHandler(out, cfg.Log.Format, level), redactor))

	shutdown, err := telemetry.Setup(ctx, cfg.Tracing, params.Version)
	if err != nil {
		return nil, err
	}

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)

	settingsStore := settings.NewStore(cfg.Settings)
	appCtx.RegisterService(metrics.RegistryService, metrics.NewRegistry())
	appCtx.RegisterService(settings.ServiceName, settingsStore)
	appCtx.RegisterService("config.path", cfgPath)

	application := core.NewApp(appCtx)
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	// Registered before Start so the gateway can pick it up.
	handler := reload.NewHandler(reload.HandlerParams{
		App:      application,
		Logger:   logger,
		Settings: settingsStore,
		LogLevel: level,
		Redactor: redactor,
	})
	appCtx.RegisterService("reload.handler", handler)

	logger.Info("configuration loaded",
		"path", cfgPath,
		"version", params.Version,
		"modules", len(application.ModuleIDs()),
	)

	return &Runtime{
		App:      application,
		Logger:   logger,
		Config:   cfg,
		Handler:  handler,
		shutdown: shutdown,
	}, nil
}

// Run loads configuration, starts all modules, and blocks until a shutdown
// signal is received. SIGHUP and file-change events trigger a live
// configuration reload.
func Run(params RunParams) error {
	ctx := context.Background()

	rt, err := Load(ctx, params, os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	if err := rt.App.Start(); err != nil {
		return err
	}

	cfgPath := params.ConfigPath
	if cfgPath == "" {
		cfgPath, _ = ResolveConfigPath()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	watcher := reload.NewWatcher(reload.WatcherConfig{ConfigPath: cfgPath})
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	watcher.Start(watchCtx)
	defer watcher.Stop()

	logger := rt.Logger
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("SIGHUP received, reloading configuration")
				if err := rt.Handler.HandleReload(watchCtx, cfgPath); err != nil {
					logger.Error("reload failed", "error", err)
				}
				continue
			}
			logger.Info("shutdown signal received", "signal", sig.String())
			return nil
		case <-params.Stop:
			logger.Info("stop requested")
			return nil
		case evt := <-watcher.Events():
			if evt.Type == reload.EventRemoved {
				logger.Warn("config file removed, keeping current configuration", "path", evt.ConfigPath)
				continue
			}
			logger.Info("config file changed, reloading", "path", evt.ConfigPath)
			if err := rt.Handler.HandleReload(watchCtx, cfgPath); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}
}

func newLogHandler(out io.Writer, format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/expiry/expiry.yaml → ~/.config/expiry/expiry.yaml → ./expiry.yaml
func ResolveConfigPath() (string, error) {
	candidates := ConfigCandidates()
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// ConfigCandidates lists the locations ResolveConfigPath searches, in order.
func ConfigCandidates() []string {
	var candidates []string
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "expiry", "expiry.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "expiry", "expiry.yaml"))
	}
	return append(candidates, "expiry.yaml")
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/expiry if set, otherwise ~/.local/share/expiry.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "expiry")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "expiry")
}
