package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/expiry/internal/config"
	"github.com/flemzord/expiry/internal/core"
	"github.com/flemzord/expiry/internal/security"
	"github.com/flemzord/expiry/internal/settings"
)

// Handler reloads application configuration and notifies modules.
type Handler struct {
	app      *core.App
	logger   *slog.Logger
	settings *settings.Store
	level    *slog.LevelVar
	redactor *security.Redactor
}

// HandlerParams wires a Handler. Settings, LogLevel and Redactor are
// optional; when set they are updated in place from the reloaded
// configuration.
type HandlerParams struct {
	App      *core.App
	Logger   *slog.Logger
	Settings *settings.Store
	LogLevel *slog.LevelVar
	Redactor *security.Redactor
}

// NewHandler creates a reload handler.
func NewHandler(p HandlerParams) *Handler {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return &Handler{
		app:      p.App,
		logger:   p.Logger,
		settings: p.Settings,
		level:    p.LogLevel,
		redactor: p.Redactor,
	}
}

// HandleReload loads a fresh config from disk, validates it, and calls Reload
// on all modules that implement core.Reloader.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return h.handleReload(ctx, cfg)
}

// HandleReloadFromConfig reloads modules from a pre-loaded, already-validated
// config. The caller is responsible for calling config.Validate before this
// method; it will not re-validate.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	return h.handleReload(ctx, cfg)
}

func (h *Handler) handleReload(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	if h.settings != nil {
		h.settings.Set(cfg.Settings)
	}
	if h.level != nil {
		h.level.Set(cfg.Log.SlogLevel())
	}
	if h.redactor != nil {
		h.redactor.SetLiterals(ConfigSecrets(cfg))
	}

	// Modules keep resolving services from the live registry.
	appCtx := h.app.Context().WithModuleConfigs(cfg.Modules)

	if err := h.app.ReloadModules(appCtx); err != nil {
		return fmt.Errorf("reloading modules: %w", err)
	}

	h.logger.Info("configuration reloaded successfully")
	return nil
}

// ConfigSecrets returns the secret values found in the module sections of cfg.
func ConfigSecrets(cfg *config.Config) []string {
	var out []string
	for _, node := range cfg.Modules {
		var v any
		if err := node.Decode(&v); err != nil {
			continue
		}
		out = append(out, security.CollectSecrets(v)...)
	}
	return out
}
