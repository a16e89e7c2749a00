package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/flemzord/expiry/internal/core"
)

const storeNamespace = "store"

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures modules are present, checks that
// all referenced module IDs exist in the registry and that exactly one
// store module backs them. It also validates the log, tracing and settings
// sections.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	errs = append(errs, validateStores(cfg)...)
	errs = append(errs, validateLog(cfg.Log)...)

	if err := cfg.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if err := cfg.Settings.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}

	return errors.Join(errs...)
}

// validateStores requires a single store module whenever anything else is
// configured: every other module resolves its stores from it.
func validateStores(cfg *Config) []error {
	var stores, others []string
	for id := range cfg.Modules {
		if core.ModuleID(id).Namespace() == storeNamespace {
			stores = append(stores, id)
		} else {
			others = append(others, id)
		}
	}
	slices.Sort(stores)

	switch {
	case len(stores) > 1:
		return []error{fmt.Errorf("config: only one store module may be configured, got %s", strings.Join(stores, ", "))}
	case len(stores) == 0 && len(others) > 0:
		return []error{fmt.Errorf("config: a store module is required (available: %s)", availableStores())}
	}
	return nil
}

func availableStores() string {
	infos := core.GetModulesByNamespace(storeNamespace)
	if len(infos) == 0 {
		return "none compiled in"
	}
	ids := make([]string, len(infos))
	for i, info := range infos {
		ids[i] = string(info.ID)
	}
	return strings.Join(ids, ", ")
}

func validateLog(c LogConfig) []error {
	var errs []error
	if c.Level != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
			errs = append(errs, fmt.Errorf("config: log.level: unknown level %q", c.Level))
		}
	}
	switch c.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format must be text or json, got %q", c.Format))
	}
	return errs
}
