package core

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// AppContext is what a module sees of the application: its scoped logger,
// the data directory, its raw configuration and the shared service registry.
type AppContext struct {
	Logger *slog.Logger

	// DataDir holds persistent module data. Use DataPath to resolve files in it.
	DataDir string

	parentLogger  *slog.Logger
	moduleConfigs map[string]yaml.Node
	services      *services
}

// NewAppContext returns a root context. A nil logger falls back to slog.Default.
func NewAppContext(logger *slog.Logger, dataDir string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:       logger,
		DataDir:      dataDir,
		parentLogger: logger,
		services:     newServices(),
	}
}

// WithModuleConfigs returns a copy carrying the given module sections,
// keyed by module ID. The copy shares the service registry with ctx, which
// is how a reload hands new configuration to modules already running.
func (ctx *AppContext) WithModuleConfigs(configs map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.moduleConfigs = configs
	return &cp
}

// ForModule returns the context handed to module id: same data, services
// and configs, with a logger tagged module=id.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	cp := *ctx
	cp.Logger = ctx.parentLogger.With("module", string(id))
	return &cp
}

// ModuleConfig returns the raw configuration node for a module, if any.
func (ctx *AppContext) ModuleConfig(id string) (yaml.Node, bool) {
	node, ok := ctx.moduleConfigs[id]
	return node, ok
}

// DataPath joins name onto DataDir, creating DataDir if needed.
func (ctx *AppContext) DataPath(name string) (string, error) {
	if ctx.DataDir == "" {
		return "", fmt.Errorf("data directory not set for %s", name)
	}
	if err := os.MkdirAll(ctx.DataDir, 0o750); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	return filepath.Join(ctx.DataDir, name), nil
}

// ModuleError reports which lifecycle phase of which module failed.
type ModuleError struct {
	ID    string
	Phase string // configure, provision or validate
	Err   error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("%s module %s: %v", e.Phase, e.ID, e.Err)
}

func (e *ModuleError) Unwrap() error { return e.Err }

// LoadModule instantiates module id and runs it through
//
//	New() → Configure() → Provision() → Validate()
//
// skipping the phases the module does not implement. Configure only runs
// when a section for id exists.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, fmt.Errorf("unknown module: %s", id)
	}

	mod := info.New()

	if c, ok := mod.(Configurable); ok {
		if node, exists := ctx.moduleConfigs[id]; exists {
			if err := c.Configure(&node); err != nil {
				return nil, &ModuleError{ID: id, Phase: "configure", Err: err}
			}
		}
	}

	if p, ok := mod.(Provisioner); ok {
		if err := p.Provision(ctx.ForModule(info.ID)); err != nil {
			return nil, &ModuleError{ID: id, Phase: "provision", Err: err}
		}
	}

	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, &ModuleError{ID: id, Phase: "validate", Err: err}
		}
	}

	return mod, nil
}
