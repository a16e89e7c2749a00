// Package sqlite implements the store.sqlite module: durable mark, work
// queue and content stores in a single SQLite database. It uses
// modernc.org/sqlite (pure Go, no CGO) in WAL mode.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/expiry/internal/content"
	"github.com/flemzord/expiry/internal/core"
	"github.com/flemzord/expiry/internal/mark"
	"github.com/flemzord/expiry/internal/queue"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ mark.Store        = (*MarkStore)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module provides the mark store, work queue and content store backed by
// one database.
type Module struct {
	config Config
	logger *slog.Logger
	stores *Stores
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "store.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		path, err := ctx.DataPath(defaultDBFile)
		if err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		m.config.Path = path
	}

	stores, err := Open(context.TODO(), m.config, nil)
	if err != nil {
		return err
	}
	m.stores = stores

	ctx.RegisterService(mark.StoreService, stores.Marks)
	ctx.RegisterService(queue.ServiceName, stores.Queue)
	ctx.RegisterService(content.StoreService, stores.Content)

	m.logger.Info("sqlite store provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
		"max_attempts", m.config.Queue.MaxAttempts,
	)

	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}

	if err := m.stores.DB.PingContext(context.TODO()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}

	var version int
	if err := m.stores.DB.QueryRowContext(context.TODO(), "SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("sqlite: schema not migrated: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("sqlite: schema version %d, want %d", version, schemaVersion)
	}

	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("sqlite store stopping")
	if m.stores != nil {
		return m.stores.Close()
	}
	return nil
}

// Stores returns the provisioned stores.
func (m *Module) Stores() *Stores {
	return m.stores
}
