// Package memory implements the store.memory module: process-local mark,
// work queue and content stores. Nothing survives a restart, so it suits
// tests and single-shot runs; production deployments use store.sqlite.
package memory

import (
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
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
)

// Config holds the store.memory module configuration.
type Config struct {
	Queue queue.Policy `yaml:"queue"`
}

// Module provides in-memory stores.
type Module struct {
	config Config
	logger *slog.Logger

	marks   *mark.InMemoryStore
	queue   *queue.InMemoryQueue
	content *content.InMemoryStore
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "store.memory",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("memory: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	m.config.Queue = m.config.Queue.WithDefaults()

	m.marks = mark.NewInMemoryStore()
	m.queue = queue.NewInMemoryQueue(m.config.Queue, nil)
	m.content = content.NewInMemoryStore()

	ctx.RegisterService(mark.StoreService, m.marks)
	ctx.RegisterService(queue.ServiceName, m.queue)
	ctx.RegisterService(content.StoreService, m.content)

	m.logger.Warn("memory store provisioned; marks and queued work are lost on restart")
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.config.Queue.MaxAttempts > 100 {
		return fmt.Errorf("memory: queue.max_attempts %d exceeds 100", m.config.Queue.MaxAttempts)
	}
	return nil
}
