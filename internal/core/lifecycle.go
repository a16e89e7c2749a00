package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// The interfaces below are optional. LoadModule runs them in the order
// Configure, Provision, Validate; App then runs Start, and Stop in reverse
// load order at shutdown. Reload may run at any time after Start.

// Configurable receives the module's raw section of the modules map.
// Configure is skipped for modules without a section, so the zero value
// must fall back to defaults.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner applies defaults, opens resources and registers or resolves
// shared services. Stores register here so later modules can find them.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator checks the provisioned configuration. It must not have side
// effects.
type Validator interface {
	Validate() error
}

// Starter launches background work such as listeners and schedulers.
type Starter interface {
	Start() error
}

// Stopper releases what Provision or Start acquired. ctx bounds the wait
// for in-flight work.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader applies a new configuration section without a restart. ctx
// carries the new module configs and the live service registry.
type Reloader interface {
	Reload(ctx *AppContext) error
}
