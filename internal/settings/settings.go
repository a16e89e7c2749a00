// Package settings is the read-only configuration store consulted when a
// content item is marked temporary: a global switch plus per-bundle
// (content type) enablement and default expiration length.
package settings

import (
	"fmt"
	"sync/atomic"
)

const (
	// DefaultExpireDays applies when a bundle has no usable expire_days.
	DefaultExpireDays = 7

	// MinExpireDays is the smallest expire_days accepted by Validate.
	MinExpireDays = 2

	// ServiceName is the service registry name of the application's *Store.
	ServiceName = "settings"
)

// Bundle holds the settings of one content type.
type Bundle struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	ExpireDays int  `yaml:"expire_days" json:"expire_days"`
}

// Settings is the configuration snapshot.
type Settings struct {
	// Enabled is the global switch. Bundle settings are ignored when false.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Bundles maps a content type name to its settings.
	Bundles map[string]Bundle `yaml:"bundles" json:"bundles"`
}

// IsEnabled reports whether marking is allowed for bundle. An empty bundle
// returns the global switch alone.
func (s Settings) IsEnabled(bundle string) bool {
	if !s.Enabled {
		return false
	}
	if bundle == "" {
		return true
	}
	b, ok := s.Bundles[bundle]
	return ok && b.Enabled
}

// DefaultExpireDays returns the configured expiration length for bundle,
// falling back to DefaultExpireDays for unknown bundles or non-positive values.
func (s Settings) DefaultExpireDays(bundle string) int {
	b, ok := s.Bundles[bundle]
	if !ok || b.ExpireDays <= 0 {
		return DefaultExpireDays
	}
	return b.ExpireDays
}

// Validate reports bundles whose expire_days is set below MinExpireDays.
// Zero is allowed and means "use the default".
func (s Settings) Validate() error {
	for name, b := range s.Bundles {
		if b.ExpireDays != 0 && b.ExpireDays < MinExpireDays {
			return fmt.Errorf("settings: bundle %q: expire_days must be at least %d, got %d", name, MinExpireDays, b.ExpireDays)
		}
	}
	return nil
}

// Store holds the current Settings and allows them to be swapped on reload.
// It is safe for concurrent use.
type Store struct {
	current atomic.Pointer[Settings]
}

// NewStore creates a Store holding s.
func NewStore(s Settings) *Store {
	st := &Store{}
	st.Set(s)
	return st
}

// Get returns the current snapshot.
func (st *Store) Get() Settings {
	if p := st.current.Load(); p != nil {
		return *p
	}
	return Settings{}
}

// Set replaces the current snapshot.
func (st *Store) Set(s Settings) {
	st.current.Store(&s)
}

// IsEnabled implements mark.Config.
func (st *Store) IsEnabled(bundle string) bool {
	return st.Get().IsEnabled(bundle)
}

// DefaultExpireDays implements mark.Config.
func (st *Store) DefaultExpireDays(bundle string) int {
	return st.Get().DefaultExpireDays(bundle)
}
