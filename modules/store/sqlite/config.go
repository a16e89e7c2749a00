package sqlite

import (
	"errors"
	"fmt"

	"github.com/flemzord/expiry/internal/queue"
)

const (
	defaultBusyTimeout = 5000
	defaultDBFile      = "expiry.db"
)

// Config holds the store.sqlite module configuration.
type Config struct {
	// Path is the database file path. Defaults to {DataDir}/expiry.db.
	Path string `yaml:"path"`

	// WAL enables WAL journal mode for concurrent reads. Defaults to true.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is the milliseconds to wait on a busy lock. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout"`

	// Queue is the redelivery policy of the work queue.
	Queue queue.Policy `yaml:"queue"`
}

func (c *Config) defaults() {
	if c.WAL == nil {
		t := true
		c.WAL = &t
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
	c.Queue = c.Queue.WithDefaults()
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

func (c *Config) validate() error {
	var errs []error
	if c.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("sqlite: busy_timeout must be non-negative, got %d", c.BusyTimeout))
	}
	if c.Queue.MaxAttempts > 100 {
		errs = append(errs, fmt.Errorf("sqlite: queue.max_attempts %d exceeds 100", c.Queue.MaxAttempts))
	}
	return errors.Join(errs...)
}
