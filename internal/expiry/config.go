package expiry

import (
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/expiry/internal/cron"
)

// Default schedules. The scanner runs every hour so a mark is picked up
// shortly after its day starts; the worker drains more often so a backlog
// clears within a few cycles.
const (
	DefaultScanSchedule  = "@hourly"
	DefaultDrainSchedule = "*/15 * * * *"
)

// Config is the expiry.pipeline module configuration.
type Config struct {
	// ScanSchedule and DrainSchedule are cron expressions (5 fields or
	// descriptors such as "@hourly").
	ScanSchedule  string `yaml:"scan_schedule"`
	DrainSchedule string `yaml:"drain_schedule"`

	// BatchSize caps items processed per drain.
	BatchSize int `yaml:"batch_size"`

	// Lease is how long a claimed item is hidden from other workers.
	Lease time.Duration `yaml:"lease"`

	// OperationTimeout bounds one scan or one drain.
	OperationTimeout time.Duration `yaml:"operation_timeout"`

	// InclusiveBoundary acts on marks expiring today instead of waiting
	// for the following day.
	InclusiveBoundary bool `yaml:"inclusive_boundary"`

	// Disabled keeps the pipeline available to the CLI and gateway but
	// registers no cron jobs.
	Disabled bool `yaml:"disabled"`
}

func (c *Config) defaults() {
	if c.ScanSchedule == "" {
		c.ScanSchedule = DefaultScanSchedule
	}
	if c.DrainSchedule == "" {
		c.DrainSchedule = DefaultDrainSchedule
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.Lease <= 0 {
		c.Lease = defaultLease
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = 2 * time.Minute
	}
}

func (c *Config) validate() error {
	var errs []error
	if err := cron.Parse(c.ScanSchedule); err != nil {
		errs = append(errs, fmt.Errorf("expiry: scan_schedule %q: %w", c.ScanSchedule, err))
	}
	if err := cron.Parse(c.DrainSchedule); err != nil {
		errs = append(errs, fmt.Errorf("expiry: drain_schedule %q: %w", c.DrainSchedule, err))
	}
	if c.BatchSize > 10000 {
		errs = append(errs, fmt.Errorf("expiry: batch_size %d exceeds 10000", c.BatchSize))
	}
	if c.OperationTimeout > c.Lease {
		errs = append(errs, fmt.Errorf("expiry: operation_timeout (%s) must not exceed lease (%s)", c.OperationTimeout, c.Lease))
	}
	return errors.Join(errs...)
}
