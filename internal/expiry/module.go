package expiry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/im7mortal/kmutex"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/expiry/internal/content"
	"github.com/flemzord/expiry/internal/core"
	"github.com/flemzord/expiry/internal/cron"
	"github.com/flemzord/expiry/internal/mark"
	"github.com/flemzord/expiry/internal/metrics"
	"github.com/flemzord/expiry/internal/queue"
	"github.com/flemzord/expiry/internal/settings"
)

// PipelineService is the service registry name of the wired *Pipeline.
const PipelineService = "expiry.pipeline"

func init() {
	core.RegisterModule(&Module{})
}

// Pipeline bundles the components wired by the expiry.pipeline module.
// The CLI and the gateway drive it directly.
type Pipeline struct {
	Marks   *mark.Service
	Scanner *Scanner
	Worker  *Worker
	Queue   queue.Queue
	Content content.Store

	schedules func() []cron.Entry
}

// Schedules lists the scan and drain jobs with their next run times. It
// returns nil when the pipeline is not scheduled.
func (p *Pipeline) Schedules() []cron.Entry {
	if p.schedules == nil {
		return nil
	}
	return p.schedules()
}

// Module is the expiry.pipeline module. It wires the pipeline from the
// stores registered by a store.* module and schedules the scan and drain
// jobs.
type Module struct {
	config   Config
	logger   *slog.Logger
	pipeline *Pipeline

	mu        sync.Mutex
	scheduler *cron.Scheduler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "expiry.pipeline",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return err
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner. Store modules are provisioned
// first, so their services are already registered.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	m.config.defaults()

	marks, ok := core.ServiceAs[mark.Store](ctx, mark.StoreService)
	if !ok {
		return errors.New("expiry: no mark store registered; configure store.sqlite or store.memory")
	}
	contents, ok := core.ServiceAs[content.Store](ctx, content.StoreService)
	if !ok {
		return errors.New("expiry: no content store registered")
	}
	q, ok := core.ServiceAs[queue.Queue](ctx, queue.ServiceName)
	if !ok {
		return errors.New("expiry: no queue registered")
	}

	var cfg mark.Config
	if st, ok := core.ServiceAs[*settings.Store](ctx, settings.ServiceName); ok {
		cfg = st
	}

	var pm *metrics.PipelineMetrics
	if reg, ok := core.ServiceAs[prometheus.Registerer](ctx, metrics.RegistryService); ok {
		pm = metrics.NewPipelineMetricsWithRegistry(reg)
	}

	m.pipeline = Wire(WireParams{
		Marks:    marks,
		Content:  contents,
		Queue:    q,
		Settings: cfg,
		Metrics:  pm,
		Logger:   m.logger,
		Config:   m.config,
	})
	m.pipeline.schedules = m.entries
	ctx.RegisterService(PipelineService, m.pipeline)
	return nil
}

func (m *Module) entries() []cron.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Entries()
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Start implements core.Starter.
func (m *Module) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.Disabled {
		m.logger.Info("expiry: scheduling disabled")
		return nil
	}
	s, err := m.startScheduler(m.config)
	if err != nil {
		return err
	}
	m.scheduler = s
	return nil
}

func (m *Module) startScheduler(cfg Config) (*cron.Scheduler, error) {
	s := cron.NewScheduler(m.logger)
	jobs := []cron.Job{
		&ScanJob{Scanner: m.pipeline.Scanner, ScheduleExpr: cfg.ScanSchedule},
		&DrainJob{Worker: m.pipeline.Worker, ScheduleExpr: cfg.DrainSchedule},
	}
	for _, j := range jobs {
		if err := s.RegisterJob(j); err != nil {
			return nil, err
		}
	}
	if err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

// Stop implements core.Stopper. It waits for a running scan or drain.
func (m *Module) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.scheduler == nil {
		return nil
	}
	err := m.scheduler.Stop(ctx)
	m.scheduler = nil
	return err
}

// Reload implements core.Reloader. Schedule changes take effect
// immediately; the remaining settings are bound into the pipeline at
// provision time and need a restart.
func (m *Module) Reload(ctx *core.AppContext) error {
	node, ok := ctx.ModuleConfig("expiry.pipeline")
	if !ok {
		return nil
	}
	var next Config
	if err := node.Decode(&next); err != nil {
		return fmt.Errorf("expiry: decoding config: %w", err)
	}
	next.defaults()
	if err := next.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if next.BatchSize != m.config.BatchSize ||
		next.Lease != m.config.Lease ||
		next.OperationTimeout != m.config.OperationTimeout ||
		next.InclusiveBoundary != m.config.InclusiveBoundary {
		m.logger.Warn("expiry: pipeline settings changed; restart to apply")
	}

	if next.ScanSchedule == m.config.ScanSchedule &&
		next.DrainSchedule == m.config.DrainSchedule &&
		next.Disabled == m.config.Disabled {
		return nil
	}

	if m.scheduler != nil {
		if err := m.scheduler.Stop(context.Background()); err != nil {
			return fmt.Errorf("expiry: stopping scheduler: %w", err)
		}
		m.scheduler = nil
	}
	m.config.ScanSchedule = next.ScanSchedule
	m.config.DrainSchedule = next.DrainSchedule
	m.config.Disabled = next.Disabled
	if next.Disabled {
		m.logger.Info("expiry: scheduling disabled")
		return nil
	}

	s, err := m.startScheduler(m.config)
	if err != nil {
		return err
	}
	m.scheduler = s
	m.logger.Info("expiry: schedules reloaded", "scan", next.ScanSchedule, "drain", next.DrainSchedule)
	return nil
}

// WireParams are the collaborators of Wire.
type WireParams struct {
	Marks    mark.Store
	Content  content.Store
	Queue    queue.Queue
	Settings mark.Config             // optional
	Metrics  *metrics.PipelineMetrics // optional
	Clock    Clock                    // optional
	Logger   *slog.Logger
	Config   Config
}

// Wire builds a Pipeline. The mark service and the worker share one
// per-parent lock set.
func Wire(p WireParams) *Pipeline {
	p.Config.defaults()
	locks := kmutex.New()
	return &Pipeline{
		Marks: mark.NewService(mark.ServiceParams{
			Store:  p.Marks,
			Config: p.Settings,
			Clock:  p.Clock,
			Logger: p.Logger,
			Locks:  locks,
		}),
		Scanner: NewScanner(ScannerParams{
			Marks:             p.Marks,
			Queue:             p.Queue,
			Clock:             p.Clock,
			Logger:            p.Logger,
			Metrics:           p.Metrics,
			InclusiveBoundary: p.Config.InclusiveBoundary,
			Timeout:           p.Config.OperationTimeout,
		}),
		Worker: NewWorker(WorkerParams{
			Marks:             p.Marks,
			Content:           p.Content,
			Queue:             p.Queue,
			Clock:             p.Clock,
			Logger:            p.Logger,
			Metrics:           p.Metrics,
			Locks:             locks,
			BatchSize:         p.Config.BatchSize,
			Lease:             p.Config.Lease,
			InclusiveBoundary: p.Config.InclusiveBoundary,
			Timeout:           p.Config.OperationTimeout,
		}),
		Queue:   p.Queue,
		Content: p.Content,
	}
}
