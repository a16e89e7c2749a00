package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/expiry/internal/config"
	"github.com/flemzord/expiry/internal/core"
	"github.com/flemzord/expiry/internal/expiry"
	"github.com/flemzord/expiry/internal/metrics"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// Service names resolved from the registry at Start.
const (
	configPathService    = "config.path"
	reloadHandlerService = "reload.handler"
)

// ConfigReloader applies a freshly loaded configuration to the running
// application. reload.Handler satisfies it.
type ConfigReloader interface {
	HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error
}

// Gateway is the HTTP gateway module. It exposes health, metrics, the mark
// and content API, pipeline triggers and CMS webhooks. It is a leaf
// module: nothing imports it.
type Gateway struct {
	config     Config
	appCtx     *core.AppContext
	logger     *slog.Logger
	server     *http.Server
	registry   *prometheus.Registry
	http       *httpMetrics
	dispatcher *WebhookDispatcher
	limiter    *rate.Limiter
	startedAt  time.Time

	// Resolved lazily at Start() via service registry.
	pipeline   *expiry.Pipeline
	configPath string
	reloader   ConfigReloader
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.dispatcher = NewWebhookDispatcher(g.logger)
	g.limiter = newAuthLimiter(g.config.Auth)

	if reg, ok := core.ServiceAs[*prometheus.Registry](ctx, metrics.RegistryService); ok {
		g.registry = reg
		g.http = newHTTPMetrics(reg)
	}

	ctx.RegisterService("gateway.webhook_dispatcher", g.dispatcher)

	for source, wh := range g.config.Webhooks {
		if wh.Unsigned {
			g.logger.Warn("webhook source accepts unsigned events", "source", source)
			continue
		}
		g.logger.Info("webhook source configured", "source", source)
	}

	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	g.resolveServices()
	g.startedAt = time.Now()

	if !g.config.Auth.IsConfigured() {
		g.logger.Warn("gateway: no auth configured; API routes are not mounted")
	}

	mux := g.buildRouter()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      mux,
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// resolveServices binds the optional collaborators. Missing ones degrade
// the matching routes to 503.
func (g *Gateway) resolveServices() {
	if p, ok := core.ServiceAs[*expiry.Pipeline](g.appCtx, expiry.PipelineService); ok {
		g.pipeline = p
	} else {
		g.logger.Warn("gateway: expiry pipeline not available; API routes return 503")
	}
	if path, ok := core.ServiceAs[string](g.appCtx, configPathService); ok {
		g.configPath = path
	}
	if r, ok := core.ServiceAs[ConfigReloader](g.appCtx, reloadHandlerService); ok {
		g.reloader = r
	}

	if g.pipeline != nil {
		events := &contentEvents{pipeline: g.pipeline, logger: g.logger}
		for source, cfg := range g.config.Webhooks {
			g.dispatcher.Register(source, events, cfg.Secret)
		}
	}
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
