package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	if g.http != nil {
		r.Use(g.http.middleware)
	}

	// Public.
	r.Get("/health", g.handleHealth())
	if g.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}))
	}

	// Webhooks authenticate per source with HMAC.
	r.Post("/webhooks/{source}", g.dispatcher.ServeHTTP)

	// API routes exist only when auth is configured.
	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth, g.limiter, g.logger))
			r.Get("/status", g.handleStatus())
			r.Route("/api", func(r chi.Router) {
				r.Route("/content/{id}", func(r chi.Router) {
					r.Get("/", g.handleGetContent())
					r.Put("/", g.handlePutContent())
					r.Delete("/", g.handleDeleteContent())
					r.Get("/temporary", g.handleGetMark())
					r.Put("/temporary", g.handleSetMark())
					r.Delete("/temporary", g.handleClearMark())
					r.Get("/status", g.handleMarkStatus())
				})
				r.Get("/marks", g.handleListMarks())
				r.Post("/scan", g.handleScan())
				r.Post("/drain", g.handleDrain())
				r.Get("/queue", g.handleQueue())
				r.Post("/queue/dead/{id}/requeue", g.handleRequeue())
				r.Get("/modules", g.handleGetAllModules())
				r.Get("/config", g.handleGetConfig())
				r.Post("/config/reload", g.handleReloadConfig())
			})
		})
	}

	return r
}
