package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/expiry/internal/cron"
	"github.com/flemzord/expiry/internal/queue"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string       `json:"status"` // "ok" or "degraded"
	Queue  *queue.Stats `json:"queue,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// handleHealth answers 200 while the queue store responds and 503 otherwise.
// It is unauthenticated, so it carries counts only.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.pipeline == nil {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status: "degraded",
				Error:  errPipelineUnavailable.Error(),
			})
			return
		}

		st, err := g.pipeline.Queue.Stats(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Queue: &st})
	}
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Uptime    int64        `json:"uptime_seconds"`
	Queue     queue.Stats  `json:"queue"`
	Schedules []cron.Entry `json:"schedules"`

	// NeedsAttention is set while dead letters wait for a requeue.
	NeedsAttention bool `json:"needs_attention"`
}

func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Uptime:    int64(time.Since(g.startedAt) / time.Second),
			Schedules: []cron.Entry{},
		}
		if g.pipeline == nil {
			writeJSON(w, http.StatusOK, resp)
			return
		}

		st, err := g.pipeline.Queue.Stats(r.Context())
		if err != nil {
			g.fail(w, r, http.StatusInternalServerError, err)
			return
		}
		resp.Queue = st
		resp.NeedsAttention = st.Dead > 0
		if s := g.pipeline.Schedules(); s != nil {
			resp.Schedules = s
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
