package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/expiry/internal/content"
	"github.com/flemzord/expiry/internal/cron"
	"github.com/flemzord/expiry/internal/mark"
	"github.com/flemzord/expiry/internal/queue"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

var errPipelineUnavailable = errors.New("expiry pipeline not available")

// setMarkRequest is the body of PUT /api/content/{id}/temporary.
type setMarkRequest struct {
	Owner  string `json:"owner"`
	Bundle string `json:"bundle"`

	// ExpireAt is a calendar date (2006-01-02). Empty uses the bundle default.
	ExpireAt string `json:"expire_at"`
	Action   string `json:"action"`
}

func (req setMarkRequest) toSetRequest(parent string) (mark.SetRequest, error) {
	action, err := mark.ParseAction(req.Action)
	if err != nil {
		return mark.SetRequest{}, err
	}
	var expireAt time.Time
	if req.ExpireAt != "" {
		expireAt, err = time.Parse(time.DateOnly, req.ExpireAt)
		if err != nil {
			return mark.SetRequest{}, fmt.Errorf("%w: %q", mark.ErrInvalidExpiry, req.ExpireAt)
		}
	}
	return mark.SetRequest{
		Parent:   parent,
		Owner:    req.Owner,
		Bundle:   req.Bundle,
		ExpireAt: expireAt,
		Action:   action,
	}, nil
}

// queueResponse is the JSON response for GET /api/queue.
type queueResponse struct {
	Stats       queue.Stats        `json:"stats"`
	DeadLetters []queue.DeadLetter `json:"dead_letters"`
	Schedules   []cron.Entry       `json:"schedules"`
}

// handleGetMark returns the mark of a content item.
func (g *Gateway) handleGetMark() http.HandlerFunc {
	return g.withPipeline(func(w http.ResponseWriter, r *http.Request) {
		m, err := g.pipeline.Marks.GetTemporaryMark(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			g.fail(w, r, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	})
}

// handleSetMark creates or updates the mark of a content item.
func (g *Gateway) handleSetMark() http.HandlerFunc {
	return g.withPipeline(func(w http.ResponseWriter, r *http.Request) {
		var req setMarkRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		setReq, err := req.toSetRequest(chi.URLParam(r, "id"))
		if err != nil {
			g.fail(w, r, statusFor(err), err)
			return
		}

		m, err := g.pipeline.Marks.SetTemporary(r.Context(), setReq)
		if err != nil {
			g.fail(w, r, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	})
}

// handleClearMark removes the mark of a content item.
func (g *Gateway) handleClearMark() http.HandlerFunc {
	return g.withPipeline(func(w http.ResponseWriter, r *http.Request) {
		if err := g.pipeline.Marks.ClearTemporary(r.Context(), chi.URLParam(r, "id")); err != nil {
			g.fail(w, r, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleMarkStatus returns the notice shown to ?viewer= in ?tz=.
func (g *Gateway) handleMarkStatus() http.HandlerFunc {
	return g.withPipeline(func(w http.ResponseWriter, r *http.Request) {
		loc := time.UTC
		if tz := r.URL.Query().Get("tz"); tz != "" {
			l, err := time.LoadLocation(tz)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("unknown time zone %q", tz))
				return
			}
			loc = l
		}

		msg, err := g.pipeline.Marks.StatusMessage(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("viewer"), loc)
		if err != nil {
			g.fail(w, r, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"temporary": msg != "", "message": msg})
	})
}

// handleGetContent returns a content item from the content store.
func (g *Gateway) handleGetContent() http.HandlerFunc {
	return g.withPipeline(func(w http.ResponseWriter, r *http.Request) {
		item, err := g.pipeline.Content.Load(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			g.fail(w, r, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	})
}

// handlePutContent creates or replaces a content item when the content
// store accepts writes.
func (g *Gateway) handlePutContent() http.HandlerFunc {
	return g.withPipeline(func(w http.ResponseWriter, r *http.Request) {
		writer, ok := g.pipeline.Content.(content.Writer)
		if !ok {
			writeError(w, http.StatusNotImplemented, errors.New("content store is read-only"))
			return
		}

		var item content.Item
		if err := decodeJSON(w, r, &item); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		item.ID = chi.URLParam(r, "id")
		item.ChangedAt = time.Time{}

		if err := writer.Put(r.Context(), item); err != nil {
			g.fail(w, r, statusFor(err), err)
			return
		}
		stored, err := g.pipeline.Content.Load(r.Context(), item.ID)
		if err != nil {
			g.fail(w, r, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, stored)
	})
}

// handleDeleteContent deletes a content item and its mark.
func (g *Gateway) handleDeleteContent() http.HandlerFunc {
	return g.withPipeline(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := g.pipeline.Content.Delete(r.Context(), id); err != nil && !errors.Is(err, content.ErrNotFound) {
			g.fail(w, r, statusFor(err), err)
			return
		}
		if err := g.pipeline.Marks.ContentDeleted(r.Context(), id); err != nil {
			g.fail(w, r, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleListMarks lists every mark ordered by expiration.
func (g *Gateway) handleListMarks() http.HandlerFunc {
	return g.withPipeline(func(w http.ResponseWriter, r *http.Request) {
		marks, err := g.pipeline.Marks.List(r.Context())
		if err != nil {
			g.fail(w, r, statusFor(err), err)
			return
		}
		if marks == nil {
			marks = []mark.Mark{}
		}
		writeJSON(w, http.StatusOK, marks)
	})
}

// handleScan runs one scan and returns its result.
func (g *Gateway) handleScan() http.HandlerFunc {
	return g.withPipeline(func(w http.ResponseWriter, r *http.Request) {
		res, err := g.pipeline.Scanner.RunScan(r.Context())
		if err != nil {
			g.fail(w, r, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})
}

// handleDrain runs one worker batch and returns its result.
func (g *Gateway) handleDrain() http.HandlerFunc {
	return g.withPipeline(func(w http.ResponseWriter, r *http.Request) {
		res, err := g.pipeline.Worker.RunWorkerBatch(r.Context())
		if err != nil {
			g.fail(w, r, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})
}

// handleQueue reports queue counters, dead letters and job schedules.
func (g *Gateway) handleQueue() http.HandlerFunc {
	return g.withPipeline(func(w http.ResponseWriter, r *http.Request) {
		st, err := g.pipeline.Queue.Stats(r.Context())
		if err != nil {
			g.fail(w, r, http.StatusInternalServerError, err)
			return
		}
		dead, err := g.pipeline.Queue.DeadLetters(r.Context())
		if err != nil {
			g.fail(w, r, http.StatusInternalServerError, err)
			return
		}
		resp := queueResponse{Stats: st, DeadLetters: dead, Schedules: g.pipeline.Schedules()}
		if resp.DeadLetters == nil {
			resp.DeadLetters = []queue.DeadLetter{}
		}
		if resp.Schedules == nil {
			resp.Schedules = []cron.Entry{}
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

// handleRequeue moves a dead letter back onto the queue.
func (g *Gateway) handleRequeue() http.HandlerFunc {
	return g.withPipeline(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := g.pipeline.Queue.Requeue(r.Context(), id); err != nil {
			g.fail(w, r, statusFor(err), err)
			return
		}
		g.logger.Info("gateway: dead letter requeued", "id", id)
		w.WriteHeader(http.StatusNoContent)
	})
}

// withPipeline answers 503 while no pipeline is bound.
func (g *Gateway) withPipeline(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.pipeline == nil {
			writeError(w, http.StatusServiceUnavailable, errPipelineUnavailable)
			return
		}
		h(w, r)
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, mark.ErrNotFound),
		errors.Is(err, content.ErrNotFound),
		errors.Is(err, queue.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, mark.ErrMissingParent),
		errors.Is(err, mark.ErrInvalidExpiry),
		errors.Is(err, mark.ErrInvalidAction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrBadEvent):
		return http.StatusBadRequest
	case errors.Is(err, mark.ErrDisabled):
		return http.StatusForbidden
	case errors.Is(err, mark.ErrExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// internalErrorBody replaces the detail of every 500 response.
const internalErrorBody = "internal error"

// writeError writes err as the JSON body. A 500 never carries the error
// text, which may hold file paths or driver messages.
func writeError(w http.ResponseWriter, code int, err error) {
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = internalErrorBody
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

// fail logs what a 500 hides and writes the error response.
func (g *Gateway) fail(w http.ResponseWriter, r *http.Request, code int, err error) {
	if code == http.StatusInternalServerError && g.logger != nil {
		g.logger.Error("gateway: request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, code, err)
}
