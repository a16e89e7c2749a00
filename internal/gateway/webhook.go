package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/expiry/internal/content"
	"github.com/flemzord/expiry/internal/expiry"
)

// WebhookHandler processes a validated webhook payload.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, source string, body []byte, headers http.Header) error
}

type webhookEntry struct {
	handler WebhookHandler
	secret  string
}

// WebhookDispatcher routes incoming webhooks to registered handlers with HMAC validation.
type WebhookDispatcher struct {
	mu       sync.RWMutex
	handlers map[string]webhookEntry
	logger   *slog.Logger
}

// NewWebhookDispatcher creates a ready-to-use dispatcher.
func NewWebhookDispatcher(logger *slog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		handlers: make(map[string]webhookEntry),
		logger:   logger,
	}
}

// Register adds a handler for the given source with an optional HMAC secret.
func (d *WebhookDispatcher) Register(source string, h WebhookHandler, secret string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[source] = webhookEntry{handler: h, secret: secret}
}

// ServeHTTP implements http.Handler. It extracts the source from the chi URL param,
// validates HMAC if configured, and dispatches to the registered handler.
func (d *WebhookDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	source := chi.URLParam(r, "source")
	if source == "" {
		http.Error(w, "missing source", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	d.mu.RLock()
	entry, ok := d.handlers[source]
	d.mu.RUnlock()

	if !ok {
		d.logger.Warn("webhook received for unregistered source", "source", source)
		http.Error(w, "unknown source", http.StatusNotFound)
		return
	}

	if entry.secret != "" && !validateHMAC(body, signatureHeader(r.Header), entry.secret) {
		d.logger.Warn("webhook signature rejected", "source", source, "remote", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	if err := entry.handler.HandleWebhook(r.Context(), source, body, r.Header); err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			d.logger.Error("webhook handler failed", "source", source, "error", err)
			writeError(w, code, err)
			return
		}
		d.logger.Warn("webhook event rejected", "source", source, "status", code, "error", err)
		writeError(w, code, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// signatureHeader returns the sender's signature. CMSes that follow the
// GitHub convention send X-Hub-Signature-256 instead.
func signatureHeader(h http.Header) string {
	if sig := h.Get("X-Signature-256"); sig != "" {
		return sig
	}
	return h.Get("X-Hub-Signature-256")
}

// validateHMAC checks HMAC-SHA256 signature in constant time.
func validateHMAC(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// Content event types accepted from a CMS.
const (
	eventContentSaved   = "content.saved"
	eventContentDeleted = "content.deleted"
)

// contentEvent is the webhook payload sent by a CMS when a content item
// is saved or deleted.
type contentEvent struct {
	Event   string       `json:"event"`
	Content content.Item `json:"content"`

	// Temporary, when present on a save, sets the item's mark.
	Temporary *setMarkRequest `json:"temporary,omitempty"`

	// ClearTemporary removes the item's mark on a save.
	ClearTemporary bool `json:"clear_temporary,omitempty"`
}

// contentEvents keeps marks in step with an external CMS.
type contentEvents struct {
	pipeline *expiry.Pipeline
	logger   *slog.Logger
}

// ErrBadEvent marks a webhook payload that can never be applied.
var ErrBadEvent = errors.New("webhook: bad event")

// HandleWebhook implements WebhookHandler.
func (h *contentEvents) HandleWebhook(ctx context.Context, source string, body []byte, _ http.Header) error {
	var evt contentEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("%w: decode %s event: %v", ErrBadEvent, source, err)
	}
	if evt.Content.ID == "" {
		return fmt.Errorf("%w: content.id is required", ErrBadEvent)
	}

	switch evt.Event {
	case eventContentDeleted:
		if err := h.pipeline.Marks.ContentDeleted(ctx, evt.Content.ID); err != nil {
			return err
		}
		if err := h.pipeline.Content.Delete(ctx, evt.Content.ID); err != nil && !errors.Is(err, content.ErrNotFound) {
			return err
		}
		return nil
	case eventContentSaved:
		return h.saved(ctx, evt)
	default:
		h.logger.Warn("webhook: ignoring unknown event", "source", source, "event", evt.Event)
		return nil
	}
}

func (h *contentEvents) saved(ctx context.Context, evt contentEvent) error {
	if w, ok := h.pipeline.Content.(content.Writer); ok {
		evt.Content.ChangedAt = time.Time{}
		if err := w.Put(ctx, evt.Content); err != nil {
			return err
		}
	}

	switch {
	case evt.ClearTemporary:
		return h.pipeline.Marks.ClearTemporary(ctx, evt.Content.ID)
	case evt.Temporary != nil:
		req, err := evt.Temporary.toSetRequest(evt.Content.ID)
		if err != nil {
			return err
		}
		if req.Bundle == "" {
			req.Bundle = evt.Content.Bundle
		}
		_, err = h.pipeline.Marks.SetTemporary(ctx, req)
		return err
	}
	return nil
}
