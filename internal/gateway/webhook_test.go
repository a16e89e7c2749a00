package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/expiry/internal/mark"
)

// recordingHandler records the webhooks it receives.
type recordingHandler struct {
	calls  int
	source string
	body   []byte
	err    error
}

func (h *recordingHandler) HandleWebhook(_ context.Context, source string, body []byte, _ http.Header) error {
	h.calls++
	h.source = source
	h.body = body
	return h.err
}

func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookDispatcher(t *testing.T) {
	t.Parallel()

	body := []byte(`{"event":"content.saved","content":{"id":"n1"}}`)

	tests := []struct {
		name       string
		source     string
		secret     string
		headers    map[string]string
		handlerErr error
		wantCode   int
		wantCalls  int
		wantBody   string
	}{
		{
			name:      "valid signature",
			source:    "cms",
			secret:    "my-secret",
			headers:   map[string]string{"X-Signature-256": signPayload(body, "my-secret")},
			wantCode:  http.StatusOK,
			wantCalls: 1,
			wantBody:  `"ok":true`,
		},
		{
			name:      "hub signature header",
			source:    "cms",
			secret:    "my-secret",
			headers:   map[string]string{"X-Hub-Signature-256": signPayload(body, "my-secret")},
			wantCode:  http.StatusOK,
			wantCalls: 1,
		},
		{
			name:     "signature from another secret",
			source:   "cms",
			secret:   "my-secret",
			headers:  map[string]string{"X-Signature-256": signPayload(body, "other")},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "missing signature",
			source:   "cms",
			secret:   "my-secret",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:      "no secret configured",
			source:    "open",
			wantCode:  http.StatusOK,
			wantCalls: 1,
		},
		{
			name:       "bad event",
			source:     "open",
			handlerErr: fmt.Errorf("%w: content.id is required", ErrBadEvent),
			wantCode:   http.StatusBadRequest,
			wantCalls:  1,
			wantBody:   "content.id is required",
		},
		{
			name:       "mark rejected",
			source:     "open",
			handlerErr: mark.ErrInvalidExpiry,
			wantCode:   http.StatusUnprocessableEntity,
			wantCalls:  1,
		},
		{
			name:       "store failure hides detail",
			source:     "open",
			handlerErr: errors.New("database is locked"),
			wantCode:   http.StatusInternalServerError,
			wantCalls:  1,
			wantBody:   "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := &recordingHandler{err: tt.handlerErr}
			d := NewWebhookDispatcher(testLogger())
			d.Register(tt.source, h, tt.secret)

			r := chi.NewRouter()
			r.Post("/webhooks/{source}", d.ServeHTTP)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/"+tt.source, bytes.NewReader(body))
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.wantCode, rr.Body)
			}
			if h.calls != tt.wantCalls {
				t.Errorf("handler calls = %d, want %d", h.calls, tt.wantCalls)
			}
			if tt.wantBody != "" && !strings.Contains(rr.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %q", rr.Body, tt.wantBody)
			}
			if strings.Contains(rr.Body.String(), "database is locked") {
				t.Errorf("internal error leaked: %s", rr.Body)
			}
			if tt.wantCalls > 0 && (h.source != tt.source || !bytes.Equal(h.body, body)) {
				t.Errorf("handler got source %q body %q", h.source, h.body)
			}
		})
	}
}

func TestWebhookDispatcher_UnknownSource(t *testing.T) {
	t.Parallel()

	d := NewWebhookDispatcher(testLogger())
	r := chi.NewRouter()
	r.Post("/webhooks/{source}", d.ServeHTTP)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/unknown", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestWebhookDispatcher_OversizedBody(t *testing.T) {
	t.Parallel()

	h := &recordingHandler{}
	d := NewWebhookDispatcher(testLogger())
	d.Register("cms", h, "")
	r := chi.NewRouter()
	r.Post("/webhooks/{source}", d.ServeHTTP)

	big := bytes.Repeat([]byte("a"), maxBodyBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/cms", bytes.NewReader(big))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if h.calls != 0 {
		t.Error("handler called for oversized body")
	}
}

func TestValidateHMAC(t *testing.T) {
	t.Parallel()

	body := []byte(`{"event":"content.deleted","content":{"id":"n9"}}`)
	sig := signPayload(body, "s3cret")

	if !validateHMAC(body, sig, "s3cret") {
		t.Error("valid HMAC should pass")
	}
	if validateHMAC(append(body, ' '), sig, "s3cret") {
		t.Error("HMAC over a different body should fail")
	}
	if validateHMAC(body, strings.TrimPrefix(sig, "sha256="), "s3cret") {
		t.Error("signature without the sha256= prefix should fail")
	}
	if validateHMAC(body, "", "s3cret") {
		t.Error("empty signature should fail")
	}
}
