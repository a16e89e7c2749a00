package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/expiry/internal/content"
	"github.com/flemzord/expiry/internal/mark"
	"github.com/flemzord/expiry/internal/queue"
)

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestAPI_SetGetClearMark(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPut, "/api/content/n1/temporary",
		`{"owner":"alice","expire_at":"2026-03-15","action":"delete"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", rr.Code, rr.Body)
	}
	m := decodeBody[mark.Mark](t, rr)
	if m.Parent != "n1" || m.Owner != "alice" || m.Action != mark.ActionDelete {
		t.Errorf("created mark = %+v", m)
	}
	if want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC); !m.ExpireAt.Equal(want) {
		t.Errorf("expire_at = %v, want %v", m.ExpireAt, want)
	}

	rr = env.do(t, http.MethodGet, "/api/content/n1/temporary", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rr.Code)
	}
	if got := decodeBody[mark.Mark](t, rr); got.ID != m.ID {
		t.Errorf("GET id = %d, want %d", got.ID, m.ID)
	}

	rr = env.do(t, http.MethodDelete, "/api/content/n1/temporary", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/api/content/n1/temporary", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("GET after clear status = %d, want 404", rr.Code)
	}
}

func TestAPI_SetMarkUsesBundleDefault(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPut, "/api/content/n1/temporary", `{"bundle":"article"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}
	m := decodeBody[mark.Mark](t, rr)
	if want := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC); !m.ExpireAt.Equal(want) {
		t.Errorf("expire_at = %v, want %v (three days out)", m.ExpireAt, want)
	}
	if m.Action != mark.ActionUnpublish {
		t.Errorf("action = %s, want unpublish", m.Action)
	}
}

func TestAPI_SetMarkErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"past date", `{"expire_at":"2026-03-01"}`, http.StatusUnprocessableEntity},
		{"today", `{"expire_at":"2026-03-10"}`, http.StatusUnprocessableEntity},
		{"bad date", `{"expire_at":"tomorrow"}`, http.StatusUnprocessableEntity},
		{"bad action", `{"expire_at":"2026-03-20","action":"archive"}`, http.StatusUnprocessableEntity},
		{"disabled bundle", `{"bundle":"page"}`, http.StatusForbidden},
		{"no date no bundle", `{}`, http.StatusUnprocessableEntity},
		{"unknown field", `{"expires":"2026-03-20"}`, http.StatusBadRequest},
		{"not json", `nope`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			rr := env.do(t, http.MethodPut, "/api/content/n1/temporary", tt.body)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.want, rr.Body)
			}
			if env.marks.Len() != 0 {
				t.Error("rejected request stored a mark")
			}
		})
	}
}

func TestAPI_MarkStatus(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.do(t, http.MethodPut, "/api/content/n1/temporary", `{"owner":"alice","expire_at":"2026-03-15"}`)

	rr := env.do(t, http.MethodGet, "/api/content/n1/status?viewer=alice", "")
	body := decodeBody[map[string]any](t, rr)
	if body["temporary"] != true || !strings.HasPrefix(body["message"].(string), "You have marked") {
		t.Errorf("owner status = %v", body)
	}

	rr = env.do(t, http.MethodGet, "/api/content/n1/status?viewer=bob&tz=America/New_York", "")
	body = decodeBody[map[string]any](t, rr)
	msg := body["message"].(string)
	if !strings.HasPrefix(msg, "alice has marked") || !strings.Contains(msg, "14.03.2026") {
		t.Errorf("viewer status = %q, want alice and the New York date", msg)
	}

	rr = env.do(t, http.MethodGet, "/api/content/other/status", "")
	body = decodeBody[map[string]any](t, rr)
	if body["temporary"] != false || body["message"] != "" {
		t.Errorf("unmarked status = %v", body)
	}

	rr = env.do(t, http.MethodGet, "/api/content/n1/status?tz=Mars/Olympus", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad tz status = %d, want 400", rr.Code)
	}
}

func TestAPI_ContentLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPut, "/api/content/n1", `{"bundle":"article","label":"Notes","published":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT content status = %d, body %s", rr.Code, rr.Body)
	}
	item := decodeBody[content.Item](t, rr)
	if item.ID != "n1" || !item.Published || item.Label != "Notes" {
		t.Errorf("stored item = %+v", item)
	}

	env.do(t, http.MethodPut, "/api/content/n1/temporary", `{"expire_at":"2026-03-20"}`)

	rr = env.do(t, http.MethodDelete, "/api/content/n1", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("DELETE content status = %d", rr.Code)
	}
	if env.content.Len() != 0 {
		t.Error("content item not deleted")
	}
	if env.marks.Len() != 0 {
		t.Error("mark not removed with its content item")
	}

	rr = env.do(t, http.MethodGet, "/api/content/n1", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("GET deleted content status = %d, want 404", rr.Code)
	}
}

func TestAPI_ScanAndDrain(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.putContent(t, content.Item{ID: "n1", Label: "Old news", Published: true})
	env.putContent(t, content.Item{ID: "n2", Label: "Flyer", Published: true})
	env.do(t, http.MethodPut, "/api/content/n1/temporary", `{"expire_at":"2026-03-11","action":"delete"}`)
	env.do(t, http.MethodPut, "/api/content/n2/temporary", `{"expire_at":"2026-03-11"}`)

	env.clock.Advance(24 * time.Hour)

	rr := env.do(t, http.MethodPost, "/api/scan", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("scan status = %d", rr.Code)
	}
	if scan := decodeBody[map[string]any](t, rr); scan["enqueued"] != float64(0) {
		t.Errorf("scan on the expiry day enqueued %v, want 0", scan["enqueued"])
	}

	env.clock.Advance(24 * time.Hour)

	rr = env.do(t, http.MethodPost, "/api/scan", "")
	if scan := decodeBody[map[string]any](t, rr); scan["enqueued"] != float64(2) {
		t.Fatalf("scan enqueued %v, want 2", scan["enqueued"])
	}

	rr = env.do(t, http.MethodGet, "/api/queue", "")
	q := decodeBody[queueResponse](t, rr)
	if q.Stats.Pending != 2 {
		t.Errorf("pending = %d, want 2", q.Stats.Pending)
	}

	rr = env.do(t, http.MethodPost, "/api/drain", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("drain status = %d", rr.Code)
	}
	drain := decodeBody[map[string]int](t, rr)
	if drain["deleted"] != 1 || drain["unpublished"] != 1 {
		t.Errorf("drain = %v, want one delete and one unpublish", drain)
	}

	if _, err := env.content.Load(context.Background(), "n1"); !errors.Is(err, content.ErrNotFound) {
		t.Error("n1 should be deleted")
	}
	n2, _ := env.content.Load(context.Background(), "n2")
	if n2.Published {
		t.Error("n2 should be unpublished")
	}

	rr = env.do(t, http.MethodGet, "/api/marks", "")
	if marks := decodeBody[[]mark.Mark](t, rr); len(marks) != 0 {
		t.Errorf("marks after drain = %+v, want none", marks)
	}
}

func TestAPI_QueueDeadLetterRequeue(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.queue.Enqueue(ctx, queue.Item{MarkID: 42}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	for range 2 {
		ds, err := env.queue.Claim(ctx, 1, time.Minute)
		if err != nil || len(ds) != 1 {
			t.Fatalf("claim = %v, %v", ds, err)
		}
		if err := env.queue.Nack(ctx, ds[0], errors.New("content store unavailable")); err != nil {
			t.Fatalf("nack: %v", err)
		}
		env.clock.Advance(time.Second)
	}

	rr := env.do(t, http.MethodGet, "/api/queue", "")
	q := decodeBody[queueResponse](t, rr)
	if q.Stats.Dead != 1 || len(q.DeadLetters) != 1 {
		t.Fatalf("queue = %+v, want one dead letter", q)
	}
	dl := q.DeadLetters[0]
	if dl.Item.MarkID != 42 || dl.LastError != "content store unavailable" {
		t.Errorf("dead letter = %+v", dl)
	}

	rr = env.do(t, http.MethodPost, "/api/queue/dead/"+dl.ID+"/requeue", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("requeue status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodPost, "/api/queue/dead/"+dl.ID+"/requeue", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("second requeue status = %d, want 404", rr.Code)
	}

	st, _ := env.queue.Stats(ctx)
	if st.Pending != 1 || st.Dead != 0 {
		t.Errorf("stats after requeue = %+v", st)
	}
}

func TestAPI_RequiresAuth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/marks", nil)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestAPI_PipelineUnavailable(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.gw.pipeline = nil

	rr := env.do(t, http.MethodGet, "/api/marks", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{mark.ErrNotFound, http.StatusNotFound},
		{content.ErrNotFound, http.StatusNotFound},
		{queue.ErrNotFound, http.StatusNotFound},
		{mark.ErrInvalidExpiry, http.StatusUnprocessableEntity},
		{mark.ErrDisabled, http.StatusForbidden},
		{mark.ErrExists, http.StatusConflict},
		{fmt.Errorf("%w: content.id is required", ErrBadEvent), http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestAPI_InternalErrorHidesDetail(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	var logs bytes.Buffer
	env.gw.logger = slog.New(slog.NewTextHandler(&logs, nil))
	env.gw.pipeline.Queue = brokenQueue{Queue: env.queue}

	for _, path := range []string{"/api/queue", "/status"} {
		rr := env.do(t, http.MethodGet, path, "")
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("%s status = %d, want 500", path, rr.Code)
		}
		body := decodeBody[map[string]string](t, rr)
		if body["error"] != internalErrorBody {
			t.Errorf("%s error = %q, want %q", path, body["error"], internalErrorBody)
		}
	}
	if !strings.Contains(logs.String(), "database is locked") {
		t.Errorf("failure detail not logged: %s", logs.String())
	}
}

func TestWriteError_KeepsClientErrors(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	writeError(rr, http.StatusUnprocessableEntity, mark.ErrInvalidExpiry)
	if !strings.Contains(rr.Body.String(), mark.ErrInvalidExpiry.Error()) {
		t.Errorf("4xx body lost its detail: %s", rr.Body)
	}

	rr = httptest.NewRecorder()
	writeError(rr, http.StatusInternalServerError, errors.New("open /var/lib/expiry/expiry.db: permission denied"))
	if strings.Contains(rr.Body.String(), "/var/lib") {
		t.Errorf("500 body leaked detail: %s", rr.Body)
	}
}
