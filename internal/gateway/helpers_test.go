package gateway

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/expiry/internal/content"
	"github.com/flemzord/expiry/internal/expiry"
	"github.com/flemzord/expiry/internal/mark"
	"github.com/flemzord/expiry/internal/queue"
	"github.com/flemzord/expiry/internal/settings"
)

const testToken = "test-token"

// testNow is mid-morning on the test day.
var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

type testEnv struct {
	gw      *Gateway
	handler http.Handler
	clock   *testclock.Clock
	marks   *mark.InMemoryStore
	content *content.InMemoryStore
	queue   *queue.InMemoryQueue
}

// newTestEnv wires a gateway over in-memory stores, with bearer auth and
// metrics enabled, without listening on a socket.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clk := testclock.NewClock(testNow)
	env := &testEnv{
		clock:   clk,
		marks:   mark.NewInMemoryStore(),
		content: content.NewInMemoryStore(),
		queue:   queue.NewInMemoryQueue(queue.Policy{MaxAttempts: 2, RetryDelay: time.Second}, clk),
	}
	logger := testLogger()

	pipeline := expiry.Wire(expiry.WireParams{
		Marks:   env.marks,
		Content: env.content,
		Queue:   env.queue,
		Settings: settings.NewStore(settings.Settings{
			Enabled: true,
			Bundles: map[string]settings.Bundle{
				"article": {Enabled: true, ExpireDays: 3},
				"page":    {Enabled: false},
			},
		}),
		Clock:  clk,
		Logger: logger,
	})

	reg := prometheus.NewRegistry()
	g := &Gateway{
		config:     Config{Auth: AuthConfig{BearerToken: testToken}},
		logger:     logger,
		registry:   reg,
		http:       newHTTPMetrics(reg),
		dispatcher: NewWebhookDispatcher(logger),
		pipeline:   pipeline,
		startedAt:  time.Now(),
	}
	g.config.defaults()
	g.limiter = newAuthLimiter(g.config.Auth)

	env.gw = g
	env.handler = g.buildRouter()
	return env
}

// do sends an authenticated request through the router.
func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) putContent(t *testing.T, item content.Item) {
	t.Helper()
	if err := e.content.Put(context.Background(), item); err != nil {
		t.Fatalf("put content: %v", err)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// brokenQueue fails every Stats call.
type brokenQueue struct {
	queue.Queue
}

func (brokenQueue) Stats(context.Context) (queue.Stats, error) {
	return queue.Stats{}, errors.New("database is locked")
}
