package expiry_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/flemzord/expiry/internal/content"
	"github.com/flemzord/expiry/internal/expiry"
	"github.com/flemzord/expiry/internal/expiry/expirytest"
	"github.com/flemzord/expiry/internal/mark"
	"github.com/flemzord/expiry/internal/queue"
)

// scanTime is a few minutes into day T.
var scanTime = time.Date(2026, 3, 10, 0, 5, 0, 0, time.UTC)

func dayOffset(days int) time.Time {
	return mark.DayStart(scanTime).AddDate(0, 0, days)
}

const (
	testLease = time.Minute
	testRetry = 10 * time.Second
)

type harness struct {
	clk     *testclock.Clock
	marks   *expirytest.MarkStore
	items   *content.InMemoryStore
	content *expirytest.ContentStore
	queue   *expirytest.Queue
	logs    *logBuffer
	scanner *expiry.Scanner
	worker  *expiry.Worker
}

type harnessOpts struct {
	inclusive   bool
	maxAttempts int
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()
	if opts.maxAttempts == 0 {
		opts.maxAttempts = 3
	}

	clk := testclock.NewClock(scanTime)
	items := content.NewInMemoryStore()
	h := &harness{
		clk:     clk,
		marks:   expirytest.NewMarkStore(mark.NewInMemoryStore()),
		items:   items,
		content: expirytest.NewContentStore(items),
		queue: expirytest.NewQueue(queue.NewInMemoryQueue(queue.Policy{
			MaxAttempts: opts.maxAttempts,
			RetryDelay:  testRetry,
		}, clk)),
		logs: &logBuffer{},
	}
	logger := slog.New(slog.NewJSONHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h.scanner = expiry.NewScanner(expiry.ScannerParams{
		Marks:             h.marks,
		Queue:             h.queue,
		Clock:             clk,
		Logger:            logger,
		InclusiveBoundary: opts.inclusive,
	})
	h.worker = expiry.NewWorker(expiry.WorkerParams{
		Marks:             h.marks,
		Content:           h.content,
		Queue:             h.queue,
		Clock:             clk,
		Logger:            logger,
		BatchSize:         10,
		Lease:             testLease,
		InclusiveBoundary: opts.inclusive,
	})
	return h
}

func (h *harness) addContent(t *testing.T, id string, published bool) {
	t.Helper()
	err := h.items.Put(context.Background(), content.Item{
		ID:        id,
		Bundle:    "article",
		Label:     "Title of " + id,
		Published: published,
	})
	if err != nil {
		t.Fatalf("Put(%s): %v", id, err)
	}
}

// addMark stores a mark directly, bypassing the service's future-date check.
func (h *harness) addMark(t *testing.T, parent string, expireAt time.Time, action mark.Action) mark.Mark {
	t.Helper()
	m, err := h.marks.Create(context.Background(), mark.Mark{
		Owner:    "alice",
		Parent:   parent,
		ExpireAt: expireAt,
		Action:   action,
	})
	if err != nil {
		t.Fatalf("Create(%s): %v", parent, err)
	}
	return m
}

func (h *harness) scan(t *testing.T) expiry.ScanResult {
	t.Helper()
	res, err := h.scanner.RunScan(context.Background())
	if err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	return res
}

func (h *harness) drain(t *testing.T) expiry.DrainResult {
	t.Helper()
	res, err := h.worker.RunWorkerBatch(context.Background())
	if err != nil {
		t.Fatalf("RunWorkerBatch: %v", err)
	}
	return res
}

func (h *harness) markExists(t *testing.T, id int64) bool {
	t.Helper()
	_, err := h.marks.Get(context.Background(), id)
	return err == nil
}

func (h *harness) queued(t *testing.T) int {
	t.Helper()
	st, err := h.queue.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	return st.Pending + st.Leased
}

// logBuffer collects JSON log lines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// records returns the decoded records whose message equals msg.
func (b *logBuffer) records(t *testing.T, msg string) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("decoding log line %q: %v", line, err)
		}
		if rec["msg"] == msg {
			out = append(out, rec)
		}
	}
	return out
}
