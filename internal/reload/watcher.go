// Package reload applies configuration changes to a running application.
// Changes arrive through SIGHUP, the admin API or the polling Watcher.
package reload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"os"
	"sync"
	"time"

	"github.com/juju/clock"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// ConfigPath is the file to watch.
	ConfigPath string

	// PollInterval defaults to 5 seconds.
	PollInterval time.Duration

	// Clock drives polling. Defaults to the wall clock.
	Clock clock.Clock
}

// EventType describes a file change.
type EventType string

const (
	// EventModified means the file content changed.
	EventModified EventType = "modified"

	// EventRemoved means the file disappeared. A later reappearance is
	// reported as EventModified.
	EventRemoved EventType = "removed"
)

// Event is a file change notification.
type Event struct {
	Type       EventType
	ConfigPath string
}

// Watcher polls a file and reports content changes once they have held
// for two polls. Rewrites that leave the bytes unchanged, such as a touch,
// are not reported.
type Watcher struct {
	path     string
	interval time.Duration
	clock    clock.Clock

	events chan Event
	stop   chan struct{}
	done   chan struct{}

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
}

// NewWatcher creates a watcher. Call Start to begin polling.
func NewWatcher(cfg WatcherConfig) *Watcher {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	return &Watcher{
		path:     cfg.ConfigPath,
		interval: interval,
		clock:    clk,
		events:   make(chan Event, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins polling until ctx ends or Stop is called. Later calls are
// no-ops.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	go w.poll(ctx)
}

// Events returns the change notifications. A pending event absorbs
// further changes until it is read.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop ends polling and waits for the poller to exit. It is safe to call
// more than once and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })

	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.done
	}
}

// fileState is one observation of the watched file.
type fileState struct {
	sum     []byte
	present bool
}

func (a fileState) equal(b fileState) bool {
	return a.present == b.present && bytes.Equal(a.sum, b.sum)
}

// poll reports a change only once two consecutive polls agree on it, so a
// save caught between truncate and write is never reported.
func (w *Watcher) poll(ctx context.Context) {
	defer close(w.done)

	last := w.observe()
	var candidate *fileState
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-w.clock.After(w.interval):
		}

		cur := w.observe()
		switch {
		case cur.equal(last):
			candidate = nil
		case candidate == nil || !cur.equal(*candidate):
			candidate = &cur
		default:
			candidate = nil
			wasPresent := last.present
			last = cur
			if !cur.present {
				if wasPresent {
					w.emit(EventRemoved)
				}
				continue
			}
			w.emit(EventModified)
		}
	}
}

func (w *Watcher) observe() fileState {
	sum, ok := w.digest()
	return fileState{sum: sum, present: ok}
}

func (w *Watcher) emit(t EventType) {
	select {
	case w.events <- Event{Type: t, ConfigPath: w.path}:
	default:
	}
}

// digest hashes the file. ok is false when the file cannot be read.
func (w *Watcher) digest() (sum []byte, ok bool) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, false
	}
	h := sha256.Sum256(data)
	return h[:], true
}
