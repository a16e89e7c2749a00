package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/clock"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Clock supplies the current time for queue leases.
type Clock interface {
	Now() time.Time
}

// Stores bundles the SQLite-backed stores sharing one database.
type Stores struct {
	DB      *sql.DB
	Marks   *MarkStore
	Queue   *Queue
	Content *ContentStore
}

// Close closes the underlying database.
func (s *Stores) Close() error {
	return s.DB.Close()
}

// Open opens (creating if needed) the database at cfg.Path and returns the
// stores backed by it. A nil clk uses the wall clock.
//
// The database uses a single connection (SQLite serialises writes), the
// configured busy timeout and, unless disabled, WAL mode. The schema is
// migrated automatically.
func Open(ctx context.Context, cfg Config, clk Clock) (*Stores, error) {
	cfg.defaults()
	if clk == nil {
		clk = clock.WallClock
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	// SQLite handles one writer at a time; limit pool to 1 connection
	// so PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)

	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Stores{
		DB:      db,
		Marks:   &MarkStore{db: db},
		Queue:   &Queue{db: db, policy: cfg.Queue, clock: clk},
		Content: &ContentStore{db: db, clock: clk},
	}, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
