package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStores(t *testing.T, clk Clock) *Stores {
	t.Helper()
	cfg := Config{Path: filepath.Join(t.TempDir(), "test.db")}
	stores, err := Open(context.Background(), cfg, clk)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = stores.Close() })
	return stores
}
