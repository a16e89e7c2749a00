package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application. Times are stored as
// unix milliseconds so range predicates compare integers.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS marks (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		parent     TEXT    NOT NULL UNIQUE,
		owner      TEXT    NOT NULL DEFAULT '',
		expire_at  INTEGER NOT NULL,
		action     TEXT    NOT NULL,
		created_at INTEGER NOT NULL,
		changed_at INTEGER NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_marks_expire_at ON marks(expire_at)`,

	`CREATE TABLE IF NOT EXISTS queue_items (
		id          TEXT    PRIMARY KEY,
		mark_id     INTEGER NOT NULL UNIQUE,
		attempts    INTEGER NOT NULL DEFAULT 0,
		token       TEXT    NOT NULL DEFAULT '',
		visible_at  INTEGER NOT NULL,
		enqueued_at INTEGER NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_queue_items_visible ON queue_items(visible_at)`,

	`CREATE TABLE IF NOT EXISTS dead_letters (
		id         TEXT    PRIMARY KEY,
		mark_id    INTEGER NOT NULL UNIQUE,
		attempts   INTEGER NOT NULL,
		last_error TEXT    NOT NULL DEFAULT '',
		dead_at    INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS content (
		id         TEXT    PRIMARY KEY,
		bundle     TEXT    NOT NULL DEFAULT '',
		label      TEXT    NOT NULL DEFAULT '',
		published  INTEGER NOT NULL DEFAULT 1,
		changed_at INTEGER NOT NULL
	)`,
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}

	return nil
}
