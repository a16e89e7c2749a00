package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/flemzord/expiry/internal/content"
)

// ContentStore implements content.Store and content.Writer on the
// content table. It serves deployments where this service owns the
// content records; a CMS adapter replaces it otherwise.
type ContentStore struct {
	db    *sql.DB
	clock Clock
}

// Compile-time interface checks.
var (
	_ content.Store  = (*ContentStore)(nil)
	_ content.Writer = (*ContentStore)(nil)
)

// Put implements content.Writer.
func (s *ContentStore) Put(ctx context.Context, item content.Item) error {
	changed := item.ChangedAt
	if changed.IsZero() {
		changed = s.clock.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content (id, bundle, label, published, changed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			bundle = excluded.bundle, label = excluded.label,
			published = excluded.published, changed_at = excluded.changed_at`,
		item.ID, item.Bundle, item.Label, boolToInt(item.Published), toMillis(changed),
	)
	if err != nil {
		return fmt.Errorf("sqlite: put content %s: %w", item.ID, err)
	}
	return nil
}

// Load implements content.Store.
func (s *ContentStore) Load(ctx context.Context, id string) (content.Item, error) {
	var (
		item      content.Item
		published int
		changedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, bundle, label, published, changed_at FROM content WHERE id = ?`, id,
	).Scan(&item.ID, &item.Bundle, &item.Label, &published, &changedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Item{}, content.ErrNotFound
	}
	if err != nil {
		return content.Item{}, fmt.Errorf("sqlite: load content %s: %w", id, err)
	}
	item.Published = published != 0
	item.ChangedAt = fromMillis(changedAt)
	return item, nil
}

// Delete implements content.Store.
func (s *ContentStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM content WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete content %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return content.ErrNotFound
	}
	return nil
}

// SetPublished implements content.Store.
func (s *ContentStore) SetPublished(ctx context.Context, id string, published bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE content SET published = ?, changed_at = ? WHERE id = ?`,
		boolToInt(published), toMillis(s.clock.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: set published %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return content.ErrNotFound
	}
	return nil
}

// List returns every content item ordered by id.
func (s *ContentStore) List(ctx context.Context) ([]content.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bundle, label, published, changed_at FROM content ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list content: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []content.Item
	for rows.Next() {
		var (
			item      content.Item
			published int
			changedAt int64
		)
		if err := rows.Scan(&item.ID, &item.Bundle, &item.Label, &published, &changedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan content: %w", err)
		}
		item.Published = published != 0
		item.ChangedAt = fromMillis(changedAt)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list content rows: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
