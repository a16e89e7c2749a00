package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/flemzord/expiry/internal/mark"
)

// MarkStore implements mark.Store. UNIQUE(parent) enforces at most one
// mark per content item across processes.
type MarkStore struct {
	db *sql.DB
}

const markColumns = `id, parent, owner, expire_at, action, created_at, changed_at`

// Create implements mark.Store.
func (s *MarkStore) Create(ctx context.Context, m mark.Mark) (mark.Mark, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO marks (parent, owner, expire_at, action, created_at, changed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(parent) DO NOTHING`,
		m.Parent, m.Owner, toMillis(m.ExpireAt), string(m.Action),
		toMillis(m.CreatedAt), toMillis(m.ChangedAt),
	)
	if err != nil {
		return mark.Mark{}, fmt.Errorf("sqlite: insert mark: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mark.Mark{}, mark.ErrExists
	}
	id, err := res.LastInsertId()
	if err != nil {
		return mark.Mark{}, fmt.Errorf("sqlite: mark id: %w", err)
	}
	m.ID = id
	return normalize(m), nil
}

// Update implements mark.Store.
func (s *MarkStore) Update(ctx context.Context, m mark.Mark) (mark.Mark, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE marks
		SET parent = ?, owner = ?, expire_at = ?, action = ?, created_at = ?, changed_at = ?
		WHERE id = ?`,
		m.Parent, m.Owner, toMillis(m.ExpireAt), string(m.Action),
		toMillis(m.CreatedAt), toMillis(m.ChangedAt), m.ID,
	)
	if isUniqueViolation(err) {
		return mark.Mark{}, mark.ErrExists
	}
	if err != nil {
		return mark.Mark{}, fmt.Errorf("sqlite: update mark %d: %w", m.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mark.Mark{}, mark.ErrNotFound
	}
	return normalize(m), nil
}

// Get implements mark.Store.
func (s *MarkStore) Get(ctx context.Context, id int64) (mark.Mark, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+markColumns+` FROM marks WHERE id = ?`, id)
	return scanMark(row)
}

// GetByParent implements mark.Store.
func (s *MarkStore) GetByParent(ctx context.Context, parent string) (mark.Mark, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+markColumns+` FROM marks WHERE parent = ?`, parent)
	return scanMark(row)
}

// Delete implements mark.Store.
func (s *MarkStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM marks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: delete mark %d: %w", id, err)
	}
	return nil
}

// DeleteByParent implements mark.Store.
func (s *MarkStore) DeleteByParent(ctx context.Context, parent string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM marks WHERE parent = ?`, parent)
	if err != nil {
		return false, fmt.Errorf("sqlite: delete mark for %s: %w", parent, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ExpiredBefore implements mark.Store. It is served by idx_marks_expire_at.
func (s *MarkStore) ExpiredBefore(ctx context.Context, cutoff time.Time) ([]mark.Mark, error) {
	return s.query(ctx, `SELECT `+markColumns+` FROM marks WHERE expire_at < ? ORDER BY id`, toMillis(cutoff))
}

// List implements mark.Store.
func (s *MarkStore) List(ctx context.Context) ([]mark.Mark, error) {
	return s.query(ctx, `SELECT `+markColumns+` FROM marks ORDER BY expire_at, id`)
}

func (s *MarkStore) query(ctx context.Context, q string, args ...any) ([]mark.Mark, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query marks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []mark.Mark
	for rows.Next() {
		m, err := scanMark(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: query marks rows: %w", err)
	}
	return out, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMark(row scanner) (mark.Mark, error) {
	var (
		m                             mark.Mark
		action                        string
		expireAt, createdAt, changedAt int64
	)
	err := row.Scan(&m.ID, &m.Parent, &m.Owner, &expireAt, &action, &createdAt, &changedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return mark.Mark{}, mark.ErrNotFound
	}
	if err != nil {
		return mark.Mark{}, fmt.Errorf("sqlite: scan mark: %w", err)
	}
	m.Action = mark.Action(action)
	m.ExpireAt = fromMillis(expireAt)
	m.CreatedAt = fromMillis(createdAt)
	m.ChangedAt = fromMillis(changedAt)
	return m, nil
}

// normalize truncates times to the stored precision.
func normalize(m mark.Mark) mark.Mark {
	m.ExpireAt = fromMillis(toMillis(m.ExpireAt))
	m.CreatedAt = fromMillis(toMillis(m.CreatedAt))
	m.ChangedAt = fromMillis(toMillis(m.ChangedAt))
	return m
}

// isUniqueViolation reports a constraint failure. The only constraint an
// update of marks can violate is UNIQUE(parent).
func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT
}
