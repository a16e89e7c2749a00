package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/expiry/internal/queue"
)

// Queue implements queue.Queue on the queue_items and dead_letters
// tables. Items survive restarts; a lease held by a crashed process
// simply runs out.
type Queue struct {
	db     *sql.DB
	policy queue.Policy
	clock  Clock
}

// Compile-time interface check.
var _ queue.Queue = (*Queue)(nil)

// Enqueue implements queue.Queue.
func (q *Queue) Enqueue(ctx context.Context, item queue.Item) (bool, error) {
	now := toMillis(q.clock.Now())
	added := false
	err := q.inTx(ctx, func(tx *sql.Tx) error {
		var dead int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM dead_letters WHERE mark_id = ?`, item.MarkID,
		).Scan(&dead); err != nil {
			return err
		}
		if dead > 0 {
			return nil
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO queue_items (id, mark_id, visible_at, enqueued_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(mark_id) DO NOTHING`,
			uuid.NewString(), item.MarkID, now, now,
		)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		added = n == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("sqlite: enqueue mark %d: %w", item.MarkID, err)
	}
	return added, nil
}

// Claim implements queue.Queue.
func (q *Queue) Claim(ctx context.Context, max int, lease time.Duration) ([]queue.Delivery, error) {
	if max <= 0 {
		return nil, nil
	}
	if lease <= 0 {
		return nil, fmt.Errorf("queue: lease must be positive, got %s", lease)
	}

	now := q.clock.Now()
	leasedUntil := now.Add(lease)
	var out []queue.Delivery
	err := q.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, mark_id, attempts, enqueued_at
			FROM queue_items
			WHERE visible_at <= ?
			ORDER BY rowid
			LIMIT ?`,
			toMillis(now), max,
		)
		if err != nil {
			return err
		}
		for rows.Next() {
			var (
				d          queue.Delivery
				enqueuedAt int64
			)
			if err := rows.Scan(&d.ID, &d.Item.MarkID, &d.Attempt, &enqueuedAt); err != nil {
				_ = rows.Close()
				return err
			}
			d.Attempt++
			d.Token = uuid.NewString()
			d.EnqueuedAt = fromMillis(enqueuedAt)
			d.LeasedUntil = fromMillis(toMillis(leasedUntil))
			out = append(out, d)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, d := range out {
			if _, err := tx.ExecContext(ctx, `
				UPDATE queue_items SET attempts = ?, token = ?, visible_at = ? WHERE id = ?`,
				d.Attempt, d.Token, toMillis(leasedUntil), d.ID,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: claim: %w", err)
	}
	return out, nil
}

// Ack implements queue.Queue.
func (q *Queue) Ack(ctx context.Context, d queue.Delivery) error {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM queue_items WHERE id = ? AND token = ? AND token != ''`, d.ID, d.Token)
	if err != nil {
		return fmt.Errorf("sqlite: ack %s: %w", d.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return queue.ErrLeaseLost
	}
	return nil
}

// Nack implements queue.Queue.
func (q *Queue) Nack(ctx context.Context, d queue.Delivery, cause error) error {
	now := q.clock.Now()
	err := q.inTx(ctx, func(tx *sql.Tx) error {
		var markID int64
		var attempts int
		err := tx.QueryRowContext(ctx,
			`SELECT mark_id, attempts FROM queue_items WHERE id = ? AND token = ? AND token != ''`,
			d.ID, d.Token,
		).Scan(&markID, &attempts)
		if errors.Is(err, sql.ErrNoRows) {
			return queue.ErrLeaseLost
		}
		if err != nil {
			return err
		}

		if !q.policy.Exhausted(attempts) {
			_, err := tx.ExecContext(ctx,
				`UPDATE queue_items SET token = '', visible_at = ? WHERE id = ?`,
				toMillis(now.Add(q.policy.RetryDelay)), d.ID,
			)
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dead_letters (id, mark_id, attempts, last_error, dead_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(mark_id) DO UPDATE SET
				id = excluded.id, attempts = excluded.attempts,
				last_error = excluded.last_error, dead_at = excluded.dead_at`,
			d.ID, markID, attempts, causeText(cause), toMillis(now),
		); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM queue_items WHERE id = ?`, d.ID)
		return err
	})
	if errors.Is(err, queue.ErrLeaseLost) {
		return err
	}
	if err != nil {
		return fmt.Errorf("sqlite: nack %s: %w", d.ID, err)
	}
	return nil
}

// Stats implements queue.Queue.
func (q *Queue) Stats(ctx context.Context) (queue.Stats, error) {
	now := toMillis(q.clock.Now())
	var st queue.Stats
	err := q.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN token != '' AND visible_at > ? THEN 0 ELSE 1 END), 0),
			COALESCE(SUM(CASE WHEN token != '' AND visible_at > ? THEN 1 ELSE 0 END), 0),
			(SELECT COUNT(*) FROM dead_letters)
		FROM queue_items`,
		now, now,
	).Scan(&st.Pending, &st.Leased, &st.Dead)
	if err != nil {
		return queue.Stats{}, fmt.Errorf("sqlite: queue stats: %w", err)
	}
	return st, nil
}

// DeadLetters implements queue.Queue.
func (q *Queue) DeadLetters(ctx context.Context) ([]queue.DeadLetter, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, mark_id, attempts, last_error, dead_at
		FROM dead_letters
		ORDER BY dead_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: dead letters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []queue.DeadLetter
	for rows.Next() {
		var (
			dl     queue.DeadLetter
			deadAt int64
		)
		if err := rows.Scan(&dl.ID, &dl.Item.MarkID, &dl.Attempts, &dl.LastError, &deadAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan dead letter: %w", err)
		}
		dl.DeadAt = fromMillis(deadAt)
		out = append(out, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: dead letters rows: %w", err)
	}
	return out, nil
}

// Requeue implements queue.Queue.
func (q *Queue) Requeue(ctx context.Context, id string) error {
	now := toMillis(q.clock.Now())
	err := q.inTx(ctx, func(tx *sql.Tx) error {
		var markID int64
		err := tx.QueryRowContext(ctx, `SELECT mark_id FROM dead_letters WHERE id = ?`, id).Scan(&markID)
		if errors.Is(err, sql.ErrNoRows) {
			return queue.ErrNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = ?`, id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO queue_items (id, mark_id, visible_at, enqueued_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(mark_id) DO NOTHING`,
			id, markID, now, now,
		)
		return err
	})
	if errors.Is(err, queue.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("sqlite: requeue %s: %w", id, err)
	}
	return nil
}

// inTx runs fn in a transaction, committing when it returns nil.
func (q *Queue) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func causeText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
