package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"presupuestos/internal/budget"
	"presupuestos/internal/core"
)

// Outbox statuses.
const (
	statusPending    = "pending"
	statusProcessing = "processing"
	statusPublished  = "published"
	statusFailed     = "failed"
)

func enqueue(ctx context.Context, q queryer, ev core.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return core.Persistence("encode event", err)
	}
	now := time.Now().UnixMilli()
	_, err = q.ExecContext(ctx, `INSERT INTO outbox_events
		(event_id, event_type, payload, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Type), string(payload), statusPending, now, now)
	if err != nil {
		return core.Persistence("enqueue event", err)
	}
	return nil
}

// DequeueEvents implements budget.Outbox.
func (s *SQLiteStore) DequeueEvents(ctx context.Context, limit int) ([]budget.OutboxEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin dequeue: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT seq, payload, attempts FROM outbox_events WHERE status = ? ORDER BY seq LIMIT ?`,
		statusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending events: %w", err)
	}

	var events []budget.OutboxEvent
	for rows.Next() {
		var (
			item    budget.OutboxEvent
			payload string
		)
		if err := rows.Scan(&item.Seq, &payload, &item.Attempts); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &item.Event); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode event %d: %w", item.Seq, err)
		}
		events = append(events, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, e := range events {
		if _, err := tx.ExecContext(ctx,
			`UPDATE outbox_events SET status = ?, updated_at = ? WHERE seq = ?`,
			statusProcessing, now, e.Seq); err != nil {
			return nil, fmt.Errorf("claim event %d: %w", e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dequeue: %w", err)
	}
	return events, nil
}

// MarkPublished implements budget.Outbox.
func (s *SQLiteStore) MarkPublished(ctx context.Context, seq int64) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = ?, attempts = attempts + 1, updated_at = ?, processed_at = ? WHERE seq = ?`,
		statusPublished, now, now, seq)
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return nil
}

// MarkRetry implements budget.Outbox.
func (s *SQLiteStore) MarkRetry(ctx context.Context, seq int64, cause string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ? WHERE seq = ?`,
		statusPending, cause, time.Now().UnixMilli(), seq)
	if err != nil {
		return fmt.Errorf("mark event retry: %w", err)
	}
	return nil
}

// Release implements budget.Outbox.
func (s *SQLiteStore) Release(ctx context.Context, seq int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = ?, updated_at = ? WHERE seq = ? AND status = ?`,
		statusPending, time.Now().UnixMilli(), seq, statusProcessing)
	if err != nil {
		return fmt.Errorf("release event: %w", err)
	}
	return nil
}

// MarkFailed implements budget.Outbox.
func (s *SQLiteStore) MarkFailed(ctx context.Context, seq int64, cause string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ? WHERE seq = ?`,
		statusFailed, cause, time.Now().UnixMilli(), seq)
	if err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	slog.WarnContext(ctx, "Outbox event marked as failed", "seq", seq, "error", cause)
	return nil
}

// ResetStale implements budget.Outbox.
func (s *SQLiteStore) ResetStale(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age).UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = ?, updated_at = ? WHERE status = ? AND updated_at <= ?`,
		statusPending, time.Now().UnixMilli(), statusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reset stale events: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.InfoContext(ctx, "Reset stale outbox events", "count", n)
	}
	return int(n), nil
}

// Cleanup implements budget.Outbox.
func (s *SQLiteStore) Cleanup(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM outbox_events WHERE status = ? AND processed_at < ?`,
		statusPublished, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("cleanup published events: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Stats implements budget.Outbox.
func (s *SQLiteStore) Stats(ctx context.Context) (budget.OutboxStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM outbox_events GROUP BY status`)
	if err != nil {
		return budget.OutboxStats{}, fmt.Errorf("outbox stats: %w", err)
	}
	defer rows.Close()

	var st budget.OutboxStats
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return budget.OutboxStats{}, fmt.Errorf("scan outbox stats: %w", err)
		}
		switch status {
		case statusPending:
			st.Pending = n
		case statusProcessing:
			st.Processing = n
		case statusPublished:
			st.Published = n
		case statusFailed:
			st.Failed = n
		}
	}
	return st, rows.Err()
}
