package taskqueue

import (
	"context"
	"fmt"
	"time"
)

// UpdateHeartbeat refreshes the last heartbeat timestamp for an in-flight task.
func (q *Queue) UpdateHeartbeat(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(
		ctx,
		`UPDATE tasks SET last_heartbeat = ? WHERE id = ? AND status = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale returns processing tasks whose heartbeat expired back to
// pending so another consumer can claim them. Tasks claimed before the
// heartbeat column existed (NULL heartbeat) are left alone.
func (q *Queue) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := q.db.ExecContext(
		ctx,
		`UPDATE tasks
         SET status = ?, started_at = NULL, last_heartbeat = NULL
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusPending,
		StatusProcessing,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed tasks back to pending for reprocessing. With no
// ids every failed task is retried.
func (q *Queue) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		res, err := q.db.ExecContext(
			ctx,
			`UPDATE tasks SET status = ?, error_message = NULL, started_at = NULL WHERE status = ?`,
			StatusPending,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed tasks: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusPending, StatusFailed)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE tasks SET status = ?, error_message = NULL, started_at = NULL
        WHERE status = ? AND id IN (` + placeholders + `)`
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected tasks: %w", err)
	}
	return res.RowsAffected()
}

// ClearCompleted removes completed tasks from the queue.
func (q *Queue) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM tasks WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes failed tasks from the queue.
func (q *Queue) ClearFailed(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM tasks WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}
