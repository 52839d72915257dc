package taskqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Queue is a durable task queue over the shared pipeline database.
//
// Claiming is a single atomic UPDATE ... RETURNING against the oldest
// pending row, so concurrent claimants serialize on the SQLite write lock
// and never observe the same task; an empty queue yields nil, not an error.
type Queue struct {
	db *sql.DB
}

// New wraps a database handle opened by the store package.
func New(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue inserts a pending task and returns its identifier.
func (q *Queue) Enqueue(ctx context.Context, taskType Type, payload json.RawMessage) (int64, error) {
	return q.EnqueueWithPriority(ctx, taskType, payload, 0)
}

// EnqueueWithPriority inserts a pending task with an explicit priority.
// Higher priorities are claimed first.
func (q *Queue) EnqueueWithPriority(ctx context.Context, taskType Type, payload json.RawMessage, priority int) (int64, error) {
	if _, ok := taskTypes[taskType]; !ok {
		return 0, fmt.Errorf("unknown task type %q", taskType)
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return 0, errors.New("task payload must be well-formed JSON")
	}

	res, err := q.db.ExecContext(
		ctx,
		`INSERT INTO tasks (task_type, payload, status, priority, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		taskType,
		string(payload),
		StatusPending,
		priority,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// ClaimOne atomically claims the oldest pending task of the given type,
// transitioning it to processing. Returns nil (not an error) when no
// pending task exists.
func (q *Queue) ClaimOne(ctx context.Context, taskType Type) (*Task, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	row := q.db.QueryRowContext(
		ctx,
		`UPDATE tasks
         SET status = ?, started_at = ?, last_heartbeat = ?
         WHERE id = (
             SELECT id FROM tasks
             WHERE task_type = ? AND status = ?
             ORDER BY priority DESC, created_at ASC, id ASC
             LIMIT 1
         )
         RETURNING `+taskColumns,
		StatusProcessing,
		now,
		now,
		taskType,
		StatusPending,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

// Complete transitions a processing task to completed. Calling it again for
// an already-completed task is a no-op, not an error.
func (q *Queue) Complete(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(
		ctx,
		`UPDATE tasks
         SET status = ?, completed_at = ?, last_heartbeat = NULL
         WHERE id = ? AND status IN (?, ?)`,
		StatusCompleted,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusProcessing,
		StatusCompleted,
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// Fail transitions a processing task to failed, recording the message.
// Failed tasks are not retried automatically; retry is a deliberate
// re-enqueue by the producer.
func (q *Queue) Fail(ctx context.Context, id int64, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := q.db.ExecContext(
		ctx,
		`UPDATE tasks
         SET status = ?, error_message = ?, last_error_at = ?, last_heartbeat = NULL
         WHERE id = ? AND status = ?`,
		StatusFailed,
		strings.TrimSpace(message),
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	return nil
}

// CountPending returns the number of pending tasks of the given type.
func (q *Queue) CountPending(ctx context.Context, taskType Type) (int, error) {
	var count int
	row := q.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM tasks WHERE task_type = ? AND status = ?`,
		taskType,
		StatusPending,
	)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return count, nil
}

// Get fetches a task by identifier. Returns nil when absent.
func (q *Queue) Get(ctx context.Context, id int64) (*Task, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// List returns tasks filtered by status set (or all tasks when no status is
// provided), ordered by creation time.
func (q *Queue) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	baseQuery := `SELECT ` + taskColumns + ` FROM tasks`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = q.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = q.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Stats returns a count of tasks grouped by status.
func (q *Queue) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

const taskColumns = "id, task_type, payload, status, priority, error_message, created_at, started_at, completed_at, last_error_at, last_heartbeat"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id           int64
		taskType     string
		payload      string
		statusStr    string
		priority     int
		errorMessage sql.NullString
		createdRaw   sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
		lastErrorRaw sql.NullString
		heartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&taskType,
		&payload,
		&statusStr,
		&priority,
		&errorMessage,
		&createdRaw,
		&startedRaw,
		&completedRaw,
		&lastErrorRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:           id,
		Type:         Type(taskType),
		Payload:      json.RawMessage(payload),
		Status:       Status(statusStr),
		Priority:     priority,
		ErrorMessage: errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	task.StartedAt = parseOptionalTime(startedRaw)
	task.CompletedAt = parseOptionalTime(completedRaw)
	task.LastErrorAt = parseOptionalTime(lastErrorRaw)
	task.LastHeartbeat = parseOptionalTime(heartbeatRaw)
	return task, nil
}

func parseOptionalTime(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	parsed, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
