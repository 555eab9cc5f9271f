package sleuth

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Task statuses. A task is pending until a worker claims it; a crash leaves
// it in_progress, which Recover resets to pending on the next run.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
)

// Task is one URL waiting to be (or already) processed by a batch run.
type Task struct {
	ID         uuid.UUID  `json:"id"`
	URL        string     `json:"url"`
	Domain     string     `json:"domain"`
	Status     string     `json:"status"`
	Attempts   int        `json:"attempts"`
	LastError  *string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// TaskQueue is a SQLite-backed work queue that makes batch runs resumable:
// state survives process restarts, and a killed run picks up where it left
// off. Claiming a task is a single UPDATE, so concurrent workers sharing
// the queue never claim the same task twice.
type TaskQueue struct {
	db *sql.DB
}

// NewTaskQueue opens (or creates) the queue database at the given path.
func NewTaskQueue(dbPath string) (*TaskQueue, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	q := &TaskQueue{db: db}
	if err := q.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return q, nil
}

func (q *TaskQueue) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		domain TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		enqueued_at TEXT NOT NULL,
		finished_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	`
	_, err := q.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (q *TaskQueue) Close() error {
	return q.db.Close()
}

// Enqueue adds a URL to the queue. Re-enqueueing a URL that is already
// queued is a no-op, so feeding the same URL file twice is harmless.
func (q *TaskQueue) Enqueue(rawURL string) error {
	domain, err := DomainFromURL(rawURL)
	if err != nil {
		return fmt.Errorf("failed to derive domain: %w", err)
	}

	query := `
	INSERT INTO tasks (id, url, domain, status, enqueued_at) VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(url) DO NOTHING
	`
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := q.db.Exec(query, uuid.New().String(), rawURL, domain, TaskPending, now); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// Recover resets in_progress tasks back to pending. Call once at startup;
// anything still marked in_progress belonged to a run that died.
func (q *TaskQueue) Recover() error {
	query := "UPDATE tasks SET status = ? WHERE status = ?"
	if _, err := q.db.Exec(query, TaskPending, TaskInProgress); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}
	return nil
}

// Claim atomically takes the oldest pending task and marks it in_progress.
// Returns (nil, nil) when the queue is drained.
func (q *TaskQueue) Claim() (*Task, error) {
	query := `
	UPDATE tasks SET status = ?, attempts = attempts + 1
	WHERE id = (
		SELECT id FROM tasks WHERE status = ? ORDER BY enqueued_at LIMIT 1
	)
	RETURNING id, url, domain, status, attempts, last_error, enqueued_at, finished_at
	`
	row := q.db.QueryRow(query, TaskInProgress, TaskPending)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	return task, nil
}

// MarkCompleted finishes a task successfully.
func (q *TaskQueue) MarkCompleted(id uuid.UUID) error {
	return q.finish(id, TaskCompleted, nil)
}

// MarkFailed finishes a task with its final error. Retrying within a run is
// the retry policy's job; a failed task stays failed until re-enqueued.
func (q *TaskQueue) MarkFailed(id uuid.UUID, cause error) error {
	var msg *string
	if cause != nil {
		s := cause.Error()
		msg = &s
	}
	return q.finish(id, TaskFailed, msg)
}

func (q *TaskQueue) finish(id uuid.UUID, status string, lastError *string) error {
	query := "UPDATE tasks SET status = ?, last_error = ?, finished_at = ? WHERE id = ?"
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := q.db.Exec(query, status, lastError, now, id.String()); err != nil {
		return fmt.Errorf("failed to finish task: %w", err)
	}
	return nil
}

// Counts returns the number of tasks per status.
func (q *TaskQueue) Counts() (map[string]int, error) {
	rows, err := q.db.Query("SELECT status, COUNT(*) FROM tasks GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Tasks returns all tasks with the given status, oldest first.
func (q *TaskQueue) Tasks(status string) ([]Task, error) {
	query := `
	SELECT id, url, domain, status, attempts, last_error, enqueued_at, finished_at
	FROM tasks WHERE status = ? ORDER BY enqueued_at
	`
	rows, err := q.db.Query(query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func scanTask(s scanner) (*Task, error) {
	var task Task
	var id string
	var lastError sql.NullString
	var enqueuedAt string
	var finishedAt sql.NullString

	err := s.Scan(&id, &task.URL, &task.Domain, &task.Status, &task.Attempts,
		&lastError, &enqueuedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	task.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid task id %q: %w", id, err)
	}
	if lastError.Valid {
		task.LastError = &lastError.String
	}
	if t, err := time.Parse(time.RFC3339, enqueuedAt); err == nil {
		task.EnqueuedAt = t
	}
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339, finishedAt.String); err == nil {
			task.FinishedAt = &t
		}
	}
	return &task, nil
}
