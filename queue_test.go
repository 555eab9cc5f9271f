package sleuth

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: create a task queue backed by a temp database.
func createTestQueue(t *testing.T) *TaskQueue {
	dbPath := filepath.Join(t.TempDir(), "queue.db")
	queue, err := NewTaskQueue(dbPath)
	require.NoError(t, err, "should create task queue")
	t.Cleanup(func() { queue.Close() })
	return queue
}

// TestTaskQueue_EnqueueAndClaim verifies the basic claim cycle.
func TestTaskQueue_EnqueueAndClaim(t *testing.T) {
	queue := createTestQueue(t)

	require.NoError(t, queue.Enqueue("https://example.com/one"))

	task, err := queue.Claim()
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "https://example.com/one", task.URL)
	assert.Equal(t, "example.com", task.Domain)
	assert.Equal(t, TaskInProgress, task.Status)
	assert.Equal(t, 1, task.Attempts)

	// Queue is drained now.
	next, err := queue.Claim()
	require.NoError(t, err)
	assert.Nil(t, next)
}

// TestTaskQueue_EnqueueDuplicateIsNoop verifies re-feeding the same URL file
// is harmless.
func TestTaskQueue_EnqueueDuplicateIsNoop(t *testing.T) {
	queue := createTestQueue(t)

	require.NoError(t, queue.Enqueue("https://example.com/one"))
	require.NoError(t, queue.Enqueue("https://example.com/one"))

	counts, err := queue.Counts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[TaskPending])
}

// TestTaskQueue_EnqueueRejectsBadURL verifies URLs without a host are
// refused.
func TestTaskQueue_EnqueueRejectsBadURL(t *testing.T) {
	queue := createTestQueue(t)
	assert.Error(t, queue.Enqueue("not a url"))
}

// TestTaskQueue_ClaimOrder verifies the oldest pending task goes first.
func TestTaskQueue_ClaimOrder(t *testing.T) {
	queue := createTestQueue(t)

	require.NoError(t, queue.Enqueue("https://example.com/first"))
	require.NoError(t, queue.Enqueue("https://example.com/second"))

	task, err := queue.Claim()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/first", task.URL)
}

// TestTaskQueue_MarkCompleted verifies finalization.
func TestTaskQueue_MarkCompleted(t *testing.T) {
	queue := createTestQueue(t)

	require.NoError(t, queue.Enqueue("https://example.com/one"))
	task, err := queue.Claim()
	require.NoError(t, err)

	require.NoError(t, queue.MarkCompleted(task.ID))

	done, err := queue.Tasks(TaskCompleted)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Nil(t, done[0].LastError)
	assert.NotNil(t, done[0].FinishedAt)
}

// TestTaskQueue_MarkFailed verifies the final error is recorded.
func TestTaskQueue_MarkFailed(t *testing.T) {
	queue := createTestQueue(t)

	require.NoError(t, queue.Enqueue("https://example.com/one"))
	task, err := queue.Claim()
	require.NoError(t, err)

	require.NoError(t, queue.MarkFailed(task.ID, errors.New("site unreachable")))

	failed, err := queue.Tasks(TaskFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].LastError)
	assert.Equal(t, "site unreachable", *failed[0].LastError)
}

// TestTaskQueue_Recover verifies orphaned in_progress tasks return to
// pending after a crash.
func TestTaskQueue_Recover(t *testing.T) {
	queue := createTestQueue(t)

	require.NoError(t, queue.Enqueue("https://example.com/one"))
	_, err := queue.Claim()
	require.NoError(t, err)

	// Simulated crash: the task was claimed but never finalized.
	require.NoError(t, queue.Recover())

	counts, err := queue.Counts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[TaskPending])
	assert.Equal(t, 0, counts[TaskInProgress])

	// The recovered task can be claimed again; attempts keep counting.
	task, err := queue.Claim()
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, 2, task.Attempts)
}

// TestTaskQueue_StateSurvivesReopen verifies the queue is durable across
// process restarts.
func TestTaskQueue_StateSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "queue.db")

	queue, err := NewTaskQueue(dbPath)
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue("https://example.com/one"))
	require.NoError(t, queue.Enqueue("https://example.com/two"))
	task, err := queue.Claim()
	require.NoError(t, err)
	require.NoError(t, queue.MarkCompleted(task.ID))
	require.NoError(t, queue.Close())

	reopened, err := NewTaskQueue(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	counts, err := reopened.Counts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[TaskCompleted])
	assert.Equal(t, 1, counts[TaskPending])
}
