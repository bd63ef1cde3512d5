package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerExecutesTask(t *testing.T) {
	withTestQueue(t, 3, 0, func(q *Queue) {
		executed := 0
		w := NewWorker(q, time.Millisecond)
		w.Register("fetch", func(ctx context.Context, task *Task) error {
			executed++
			return nil
		})

		_, err := q.Enqueue("ingest", "fetch", &testPayload{Value: "a"})
		require.NoError(t, err)

		processed, err := w.runOnce(context.Background(), "ingest")
		require.NoError(t, err)
		assert.True(t, processed)
		assert.Equal(t, 1, executed)

		size, err := q.Size("ingest")
		require.NoError(t, err)
		assert.Equal(t, int64(0), size)
	})
}

func TestWorkerRunOnceEmptyQueue(t *testing.T) {
	withTestQueue(t, 3, 0, func(q *Queue) {
		w := NewWorker(q, time.Millisecond)
		processed, err := w.runOnce(context.Background(), "ingest")
		require.NoError(t, err)
		assert.False(t, processed)
	})
}

// A task that fails on every attempt is executed exactly maxAttempts times
// and then dead-lettered.
func TestWorkerRetriesThenDeadLetters(t *testing.T) {
	withTestQueue(t, 3, 0, func(q *Queue) {
		executions := 0
		w := NewWorker(q, time.Millisecond)
		w.Register("upsert", func(ctx context.Context, task *Task) error {
			executions++
			return errors.New("store unreachable")
		})

		_, err := q.Enqueue("db_write", "upsert", &testPayload{Value: "a"})
		require.NoError(t, err)

		// With a zero backoff every failed task is immediately due again.
		for i := 0; i < 3; i++ {
			_, err := q.RequeueDue("db_write", time.Now())
			require.NoError(t, err)
			processed, err := w.runOnce(context.Background(), "db_write")
			require.NoError(t, err)
			assert.True(t, processed)
		}

		assert.Equal(t, 3, executions)

		dead, err := q.DeadTasks()
		require.NoError(t, err)
		require.Len(t, dead, 1)
		assert.Equal(t, 3, dead[0].Attempts)
		assert.Contains(t, dead[0].LastError, "store unreachable")

		// Nothing left on the active queue or the retry set
		size, err := q.Size("db_write")
		require.NoError(t, err)
		assert.Equal(t, int64(0), size)
		retries, err := q.RetrySize("db_write")
		require.NoError(t, err)
		assert.Equal(t, int64(0), retries)
	})
}

func TestWorkerRecoversPanic(t *testing.T) {
	withTestQueue(t, 3, 0, func(q *Queue) {
		w := NewWorker(q, time.Millisecond)
		w.Register("upsert", func(ctx context.Context, task *Task) error {
			panic("boom")
		})

		_, err := q.Enqueue("db_write", "upsert", &testPayload{Value: "a"})
		require.NoError(t, err)

		processed, err := w.runOnce(context.Background(), "db_write")
		require.NoError(t, err)
		assert.True(t, processed)

		retries, err := q.RetrySize("db_write")
		require.NoError(t, err)
		assert.Equal(t, int64(1), retries)
	})
}

func TestWorkerUnknownTaskTypeFails(t *testing.T) {
	withTestQueue(t, 1, 0, func(q *Queue) {
		w := NewWorker(q, time.Millisecond)

		_, err := q.Enqueue("ingest", "unknown", &testPayload{Value: "a"})
		require.NoError(t, err)

		processed, err := w.runOnce(context.Background(), "ingest")
		require.NoError(t, err)
		assert.True(t, processed)

		dead, err := q.DeadTasks()
		require.NoError(t, err)
		require.Len(t, dead, 1)
		assert.Contains(t, dead[0].LastError, "no handler registered")
	})
}
