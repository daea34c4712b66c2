package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiantcore/corerun/internal/errs"
)

func TestEnqueueDequeueOrderByPriorityThenFIFO(t *testing.T) {
	q := New(0)
	require.NoError(t, q.EnqueueTask(ExecutionTask{TaskID: "a", Priority: PriorityNormal}))
	require.NoError(t, q.EnqueueTask(ExecutionTask{TaskID: "b", Priority: PriorityCritical}))
	require.NoError(t, q.EnqueueTask(ExecutionTask{TaskID: "c", Priority: PriorityNormal}))

	ctx := context.Background()
	first, ok := q.DequeueTask(ctx)
	require.True(t, ok)
	assert.Equal(t, "b", first.TaskID, "critical priority dequeues first")

	second, ok := q.DequeueTask(ctx)
	require.True(t, ok)
	assert.Equal(t, "a", second.TaskID, "FIFO tiebreak among equal priority")

	third, ok := q.DequeueTask(ctx)
	require.True(t, ok)
	assert.Equal(t, "c", third.TaskID)
}

func TestDuplicateTaskRejected(t *testing.T) {
	q := New(0)
	require.NoError(t, q.EnqueueTask(ExecutionTask{TaskID: "x"}))
	err := q.EnqueueTask(ExecutionTask{TaskID: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateTask)
	assert.True(t, errs.Is(err, errs.KindQueue))
}

func TestDuplicateClearsAfterMarkCompleted(t *testing.T) {
	q := New(0)
	require.NoError(t, q.EnqueueTask(ExecutionTask{TaskID: "x"}))
	ctx := context.Background()
	task, ok := q.DequeueTask(ctx)
	require.True(t, ok)
	q.MarkCompleted(task.TaskID, true)

	assert.NoError(t, q.EnqueueTask(ExecutionTask{TaskID: "x"}))
}

func TestQueueFull(t *testing.T) {
	q := New(1)
	require.NoError(t, q.EnqueueTask(ExecutionTask{TaskID: "a"}))
	err := q.EnqueueTask(ExecutionTask{TaskID: "b"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestMaxAttemptsExceeded(t *testing.T) {
	q := New(0)
	err := q.EnqueueTask(ExecutionTask{TaskID: "x", Attempts: 2, MaxAttempts: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxAttemptsExceeded)

	m := q.Metrics()
	assert.Equal(t, 1, m.Failed)
}

func TestDequeueBlocksThenCancelsOnContext(t *testing.T) {
	q := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, ok := q.DequeueTask(ctx)
	assert.False(t, ok)
}

func TestDequeueUnblocksOnEnqueue(t *testing.T) {
	q := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan ExecutionTask, 1)
	go func() {
		task, ok := q.DequeueTask(ctx)
		if ok {
			done <- task
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.EnqueueTask(ExecutionTask{TaskID: "late", Priority: PriorityHigh}))

	select {
	case task := <-done:
		assert.Equal(t, "late", task.TaskID)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not unblock after enqueue")
	}
}

func TestMetricsCounters(t *testing.T) {
	q := New(0)
	require.NoError(t, q.EnqueueTask(ExecutionTask{TaskID: "a"}))
	require.NoError(t, q.EnqueueTask(ExecutionTask{TaskID: "b"}))

	m := q.Metrics()
	assert.Equal(t, 2, m.Pending)

	task, ok := q.DequeueTask(context.Background())
	require.True(t, ok)
	m = q.Metrics()
	assert.Equal(t, 1, m.Pending)
	assert.Equal(t, 1, m.Running)

	q.MarkCompleted(task.TaskID, true)
	m = q.Metrics()
	assert.Equal(t, 0, m.Running)
	assert.Equal(t, 1, m.Completed)
}

// TestQueueRetryCeiling is scenario S6 from spec §8: submit with
// max_attempts=2, fail twice, the third submission must be refused.
func TestQueueRetryCeiling(t *testing.T) {
	q := New(0)
	task := ExecutionTask{TaskID: "flaky", MaxAttempts: 2}

	require.NoError(t, q.EnqueueTask(task)) // submission 1, attempts=0
	got, ok := q.DequeueTask(context.Background())
	require.True(t, ok)
	q.MarkCompleted(got.TaskID, false)

	task.Attempts = 1
	require.NoError(t, q.EnqueueTask(task)) // submission 2, attempts=1
	got, ok = q.DequeueTask(context.Background())
	require.True(t, ok)
	q.MarkCompleted(got.TaskID, false)

	task.Attempts = 2
	err := q.EnqueueTask(task) // submission 3: refused, ceiling reached
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxAttemptsExceeded)
}
