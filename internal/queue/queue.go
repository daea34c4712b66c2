// Package queue implements the Execution Queue (spec §4.4): a priority- and
// FIFO-ordered store of ExecutionTasks with dedup, retry, and completion
// tracking, safe for concurrent producers and consumers.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/radiantcore/corerun/internal/errs"
)

// Priority orders ExecutionTasks; higher values dequeue first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// ExecutionTask is a runtime work item, distinct from a PlanTask: one
// PlanTask may yield one or many ExecutionTasks across retries.
type ExecutionTask struct {
	TaskID      string // optional; empty means "no dedup key"
	AgentID     string
	Input       any
	Priority    Priority
	EnqueuedAt  time.Time
	Attempts    int
	MaxAttempts int

	// Metadata carries PlanTask-level control-flow hints the Dispatcher
	// consults before dispatching: "condition", "skip_if", and
	// "depends_on" (a comma-separated list of TaskIDs). A nil or
	// key-less Metadata always executes. Distinct from the planner's own
	// Dependencies field, which gates whether a task is ready to enqueue
	// at all; this gates whether an already-ready task actually runs.
	Metadata map[string]string
}

// Metrics is the queue's observability snapshot (spec §4.4).
type Metrics struct {
	Pending   int
	Running   int
	Completed int
	Failed    int
}

type item struct {
	task  ExecutionTask
	seq   uint64 // arrival order, used as the FIFO tiebreak
	index int
}

// itemHeap orders strictly by priority descending, ties broken by FIFO
// arrival order (lower seq first).
type itemHeap []*item

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority > h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *itemHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Queue is a multi-reader, multi-writer priority queue of ExecutionTasks.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	heap     itemHeap
	inFlight map[string]*item // task_id -> pending-or-running item, for dedup
	capacity int
	nextSeq  uint64

	completed int
	failed    int
	running   int
}

// New constructs an empty Queue bounded to capacity pending items. A
// capacity of 0 means unbounded.
func New(capacity int) *Queue {
	q := &Queue{
		inFlight: make(map[string]*item),
		capacity: capacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// EnqueueTask adds a task to the queue. It returns DuplicateTask if the
// task carries a non-empty TaskID already pending or running, QueueFull if
// capacity is exceeded, and MaxAttemptsExceeded if the task's attempts
// have already reached its MaxAttempts (a resubmitted, exhausted retry).
func (q *Queue) EnqueueTask(task ExecutionTask) error {
	const op = "queue.EnqueueTask"

	q.mu.Lock()
	defer q.mu.Unlock()

	if task.MaxAttempts > 0 && task.Attempts >= task.MaxAttempts {
		q.failed++
		return errs.New(errs.KindQueue, op, ErrMaxAttemptsExceeded)
	}

	if task.TaskID != "" {
		if _, dup := q.inFlight[task.TaskID]; dup {
			return errs.New(errs.KindQueue, op, ErrDuplicateTask)
		}
	}

	if q.capacity > 0 && len(q.heap) >= q.capacity {
		return errs.New(errs.KindQueue, op, ErrQueueFull)
	}

	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}

	it := &item{task: task, seq: q.nextSeq}
	q.nextSeq++
	heap.Push(&q.heap, it)
	if task.TaskID != "" {
		q.inFlight[task.TaskID] = it
	}
	q.cond.Signal()
	return nil
}

// DequeueTask pops the highest-priority, earliest-arrival task. It blocks
// cooperatively until a task is available or ctx is done, in which case it
// returns (ExecutionTask{}, false).
func (q *Queue) DequeueTask(ctx context.Context) (ExecutionTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.heap) == 0 {
		if ctx.Err() != nil {
			return ExecutionTask{}, false
		}
		if !q.waitWithContext(ctx) {
			return ExecutionTask{}, false
		}
	}

	it := heap.Pop(&q.heap).(*item)
	q.running++
	// Task remains in inFlight (now "running") until mark_completed so a
	// re-enqueue of the same task_id is still rejected as a duplicate.
	return it.task, true
}

// waitWithContext releases the lock and waits for either a Signal or ctx
// cancellation, re-acquiring the lock before returning. Reports whether it
// woke due to a signal (true) rather than context cancellation (false).
func (q *Queue) waitWithContext(ctx context.Context) bool {
	done := make(chan struct{})
	stopped := false
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			if !stopped {
				q.cond.Broadcast()
			}
			q.mu.Unlock()
		case <-done:
		}
	}()

	q.cond.Wait()
	stopped = true
	close(done)
	return ctx.Err() == nil
}

// MarkCompleted releases the queue slot held by task_id, whether the task
// succeeded, failed terminally, or was never tracked by a TaskID.
func (q *Queue) MarkCompleted(taskID string, success bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if taskID != "" {
		delete(q.inFlight, taskID)
	}
	if q.running > 0 {
		q.running--
	}
	if success {
		q.completed++
	} else {
		q.failed++
	}
}

// Metrics returns the current counters.
func (q *Queue) Metrics() Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Metrics{
		Pending:   len(q.heap),
		Running:   q.running,
		Completed: q.completed,
		Failed:    q.failed,
	}
}
