package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/radiantcore/corerun/internal/dag"
)

// maxIterations is the "YOLO" sanity cap (spec §9 design notes / §8
// testable property): bounds a runaway outer loop caused by a bug or a
// pathological plan, regardless of max_concurrent or plan size.
const maxIterations = 1000

// DefaultAgentID is the fallback agent used when a task has no agent_id and
// the AgentSelector cannot suggest one.
const DefaultAgentID = "code-agent"

// Task is the PlanTask core entity, the unit the executor schedules.
type Task struct {
	ID           string
	Title        string
	Description  string
	AgentID      string // empty means "let the selector or default decide"
	Dependencies []string
	Completed    bool // spec §4.7 idempotence: pre-completed tasks are skipped
}

// AgentSelector picks an agent for a task when none is pinned (spec §4.7
// step 4, "select an agent"). A nil AgentSelector falls back to
// task.AgentID or DefaultAgentID directly.
type AgentSelector interface {
	SelectAgent(ctx context.Context, task Task) (string, error)
}

// Invoker runs a single agent against a goal string and reports the
// outcome. This is the gateway-facing seam (spec §4.7 step 4, "invoke the
// model through the gateway with default parameters").
type Invoker interface {
	Invoke(ctx context.Context, agentID, goal string) (Result, error)
}

// Tracker reports task status to an external system (spec §6 external task
// tracker). All calls are best-effort; a nil Tracker is a valid no-op.
type Tracker interface {
	UpdateStatus(ctx context.Context, taskID, requirementID, status, note string) error
}

// Report is the ExecutionReport core entity (spec §4.7 step 6).
type Report struct {
	Total        int
	Completed    int
	Failed       int
	Blocked      int
	TotalSeconds int64
	Success      bool
}

// Executor drives a set of Tasks to terminal state, bounding concurrency
// with a weighted semaphore whose permits dominate over batch grouping.
type Executor struct {
	maxConcurrent int64
	sem           *semaphore.Weighted
	selector      AgentSelector
	invoker       Invoker
	tracker       Tracker
	log           *zap.SugaredLogger
}

// Option configures an Executor at construction time.
type Option func(*Executor)

func WithSelector(s AgentSelector) Option { return func(e *Executor) { e.selector = s } }
func WithTracker(t Tracker) Option        { return func(e *Executor) { e.tracker = t } }
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Executor) { e.log = l }
}

// New constructs an Executor bounded to maxConcurrent simultaneous
// executions.
func New(maxConcurrent int, invoker Invoker, opts ...Option) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	e := &Executor{
		maxConcurrent: int64(maxConcurrent),
		sem:           semaphore.NewWeighted(int64(maxConcurrent)),
		invoker:       invoker,
		log:           zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ErrCircularDependency is returned when the dependency graph built from
// tasks contains a cycle; the executor refuses to start (spec §4.7 step 1).
type ErrCircularDependency struct{ Cycle *dag.CycleError }

func (e *ErrCircularDependency) Error() string {
	return fmt.Sprintf("executor: circular dependency: %v", e.Cycle)
}
func (e *ErrCircularDependency) Unwrap() error { return e.Cycle }

// ExecuteTasks drives tasks to terminal state (spec §4.7). requirementID is
// forwarded to the Tracker for status updates, if one is configured.
func (e *Executor) ExecuteTasks(ctx context.Context, tasks []Task, requirementID string) (*Report, error) {
	start := time.Now()

	deps := make(map[string][]string, len(tasks))
	byID := make(map[string]Task, len(tasks))
	taskIDs := make([]string, 0, len(tasks))
	for _, t := range tasks {
		deps[t.ID] = t.Dependencies
		byID[t.ID] = t
		taskIDs = append(taskIDs, t.ID)
	}

	graph := dag.New(deps)
	if cyc := graph.DetectCycles(); cyc != nil {
		return nil, &ErrCircularDependency{Cycle: cyc}
	}

	state := NewState(taskIDs)
	completed := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		if t.Completed {
			state.MarkCompleted(t.ID, Result{Status: StatusCompleted})
			completed[t.ID] = struct{}{}
		}
	}

	e.log.Infow("starting parallel task execution",
		"requirement_id", requirementID, "total_tasks", len(tasks), "max_concurrent", e.maxConcurrent)

	for iter := 0; iter < maxIterations; iter++ {
		if state.CompletedCount()+state.FailedCount()+state.BlockedCount() >= len(tasks) {
			return e.buildReport(tasks, state, start), nil
		}

		// The ready set is computed from completed ∪ failed, so a task whose
		// dependency failed comes up here and filterBatch marks it Blocked.
		settled := make(map[string]struct{}, len(completed))
		for id := range completed {
			settled[id] = struct{}{}
		}
		for _, id := range taskIDs {
			if state.IsFailed(id) {
				settled[id] = struct{}{}
			}
		}
		ready := graph.ReadyTasks(settled)
		batch := e.filterBatch(ready, tasks, byID, state, requirementID)

		if len(batch) == 0 {
			if ctxDone(ctx) {
				break
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}

		newlyDone := e.runBatch(ctx, batch, byID, state, requirementID)
		for _, id := range newlyDone {
			completed[id] = struct{}{}
		}

		if ctxDone(ctx) {
			break
		}
	}

	return e.buildReport(tasks, state, start), nil
}

func ctxDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// filterBatch drops already-terminal tasks, marks tasks blocked by a failed
// dependency, and caps the result to maxConcurrent (spec §4.7 step 3).
func (e *Executor) filterBatch(ready []string, tasks []Task, byID map[string]Task, state *State, requirementID string) []string {
	var batch []string
	for _, id := range ready {
		if state.IsCompleted(id) || state.IsFailed(id) {
			continue
		}
		if e.isBlockedByFailures(byID[id], state) {
			state.MarkBlocked(id)
			e.log.Warnw("task blocked by failed dependencies", "requirement_id", requirementID, "task_id", id)
			continue
		}
		batch = append(batch, id)
		if int64(len(batch)) >= e.maxConcurrent {
			break
		}
	}
	return batch
}

func (e *Executor) isBlockedByFailures(task Task, state *State) bool {
	for _, dep := range task.Dependencies {
		if state.IsFailed(dep) {
			return true
		}
	}
	return false
}

// runBatch executes every task in batch concurrently, each acquiring a
// semaphore permit, and returns the IDs that completed successfully.
func (e *Executor) runBatch(ctx context.Context, batch []string, byID map[string]Task, state *State, requirementID string) []string {
	var mu sync.Mutex
	var done []string

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range batch {
		task := byID[id]
		g.Go(func() error {
			if err := e.sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer e.sem.Release(1)

			if e.runOne(gctx, task, state, requirementID) {
				mu.Lock()
				done = append(done, task.ID)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return done
}

func (e *Executor) runOne(ctx context.Context, task Task, state *State, requirementID string) bool {
	e.updateTracker(ctx, task.ID, requirementID, "in_progress", "")
	state.MarkRunning(task.ID)

	started := time.Now()
	agentID := e.resolveAgent(ctx, task)

	e.log.Infow("executing task with agent", "requirement_id", requirementID, "task_id", task.ID, "agent_id", agentID)

	goal := task.Title
	if task.Description != "" {
		goal = fmt.Sprintf("Task: %s\n\nDescription:\n%s", task.Title, task.Description)
	} else {
		goal = fmt.Sprintf("Task: %s", task.Title)
	}

	result, err := e.invoker.Invoke(ctx, agentID, goal)
	completed := time.Now()
	result.AgentID = agentID
	result.StartedAt = started
	result.CompletedAt = completed

	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		state.MarkFailed(task.ID, result)
		e.updateTracker(ctx, task.ID, requirementID, "in_progress", result.Error)
		e.log.Errorw("task execution error", "requirement_id", requirementID, "task_id", task.ID, "error", err)
		return false
	}

	if result.Status == StatusFailed {
		state.MarkFailed(task.ID, result)
		e.updateTracker(ctx, task.ID, requirementID, "in_progress", result.Error)
		e.log.Errorw("task execution failed", "requirement_id", requirementID, "task_id", task.ID, "error", result.Error)
		return false
	}

	result.Status = StatusCompleted
	state.MarkCompleted(task.ID, result)
	notes := fmt.Sprintf("Completed via agent %s in %ds", agentID, int(completed.Sub(started).Seconds()))
	e.updateTracker(ctx, task.ID, requirementID, "completed", notes)
	e.log.Infow("task completed successfully", "requirement_id", requirementID, "task_id", task.ID)
	return true
}

func (e *Executor) resolveAgent(ctx context.Context, task Task) string {
	if task.AgentID != "" {
		return task.AgentID
	}
	if e.selector != nil {
		if id, err := e.selector.SelectAgent(ctx, task); err == nil && id != "" {
			return id
		}
	}
	return DefaultAgentID
}

func (e *Executor) updateTracker(ctx context.Context, taskID, requirementID, status, note string) {
	if e.tracker == nil {
		return
	}
	_ = e.tracker.UpdateStatus(ctx, taskID, requirementID, status, note)
}

func (e *Executor) buildReport(tasks []Task, state *State, start time.Time) *Report {
	completed := state.CompletedCount()
	failed := state.FailedCount()
	blocked := state.BlockedCount()
	return &Report{
		Total:        len(tasks),
		Completed:    completed,
		Failed:       failed,
		Blocked:      blocked,
		TotalSeconds: int64(time.Since(start).Seconds()),
		Success:      failed == 0 && blocked == 0,
	}
}
