// Package dispatcher implements the Dispatcher (spec §4.6): a background
// loop, co-owned with a start/stop lifecycle and a cooperative pause/resume
// state, that drains the Execution Queue and drives agent executions.
package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/radiantcore/corerun/internal/agent"
	"github.com/radiantcore/corerun/internal/gateway"
	"github.com/radiantcore/corerun/internal/loadbalancer"
	"github.com/radiantcore/corerun/internal/queue"
	"github.com/radiantcore/corerun/internal/telemetry"
)

// ExecutionResult is what Executor.Execute returns on a non-error run; a
// model-level failure that does not itself return a Go error (e.g. the
// agent producing a failing but well-formed response) is reported here.
type ExecutionResult struct {
	Success bool
	Error   string
}

// Executor invokes an agent against its default model. It is the seam
// between the Dispatcher and the Model Gateway (C11) / Parallel Executor's
// agent-invocation machinery, kept as an interface so the dispatcher does
// not depend on gateway wiring directly.
type Executor interface {
	Execute(ctx context.Context, cfg agent.Config, input string) (ExecutionResult, error)
}

// Registry is the subset of agent.Registry the dispatcher needs.
type Registry interface {
	Get(id string) (agent.Config, bool)
}

// LoadBalancer caps how many in-flight executions an agent may have at
// once. loadbalancer.Balancer (in-process counters) satisfies this directly;
// loadbalancer.ClusterAdapter bridges the Redis-backed ClusterBalancer (spec
// §4.5) onto the same synchronous shape for multi-instance deployments.
type LoadBalancer interface {
	AtCapacity(agentID string) bool
	Acquire(agentID string) (release func())
	MaxPerAgent() uint32
}

// Config configures a Dispatcher's polling cadence and per-agent
// concurrency cap.
type Config struct {
	PollInterval          time.Duration
	MaxConcurrentPerAgent uint32
}

// DefaultConfig matches the original implementation's defaults: a 100ms
// poll interval and 10 concurrent executions per agent.
func DefaultConfig() Config {
	return Config{PollInterval: 100 * time.Millisecond, MaxConcurrentPerAgent: 10}
}

// Dispatcher continuously processes the Execution Queue, dispatching ready
// tasks to agents until stopped or until a critical model error occurs.
type Dispatcher struct {
	registry     Registry
	queue        *queue.Queue
	executor     Executor
	loadBalancer LoadBalancer
	config       Config
	log          *zap.SugaredLogger
	telemetry    *telemetry.Instrumentation // optional; nil disables spans/metrics

	mu         sync.Mutex
	cancel     context.CancelFunc
	running    bool
	wg         sync.WaitGroup
	paused     atomic.Bool
	pauseCh    chan struct{}
	lastErrMu  sync.Mutex
	lastErr    *gateway.CriticalError

	resultsMu   sync.Mutex
	stepResults map[string]StepResult // task_id -> outcome, for depends_on/condition gating
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithLogger attaches a logger; the default is a no-op logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithTelemetry attaches queue-dequeue spans and the queue-depth/task-
// latency metrics; the default records neither.
func WithTelemetry(t *telemetry.Instrumentation) Option {
	return func(d *Dispatcher) { d.telemetry = t }
}

// WithLoadBalancer overrides the default in-process Balancer, e.g. with a
// loadbalancer.ClusterAdapter when agents are capacity-capped across more
// than one Dispatcher instance.
func WithLoadBalancer(lb LoadBalancer) Option {
	return func(d *Dispatcher) { d.loadBalancer = lb }
}

// New constructs a Dispatcher. The load balancer is sized from
// config.MaxConcurrentPerAgent, mirroring the original implementation's
// TaskDispatcher::new.
func New(registry Registry, q *queue.Queue, executor Executor, config Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:     registry,
		queue:        q,
		executor:     executor,
		loadBalancer: loadbalancer.New(config.MaxConcurrentPerAgent),
		config:       config,
		log:          zap.NewNop().Sugar(),
		pauseCh:      make(chan struct{}),
		stepResults:  make(map[string]StepResult),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Start launches the dispatch loop in a background goroutine. It returns an
// error if the dispatcher is already running.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.running = true

	d.wg.Add(1)
	go d.loop(ctx)

	d.log.Info("dispatcher started")
	return nil
}

// Stop signals shutdown and awaits in-flight executions; no task is force-
// killed. It returns an error if the dispatcher is not running.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrNotRunning
	}
	cancel := d.cancel
	d.running = false
	d.mu.Unlock()

	cancel()
	d.wg.Wait()
	d.log.Info("dispatcher stopped")
	return nil
}

// IsRunning reports whether the dispatch loop is active.
func (d *Dispatcher) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Pause stops the dispatcher from dequeuing new tasks; already-running
// tasks proceed to completion.
func (d *Dispatcher) Pause() {
	d.paused.Store(true)
	d.log.Info("dispatcher paused")
}

// Resume allows the dispatch loop to dequeue again.
func (d *Dispatcher) Resume() {
	if d.paused.CompareAndSwap(true, false) {
		close(d.pauseCh)
		d.pauseCh = make(chan struct{})
	}
	d.log.Info("dispatcher resumed")
}

// IsPaused reports the current pause state.
func (d *Dispatcher) IsPaused() bool { return d.paused.Load() }

// LoadBalancer exposes the dispatcher's load balancer for monitoring.
func (d *Dispatcher) LoadBalancer() LoadBalancer { return d.loadBalancer }

// LastError returns the last critical error encountered, if any.
func (d *Dispatcher) LastError() *gateway.CriticalError {
	d.lastErrMu.Lock()
	defer d.lastErrMu.Unlock()
	return d.lastErr
}

// recordStepResult stores a task's outcome for later depends_on/condition
// lookups by downstream tasks. Tasks with no TaskID (no dedup key) cannot be
// depended on and are not recorded.
func (d *Dispatcher) recordStepResult(taskID string, r StepResult) {
	if taskID == "" {
		return
	}
	d.resultsMu.Lock()
	d.stepResults[taskID] = r
	d.resultsMu.Unlock()
}

func (d *Dispatcher) snapshotStepResults() map[string]StepResult {
	d.resultsMu.Lock()
	defer d.resultsMu.Unlock()
	snap := make(map[string]StepResult, len(d.stepResults))
	for k, v := range d.stepResults {
		snap[k] = v
	}
	return snap
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d.paused.Load() {
				d.mu.Lock()
				waitCh := d.pauseCh
				d.mu.Unlock()
				select {
				case <-waitCh:
				case <-ctx.Done():
					return
				}
				continue
			}
			if !d.tick(ctx) {
				// Critical error: signal our own shutdown, same as the
				// dispatcher's self-inflicted stop() in the original
				// implementation, so IsRunning() reflects reality without
				// requiring the caller to call Stop() itself.
				d.mu.Lock()
				if d.running {
					d.running = false
					d.cancel()
				}
				d.mu.Unlock()
				return
			}
		}
	}
}

// tick processes at most one task. It returns false when a critical error
// was encountered and the loop must exit.
func (d *Dispatcher) tick(ctx context.Context) bool {
	if d.telemetry != nil {
		d.telemetry.RecordQueueDepth(ctx, d.queue.Metrics().Pending)
	}

	dctx, cancel := context.WithTimeout(ctx, d.config.PollInterval)
	defer cancel()
	if d.telemetry != nil {
		var span telemetry.Span
		dctx, span = d.telemetry.StartQueueDequeue(dctx)
		defer span.End()
	}
	task, ok := d.queue.DequeueTask(dctx)
	if !ok {
		return true
	}

	started := time.Now()
	log := d.log.With("task_id", task.TaskID, "agent_id", task.AgentID)

	if cond := conditionFromMetadata(task.Metadata); !shouldExecuteStep(cond, d.snapshotStepResults()) {
		log.Infow("task skipped by control-flow condition")
		d.recordStepResult(task.TaskID, StepResult{Success: true})
		d.queue.MarkCompleted(task.TaskID, true)
		return true
	}

	cfg, found := d.registry.Get(task.AgentID)
	if !found {
		log.Errorw("agent not found")
		d.queue.MarkCompleted(task.TaskID, false)
		return true
	}

	if d.loadBalancer.AtCapacity(task.AgentID) {
		log.Warnw("agent at capacity, skipping task", "max", d.loadBalancer.MaxPerAgent())
		d.queue.MarkCompleted(task.TaskID, false)
		return true
	}

	release := d.loadBalancer.Acquire(task.AgentID)
	input, _ := task.Input.(string)
	result, err := d.executor.Execute(ctx, cfg, input)
	release()

	if err != nil {
		if crit := gateway.CriticalFromModelError(err); crit != nil {
			log.Errorw("critical error, shutting down dispatcher", "error", crit)
			d.lastErrMu.Lock()
			d.lastErr = crit
			d.lastErrMu.Unlock()
			d.recordStepResult(task.TaskID, StepResult{Success: false, Error: crit.Error()})
			d.queue.MarkCompleted(task.TaskID, false)
			return false
		}
		log.Errorw("task execution error", "error", err)
		d.recordStepResult(task.TaskID, StepResult{Success: false, Error: err.Error()})
		d.queue.MarkCompleted(task.TaskID, false)
		return true
	}

	if result.Success {
		log.Infow("task completed successfully")
	} else {
		log.Warnw("task execution failed", "error", result.Error)
	}
	if d.telemetry != nil {
		d.telemetry.RecordTaskLatency(ctx, task.TaskID, time.Since(started))
	}
	d.recordStepResult(task.TaskID, StepResult{Success: result.Success, Error: result.Error})
	d.queue.MarkCompleted(task.TaskID, result.Success)
	return true
}
