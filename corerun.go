// Package corerun assembles the autonomous multi-agent execution core's
// components (C1-C11, spec.md §4) into one running instance. It is a
// library entrypoint, not a CLI: the command surface, TUI rendering, and
// markdown emission spec.md names as external collaborators stay out of
// this package, which exposes Go interfaces for them (executor.Tracker,
// store.Store, gateway.Model) instead of implementing any of them.
package corerun

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radiantcore/corerun/internal/agent"
	"github.com/radiantcore/corerun/internal/checkpoint"
	"github.com/radiantcore/corerun/internal/dispatcher"
	"github.com/radiantcore/corerun/internal/errs"
	"github.com/radiantcore/corerun/internal/executor"
	"github.com/radiantcore/corerun/internal/gateway"
	"github.com/radiantcore/corerun/internal/loadbalancer"
	"github.com/radiantcore/corerun/internal/planner"
	"github.com/radiantcore/corerun/internal/policy"
	"github.com/radiantcore/corerun/internal/queue"
	"github.com/radiantcore/corerun/internal/store"
	"github.com/radiantcore/corerun/internal/telemetry"
	"github.com/radiantcore/corerun/internal/tracker"
	"github.com/radiantcore/corerun/internal/vault"
	"github.com/radiantcore/corerun/internal/workspace"
)

// Options configures a Core instance. Model, Store, and Registry are the
// only required fields; everything else defaults to the single-process,
// zero-external-dependency path (in-process load balancing, no external
// tracker, a no-op logger, an open default-allow policy).
type Options struct {
	Workspace   workspace.Layout
	Model       gateway.Model
	Store       store.Store
	Registry    *agent.Registry
	Tracker     *tracker.Tracker              // optional; nil disables status callbacks
	Cluster     *loadbalancer.ClusterBalancer // optional; nil uses in-process counters
	Logger      *zap.SugaredLogger
	PolicyMode  policy.DefaultMode
	PolicyRules []policy.Rule

	MaxConcurrentTasks int // C7 Parallel Executor's max_concurrent; 0 uses DefaultMaxConcurrentTasks
	DispatcherConfig   dispatcher.Config

	// Selector gates every invocation through an optional per-call/total
	// budget check and a primary/fallback model recommendation, before the
	// prompt ever reaches the gateway; nil disables the gate (every
	// invocation proceeds with the agent's configured engine/model as-is).
	Selector *agent.Selector

	// CallsPerSecond, if positive, wraps Model in a client-side token-bucket
	// pacer ahead of provider rate limits; 0 (the default) calls Model
	// directly.
	CallsPerSecond float64

	VaultPath     string // empty disables the Secret Vault
	VaultPassword string
}

// DefaultMaxConcurrentTasks bounds the Parallel Executor's semaphore when
// Options.MaxConcurrentTasks is left at zero.
const DefaultMaxConcurrentTasks = 5

// Core is the assembled runtime: a Planner and Parallel Executor driving
// plans to completion on demand, plus a Dispatcher available for
// queue-driven background execution, all sharing one Agent Registry,
// Policy Engine, and optional Secret Vault.
type Core struct {
	Workspace   workspace.Layout
	Registry    *agent.Registry
	Policy      *policy.Engine
	Vault       *vault.Vault
	Queue       *queue.Queue
	Store       store.Store
	Telemetry   *telemetry.Instrumentation
	Planner     *planner.Planner
	Executor    *executor.Executor
	Dispatcher  *dispatcher.Dispatcher
	Checkpoints checkpoint.Snapshotter // nil unless Options.Workspace.Root is set

	log *zap.SugaredLogger
}

// New wires every component from opts into a Core ready to plan and
// execute. It opens the Secret Vault (if configured) and loads policy
// rules, but does not start the Dispatcher's background loop — call
// Core.Dispatcher.Start() for that once the caller has populated the queue.
func New(opts Options) (*Core, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if opts.Model == nil {
		return nil, fmt.Errorf("corerun: Options.Model is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("corerun: Options.Store is required")
	}
	if opts.Registry == nil {
		opts.Registry = agent.NewRegistry()
	}

	var v *vault.Vault
	if opts.VaultPath != "" {
		var err error
		v, err = vault.Open(opts.VaultPath, opts.VaultPassword, vault.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("corerun: open vault: %w", err)
		}
	}

	policyMode := opts.PolicyMode
	if policyMode == "" {
		policyMode = policy.ModeYolo
	}
	policyEngine := policy.New(policyMode, policy.WithLogger(log))
	rules := opts.PolicyRules
	if opts.Workspace.Root != "" {
		if allowlist, err := workspace.LoadCommandAllowlist(opts.Workspace.CommandAllowlistFile()); err != nil {
			log.Warnw("failed to load command allowlist", "error", err)
		} else if len(allowlist.Commands) > 0 {
			rules = append(append([]policy.Rule{}, policy.RulesFromAllowlist(allowlist.Commands)...), rules...)
		}
	}
	policyEngine.Load(rules)

	q := queue.New(0)

	telem, err := telemetry.New("", "")
	if err != nil {
		return nil, fmt.Errorf("corerun: init telemetry: %w", err)
	}

	model := opts.Model
	if opts.CallsPerSecond > 0 {
		model = gateway.NewPacer(model, opts.CallsPerSecond)
	}

	caller := &modelPlanCaller{model: model}
	pln := planner.New(caller, opts.Registry, planner.WithLogger(log))

	maxConcurrent := opts.MaxConcurrentTasks
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentTasks
	}
	invoker := &modelInvoker{
		model:     model,
		registry:  opts.Registry,
		telemetry: telem,
		store:     opts.Store,
		rates:     gateway.DefaultRateTable(),
		sessionID: uuid.NewString(),
		selector:  opts.Selector,
		log:       log,
	}
	execOpts := []executor.Option{executor.WithLogger(log), executor.WithSelector(&registrySelector{registry: opts.Registry})}
	if opts.Tracker != nil {
		execOpts = append(execOpts, executor.WithTracker(&trackerAdapter{tracker: opts.Tracker}))
	}
	exec := executor.New(maxConcurrent, invoker, execOpts...)

	dispCfg := opts.DispatcherConfig
	if dispCfg == (dispatcher.Config{}) {
		dispCfg = dispatcher.DefaultConfig()
	}
	dispOpts := []dispatcher.Option{dispatcher.WithLogger(log), dispatcher.WithTelemetry(telem)}
	if opts.Cluster != nil {
		dispOpts = append(dispOpts, dispatcher.WithLoadBalancer(loadbalancer.NewClusterAdapter(opts.Cluster, log)))
	}
	disp := dispatcher.New(
		dispatcherRegistry{registry: opts.Registry},
		q,
		&dispatchExecutor{invoker: invoker},
		dispCfg,
		dispOpts...,
	)

	var checkpoints checkpoint.Snapshotter
	if opts.Workspace.Root != "" {
		checkpoints = checkpoint.NewTarSnapshotter(opts.Workspace.CheckpointsDir())
	}

	return &Core{
		Workspace:   opts.Workspace,
		Registry:    opts.Registry,
		Policy:      policyEngine,
		Vault:       v,
		Queue:       q,
		Store:       opts.Store,
		Telemetry:   telem,
		Planner:     pln,
		Executor:    exec,
		Dispatcher:  disp,
		Checkpoints: checkpoints,
		log:         log,
	}, nil
}

// Close releases resources the Core opened itself (currently just the
// Secret Vault's in-memory key material).
func (c *Core) Close() {
	if c.Vault != nil {
		c.Vault.Close()
	}
}

// modelPlanCaller adapts gateway.Model to planner.ModelCaller (spec §4.9
// step 2, "call the model") using conservative, deterministic sampling
// parameters suited to structured plan generation.
type modelPlanCaller struct {
	model gateway.Model
}

func (c *modelPlanCaller) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := gateway.WithRetry(ctx, gateway.DefaultRetryConfig(), func(ctx context.Context) (gateway.Response, error) {
		return c.model.GenerateText(ctx, prompt, gateway.SamplingParams{Temperature: 0.2, MaxTokens: 4096})
	})
	if err != nil {
		return "", errs.New(errs.KindModel, "corerun.plan_caller", err)
	}
	return resp.Text, nil
}

// registrySelector resolves a task's agent from its pinned agent_id,
// falling back to executor.DefaultAgentID (spec §4.7 step 4).
type registrySelector struct {
	registry *agent.Registry
}

func (s *registrySelector) SelectAgent(_ context.Context, task executor.Task) (string, error) {
	if task.AgentID != "" && task.AgentID != agent.Sentinel {
		return task.AgentID, nil
	}
	return executor.DefaultAgentID, nil
}

// modelInvoker adapts gateway.Model to executor.Invoker: it resolves the
// agent's prompt template from its PromptPath, prepends it to the task goal,
// calls the gateway (spec §4.7 step 4, "invoke the model through the
// gateway with default parameters"), and persists a TelemetryRecord plus
// the CostEvent it derives (spec glossary: "each model response emits a
// TelemetryRecord"). sessionID is fixed for the invoker's lifetime, tying
// every CostEvent it records to one Core instance's run.
type modelInvoker struct {
	model     gateway.Model
	registry  *agent.Registry
	telemetry *telemetry.Instrumentation
	store     store.Store
	rates     gateway.RateTable
	sessionID string
	selector  *agent.Selector // optional; nil skips the budget/fallback gate
	log       *zap.SugaredLogger
}

func (in *modelInvoker) Invoke(ctx context.Context, agentID, goal string) (executor.Result, error) {
	started := time.Now()
	ctx, span := in.telemetry.StartAgentInvocation(ctx, agentID, "")
	defer span.End()

	prompt := goal
	cfg, _ := in.registry.Get(agentID)
	if cfg.PromptPath != "" {
		if tmpl, err := os.ReadFile(cfg.PromptPath); err == nil {
			prompt = string(tmpl) + "\n\n" + goal
		}
	}

	if in.selector != nil {
		estimate := &agent.TokenEstimate{PromptTokens: len(prompt) / 4, CompletionTokens: 2048}
		sel, err := in.selector.Select(cfg, nil, estimate)
		if err != nil {
			return executor.Result{
				Status:      executor.StatusFailed,
				AgentID:     agentID,
				StartedAt:   started,
				CompletedAt: time.Now(),
				Error:       err.Error(),
			}, errs.New(errs.KindPolicy, "corerun.select_model", err)
		}
		cfg.Engine, cfg.Model = sel.Engine, sel.Model
	}

	resp, err := gateway.WithRetry(ctx, gateway.DefaultRetryConfig(), func(ctx context.Context) (gateway.Response, error) {
		return in.model.GenerateText(ctx, prompt, gateway.SamplingParams{Temperature: 0.2, MaxTokens: 8192})
	})
	completed := time.Now()
	if err != nil {
		span.RecordError(err)
		return executor.Result{
			Status:      executor.StatusFailed,
			AgentID:     agentID,
			StartedAt:   started,
			CompletedAt: completed,
			Error:       err.Error(),
		}, errs.New(errs.KindModel, "corerun.invoke", err)
	}

	in.recordTelemetry(ctx, cfg, resp, started, completed)

	return executor.Result{
		Status:      executor.StatusCompleted,
		Output:      resp.Text,
		AgentID:     agentID,
		StartedAt:   started,
		CompletedAt: completed,
	}, nil
}

// recordTelemetry persists the TelemetryRecord and derived CostEvent for
// one invocation. Failures are logged, not returned: a storage hiccup must
// never fail the agent invocation that already succeeded.
func (in *modelInvoker) recordTelemetry(ctx context.Context, cfg agent.Config, resp gateway.Response, started, completed time.Time) {
	if in.store == nil {
		return
	}
	usage := resp.Usage
	rec := store.TelemetryRecord{
		ID:           uuid.NewString(),
		AgentID:      cfg.ID,
		Model:        cfg.Model,
		Provider:     cfg.Engine,
		InputTokens:  uint64(usage.InputTokens),
		OutputTokens: uint64(usage.OutputTokens),
		DurationMS:   completed.Sub(started).Milliseconds(),
		Timestamp:    completed,
	}
	if err := in.store.RecordTelemetry(ctx, rec); err != nil {
		in.log.Warnw("failed to record telemetry", "agent_id", cfg.ID, "error", err)
	}

	event := store.CostEvent{
		Timestamp:    completed,
		Model:        cfg.Model,
		Provider:     cfg.Engine,
		TokensInput:  uint64(usage.InputTokens),
		TokensOutput: uint64(usage.OutputTokens),
		CostUSD:      in.rates.CostUSD(cfg.Engine, cfg.Model, usage),
		SessionID:    in.sessionID,
	}
	if err := in.store.RecordCostEvent(ctx, event); err != nil {
		in.log.Warnw("failed to record cost event", "agent_id", cfg.ID, "error", err)
	}
}

// trackerAdapter bridges executor.Tracker's {task,requirement,status,note}
// contract onto tracker.Tracker's {task,status} one: requirementID and note
// are dropped since the external tracker CLI spec §6 wires has no slot for
// either.
type trackerAdapter struct {
	tracker *tracker.Tracker
}

func (a *trackerAdapter) UpdateStatus(ctx context.Context, taskID, _ string, status, _ string) error {
	return a.tracker.UpdateTaskStatus(ctx, taskID, mapTrackerStatus(status))
}

func mapTrackerStatus(status string) tracker.Status {
	switch status {
	case "in_progress":
		return tracker.StatusInProgress
	case "completed":
		return tracker.StatusCompleted
	case "failed", "blocked":
		return tracker.StatusCancelled
	default:
		return tracker.StatusPlanned
	}
}

// dispatcherRegistry narrows agent.Registry to dispatcher.Registry.
type dispatcherRegistry struct {
	registry *agent.Registry
}

func (r dispatcherRegistry) Get(id string) (agent.Config, bool) { return r.registry.Get(id) }

// dispatchExecutor adapts modelInvoker to dispatcher.Executor's
// {cfg, input} -> ExecutionResult contract, reusing the same gateway call
// path the Parallel Executor uses (spec §4.6 step 4 / §4.7 step 4 share one
// "invoke the model through the gateway" seam).
type dispatchExecutor struct {
	invoker *modelInvoker
}

func (e *dispatchExecutor) Execute(ctx context.Context, cfg agent.Config, input string) (dispatcher.ExecutionResult, error) {
	result, err := e.invoker.Invoke(ctx, cfg.ID, input)
	if err != nil {
		// Returned as-is, not swallowed into ExecutionResult.Error: the
		// Dispatcher's own gateway.CriticalFromModelError(err) check (spec
		// §4.6 step 6) needs to see the underlying *gateway.ProviderError
		// through errors.As, which errs.Error's Unwrap preserves.
		return dispatcher.ExecutionResult{}, err
	}
	return dispatcher.ExecutionResult{Success: result.Status == executor.StatusCompleted, Error: result.Error}, nil
}
