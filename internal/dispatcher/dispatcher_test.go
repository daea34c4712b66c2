package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiantcore/corerun/internal/agent"
	"github.com/radiantcore/corerun/internal/gateway"
	"github.com/radiantcore/corerun/internal/queue"
)

// echoExecutor always succeeds immediately, mirroring the original
// implementation's EchoAgent test double.
type echoExecutor struct{}

func (echoExecutor) Execute(ctx context.Context, cfg agent.Config, input string) (ExecutionResult, error) {
	return ExecutionResult{Success: true}, nil
}

type criticalExecutor struct{}

func (criticalExecutor) Execute(ctx context.Context, cfg agent.Config, input string) (ExecutionResult, error) {
	return ExecutionResult{}, &gateway.ProviderError{
		Provider:  "anthropic",
		Kind:      gateway.ProviderErrorQuotaExceeded,
		Message:   "permanent quota exhausted",
		Retryable: false,
	}
}

func testConfig() Config {
	return Config{PollInterval: 10 * time.Millisecond, MaxConcurrentPerAgent: 10}
}

func TestDispatcherNewNotRunning(t *testing.T) {
	reg := agent.NewRegistry()
	q := queue.New(0)
	d := New(reg, q, echoExecutor{}, DefaultConfig())
	assert.False(t, d.IsRunning())
	assert.False(t, d.IsPaused())
}

func TestDispatcherStartStop(t *testing.T) {
	reg := agent.NewRegistry()
	q := queue.New(0)
	d := New(reg, q, echoExecutor{}, testConfig())

	require.NoError(t, d.Start())
	assert.True(t, d.IsRunning())

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, d.Stop())
	assert.False(t, d.IsRunning())
}

func TestDispatcherDoubleStart(t *testing.T) {
	reg := agent.NewRegistry()
	q := queue.New(0)
	d := New(reg, q, echoExecutor{}, testConfig())

	require.NoError(t, d.Start())
	err := d.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	_ = d.Stop()
}

func TestDispatcherProcessesTasks(t *testing.T) {
	reg := agent.NewRegistry()
	reg.Register(agent.Config{ID: "test-agent", Name: "Test agent"})
	q := queue.New(0)

	d := New(reg, q, echoExecutor{}, testConfig())
	require.NoError(t, q.EnqueueTask(queue.ExecutionTask{
		TaskID: "test-task-1", AgentID: "test-agent", Input: "test input",
	}))

	require.NoError(t, d.Start())
	defer d.Stop()

	assert.Eventually(t, func() bool {
		m := q.Metrics()
		return m.Completed == 1 && m.Pending == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcherPauseResume(t *testing.T) {
	reg := agent.NewRegistry()
	q := queue.New(0)
	d := New(reg, q, echoExecutor{}, testConfig())

	require.NoError(t, d.Start())
	defer d.Stop()

	d.Pause()
	assert.True(t, d.IsPaused())

	d.Resume()
	assert.False(t, d.IsPaused())
}

func TestDispatcherPauseStopsProcessing(t *testing.T) {
	reg := agent.NewRegistry()
	reg.Register(agent.Config{ID: "test-agent"})
	q := queue.New(0)
	d := New(reg, q, echoExecutor{}, testConfig())

	require.NoError(t, d.Start())
	defer d.Stop()

	for i := 0; i < 2; i++ {
		require.NoError(t, q.EnqueueTask(queue.ExecutionTask{
			TaskID: taskName(i), AgentID: "test-agent",
		}))
	}
	time.Sleep(50 * time.Millisecond)

	d.Pause()
	for i := 2; i < 5; i++ {
		require.NoError(t, q.EnqueueTask(queue.ExecutionTask{
			TaskID: taskName(i), AgentID: "test-agent",
		}))
	}
	time.Sleep(100 * time.Millisecond)

	m := q.Metrics()
	assert.Less(t, m.Completed, 5, "some tasks should still be pending when paused")

	d.Resume()
	assert.Eventually(t, func() bool {
		return q.Metrics().Completed == 5
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcherAgentNotFoundMarksCompleted(t *testing.T) {
	reg := agent.NewRegistry()
	q := queue.New(0)
	d := New(reg, q, echoExecutor{}, testConfig())

	require.NoError(t, q.EnqueueTask(queue.ExecutionTask{TaskID: "missing-agent-task", AgentID: "ghost"}))
	require.NoError(t, d.Start())
	defer d.Stop()

	assert.Eventually(t, func() bool {
		return q.Metrics().Pending == 0
	}, time.Second, 10*time.Millisecond)
}

func TestDispatcherCriticalErrorStopsLoop(t *testing.T) {
	reg := agent.NewRegistry()
	reg.Register(agent.Config{ID: "bad-agent"})
	q := queue.New(0)
	d := New(reg, q, criticalExecutor{}, testConfig())

	require.NoError(t, q.EnqueueTask(queue.ExecutionTask{TaskID: "t1", AgentID: "bad-agent"}))
	require.NoError(t, d.Start())

	assert.Eventually(t, func() bool {
		return d.LastError() != nil
	}, time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return !d.IsRunning()
	}, time.Second, 10*time.Millisecond)

	crit := d.LastError()
	require.NotNil(t, crit)
	assert.Equal(t, gateway.ProviderErrorQuotaExceeded, crit.Kind)
}

func TestDispatcherStopNotRunning(t *testing.T) {
	reg := agent.NewRegistry()
	q := queue.New(0)
	d := New(reg, q, echoExecutor{}, testConfig())
	err := d.Stop()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func taskName(i int) string {
	return "test-task-" + string(rune('0'+i))
}

func TestDispatcherSkipsTaskWhenDependencyFailed(t *testing.T) {
	reg := agent.NewRegistry()
	reg.Register(agent.Config{ID: "test-agent"})
	q := queue.New(0)
	d := New(reg, q, criticalExecutor{}, testConfig())
	require.NoError(t, d.Start())
	defer d.Stop()

	// Directly seed a failed upstream result; criticalExecutor would stop
	// the loop if the gated task actually ran, so a successful skip is
	// observable as "completed without the loop dying".
	d.recordStepResult("upstream", StepResult{Success: false, Error: "boom"})

	require.NoError(t, q.EnqueueTask(queue.ExecutionTask{
		TaskID:  "gated-task",
		AgentID: "test-agent",
		Metadata: map[string]string{
			"depends_on": "upstream",
		},
	}))

	assert.Eventually(t, func() bool {
		return q.Metrics().Completed == 1
	}, time.Second, 10*time.Millisecond)
	assert.True(t, d.IsRunning(), "a skipped task must never reach the executor")
}

func TestDispatcherSkipsTaskWhenSkipIfConditionTrue(t *testing.T) {
	reg := agent.NewRegistry()
	reg.Register(agent.Config{ID: "test-agent"})
	q := queue.New(0)
	d := New(reg, q, criticalExecutor{}, testConfig())
	require.NoError(t, d.Start())
	defer d.Stop()

	d.recordStepResult("upstream", StepResult{Success: true})

	require.NoError(t, q.EnqueueTask(queue.ExecutionTask{
		TaskID:  "gated-task",
		AgentID: "test-agent",
		Metadata: map[string]string{
			"skip_if": "upstream.result.success == true",
		},
	}))

	assert.Eventually(t, func() bool {
		return q.Metrics().Completed == 1
	}, time.Second, 10*time.Millisecond)
	assert.True(t, d.IsRunning())
}
