package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiantcore/corerun/internal/agent"
)

const validPlanResponse = `# Demo Project

## Iteration 1: Setup
1. Scaffold the repo
   - Agent: code-agent
2. Write the first test
   - Agent: code-agent
   - Dependencies: I1.T1
`

type scriptedCaller struct {
	responses []string
	calls     int
}

func (s *scriptedCaller) GenerateText(ctx context.Context, prompt string) (string, error) {
	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.calls++
	return s.responses[i], nil
}

func TestParsePlanHappyPath(t *testing.T) {
	parsed, err := ParsePlan(validPlanResponse)
	require.NoError(t, err)
	assert.Equal(t, "Demo Project", parsed.ProjectTitle)
	require.Len(t, parsed.Iterations, 1)
	require.Len(t, parsed.Iterations[0].Tasks, 2)
	assert.Equal(t, "code-agent", parsed.Iterations[0].Tasks[0].Agent)
	assert.Equal(t, []string{"I1.T1"}, parsed.Iterations[0].Tasks[1].Dependencies)
}

func TestPlanFromGoalSucceedsFirstTry(t *testing.T) {
	reg := agent.NewRegistry()
	reg.Register(agent.Config{ID: "code-agent", Description: "writes code"})
	caller := &scriptedCaller{responses: []string{validPlanResponse}}

	p := New(caller, reg)
	plan, err := p.PlanFromGoal(context.Background(), "build a thing")
	require.NoError(t, err)
	assert.Equal(t, 1, caller.calls)
	assert.Equal(t, []string{"I1.T1", "I1.T2"}, plan.Workflow)
}

func TestPlanFromGoalRetriesOnMalformedResponse(t *testing.T) {
	reg := agent.NewRegistry()
	caller := &scriptedCaller{responses: []string{"not a plan at all", validPlanResponse}}

	p := New(caller, reg)
	plan, err := p.PlanFromGoal(context.Background(), "build a thing")
	require.NoError(t, err)
	assert.Equal(t, 2, caller.calls)
	assert.NotNil(t, plan)
}

func TestPlanFromGoalExhaustsRetriesReturnsValidationFailed(t *testing.T) {
	reg := agent.NewRegistry()
	caller := &scriptedCaller{responses: []string{"garbage", "still garbage", "more garbage"}}

	p := New(caller, reg, WithMaxRetries(2))
	_, err := p.PlanFromGoal(context.Background(), "build a thing")
	require.Error(t, err)
	var valErr *ErrValidationFailed
	assert.ErrorAs(t, err, &valErr)
	assert.Equal(t, 3, caller.calls)
}

// TestPlanFromGoalCyclicPlanRejected is scenario S2 from spec §8: a plan
// whose tasks form a cycle across every retry surfaces as ErrDag, not
// ErrValidationFailed.
func TestPlanFromGoalCyclicPlanRejected(t *testing.T) {
	cyclic := `# Demo Project

## Iteration 1: Setup
1. T1
   - Dependencies: I1.T3
2. T2
   - Dependencies: I1.T1
3. T3
   - Dependencies: I1.T2
`
	reg := agent.NewRegistry()
	caller := &scriptedCaller{responses: []string{cyclic, cyclic, cyclic}}

	p := New(caller, reg, WithMaxRetries(2))
	_, err := p.PlanFromGoal(context.Background(), "build a thing")
	require.Error(t, err)
	var dagErr *ErrDag
	assert.ErrorAs(t, err, &dagErr)
}
