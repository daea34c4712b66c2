package planner

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/radiantcore/corerun/internal/agent"
	"github.com/radiantcore/corerun/internal/dag"
	"github.com/radiantcore/corerun/internal/validator"
)

// ModelCaller is the gateway-facing seam: generate a plan response from a
// prompt (spec §4.9 step 2, "call the model").
type ModelCaller interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Task is a PlanTask with its ID already assigned.
type Task struct {
	ID                 string
	Number             int
	Title              string
	AgentID            string
	Dependencies       []string
	AcceptanceCriteria []string
}

// Iteration is the assigned-ID counterpart of ParsedIteration.
type Iteration struct {
	ID     string
	Number int
	Name   string
	Tasks  []Task
}

// Plan is the PlanManifest core entity, fully assembled with Task.id values.
type Plan struct {
	ProjectTitle string
	Description  string
	TechStack    string
	Iterations   []Iteration
}

// AutonomousPlan is the Planner's contract output (spec §4.9):
// `plan_from_goal(goal, model) → AutonomousPlan{plan, workflow}`.
type AutonomousPlan struct {
	Plan     Plan
	Workflow []string // topologically-ordered Task.id sequence
}

// ErrValidationFailed is returned when the plan fails C8 validation on every
// attempt, including retries. It preserves the final error list.
type ErrValidationFailed struct{ Errors []string }

func (e *ErrValidationFailed) Error() string {
	return fmt.Sprintf("planner: validation failed after retries: %v", e.Errors)
}

// ErrDag is returned directly, without being wrapped as ErrValidationFailed,
// when a cycle survives every retry (spec §4.9 "Failure semantics").
type ErrDag struct{ Cycle *dag.CycleError }

func (e *ErrDag) Error() string { return fmt.Sprintf("planner: %v", e.Cycle) }
func (e *ErrDag) Unwrap() error { return e.Cycle }

// Planner turns a goal into a validated AutonomousPlan.
type Planner struct {
	caller     ModelCaller
	validator  *validator.Validator
	registry   *agent.Registry
	maxRetries int
	log        *zap.SugaredLogger
}

// Option configures a Planner at construction time.
type Option func(*Planner)

// WithMaxRetries overrides the default of 2 additional attempts.
func WithMaxRetries(n int) Option { return func(p *Planner) { p.maxRetries = n } }

// WithLogger attaches a logger; the default is a no-op logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(p *Planner) { p.log = l } }

// New constructs a Planner. registry feeds both the agent-catalog summary
// in the prompt and C8's agent-existence check.
func New(caller ModelCaller, registry *agent.Registry, opts ...Option) *Planner {
	p := &Planner{
		caller:     caller,
		validator:  validator.New(registry),
		registry:   registry,
		maxRetries: 2,
		log:        zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// PlanFromGoal implements spec §4.9's contract end to end.
func (p *Planner) PlanFromGoal(ctx context.Context, goal string) (*AutonomousPlan, error) {
	prompt := p.buildPrompt(goal, "")
	var lastErrors []string
	var lastCycle *dag.CycleError

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		response, err := p.caller.GenerateText(ctx, prompt)
		if err != nil {
			lastErrors = []string{fmt.Sprintf("model call failed: %v", err)}
			prompt = p.buildPrompt(goal, strings.Join(lastErrors, "; "))
			continue
		}

		parsed, err := ParsePlan(response)
		if err != nil {
			lastErrors = []string{err.Error()}
			lastCycle = nil
			p.log.Warnw("plan parse failed, retrying", "attempt", attempt, "error", err)
			prompt = p.buildPrompt(goal, strings.Join(lastErrors, "; "))
			continue
		}

		plan := assignIDs(parsed)

		manifestJSON, err := toWireManifest(plan)
		if err != nil {
			lastErrors = []string{fmt.Sprintf("marshal plan manifest: %v", err)}
			lastCycle = nil
			prompt = p.buildPrompt(goal, strings.Join(lastErrors, "; "))
			continue
		}
		if err := validator.ValidateStructure(manifestJSON); err != nil {
			lastErrors = []string{err.Error()}
			lastCycle = nil
			p.log.Warnw("plan structure validation failed, retrying", "attempt", attempt, "error", err)
			prompt = p.buildPrompt(goal, strings.Join(lastErrors, "; "))
			continue
		}

		tasks := flattenTasks(plan)

		result := p.validator.Validate(tasks)
		if result.IsValid() {
			workflow, err := buildWorkflow(tasks)
			if err != nil {
				var cycErr *dag.CycleError
				if ce, ok := err.(*dag.CycleError); ok {
					cycErr = ce
				}
				lastCycle = cycErr
				lastErrors = []string{err.Error()}
				prompt = p.buildPrompt(goal, strings.Join(lastErrors, "; "))
				continue
			}
			return &AutonomousPlan{Plan: plan, Workflow: workflow}, nil
		}

		lastErrors = result.Errors
		lastCycle = firstCycle(tasks, result.Errors)
		p.log.Warnw("plan validation failed, retrying", "attempt", attempt, "errors", result.Errors)
		prompt = p.buildPrompt(goal, strings.Join(lastErrors, "; "))
	}

	if lastCycle != nil {
		return nil, &ErrDag{Cycle: lastCycle}
	}
	return nil, &ErrValidationFailed{Errors: lastErrors}
}

// firstCycle re-detects a cycle directly (rather than parsing it back out of
// the error strings) so the final failure, if it is a cycle, surfaces as
// ErrDag per spec §4.9's distinct failure semantics for DAG errors.
func firstCycle(tasks []validator.Task, errs []string) *dag.CycleError {
	deps := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		deps[t.ID] = t.Dependencies
	}
	return dag.New(deps).DetectCycles()
}

func buildWorkflow(tasks []validator.Task) ([]string, error) {
	deps := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		deps[t.ID] = t.Dependencies
	}
	order, err := dag.New(deps).TopologicalOrder()
	if err != nil {
		return nil, err
	}
	return order, nil
}

func assignIDs(parsed *ParsedPlan) Plan {
	plan := Plan{
		ProjectTitle: parsed.ProjectTitle,
		Description:  parsed.Description,
		TechStack:    parsed.TechStack,
	}
	for _, pi := range parsed.Iterations {
		iter := Iteration{
			ID:     "I" + strconv.Itoa(pi.Number),
			Number: pi.Number,
			Name:   pi.Name,
		}
		for _, pt := range pi.Tasks {
			iter.Tasks = append(iter.Tasks, Task{
				ID:                 fmt.Sprintf("I%d.T%d", pi.Number, pt.Number),
				Number:             pt.Number,
				Title:              pt.Title,
				AgentID:            pt.Agent,
				Dependencies:       pt.Dependencies,
				AcceptanceCriteria: pt.AcceptanceCriteria,
			})
		}
		plan.Iterations = append(plan.Iterations, iter)
	}
	return plan
}

func flattenTasks(plan Plan) []validator.Task {
	var out []validator.Task
	for _, iter := range plan.Iterations {
		for _, t := range iter.Tasks {
			out = append(out, validator.Task{ID: t.ID, AgentID: t.AgentID, Dependencies: t.Dependencies})
		}
	}
	return out
}

func (p *Planner) buildPrompt(goal, failureSummary string) string {
	var b strings.Builder
	b.WriteString("Goal:\n")
	b.WriteString(goal)
	b.WriteString("\n\nAvailable agents:\n")
	if p.registry != nil {
		for _, cfg := range p.registry.List() {
			fmt.Fprintf(&b, "- %s: %s\n", cfg.ID, cfg.Description)
		}
	}
	if failureSummary != "" {
		b.WriteString("\nThe previous plan was rejected for the following reason(s); fix them:\n")
		b.WriteString(failureSummary)
		b.WriteString("\n")
	}
	b.WriteString("\nRespond with a plan using this template:\n")
	b.WriteString("# <Project Title>\n\n## Iteration 1: <name>\n1. <task title>\n   - Agent: <agent id>\n   - Dependencies: <comma-separated Task.id list>\n   - Acceptance Criteria: <comma-separated list>\n")
	return b.String()
}
