package dispatcher

import (
	"strconv"
	"strings"
)

// StepResult is the outcome of a previously-dispatched task, keyed by
// ExecutionTask.TaskID — the Dispatcher's minimal analogue of the original
// implementation's ExecutionContext.step_results.
type StepResult struct {
	Success bool
	Error   string
	Output  string
}

// StepCondition is PlanTask-level control-flow metadata, folded into
// ExecutionTask.Metadata under the "condition", "skip_if", and "depends_on"
// keys, gating whether a dispatched task actually runs.
type StepCondition struct {
	Condition string   // optional; task runs only if this evaluates true
	SkipIf    string   // optional; task is skipped if this evaluates true
	DependsOn []string // optional; every entry must have already succeeded
}

// conditionFromMetadata extracts a StepCondition from an ExecutionTask's
// Metadata bag. Unlike the original implementation, which parses these
// fields out of a JSON blob, here they arrive as flat keys on the already-
// typed Metadata map; the gating semantics are unchanged. A task with none
// of the three keys set has the zero StepCondition, which always executes.
func conditionFromMetadata(meta map[string]string) StepCondition {
	var c StepCondition
	if meta == nil {
		return c
	}
	c.Condition = meta["condition"]
	c.SkipIf = meta["skip_if"]
	for _, dep := range strings.Split(meta["depends_on"], ",") {
		if dep = strings.TrimSpace(dep); dep != "" {
			c.DependsOn = append(c.DependsOn, dep)
		}
	}
	return c
}

// shouldExecuteStep reports whether a task gated by cond should run, given
// the recorded outcomes of previously-dispatched tasks. It mirrors the
// original implementation's should_execute_step: depends_on is checked
// first (any missing or failed dependency vetoes execution), then skip_if,
// then condition.
func shouldExecuteStep(cond StepCondition, results map[string]StepResult) bool {
	for _, dep := range cond.DependsOn {
		r, ok := results[dep]
		if !ok || !r.Success {
			return false
		}
	}
	if cond.SkipIf != "" && evaluateCondition(cond.SkipIf, results) {
		return false
	}
	if cond.Condition != "" && !evaluateCondition(cond.Condition, results) {
		return false
	}
	return true
}

// evaluateCondition is a minimal equality-expression evaluator over prior
// step results, ported from the original implementation's evaluate_condition.
// It supports expressions of the form "<step_id>.result.<property> ==
// <value>" where property is "success", "error", or anything else (checked
// against the step's plain-text Output, not a nested field — the original
// implementation reads only the third path segment too, so a deeper path
// like "step.result.output.field" is evaluated the same as
// "step.result.output"). Any expression it cannot parse, or that names a
// step with no recorded result, defaults to true: a malformed condition
// must not by itself block an otherwise-ready task.
func evaluateCondition(expr string, results map[string]StepResult) bool {
	if !strings.Contains(expr, "==") {
		return true
	}
	parts := strings.SplitN(expr, "==", 2)
	if len(parts) != 2 {
		return true
	}
	left := strings.TrimSpace(parts[0])
	right := strings.Trim(strings.TrimSpace(parts[1]), `'"`)

	if !strings.Contains(left, ".result.") {
		return true
	}
	pathParts := strings.Split(left, ".")
	if len(pathParts) < 3 || pathParts[1] != "result" {
		return true
	}

	r, ok := results[pathParts[0]]
	if !ok {
		return true
	}

	switch pathParts[2] {
	case "success":
		expected, _ := strconv.ParseBool(right) // unparseable defaults to false
		return r.Success == expected
	case "error":
		if right == "null" {
			return r.Error == ""
		}
		if r.Error != "" {
			return r.Error == right
		}
	default:
		if r.Output != "" {
			return r.Output == right
		}
	}
	return true
}
