// Package validator implements the Plan Validator (spec §4.8): three
// collecting stages over a PlanManifest — dependency existence, cycle
// freedom, and agent existence — plus an optional JSON Schema structural
// pass over the manifest's wire form.
package validator

import (
	"fmt"
	"sort"

	"github.com/radiantcore/corerun/internal/agent"
	"github.com/radiantcore/corerun/internal/dag"
)

// Task is the subset of PlanTask the validator needs.
type Task struct {
	ID           string
	AgentID      string
	Dependencies []string
}

// Result collects every error and warning found across the three stages.
// IsValid is errors.is_empty(); warnings are advisory only (spec §4.8).
type Result struct {
	Errors   []string
	Warnings []string
}

// IsValid reports whether no stage produced an error.
func (r Result) IsValid() bool { return len(r.Errors) == 0 }

// Validator runs the three-stage check against an Agent Registry.
type Validator struct {
	registry *agent.Registry
}

// New constructs a Validator consulting registry for stage 3's agent
// existence check. registry may be nil, in which case stage 3 is skipped
// entirely (no warnings are produced, since there is nothing to check
// against).
func New(registry *agent.Registry) *Validator {
	return &Validator{registry: registry}
}

// Validate runs all three stages over tasks, collected across every
// iteration of the manifest (callers flatten iterations before calling).
func (v *Validator) Validate(tasks []Task) Result {
	var result Result

	known := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		known[t.ID] = struct{}{}
	}

	// Stage 1: dependency existence.
	var missing []string
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if _, ok := known[dep]; !ok {
				missing = append(missing, fmt.Sprintf("task %q depends on unknown task %q", t.ID, dep))
			}
		}
	}
	sort.Strings(missing)
	result.Errors = append(result.Errors, missing...)

	// Stage 2: cycle freedom.
	deps := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		deps[t.ID] = t.Dependencies
	}
	if cyc := dag.New(deps).DetectCycles(); cyc != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("circular dependency: %v", cyc.Path))
	}

	// Stage 3: agent existence (warning only).
	if v.registry != nil {
		var warnings []string
		for _, t := range tasks {
			if t.AgentID == "" || t.AgentID == agent.Sentinel {
				continue
			}
			if !v.registry.Exists(t.AgentID) {
				warnings = append(warnings, fmt.Sprintf("task %q references unknown agent %q", t.ID, t.AgentID))
			}
		}
		sort.Strings(warnings)
		result.Warnings = append(result.Warnings, warnings...)
	}

	return result
}
