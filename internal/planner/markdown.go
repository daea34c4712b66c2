// Package planner implements the Planner (spec §4.9): turns a goal into a
// validated PlanManifest by prompting a model, parsing its Markdown
// response, validating with the Plan Validator, and retrying on failure.
package planner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParsedTask is a task parsed from the plan template's numbered list.
type ParsedTask struct {
	Number             int
	Title              string
	Agent              string
	Dependencies       []string
	AcceptanceCriteria []string
}

// ParsedIteration is an iteration parsed from a `## Iteration N: <name>`
// heading and its following task list.
type ParsedIteration struct {
	Number int
	Name   string
	Tasks  []ParsedTask
}

// ParsedPlan is the full parse of a plan template response.
type ParsedPlan struct {
	ProjectTitle string
	Description  string
	TechStack    string
	Iterations   []ParsedIteration
}

var (
	iterationHeading = regexp.MustCompile(`^##\s*Iteration\s+(\d+)\s*:\s*(.+)$`)
	taskLine         = regexp.MustCompile(`^\d+\.\s*(.+)$`)
	agentLine        = regexp.MustCompile(`(?i)^\s*-?\s*Agent:\s*(.+)$`)
	depsLine         = regexp.MustCompile(`(?i)^\s*-?\s*Dependencies:\s*(.+)$`)
	criteriaLine     = regexp.MustCompile(`(?i)^\s*-?\s*Acceptance Criteria:\s*(.+)$`)
	titleLine        = regexp.MustCompile(`^#\s+(.+)$`)
)

// ParsePlan parses a plan response against the Markdown template spec §4.9
// step 2 describes: project title, optional description, optional tech
// stack, `## Iteration N: <name>` headings, numbered tasks with optional
// `Agent`, `Dependencies`, and `Acceptance Criteria` blocks. The title is
// read; ParsedPlan's Description and TechStack are left empty, since no
// line of the response is read into them.
func ParsePlan(markdown string) (*ParsedPlan, error) {
	lines := strings.Split(markdown, "\n")
	plan := &ParsedPlan{}

	var curIter *ParsedIteration
	var curTask *ParsedTask

	flushTask := func() {
		if curTask != nil && curIter != nil {
			curIter.Tasks = append(curIter.Tasks, *curTask)
			curTask = nil
		}
	}
	flushIter := func() {
		flushTask()
		if curIter != nil {
			plan.Iterations = append(plan.Iterations, *curIter)
			curIter = nil
		}
	}

	for _, raw := range lines {
		line := strings.TrimRight(raw, " \t")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if m := titleLine.FindStringSubmatch(trimmed); m != nil && plan.ProjectTitle == "" {
			plan.ProjectTitle = strings.TrimSpace(m[1])
			continue
		}
		if m := iterationHeading.FindStringSubmatch(trimmed); m != nil {
			flushIter()
			n, _ := strconv.Atoi(m[1])
			curIter = &ParsedIteration{Number: n, Name: strings.TrimSpace(m[2])}
			continue
		}
		if m := taskLine.FindStringSubmatch(trimmed); m != nil && curIter != nil {
			flushTask()
			n := len(curIter.Tasks) + 1
			curTask = &ParsedTask{Number: n, Title: strings.TrimSpace(m[1])}
			continue
		}
		if curTask == nil {
			continue
		}
		if m := agentLine.FindStringSubmatch(trimmed); m != nil {
			curTask.Agent = strings.TrimSpace(m[1])
			continue
		}
		if m := depsLine.FindStringSubmatch(trimmed); m != nil {
			curTask.Dependencies = splitList(m[1])
			continue
		}
		if m := criteriaLine.FindStringSubmatch(trimmed); m != nil {
			curTask.AcceptanceCriteria = splitList(m[1])
			continue
		}
	}
	flushIter()

	if plan.ProjectTitle == "" {
		return nil, fmt.Errorf("planner: could not find a project title heading")
	}
	if len(plan.Iterations) == 0 {
		return nil, fmt.Errorf("planner: plan contains no iterations")
	}
	return plan, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
