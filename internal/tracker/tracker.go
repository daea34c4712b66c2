// Package tracker integrates an external, optional task tracker reachable
// only through subprocess invocation (spec §6): create a requirement from
// a text goal, show a requirement as JSON, and update a task's status.
// Transport errors map to errs.KindStorage without aborting the caller —
// the tracker is an oversight integration, not a dependency the core's
// correctness relies on.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/radiantcore/corerun/internal/errs"
)

// Status is one of the task states the external tracker understands.
type Status string

const (
	StatusPlanned    Status = "PLANNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

const defaultCommandTimeout = 30 * time.Second

// requirementIDPattern extracts a `REQ-<n>` identifier from subprocess
// stdout, per spec §6's literal `\bREQ-\d+\b`.
var requirementIDPattern = regexp.MustCompile(`\bREQ-\d+\b`)

// Options configures a Tracker.
type Options struct {
	// Command is the tracker CLI binary, e.g. "task-tracker".
	Command string
	// Args are prepended to every subprocess invocation (e.g. a shared
	// --project flag); per-call arguments are appended after these.
	Args []string
	// Timeout bounds every subprocess call; zero uses the 30s default.
	Timeout time.Duration
}

// Tracker drives an external task tracker CLI through subprocess calls.
type Tracker struct {
	command string
	args    []string
	timeout time.Duration
}

// New returns a Tracker for the given CLI command.
func New(opts Options) (*Tracker, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("tracker: command is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &Tracker{command: opts.Command, args: opts.Args, timeout: timeout}, nil
}

// CreateRequirement asks the tracker to create a requirement from a
// free-form goal and returns the allocated `REQ-<n>` identifier extracted
// from its stdout.
func (t *Tracker) CreateRequirement(ctx context.Context, goal string) (string, error) {
	out, err := t.run(ctx, "create", goal)
	if err != nil {
		return "", err
	}
	id := requirementIDPattern.FindString(out)
	if id == "" {
		return "", errs.New(errs.KindStorage, "tracker.create", fmt.Errorf("no requirement id found in tracker output"))
	}
	return id, nil
}

// Requirement is the tracker's JSON view of one requirement, per spec §6
// ("show a requirement as JSON"). Unknown fields are preserved in Raw so
// callers that need tracker-specific data are not blocked on this
// package's field set.
type Requirement struct {
	ID     string          `json:"id"`
	Title  string          `json:"title"`
	Status string          `json:"status"`
	Raw    json.RawMessage `json:"-"`
}

// ShowRequirement fetches and parses a requirement by ID.
func (t *Tracker) ShowRequirement(ctx context.Context, requirementID string) (Requirement, error) {
	out, err := t.run(ctx, "show", requirementID, "--json")
	if err != nil {
		return Requirement{}, err
	}
	var req Requirement
	if err := json.Unmarshal([]byte(out), &req); err != nil {
		return Requirement{}, errs.New(errs.KindStorage, "tracker.show", fmt.Errorf("parse tracker output: %w", err))
	}
	req.Raw = json.RawMessage(out)
	return req, nil
}

// UpdateTaskStatus sets a task's status in the external tracker.
func (t *Tracker) UpdateTaskStatus(ctx context.Context, taskID string, status Status) error {
	_, err := t.run(ctx, "update", taskID, "--status", string(status))
	return err
}

// run executes the tracker CLI with args appended after the configured
// shared args, bounded by Timeout, and returns trimmed stdout. Any failure
// — non-zero exit, timeout, or a missing binary — surfaces as a
// KindStorage error so the Parallel Executor can log and continue instead
// of treating a tracker outage as fatal.
func (t *Tracker) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	fullArgs := append(append([]string{}, t.args...), args...)
	cmd := exec.CommandContext(ctx, t.command, fullArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", errs.New(errs.KindStorage, "tracker.run", fmt.Errorf("%s timed out after %s: %w", t.command, t.timeout, ctx.Err()))
		}
		return "", errs.New(errs.KindStorage, "tracker.run", fmt.Errorf("%s %v: %w: %s", t.command, fullArgs, err, stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}
