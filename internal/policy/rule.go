// Package policy implements the Policy Engine (spec §4.2): a rule-based
// permission layer that authorizes every tool invocation with deterministic
// precedence, plus an auxiliary (non-authoritative) conflict detector
// grounded on the original implementation's conflict_resolution module.
package policy

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Priority is the precedence class a rule belongs to. Admin always preempts
// User, which always preempts Default, regardless of insertion order.
type Priority int

const (
	PriorityDefault Priority = iota
	PriorityUser
	PriorityAdmin
)

// String renders the priority the way it appears in policy.toml.
func (p Priority) String() string {
	switch p {
	case PriorityAdmin:
		return "admin"
	case PriorityUser:
		return "user"
	default:
		return "default"
	}
}

// ParsePriority parses the policy.toml string form of a priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(s) {
	case "admin":
		return PriorityAdmin, nil
	case "user":
		return PriorityUser, nil
	case "default", "":
		return PriorityDefault, nil
	default:
		return 0, fmt.Errorf("policy: unknown priority %q", s)
	}
}

// Action is the decision a matched rule (or the fallback default mode)
// produces.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
	ActionAsk   Action = "ask"
)

// ParseAction parses the policy.toml string form of an action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(s) {
	case "allow":
		return ActionAllow, nil
	case "deny":
		return ActionDeny, nil
	case "ask", "ask_user":
		return ActionAsk, nil
	default:
		return "", fmt.Errorf("policy: unknown action %q", s)
	}
}

// DefaultMode governs what happens when no rule matches a tool invocation.
type DefaultMode string

const (
	// ModeYolo auto-allows any unmatched invocation.
	ModeYolo DefaultMode = "yolo"
	// ModeAutoEdit allows reads and asks for everything else.
	ModeAutoEdit DefaultMode = "autoEdit"
	// ModeAsk always asks when no rule matches.
	ModeAsk DefaultMode = "ask"
)

// Rule is a single policy.toml `[[rules]]` entry (spec's PolicyRule entity).
type Rule struct {
	Name        string
	Priority    Priority
	Action      Action
	ToolPattern string
	ArgPattern  string // optional; empty means "match any args"
	Reason      string

	compiledArg *regexp.Regexp
}

// RulesFromAllowlist converts a flat list of pre-approved command strings
// (spec §12's `_internals/command_allowlist.json`) into Default-tier Allow
// rules, one per command, layered beneath whatever User/Admin rules
// policy.toml supplies — an allowlist entry never outranks an explicit
// Deny rule, it only narrows what the Default fallback would otherwise ask
// about.
func RulesFromAllowlist(commands []string) []Rule {
	rules := make([]Rule, 0, len(commands))
	for _, cmd := range commands {
		rules = append(rules, Rule{
			Name:        "allowlist:" + cmd,
			Priority:    PriorityDefault,
			Action:      ActionAllow,
			ToolPattern: cmd,
			Reason:      "pre-approved via command allowlist",
		})
	}
	return rules
}

// compile validates the tool glob and, if present, compiles the argument
// regex. A compile failure is reported with the offending rule's name so the
// caller can drop just this rule rather than invalidate the whole policy.
func (r *Rule) compile() error {
	if _, err := path.Match(r.ToolPattern, ""); err != nil {
		return fmt.Errorf("rule %q: invalid tool_pattern %q: %w", r.Name, r.ToolPattern, err)
	}
	if r.ArgPattern != "" {
		re, err := regexp.Compile(r.ArgPattern)
		if err != nil {
			return fmt.Errorf("rule %q: invalid arg_pattern %q: %w", r.Name, r.ArgPattern, err)
		}
		r.compiledArg = re
	}
	return nil
}

// matches reports whether the rule's tool_pattern matches toolName and, if an
// arg_pattern is set, whether it matches the space-joined argument vector.
func (r *Rule) matches(toolName string, args []string) bool {
	ok, err := path.Match(r.ToolPattern, toolName)
	if err != nil || !ok {
		return false
	}
	if r.compiledArg == nil {
		return true
	}
	return r.compiledArg.MatchString(strings.Join(args, " "))
}

// wildcardCount is used by specificity comparisons (fewer wildcards is more
// specific), mirroring the original implementation's heuristic.
func wildcardCount(pattern string) int {
	n := 0
	for _, r := range pattern {
		if r == '*' || r == '?' {
			n++
		}
	}
	return n
}

// moreSpecific reports whether pattern a is more specific than pattern b: a
// rule is more specific iff it has fewer wildcards, or the same number with a
// longer literal portion (spec §4.2).
func moreSpecific(a, b string) bool {
	wa, wb := wildcardCount(a), wildcardCount(b)
	if wa != wb {
		return wa < wb
	}
	return len(stripWildcards(a)) > len(stripWildcards(b))
}

func stripWildcards(pattern string) string {
	return strings.NewReplacer("*", "", "?", "").Replace(pattern)
}
