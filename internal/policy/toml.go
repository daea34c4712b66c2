package policy

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// fileRule mirrors a `[[rules]]` table in policy.toml (spec §6).
type fileRule struct {
	Name        string `toml:"name"`
	Priority    string `toml:"priority"`
	Action      string `toml:"action"`
	ToolPattern string `toml:"tool_pattern"`
	ArgPattern  string `toml:"arg_pattern"`
	Reason      string `toml:"reason"`
}

type policyFile struct {
	ApprovalMode string     `toml:"approval_mode"`
	Rules        []fileRule `toml:"rules"`
}

// LoadFile parses a policy.toml document and returns the default mode plus
// the rule set, ready to be passed to Engine.Load. A rule whose priority or
// action field is unparseable fails the whole parse: the returned error
// names that rule's index and no rules are returned.
func LoadFile(path string) (DefaultMode, []Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return ParseTOML(data)
}

// ParseTOML parses policy.toml content already read into memory.
func ParseTOML(data []byte) (DefaultMode, []Rule, error) {
	var f policyFile
	if _, err := toml.Decode(string(data), &f); err != nil {
		return "", nil, fmt.Errorf("policy: parse toml: %w", err)
	}

	mode := DefaultMode(f.ApprovalMode)
	switch mode {
	case ModeYolo, ModeAutoEdit, ModeAsk:
	case "":
		mode = ModeAsk
	default:
		return "", nil, fmt.Errorf("policy: unknown approval_mode %q", f.ApprovalMode)
	}

	rules := make([]Rule, 0, len(f.Rules))
	for i, fr := range f.Rules {
		priority, err := ParsePriority(fr.Priority)
		if err != nil {
			return "", nil, fmt.Errorf("policy: rule[%d] %q: %w", i, fr.Name, err)
		}
		action, err := ParseAction(fr.Action)
		if err != nil {
			return "", nil, fmt.Errorf("policy: rule[%d] %q: %w", i, fr.Name, err)
		}
		rules = append(rules, Rule{
			Name:        fr.Name,
			Priority:    priority,
			Action:      action,
			ToolPattern: fr.ToolPattern,
			ArgPattern:  fr.ArgPattern,
			Reason:      fr.Reason,
		})
	}
	return mode, rules, nil
}
