package policy

// ConflictType classifies how two rules conflict (spec §4.2, grounded on the
// original implementation's conflict_resolution module).
type ConflictType string

const (
	ConflictActions    ConflictType = "conflicting_actions"
	ConflictOverlap    ConflictType = "overlapping_patterns"
	ConflictPriority   ConflictType = "priority_conflict"
	ConflictDuplicate  ConflictType = "duplicate_pattern"
)

// Conflict describes a detected disagreement between two rules, including an
// example tool name that would trigger both.
type Conflict struct {
	Rule1       string
	Rule2       string
	Type        ConflictType
	ExampleTool string
}

// exampleTools is the fixed probe set used to find a tool name both patterns
// of a candidate conflict would match, same heuristic as the original
// ConflictDetector::find_pattern_overlap.
var exampleTools = []string{
	"read_file", "write_file", "read_config", "read_directory", "write_config",
	"bash:sh", "bash:command", "bash:exec", "mcp_server_tool", "mcp_server_read",
	"delete_file", "update_file",
}

// DetectConflicts is an auxiliary, non-authoritative pass over a rule set
// producing every pairwise conflict. It never mutates the Engine's loaded
// rules; callers resolve conflicts explicitly via Resolve.
func DetectConflicts(rules []Rule) []Conflict {
	var conflicts []Conflict
	for i := 0; i < len(rules); i++ {
		for j := i + 1; j < len(rules); j++ {
			if c, ok := detectPair(rules[i], rules[j]); ok {
				conflicts = append(conflicts, c)
			}
		}
	}
	return conflicts
}

func detectPair(r1, r2 Rule) (Conflict, bool) {
	if r1.ToolPattern == r2.ToolPattern {
		if r1.Action == r2.Action {
			return Conflict{}, false
		}
		example := findExampleMatch(r1.ToolPattern)
		if r1.Priority == r2.Priority {
			return Conflict{Rule1: r1.Name, Rule2: r2.Name, Type: ConflictDuplicate, ExampleTool: example}, true
		}
		return Conflict{Rule1: r1.Name, Rule2: r2.Name, Type: ConflictPriority, ExampleTool: example}, true
	}

	example, overlaps := findOverlap(r1.ToolPattern, r2.ToolPattern)
	if !overlaps {
		return Conflict{}, false
	}
	if r1.Action == r2.Action {
		return Conflict{}, false
	}
	if moreSpecific(r1.ToolPattern, r2.ToolPattern) || moreSpecific(r2.ToolPattern, r1.ToolPattern) {
		return Conflict{Rule1: r1.Name, Rule2: r2.Name, Type: ConflictOverlap, ExampleTool: example}, true
	}
	return Conflict{Rule1: r1.Name, Rule2: r2.Name, Type: ConflictActions, ExampleTool: example}, true
}

func findExampleMatch(pattern string) string {
	r := Rule{ToolPattern: pattern}
	if err := r.compile(); err != nil {
		return pattern
	}
	for _, example := range exampleTools {
		if r.matches(example, nil) {
			return example
		}
	}
	return stripWildcards(pattern)
}

func findOverlap(pattern1, pattern2 string) (string, bool) {
	r1, r2 := Rule{ToolPattern: pattern1}, Rule{ToolPattern: pattern2}
	if err := r1.compile(); err != nil {
		return "", false
	}
	if err := r2.compile(); err != nil {
		return "", false
	}
	for _, tool := range exampleTools {
		if r1.matches(tool, nil) && r2.matches(tool, nil) {
			return tool, true
		}
	}
	return "", false
}

// ResolutionStrategy picks how Resolve handles each detected conflict.
type ResolutionStrategy string

const (
	ResolveKeepHigherPriority ResolutionStrategy = "keep_higher_priority"
	ResolveKeepMoreSpecific   ResolutionStrategy = "keep_more_specific"
	ResolveRemoveBoth         ResolutionStrategy = "remove_both"
	ResolveKeepFirst          ResolutionStrategy = "keep_first"
	ResolveKeepSecond         ResolutionStrategy = "keep_second"
	ResolveRename             ResolutionStrategy = "rename"
)

// Resolve applies strategy to every conflict, mutating rules in place, and
// returns the names of rules that were removed (or, for Rename, renamed to
// "<name>_conflict_resolved").
func Resolve(conflicts []Conflict, strategy ResolutionStrategy, rules *[]Rule) []string {
	removed := map[string]struct{}{}
	byName := func(name string) int {
		for i, r := range *rules {
			if r.Name == name {
				return i
			}
		}
		return -1
	}

	for _, c := range conflicts {
		if _, ok := removed[c.Rule1]; ok {
			continue
		}
		if _, ok := removed[c.Rule2]; ok {
			continue
		}

		switch strategy {
		case ResolveRemoveBoth:
			removed[c.Rule1] = struct{}{}
			removed[c.Rule2] = struct{}{}
		case ResolveKeepFirst:
			removed[c.Rule2] = struct{}{}
		case ResolveKeepSecond:
			removed[c.Rule1] = struct{}{}
		case ResolveKeepMoreSpecific:
			i1, i2 := byName(c.Rule1), byName(c.Rule2)
			if i1 >= 0 && i2 >= 0 && moreSpecific((*rules)[i1].ToolPattern, (*rules)[i2].ToolPattern) {
				removed[c.Rule2] = struct{}{}
			} else {
				removed[c.Rule1] = struct{}{}
			}
		case ResolveRename:
			if idx := byName(c.Rule2); idx >= 0 {
				(*rules)[idx].Name = c.Rule2 + "_conflict_resolved"
			}
		case ResolveKeepHigherPriority:
			fallthrough
		default:
			i1, i2 := byName(c.Rule1), byName(c.Rule2)
			if i1 >= 0 && i2 >= 0 {
				switch {
				case priorityRank((*rules)[i1].Priority) < priorityRank((*rules)[i2].Priority):
					removed[c.Rule2] = struct{}{}
				case priorityRank((*rules)[i2].Priority) < priorityRank((*rules)[i1].Priority):
					removed[c.Rule1] = struct{}{}
				default:
					removed[c.Rule2] = struct{}{}
				}
			}
		}
	}

	if len(removed) > 0 {
		filtered := (*rules)[:0:0]
		for _, r := range *rules {
			if _, gone := removed[r.Name]; gone {
				continue
			}
			filtered = append(filtered, r)
		}
		*rules = filtered
	}

	names := make([]string, 0, len(removed))
	for name := range removed {
		names = append(names, name)
	}
	return names
}
