package policy

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Decision is the outcome of evaluating a tool invocation against the
// current rule set.
type Decision struct {
	Action      Action
	MatchedRule string // empty when the decision came from the default fallback
	Reason      string
}

// Engine evaluates (tool, args) against an ordered, priority-partitioned rule
// set and returns Allow/Deny/Ask with a matched rule name and rationale
// (spec §4.2). Rule reloads swap the whole rule slice atomically so readers
// never observe a partially-updated set.
type Engine struct {
	mu      sync.RWMutex
	rules   []*Rule // insertion order, already validated/compiled
	mode    DefaultMode
	log     *zap.SugaredLogger
}

// New constructs an Engine with the given default fallback mode and no
// rules loaded.
func New(mode DefaultMode, opts ...Option) *Engine {
	e := &Engine{mode: mode, log: zap.NewNop().Sugar()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger attaches a logger; the default is a no-op logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Engine) { e.log = l }
}

// Load replaces the rule set. A rule whose glob/regex fails to compile is
// dropped with a warning rather than invalidating the whole policy (spec
// §4.2 "Failure semantics"). Load returns the names of dropped rules.
func (e *Engine) Load(rules []Rule) (dropped []string) {
	compiled := make([]*Rule, 0, len(rules))
	for i := range rules {
		r := rules[i]
		if err := r.compile(); err != nil {
			dropped = append(dropped, r.Name)
			e.log.Warnw("dropping invalid policy rule", "rule", r.Name, "error", err)
			continue
		}
		compiled = append(compiled, &r)
	}

	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()
	return dropped
}

// SetDefaultMode changes the fallback mode applied when no rule matches.
func (e *Engine) SetDefaultMode(mode DefaultMode) {
	e.mu.Lock()
	e.mode = mode
	e.mu.Unlock()
}

// priorityRank orders priority classes so Admin sorts before User sorts
// before Default, independent of how Priority's underlying int is defined.
func priorityRank(p Priority) int {
	switch p {
	case PriorityAdmin:
		return 0
	case PriorityUser:
		return 1
	default:
		return 2
	}
}

// Evaluate decides Allow/Deny/Ask for a candidate tool invocation. It is a
// pure function of (tool, args, loaded rules, default mode): repeated calls
// with the same inputs return the same Decision (spec §8 property 7).
//
// Rules are evaluated grouped by priority class in the fixed order
// Admin > User > Default. Within a class, rules are tried in insertion
// order and the first match wins; a match in a higher class always
// preempts a later class, even if a lower-class rule appears first in the
// raw insertion order.
func (e *Engine) Evaluate(toolName string, args []string) Decision {
	e.mu.RLock()
	rules := e.rules
	mode := e.mode
	e.mu.RUnlock()

	byClass := make(map[int][]*Rule, 3)
	for _, r := range rules {
		rank := priorityRank(r.Priority)
		byClass[rank] = append(byClass[rank], r)
	}

	for rank := 0; rank <= 2; rank++ {
		for _, r := range byClass[rank] {
			if r.matches(toolName, args) {
				reason := r.Reason
				if reason == "" {
					reason = fmt.Sprintf("matched rule %q (%s priority)", r.Name, r.Priority)
				}
				return Decision{Action: r.Action, MatchedRule: r.Name, Reason: reason}
			}
		}
	}

	return e.defaultDecision(toolName, mode)
}

func (e *Engine) defaultDecision(toolName string, mode DefaultMode) Decision {
	switch mode {
	case ModeYolo:
		return Decision{Action: ActionAllow, Reason: "default mode yolo: auto-allow"}
	case ModeAutoEdit:
		if isReadOnlyTool(toolName) {
			return Decision{Action: ActionAllow, Reason: "default mode autoEdit: read-only tool allowed"}
		}
		return Decision{Action: ActionAsk, Reason: "default mode autoEdit: non-read tool requires confirmation"}
	default: // ModeAsk and unset
		return Decision{Action: ActionAsk, Reason: "default mode ask: no matching rule"}
	}
}

// isReadOnlyTool is a conservative heuristic: tools are treated as read-only
// when their name starts with a conventional read/list/get/describe prefix.
func isReadOnlyTool(toolName string) bool {
	for _, prefix := range []string{"read_", "list_", "get_", "describe_", "search_"} {
		if len(toolName) >= len(prefix) && toolName[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// Rules returns a snapshot of the currently loaded rules, ordered by
// priority class then insertion order (the order Evaluate consults them).
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, 0, len(e.rules))
	indexed := append([]*Rule(nil), e.rules...)
	sort.SliceStable(indexed, func(i, j int) bool {
		return priorityRank(indexed[i].Priority) < priorityRank(indexed[j].Priority)
	})
	for _, r := range indexed {
		out = append(out, *r)
	}
	return out
}
