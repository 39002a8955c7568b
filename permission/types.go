// Package permission decides whether a tool invocation is allowed, denied,
// or requires interactive confirmation. The engine is pure: it performs no
// I/O and never prompts; callers own the interaction flow for Ask results.
package permission

// Kind classifies what a tool invocation wants to do.
type Kind string

const (
	KindRead    Kind = "read"
	KindWrite   Kind = "write"
	KindExecute Kind = "execute"
	KindNetwork Kind = "network"
)

// Action is the outcome a rule assigns to matching invocations.
type Action string

const (
	Allow Action = "allow"
	Deny  Action = "deny"
	Ask   Action = "ask"
)

// Source records which layer a rule came from. Session rules are merged
// after agent rules so they win ties.
type Source string

const (
	SourceAgent   Source = "agent"
	SourceSession Source = "session"
)

// Rule maps an action-name pattern to an outcome. An empty Kind applies to
// every permission kind.
type Rule struct {
	Kind    Kind   `json:"kind,omitempty"`
	Pattern string `json:"pattern"`
	Action  Action `json:"action"`
	Source  Source `json:"source,omitempty"`
}

func (r Rule) appliesTo(kind Kind) bool {
	return r.Kind == "" || r.Kind == kind
}

// RuleSet is an ordered list of rules. More specific patterns override
// more general ones; ties break in favor of the later rule.
type RuleSet []Rule

// Decision is the result of evaluating a ruleset against an action.
type Decision struct {
	Action Action
	// Rule is the matched rule, or nil when no rule matched and the
	// default (Ask) applied.
	Rule *Rule
}
