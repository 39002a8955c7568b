package permission

// Evaluate scans rules for matches against the action name, considering
// only rules applicable to kind. The most specific (longest) matching
// pattern wins; ties break in favor of the later rule, so session rules
// override agent rules after Merge. With no match the decision is Ask.
func Evaluate(kind Kind, action string, rules RuleSet) Decision {
	best := -1
	bestLen := -1
	for i, r := range rules {
		if !r.appliesTo(kind) {
			continue
		}
		if !MatchPattern(r.Pattern, action) {
			continue
		}
		if len(r.Pattern) >= bestLen {
			best = i
			bestLen = len(r.Pattern)
		}
	}

	if best < 0 {
		return Decision{Action: Ask}
	}
	matched := rules[best]
	return Decision{Action: matched.Action, Rule: &matched}
}

// Merge concatenates the two rulesets with session rules appended after
// agent rules, so session overrides win Evaluate's tie-break.
func Merge(agent, session RuleSet) RuleSet {
	merged := make(RuleSet, 0, len(agent)+len(session))
	merged = append(merged, agent...)
	merged = append(merged, session...)
	return merged
}

// Disabled reports which of the given tool ids are denied outright. Each
// tool is probed with its bare id, so a rule denying the whole tool
// subtree ("bash" or "bash/**") disables the tool while a rule scoped to
// specific arguments ("bash/rm *") does not.
func Disabled(kind Kind, toolIDs []string, rules RuleSet) map[string]bool {
	disabled := make(map[string]bool)
	for _, id := range toolIDs {
		if Evaluate(kind, id, rules).Action == Deny {
			disabled[id] = true
		}
	}
	return disabled
}
