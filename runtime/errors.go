package runtime

import "fmt"

// PermissionDeniedError reports a tool invocation blocked by a rule or by
// the user's answer. Callers match it with errors.As to distinguish policy
// denials from transport failures.
type PermissionDeniedError struct {
	Tool    string
	Action  string
	Pattern string // pattern of the denying rule, empty for a user denial
}

func (e *PermissionDeniedError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("permission denied for %s (%s): blocked by rule %q", e.Tool, e.Action, e.Pattern)
	}
	return fmt.Sprintf("permission denied for %s (%s)", e.Tool, e.Action)
}
