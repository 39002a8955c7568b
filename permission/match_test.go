package permission

import "testing"

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern string
		action  string
		want    bool
	}{
		// Exact and single-segment wildcards.
		{"bash", "bash", true},
		{"bash", "edit", false},
		{"bash/*", "bash/ls", true},
		{"bash/*", "bash/git status", true},
		{"bash/*", "bash/git/status", false},
		{"bash/git *", "bash/git status", true},
		{"bash/git *", "bash/rm -rf", false},
		{"rea?", "read", true},

		// Universal and subtree wildcards.
		{"**", "anything/at/all", true},
		{"bash/**", "bash/git status", true},
		{"bash/**", "bash/a/b/c", true},
		{"bash/**", "bash", true}, // ** matches zero segments
		{"bash/**", "edit/x", false},
		{"**/secrets", "a/b/secrets", true},
		{"**/secrets", "secrets", true},
		{"edit/**/main.go", "edit/src/cmd/main.go", true},
		{"edit/**/main.go", "edit/main.go", true},
		{"edit/**/main.go", "edit/src/other.go", false},

		// Malformed or unsupported patterns never match.
		{"", "bash", false},
		{"bash/[", "bash/x", false},
		{"a**b", "ab", false},
		{"**/a/**", "x/a/y", false},
	}

	for _, c := range cases {
		if got := MatchPattern(c.pattern, c.action); got != c.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", c.pattern, c.action, got, c.want)
		}
	}
}
