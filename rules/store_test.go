package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Maximooch/penguin-go/permission"
)

func writeRules(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestNewStore_MissingFilesUseDefaults(t *testing.T) {
	s := NewStore(t.TempDir(), t.TempDir())

	merged := s.Merged()
	if len(merged) != len(Defaults()) {
		t.Fatalf("expected default rules only, got %d rules", len(merged))
	}

	// The baseline allows reads and asks for executes.
	if d := permission.Evaluate(permission.KindRead, "read/main.go", merged); d.Action != permission.Allow {
		t.Errorf("expected default read Allow, got %s", d.Action)
	}
	if d := permission.Evaluate(permission.KindExecute, "bash/ls", merged); d.Action != permission.Ask {
		t.Errorf("expected default execute Ask, got %s", d.Action)
	}
}

func TestNewStore_CorruptAgentFileFallsBack(t *testing.T) {
	dataDir := t.TempDir()
	writeRules(t, filepath.Join(dataDir, fileName), "{not json")

	s := NewStore(dataDir, t.TempDir())
	if len(s.Merged()) != len(Defaults()) {
		t.Error("corrupt agent file must fall back to defaults")
	}
}

func TestStore_ProjectRulesComeAfterAgentRules(t *testing.T) {
	dataDir := t.TempDir()
	workDir := t.TempDir()
	writeRules(t, filepath.Join(dataDir, fileName),
		`{"rules":[{"kind":"execute","pattern":"bash/**","action":"deny"}]}`)
	writeRules(t, filepath.Join(workDir, ProjectConfigDir, fileName),
		`{"rules":[{"kind":"execute","pattern":"bash/**","action":"allow"}]}`)

	s := NewStore(dataDir, workDir)

	// Same pattern length: the later layer wins.
	d := permission.Evaluate(permission.KindExecute, "bash/go test", s.Merged())
	if d.Action != permission.Allow {
		t.Errorf("project rule must override the agent rule, got %s", d.Action)
	}
}

func TestStore_SessionRulesWinTies(t *testing.T) {
	dataDir := t.TempDir()
	writeRules(t, filepath.Join(dataDir, fileName),
		`{"rules":[{"kind":"execute","pattern":"bash/git *","action":"ask"}]}`)

	s := NewStore(dataDir, t.TempDir())
	s.AddSessionRule(permission.Rule{
		Kind:    permission.KindExecute,
		Pattern: "bash/git *",
		Action:  permission.Allow,
	})

	d := permission.Evaluate(permission.KindExecute, "bash/git status", s.Merged())
	if d.Action != permission.Allow {
		t.Errorf("session rule must win the tie, got %s", d.Action)
	}
	if d.Rule == nil || d.Rule.Source != permission.SourceSession {
		t.Error("expected the session rule to be the matched rule")
	}

	s.ClearSessionRules()
	if d := permission.Evaluate(permission.KindExecute, "bash/git status", s.Merged()); d.Action != permission.Ask {
		t.Errorf("cleared session rules must restore the file decision, got %s", d.Action)
	}
}

func TestStore_ReloadKeepsSessionRules(t *testing.T) {
	dataDir := t.TempDir()
	s := NewStore(dataDir, t.TempDir())
	s.AddSessionRule(permission.Rule{Pattern: "bash/echo *", Action: permission.Allow})

	writeRules(t, filepath.Join(dataDir, fileName),
		`{"rules":[{"kind":"execute","pattern":"bash/**","action":"deny"}]}`)
	s.Reload()

	d := permission.Evaluate(permission.KindExecute, "bash/echo hi", s.Merged())
	if d.Action != permission.Allow {
		t.Errorf("session rule must survive a reload, got %s", d.Action)
	}
}
