package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Maximooch/penguin-go/permission"
)

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestWatcher_ReloadsOnFileChange(t *testing.T) {
	dataDir := t.TempDir()
	agentPath := filepath.Join(dataDir, fileName)
	writeRules(t, agentPath, `{"rules":[{"kind":"execute","pattern":"bash/**","action":"ask"}]}`)

	s := NewStore(dataDir, t.TempDir())
	w := NewWatcher(s)
	changed := make(chan struct{}, 4)
	w.OnChange(func() { changed <- struct{}{} })
	if err := w.Start(); err != nil {
		t.Fatalf("watcher start failed: %v", err)
	}
	defer w.Stop()

	writeRules(t, agentPath, `{"rules":[{"kind":"execute","pattern":"bash/**","action":"deny"}]}`)
	waitFor(t, changed, "rules reload")

	d := permission.Evaluate(permission.KindExecute, "bash/ls", s.Merged())
	if d.Action != permission.Deny {
		t.Errorf("expected reloaded Deny, got %s", d.Action)
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dataDir := t.TempDir()
	s := NewStore(dataDir, t.TempDir())
	w := NewWatcher(s)
	changed := make(chan struct{}, 4)
	w.OnChange(func() { changed <- struct{}{} })
	if err := w.Start(); err != nil {
		t.Fatalf("watcher start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dataDir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
		t.Error("unrelated file must not trigger a reload")
	case <-time.After(250 * time.Millisecond):
	}
}

func TestWatcher_ProjectFileHotReloads(t *testing.T) {
	dataDir := t.TempDir()
	workDir := t.TempDir()
	projectDir := filepath.Join(workDir, ProjectConfigDir)
	if err := os.MkdirAll(projectDir, 0755); err != nil {
		t.Fatal(err)
	}

	s := NewStore(dataDir, workDir)
	w := NewWatcher(s)
	changed := make(chan struct{}, 4)
	w.OnChange(func() { changed <- struct{}{} })
	if err := w.Start(); err != nil {
		t.Fatalf("watcher start failed: %v", err)
	}
	defer w.Stop()

	writeRules(t, filepath.Join(projectDir, fileName),
		`{"rules":[{"kind":"execute","pattern":"bash/make *","action":"allow"}]}`)
	waitFor(t, changed, "project rules reload")

	d := permission.Evaluate(permission.KindExecute, "bash/make test", s.Merged())
	if d.Action != permission.Allow {
		t.Errorf("expected project rule after hot reload, got %s", d.Action)
	}
}
