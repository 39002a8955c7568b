// Package project owns the per-directory execution contexts that scope a
// session's event stream, permission rules, and token batching.
package project

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Metadata describes the project rooted at a context's working directory.
type Metadata struct {
	Name    string
	Markers []string // detected project markers (go.mod, package.json, ...)
}

// Context bundles an absolute working directory with its resolved worktree
// root and project metadata. The registry guarantees at most one live
// Context per directory; all callers share the same pointer until Dispose.
type Context struct {
	WorkDir string
	// WorktreeRoot is the top-level boundary of the directory's
	// version-control tree. Empty when the directory is not versioned;
	// an empty root never participates in containment checks.
	WorktreeRoot string
	Meta         Metadata
	CreatedAt    time.Time

	mu       sync.Mutex
	teardown []func() error
}

// OnDispose registers fn to run when the context is disposed. Hooks run in
// registration order; each error is collected without stopping the rest.
func (c *Context) OnDispose(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardown = append(c.teardown, fn)
}

func (c *Context) runTeardown() []error {
	c.mu.Lock()
	hooks := c.teardown
	c.teardown = nil
	c.mu.Unlock()

	var errs []error
	for _, fn := range hooks {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// ContainsPath reports whether path lies within the context's working
// directory or its worktree root. When the worktree root is the empty
// sentinel (non-versioned project) or the filesystem root, only the
// working-directory check applies. A degenerate worktree value must not
// grant access to arbitrary absolute paths.
func (c *Context) ContainsPath(path string) bool {
	if within(c.WorkDir, path) {
		return true
	}
	root := c.WorktreeRoot
	if root == "" || root == string(filepath.Separator) {
		return false
	}
	return within(root, path)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func newContext(dir string) (*Context, error) {
	abs, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &os.PathError{Op: "provide", Path: abs, Err: os.ErrInvalid}
	}

	return &Context{
		WorkDir:      abs,
		WorktreeRoot: resolveWorktreeRoot(abs),
		Meta:         resolveMetadata(abs),
		CreatedAt:    time.Now(),
	}, nil
}

// resolveWorktreeRoot asks git for the top-level directory. A non-versioned
// directory (or a root answer, which would make containment match-all)
// yields the empty sentinel.
func resolveWorktreeRoot(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	root := strings.TrimSpace(string(out))
	if root == "" || root == string(filepath.Separator) {
		return ""
	}
	return root
}

var projectMarkers = []string{"go.mod", "package.json", "pyproject.toml", "Cargo.toml", ".git"}

func resolveMetadata(dir string) Metadata {
	meta := Metadata{Name: filepath.Base(dir)}
	for _, marker := range projectMarkers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			meta.Markers = append(meta.Markers, marker)
		}
	}
	return meta
}
