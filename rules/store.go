// Package rules loads, layers, and hot-reloads permission rule sets from
// the agent's data directory and the project's own configuration.
package rules

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/Maximooch/penguin-go/permission"
)

const fileName = "permissions.json"

// ProjectConfigDir is the directory under a working directory that holds
// project-level configuration.
const ProjectConfigDir = ".penguin"

type ruleFile struct {
	Rules []permission.Rule `json:"rules"`
}

// Defaults is the agent-level baseline applied when no rules file exists:
// reads are allowed, everything that mutates or executes asks.
func Defaults() permission.RuleSet {
	return permission.RuleSet{
		{Kind: permission.KindRead, Pattern: "**", Action: permission.Allow, Source: permission.SourceAgent},
		{Kind: permission.KindWrite, Pattern: "**", Action: permission.Ask, Source: permission.SourceAgent},
		{Kind: permission.KindExecute, Pattern: "**", Action: permission.Ask, Source: permission.SourceAgent},
		{Kind: permission.KindNetwork, Pattern: "**", Action: permission.Ask, Source: permission.SourceAgent},
	}
}

// Store holds the three rule layers. Agent rules come from
// <dataDir>/permissions.json, project rules from
// <workDir>/.penguin/permissions.json, and session rules accumulate in
// memory from "always allow" answers. Later layers override earlier ones
// on pattern-length ties, so the merge order is agent, project, session.
type Store struct {
	agentPath   string
	projectPath string

	mu      sync.RWMutex
	agent   permission.RuleSet
	project permission.RuleSet
	session permission.RuleSet
}

// NewStore loads both rule files. A missing or corrupt agent file falls
// back to Defaults; a missing or corrupt project file contributes nothing.
func NewStore(dataDir, workDir string) *Store {
	s := &Store{
		agentPath:   filepath.Join(dataDir, fileName),
		projectPath: filepath.Join(workDir, ProjectConfigDir, fileName),
	}
	s.Reload()
	return s
}

// AgentPath returns the agent rule file location.
func (s *Store) AgentPath() string { return s.agentPath }

// ProjectPath returns the project rule file location.
func (s *Store) ProjectPath() string { return s.projectPath }

// Reload re-reads both rule files from disk. Session rules are untouched.
func (s *Store) Reload() {
	agent := loadRules(s.agentPath, permission.SourceAgent)
	if agent == nil {
		agent = Defaults()
	}
	project := loadRules(s.projectPath, permission.SourceAgent)

	s.mu.Lock()
	s.agent = agent
	s.project = project
	s.mu.Unlock()
}

// Merged returns the layered rule set in evaluation order.
func (s *Store) Merged() permission.RuleSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return permission.Merge(permission.Merge(s.agent, s.project), s.session)
}

// AddSessionRule appends an in-memory rule that lasts until the session
// ends. The source is forced to session so it wins ties against file rules.
func (s *Store) AddSessionRule(r permission.Rule) {
	r.Source = permission.SourceSession
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = append(s.session, r)
}

// ClearSessionRules drops all accumulated session rules.
func (s *Store) ClearSessionRules() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
}

// loadRules reads one rule file. Missing or malformed files yield nil so
// the caller can choose the fallback; a rules file must never take the
// engine down.
func loadRules(path string, source permission.Source) permission.RuleSet {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return nil
	}

	var f ruleFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil
	}

	rules := make(permission.RuleSet, 0, len(f.Rules))
	for _, r := range f.Rules {
		if r.Source == "" {
			r.Source = source
		}
		rules = append(rules, r)
	}
	return rules
}
