// Package runtime coordinates one project's session: it binds the event
// stream, the permission engine, and the token batcher to a project
// context and answers the server's permission requests.
package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Maximooch/penguin-go/events"
	"github.com/Maximooch/penguin-go/logger"
	"github.com/Maximooch/penguin-go/permission"
	"github.com/Maximooch/penguin-go/project"
	"github.com/Maximooch/penguin-go/rules"
	"github.com/Maximooch/penguin-go/tokenstream"
)

// Config assembles a runtime's collaborators.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Project    *project.Context
	Rules      *rules.Store
	Asker      Asker
	Events     *events.Client
	Batcher    *tokenstream.Batcher
}

// Runtime is the per-project coordination layer. Attach wires its handlers
// into the event stream; Detach removes them. A runtime is registered as a
// teardown hook on its project context so disposal detaches it.
type Runtime struct {
	cfg        Config
	httpClient *http.Client
	subs       []string
}

func New(cfg Config) *Runtime {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Runtime{cfg: cfg, httpClient: httpClient}
}

// Attach subscribes the runtime's handlers to the event stream.
func (rt *Runtime) Attach() {
	d := rt.cfg.Events.Dispatcher()

	rt.subs = append(rt.subs,
		d.Subscribe(events.KindPermissionUpdated, rt.onPermission),
		d.Subscribe(events.KindMessagePartUpdated, rt.onPart),
		d.Subscribe(events.KindSessionStatus, rt.onStatus),
		d.Subscribe(events.KindSessionError, rt.onError),
	)
}

// Detach removes the runtime's subscriptions and drops any buffered
// tokens.
func (rt *Runtime) Detach() {
	d := rt.cfg.Events.Dispatcher()
	for _, id := range rt.subs {
		d.Unsubscribe(id)
	}
	rt.subs = nil
	rt.cfg.Batcher.Cleanup()
}

func (rt *Runtime) onPermission(e events.Envelope) {
	var props events.PermissionProperties
	if err := e.DecodeProperties(&props); err != nil {
		slog.Warn("dropping malformed permission event", "error", err)
		return
	}
	// Prompting the user must not stall the event stream's flush.
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.LogPanic(r, "permission handler crashed", "id", props.ID)
			}
		}()
		if err := rt.HandlePermission(context.Background(), props); err != nil {
			slog.Error("permission reply failed", "id", props.ID, "error", err)
		}
	}()
}

func (rt *Runtime) onPart(e events.Envelope) {
	var props events.PartProperties
	if err := e.DecodeProperties(&props); err != nil {
		slog.Warn("dropping malformed part event", "error", err)
		return
	}
	if props.Delta != "" {
		rt.cfg.Batcher.ProcessToken(props.Delta)
	}
}

func (rt *Runtime) onStatus(e events.Envelope) {
	var props events.StatusProperties
	if err := e.DecodeProperties(&props); err != nil {
		return
	}
	if props.Status.Type == "idle" {
		rt.cfg.Batcher.Complete()
	}
}

func (rt *Runtime) onError(e events.Envelope) {
	var props events.ErrorProperties
	if err := e.DecodeProperties(&props); err != nil {
		return
	}
	rt.cfg.Batcher.Cleanup()
	slog.Error("session reported an error", "session", props.SessionID, "message", props.Message)
}

// HandlePermission evaluates a pending request against the merged rules
// and replies to the server. Requests the rules leave at ask go to the
// Asker; an always answer records a session rule per pattern before
// allowing.
func (rt *Runtime) HandlePermission(ctx context.Context, props events.PermissionProperties) error {
	log := logger.NewRequestLogger().With("permission", props.ID, "tool", props.Tool)

	patterns := props.Patterns
	if len(patterns) == 0 {
		patterns = []string{props.Tool}
	}

	action := rt.evaluate(permission.Kind(props.Kind), patterns)
	if action == permission.Ask {
		answer, err := rt.cfg.Asker.Ask(ctx, PermissionRequest{
			ID:       props.ID,
			Tool:     props.Tool,
			Kind:     props.Kind,
			Patterns: patterns,
			Title:    props.Title,
		})
		if err != nil {
			log.Warn("permission prompt failed, denying", "error", err)
			answer = AnswerDeny
		}
		switch answer {
		case AnswerAlwaysAllow:
			for _, p := range patterns {
				rt.cfg.Rules.AddSessionRule(permission.Rule{
					Kind:    permission.Kind(props.Kind),
					Pattern: p,
					Action:  permission.Allow,
				})
			}
			action = permission.Allow
		case AnswerAllow:
			action = permission.Allow
		default:
			action = permission.Deny
		}
	}

	reply := "deny"
	if action == permission.Allow {
		reply = "allow"
	}
	log.Info("replying to permission request", "reply", reply)
	return rt.reply(ctx, props.ID, reply)
}

// evaluate folds per-pattern decisions into one action: any deny denies,
// all allows allow, anything else asks.
func (rt *Runtime) evaluate(kind permission.Kind, patterns []string) permission.Action {
	merged := rt.cfg.Rules.Merged()

	allAllowed := true
	for _, p := range patterns {
		d := permission.Evaluate(kind, p, merged)
		switch d.Action {
		case permission.Deny:
			return permission.Deny
		case permission.Ask:
			allAllowed = false
		}
	}
	if allAllowed {
		return permission.Allow
	}
	return permission.Ask
}

// ToolContext describes a local tool invocation to gate before it runs.
type ToolContext struct {
	Tool     string
	Kind     permission.Kind
	Patterns []string // action patterns, e.g. "bash/git status"
	Paths    []string // filesystem paths the tool will touch
}

// CheckToolUse gates a local tool invocation. Paths outside the project
// deny immediately; rule decisions and user answers follow the same flow
// as server-sent requests. The returned error is a *PermissionDeniedError
// when the invocation was blocked.
func (rt *Runtime) CheckToolUse(ctx context.Context, tc ToolContext) error {
	for _, p := range tc.Paths {
		if !rt.cfg.Project.ContainsPath(p) {
			return &PermissionDeniedError{Tool: tc.Tool, Action: p, Pattern: "outside project"}
		}
	}

	patterns := tc.Patterns
	if len(patterns) == 0 {
		patterns = []string{tc.Tool}
	}

	merged := rt.cfg.Rules.Merged()
	needAsk := false
	for _, p := range patterns {
		d := permission.Evaluate(tc.Kind, p, merged)
		switch d.Action {
		case permission.Deny:
			deniedBy := ""
			if d.Rule != nil {
				deniedBy = d.Rule.Pattern
			}
			return &PermissionDeniedError{Tool: tc.Tool, Action: p, Pattern: deniedBy}
		case permission.Ask:
			needAsk = true
		}
	}
	if !needAsk {
		return nil
	}

	answer, err := rt.cfg.Asker.Ask(ctx, PermissionRequest{
		Tool:     tc.Tool,
		Kind:     string(tc.Kind),
		Patterns: patterns,
	})
	if err != nil {
		return fmt.Errorf("permission prompt: %w", err)
	}
	switch answer {
	case AnswerAlwaysAllow:
		for _, p := range patterns {
			rt.cfg.Rules.AddSessionRule(permission.Rule{
				Kind:    tc.Kind,
				Pattern: p,
				Action:  permission.Allow,
			})
		}
		return nil
	case AnswerAllow:
		return nil
	default:
		return &PermissionDeniedError{Tool: tc.Tool, Action: strings.Join(patterns, ", ")}
	}
}

func (rt *Runtime) reply(ctx context.Context, id, reply string) error {
	body, err := json.Marshal(map[string]string{"reply": reply})
	if err != nil {
		return err
	}

	replyURL := strings.TrimSuffix(rt.cfg.BaseURL, "/") + "/api/v1/permissions/" + id + "/reply"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, replyURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := rt.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("permission reply status %d", resp.StatusCode)
	}
	return nil
}
