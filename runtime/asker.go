package runtime

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Answer is a user's response to a permission prompt.
type Answer int

const (
	AnswerDeny Answer = iota
	AnswerAllow
	AnswerAlwaysAllow
)

// PermissionRequest describes a pending permission decision surfaced to
// the user.
type PermissionRequest struct {
	ID       string
	Tool     string
	Kind     string
	Patterns []string
	Title    string
}

// Asker resolves permission requests the rule engine left at ask.
type Asker interface {
	Ask(ctx context.Context, req PermissionRequest) (Answer, error)
}

// TerminalAsker prompts on the controlling terminal with a single
// keypress: y allows once, a allows for the rest of the session, anything
// else denies. A non-interactive stdin denies without prompting.
type TerminalAsker struct {
	In  *os.File
	Out io.Writer
}

func NewTerminalAsker() *TerminalAsker {
	return &TerminalAsker{In: os.Stdin, Out: os.Stderr}
}

func (a *TerminalAsker) Ask(ctx context.Context, req PermissionRequest) (Answer, error) {
	title := req.Title
	if title == "" {
		title = req.Tool
	}
	fmt.Fprintf(a.Out, "\n%s\n", title)
	for _, p := range req.Patterns {
		fmt.Fprintf(a.Out, "  %s\n", p)
	}
	fmt.Fprint(a.Out, "Allow? [y]es / [n]o / [a]lways: ")

	fd := int(a.In.Fd())
	if !term.IsTerminal(fd) {
		fmt.Fprintln(a.Out, "n (not a terminal)")
		return AnswerDeny, nil
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return AnswerDeny, err
	}
	defer term.Restore(fd, oldState)

	key := make(chan byte, 1)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		if _, err := a.In.Read(buf); err != nil {
			readErr <- err
			return
		}
		key <- buf[0]
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(a.Out)
		return AnswerDeny, ctx.Err()
	case err := <-readErr:
		fmt.Fprintln(a.Out)
		return AnswerDeny, err
	case b := <-key:
		fmt.Fprintf(a.Out, "%c\r\n", b)
		switch b {
		case 'y', 'Y':
			return AnswerAllow, nil
		case 'a', 'A':
			return AnswerAlwaysAllow, nil
		default:
			return AnswerDeny, nil
		}
	}
}
