package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Maximooch/penguin-go/chat"
	"github.com/Maximooch/penguin-go/events"
	"github.com/Maximooch/penguin-go/logger"
	"github.com/Maximooch/penguin-go/project"
	"github.com/Maximooch/penguin-go/rules"
	"github.com/Maximooch/penguin-go/runtime"
	"github.com/Maximooch/penguin-go/tokenstream"
)

type session struct {
	events  *events.Client
	watcher *rules.Watcher
	runtime *runtime.Runtime
	chat    *chat.Client
}

func main() {
	serverURL := os.Getenv("PENGUIN_SERVER_URL")
	if serverURL == "" {
		serverURL = "http://127.0.0.1:8000"
	}

	dataDir := os.Getenv("PENGUIN_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot determine home directory:", err)
			os.Exit(1)
		}
		dataDir = filepath.Join(home, ".penguin")
	}

	workDir := os.Getenv("WORK_DIR")
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot determine working directory:", err)
			os.Exit(1)
		}
		workDir = wd
	}

	logger.Init(logger.Config{DataDir: dataDir, DevMode: os.Getenv("PENGUIN_DEV") != ""})
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "client crashed")
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	readyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := events.WaitReady(readyCtx, nil, serverURL); err != nil {
		slog.Error("server never became ready", "url", serverURL, "error", err)
		os.Exit(1)
	}

	registry := project.NewRegistry()
	defer func() {
		if err := registry.DisposeAll(); err != nil {
			slog.Error("shutdown left residue", "error", err)
		}
	}()

	var sess session
	_, err := registry.Provide(ctx, workDir, func(c *project.Context) error {
		return attach(ctx, c, &sess, serverURL, dataDir)
	})
	if err != nil {
		slog.Error("project attach failed", "dir", workDir, "error", err)
		os.Exit(1)
	}
	slog.Info("attached to project", "dir", workDir, "server", serverURL)

	if prompt := strings.Join(os.Args[1:], " "); prompt != "" {
		if err := sess.chat.Send(ctx, prompt); err != nil {
			slog.Error("prompt failed", "error", err)
			os.Exit(1)
		}
		// Let the final batch and completion land before exiting.
		time.Sleep(200 * time.Millisecond)
		return
	}

	<-ctx.Done()
	fmt.Fprintln(os.Stderr, "\nshutting down")
}

// attach wires one project's session: rules with hot reload, the event
// stream, the token batcher, and the permission runtime. Teardown is
// registered on the context so registry disposal unwinds everything.
func attach(ctx context.Context, c *project.Context, sess *session, serverURL, dataDir string) error {
	store := rules.NewStore(dataDir, c.WorkDir)
	watcher := rules.NewWatcher(store)
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("start rules watcher: %w", err)
	}
	c.OnDispose(func() error {
		watcher.Stop()
		return nil
	})

	batcher := tokenstream.NewBatcher(tokenstream.Config{},
		func(text string) { fmt.Print(text) },
		func() { fmt.Println() },
	)

	ev := events.NewClient(events.Config{
		BaseURL:   serverURL,
		Directory: c.WorkDir,
	})
	c.OnDispose(func() error {
		ev.Close()
		return nil
	})

	rt := runtime.New(runtime.Config{
		BaseURL:    serverURL,
		HTTPClient: &http.Client{},
		Project:    c,
		Rules:      store,
		Asker:      runtime.NewTerminalAsker(),
		Events:     ev,
		Batcher:    batcher,
	})
	rt.Attach()
	c.OnDispose(func() error {
		rt.Detach()
		return nil
	})

	if _, err := ev.Connect(ctx); err != nil {
		return fmt.Errorf("connect event stream: %w", err)
	}

	*sess = session{events: ev, watcher: watcher, runtime: rt, chat: chat.NewClient(serverURL, batcher)}
	return nil
}
