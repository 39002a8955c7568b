package events

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Maximooch/penguin-go/backoff"
)

// ErrClosed is returned by Connect on a client that has been closed.
var ErrClosed = errors.New("events: client closed")

const defaultCoalesceWindow = 16 * time.Millisecond

// Config configures a stream client.
type Config struct {
	// BaseURL is the server root, e.g. "http://127.0.0.1:8000".
	BaseURL string
	// Directory scopes the subscription to one project directory.
	Directory string
	// SessionID optionally narrows the subscription to one session.
	SessionID string
	// CoalesceWindow bounds how long an arrived event may wait before
	// its batch is flushed. Zero selects the 16ms default.
	CoalesceWindow time.Duration
	// Backoff governs reconnect pacing. A zero value selects the
	// default policy.
	Backoff backoff.Policy
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client maintains a subscription to the server's event stream. Events are
// coalesced into batches: an event arriving after a quiet period flushes
// immediately, while events arriving inside the window ride the pending
// batch and flush together when the window closes.
type Client struct {
	cfg        Config
	httpClient *http.Client
	dispatcher *Dispatcher

	// dispatchMu serializes flushes so subscribers see batches one at a
	// time. Acquired before mu, never the other way around.
	dispatchMu sync.Mutex

	mu         sync.Mutex
	pending    []Envelope
	flushTimer *time.Timer
	lastFlush  time.Time
	closed     bool
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewClient(cfg Config) *Client {
	if cfg.CoalesceWindow <= 0 {
		cfg.CoalesceWindow = defaultCoalesceWindow
	}
	if cfg.Backoff == (backoff.Policy{}) {
		cfg.Backoff = backoff.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		dispatcher: NewDispatcher(),
	}
}

// Dispatcher exposes the client's subscription surface.
func (c *Client) Dispatcher() *Dispatcher { return c.dispatcher }

// Connect starts the stream in the background. It reconnects with backoff
// until ctx is done, the client is closed, or the backoff policy is
// exhausted. The returned channel closes when the read loop exits.
func (c *Client) Connect(ctx context.Context) (<-chan struct{}, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.done != nil {
		c.mu.Unlock()
		return nil, errors.New("events: already connected")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	go c.readLoop(ctx, done)
	return done, nil
}

// Close tears the stream down. Pending events that have not flushed are
// dropped; already dispatched batches are unaffected.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}
	c.pending = nil
	done := c.done
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (c *Client) readLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		received, err := c.consume(ctx)
		if received {
			attempt = 0
		}
		if ctx.Err() != nil {
			return
		}

		attempt++
		if c.cfg.Backoff.Exhausted(attempt) {
			slog.Error("event stream gave up reconnecting", "attempts", attempt, "error", err)
			return
		}
		delay := c.cfg.Backoff.Delay(attempt)
		slog.Warn("event stream disconnected, retrying", "attempt", attempt, "delay", delay, "error", err)
		if err := backoff.Sleep(ctx, delay); err != nil {
			return
		}
	}
}

// consume opens one SSE connection and parses records until it breaks.
// It reports whether at least one event was received, which resets the
// reconnect backoff.
func (c *Client) consume(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.streamURL(), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return false, fmt.Errorf("event stream status %d", resp.StatusCode)
	}

	received := false
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			// Record terminator; data lines are self-contained.
		case strings.HasPrefix(line, ":"):
			// Keepalive comment.
		case strings.HasPrefix(line, "data:"):
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			var e Envelope
			if err := json.Unmarshal([]byte(payload), &e); err != nil {
				slog.Warn("dropping malformed event record", "error", err)
				continue
			}
			received = true
			c.enqueue(e)
		}
	}
	if err := scanner.Err(); err != nil {
		return received, err
	}
	return received, io.EOF
}

func (c *Client) streamURL() string {
	q := url.Values{}
	q.Set("directory", c.cfg.Directory)
	if c.cfg.SessionID != "" {
		q.Set("session_id", c.cfg.SessionID)
	}
	return strings.TrimSuffix(c.cfg.BaseURL, "/") + "/api/v1/events/sse?" + q.Encode()
}

func (c *Client) enqueue(e Envelope) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, e)
	if c.flushTimer == nil {
		if time.Since(c.lastFlush) >= c.cfg.CoalesceWindow {
			c.mu.Unlock()
			c.flush()
			return
		}
		c.flushTimer = time.AfterFunc(c.cfg.CoalesceWindow, c.flush)
	}
	c.mu.Unlock()
}

func (c *Client) flush() {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}
	c.lastFlush = time.Now()
	c.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	c.dispatcher.dispatch(batch)
}
