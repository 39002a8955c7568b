// Package chat drives prompt turns over the server's streaming websocket
// and feeds the resulting tokens into a batcher.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/Maximooch/penguin-go/tokenstream"
)

// clientMessage is the frame sent to start a turn.
type clientMessage struct {
	Text      string `json:"text"`
	Streaming bool   `json:"streaming"`
}

// serverFrame is one streamed frame from the server.
type serverFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type tokenData struct {
	Token string `json:"token"`
}

type progressData struct {
	Phase string `json:"phase"`
}

type errorData struct {
	Message string `json:"message"`
}

// Client sends prompts over the chat websocket. Each Send dials a fresh
// connection, streams one turn to completion, and closes.
type Client struct {
	baseURL string
	batcher *tokenstream.Batcher
	// OnProgress, when set, receives phase updates (thinking, tool use)
	// emitted between tokens.
	OnProgress func(phase string)
}

func NewClient(baseURL string, batcher *tokenstream.Batcher) *Client {
	return &Client{baseURL: baseURL, batcher: batcher}
}

// Send streams one prompt turn. Tokens flow into the batcher as they
// arrive; the batcher's completion fires after the final flush. A server
// error or a broken connection discards buffered tokens and returns the
// error.
func (c *Client) Send(ctx context.Context, prompt string) error {
	conn, _, err := websocket.Dial(ctx, c.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("dial chat stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	msg, err := json.Marshal(clientMessage{Text: prompt, Streaming: true})
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return fmt.Errorf("send prompt: %w", err)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.batcher.Cleanup()
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return errors.New("chat stream closed before completion")
			}
			return fmt.Errorf("read chat stream: %w", err)
		}

		var frame serverFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("dropping malformed chat frame", "error", err)
			continue
		}

		switch frame.Event {
		case "start":
			// Turn acknowledged; tokens follow.
		case "token":
			var d tokenData
			if err := json.Unmarshal(frame.Data, &d); err != nil {
				slog.Warn("dropping malformed token frame", "error", err)
				continue
			}
			c.batcher.ProcessToken(d.Token)
		case "progress":
			if c.OnProgress == nil {
				continue
			}
			var d progressData
			if err := json.Unmarshal(frame.Data, &d); err != nil {
				continue
			}
			c.OnProgress(d.Phase)
		case "complete":
			c.batcher.Complete()
			return nil
		case "error":
			c.batcher.Cleanup()
			var d errorData
			if err := json.Unmarshal(frame.Data, &d); err != nil || d.Message == "" {
				return errors.New("chat stream failed")
			}
			return fmt.Errorf("chat stream failed: %s", d.Message)
		default:
			slog.Debug("ignoring unknown chat frame", "event", frame.Event)
		}
	}
}

func (c *Client) streamURL() string {
	base := strings.TrimSuffix(c.baseURL, "/")
	if u, err := url.Parse(base); err == nil {
		switch u.Scheme {
		case "http":
			u.Scheme = "ws"
			base = u.String()
		case "https":
			u.Scheme = "wss"
			base = u.String()
		}
	}
	return base + "/api/v1/chat/stream"
}
