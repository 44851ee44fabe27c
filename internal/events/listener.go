// Package events consumes the product's WebSocket stream: terminal frames,
// agent output, preview updates and chat messages. Events are buffered so a
// flow can assert on payloads that arrived before the assertion ran.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"flowcheck/internal/entity"
)

var ErrClosed = errors.New("event stream closed")

const maxBuffered = 4096

type Listener struct {
	conn *websocket.Conn
	log  *zap.Logger

	mu      sync.Mutex
	events  []entity.Event
	changed chan struct{}
	err     error

	writeMu sync.Mutex
}

// Dial connects to the socket endpoint. The token is sent both as a query
// parameter and a bearer header; deployments have accepted either.
func Dial(ctx context.Context, wsURL, token string, log *zap.Logger) (*Listener, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse ws url: %w", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("ws dial %s: status %d: %w", wsURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("ws dial %s: %w", wsURL, err)
	}

	l := &Listener{
		conn:    conn,
		log:     log,
		changed: make(chan struct{}),
	}
	go l.readLoop()
	return l, nil
}

func (l *Listener) readLoop() {
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			l.mu.Lock()
			l.err = fmt.Errorf("%w: %v", ErrClosed, err)
			close(l.changed)
			l.changed = nil
			l.mu.Unlock()
			return
		}

		var ev entity.Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
			l.log.Debug("ignoring unparseable frame", zap.ByteString("frame", data))
			continue
		}
		ev.ReceivedAt = time.Now()

		l.mu.Lock()
		l.events = append(l.events, ev)
		if len(l.events) > maxBuffered {
			l.events = l.events[len(l.events)-maxBuffered:]
		}
		if l.changed != nil {
			close(l.changed)
			l.changed = make(chan struct{})
		}
		l.mu.Unlock()
	}
}

// Events returns a copy of everything received so far.
func (l *Listener) Events() []entity.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]entity.Event, len(l.events))
	copy(out, l.events)
	return out
}

// Send writes a JSON frame to the socket (used by chat flows).
func (l *Listener) Send(v any) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("ws send: %w", err)
	}
	return nil
}

// SendChat sends a chat-message frame.
func (l *Listener) SendChat(text string) error {
	return l.Send(map[string]string{
		"type": string(entity.EventChatMessage),
		"data": text,
	})
}

// WaitFor returns the first event (past or future) matching the predicate.
// It blocks until a match, ctx cancellation, or stream close.
func (l *Listener) WaitFor(ctx context.Context, pred func(entity.Event) bool) (entity.Event, error) {
	seen := 0
	for {
		l.mu.Lock()
		for ; seen < len(l.events); seen++ {
			if pred(l.events[seen]) {
				ev := l.events[seen]
				l.mu.Unlock()
				return ev, nil
			}
		}
		changed := l.changed
		streamErr := l.err
		l.mu.Unlock()

		if streamErr != nil {
			return entity.Event{}, streamErr
		}

		select {
		case <-ctx.Done():
			return entity.Event{}, fmt.Errorf("waiting for event: %w", ctx.Err())
		case <-changed:
		}
	}
}

// WaitType waits for the next event of the given type.
func (l *Listener) WaitType(ctx context.Context, typ entity.EventType) (entity.Event, error) {
	return l.WaitFor(ctx, func(ev entity.Event) bool {
		return ev.Type == typ
	})
}

// WaitTerminalOutput waits for a terminal_output frame for the agent whose
// text contains the substring. An empty agentID matches any agent.
func (l *Listener) WaitTerminalOutput(ctx context.Context, agentID, substring string) (entity.Event, error) {
	return l.WaitFor(ctx, func(ev entity.Event) bool {
		if ev.Type != entity.EventTerminalOutput {
			return false
		}
		if agentID != "" && ev.AgentID != agentID {
			return false
		}
		return strings.Contains(ev.Text(), substring)
	})
}

func (l *Listener) Close() {
	l.writeMu.Lock()
	_ = l.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	l.writeMu.Unlock()
	_ = l.conn.Close()
}
