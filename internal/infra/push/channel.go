package push

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// State describes a channel's connection lifecycle.
type State int32

const (
	// StateConnecting is the initial state and every reconnect attempt.
	StateConnecting State = iota
	// StateOpen means frames are flowing.
	StateOpen
	// StateClosed means the channel was shut down deliberately.
	StateClosed
	// StateDead means the reconnect schedule was exhausted; the channel
	// stays down until the conversation is reopened.
	StateDead
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateDead:
		return "dead"
	}
	return "unknown"
}

// Config carries the settings shared by all push channels.
type Config struct {
	APIBaseURL   string
	SessionToken string
	// Backoff is the bounded reconnect schedule. Empty means a single
	// connection attempt with no retry.
	Backoff []time.Duration
	// OnState, when set, is invoked on every state transition. Called
	// from the channel's goroutine; must not block.
	OnState func(State)
}

// Channel is one push connection for a single conversation. Events
// arrive on Events; the channel is closed when the connection dies for
// good or Close is called.
type Channel struct {
	events chan Event
	send   chan []byte
	cancel context.CancelFunc
	state  atomic.Int32
	cfg    Config
	logger *slog.Logger
}

// OpenConversation derives the push endpoint for a conversation and
// starts the connection loop. The returned channel owns its goroutines;
// callers must Close it on conversation switch or shutdown.
func OpenConversation(ctx context.Context, cfg Config, conversationID string, logger *slog.Logger) (*Channel, error) {
	endpoint, err := endpointURL(cfg.APIBaseURL, "/ws/conversations/"+conversationID+"/", cfg.SessionToken)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	ch := &Channel{
		events: make(chan Event, 64),
		send:   make(chan []byte, 16),
		cancel: cancel,
		cfg:    cfg,
		logger: logger,
	}
	go ch.run(runCtx, endpoint)
	return ch, nil
}

// Events delivers decoded push events. The channel closes when the
// connection is closed or dead.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// State reports the current connection state.
func (c *Channel) State() State {
	return State(c.state.Load())
}

// SendTyping queues an outbound typing signal. Dropped silently when the
// connection is down or the queue is full; typing is best-effort.
func (c *Channel) SendTyping() {
	if c.State() != StateOpen {
		return
	}
	select {
	case c.send <- []byte(`{"event":"typing"}`):
	default:
	}
}

// Close tears the connection down and closes Events.
func (c *Channel) Close() {
	c.cancel()
}

func (c *Channel) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	if c.cfg.OnState != nil {
		c.cfg.OnState(s)
	}
}

func (c *Channel) run(ctx context.Context, endpoint string) {
	defer close(c.events)
	attempt := 0
	for {
		c.setState(StateConnecting)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateClosed)
				return
			}
			if attempt >= len(c.cfg.Backoff) {
				c.logger.Warn("push channel gave up", "attempts", attempt, "error", err)
				c.setState(StateDead)
				return
			}
			delay := c.cfg.Backoff[attempt]
			attempt++
			c.logger.Info("push connect failed, retrying", "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				c.setState(StateClosed)
				return
			case <-time.After(delay):
			}
			continue
		}

		c.setState(StateOpen)
		attempt = 0
		connCtx, connCancel := context.WithCancel(ctx)
		writerDone := make(chan struct{})
		go c.writePump(connCtx, conn, writerDone)
		err = c.readPump(ctx, conn)
		connCancel()
		conn.Close()
		<-writerDone
		if ctx.Err() != nil {
			c.setState(StateClosed)
			return
		}
		c.logger.Info("push connection lost", "error", err)
	}
}

// readPump reads frames until the connection fails. Non-JSON frames are
// ignored outright; unknown event tags are logged and skipped.
func (c *Channel) readPump(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		event, err := DecodeEvent(raw)
		if err != nil {
			if errors.Is(err, ErrUnknownEvent) {
				c.logger.Warn("push event skipped", "error", err)
			}
			continue
		}
		select {
		case c.events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// writePump serializes outbound frames onto the connection so no two
// goroutines write concurrently.
func (c *Channel) writePump(ctx context.Context, conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.send:
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}
}
