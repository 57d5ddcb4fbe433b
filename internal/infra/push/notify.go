package push

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Notifier is the one session-wide push connection. It carries no typed
// payloads: every readable frame is a generic "something changed" nudge
// used to refresh the conversation list. While the notifier is open the
// list syncer suspends polling; when it dies, polling resumes.
type Notifier struct {
	changes   chan struct{}
	cancel    context.CancelFunc
	connected atomic.Bool
	cfg       Config
	logger    *slog.Logger
}

// OpenNotifier starts the session channel connection loop.
func OpenNotifier(ctx context.Context, cfg Config, logger *slog.Logger) (*Notifier, error) {
	endpoint, err := endpointURL(cfg.APIBaseURL, "/ws/notifications/", cfg.SessionToken)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	n := &Notifier{
		changes: make(chan struct{}, 1),
		cancel:  cancel,
		cfg:     cfg,
		logger:  logger,
	}
	go n.run(runCtx, endpoint)
	return n, nil
}

// Changes delivers refresh nudges, coalesced to at most one pending.
// The channel closes when the notifier is closed or gives up.
func (n *Notifier) Changes() <-chan struct{} {
	return n.changes
}

// Connected reports whether the session channel is currently open.
func (n *Notifier) Connected() bool {
	return n.connected.Load()
}

// Close tears the connection down.
func (n *Notifier) Close() {
	n.cancel()
}

func (n *Notifier) run(ctx context.Context, endpoint string) {
	defer close(n.changes)
	attempt := 0
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if attempt >= len(n.cfg.Backoff) {
				n.logger.Warn("notification channel gave up, polling takes over", "attempts", attempt, "error", err)
				return
			}
			delay := n.cfg.Backoff[attempt]
			attempt++
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		n.connected.Store(true)
		attempt = 0
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
			// Coalesce: one pending nudge is as good as many.
			select {
			case n.changes <- struct{}{}:
			default:
			}
		}
		conn.Close()
		n.connected.Store(false)
		if ctx.Err() != nil {
			return
		}
		n.logger.Info("notification connection lost")
	}
}
