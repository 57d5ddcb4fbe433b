package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"marketchat/internal/app/inbox"
	"marketchat/internal/app/thread"
	"marketchat/internal/app/viewport"
	"marketchat/internal/domain/chat"
	"marketchat/internal/infra/api"
	"marketchat/internal/infra/config"
	"marketchat/internal/infra/push"
	"marketchat/internal/infra/state"
	"marketchat/internal/infra/term"
)

// windowRows is the nominal message-window extent used by the scroll
// policy; each message counts as one unit.
const windowRows = 24

// session wires the messaging core into one interactive terminal run.
type session struct {
	cfg    config.Config
	logger *slog.Logger
	client *api.Client
	store  *state.Store
	render *term.Renderer
	engine *thread.Engine
	view   *viewport.Viewport
	typing *thread.TypingNotifier

	mu            sync.Mutex
	currentConv   string
	lastFailed    string
	channel       *push.Channel
	channelCancel context.CancelFunc
}

func newSession(cfg config.Config, logger *slog.Logger) (*session, error) {
	client, err := api.NewClient(api.Config{
		BaseURL:      cfg.APIBaseURL,
		SessionToken: cfg.SessionToken,
		CallTimeout:  cfg.RequestTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	statePath := cfg.StatePath
	if statePath == "" {
		statePath = filepath.Join(os.TempDir(), "marketchat-session.json")
	}
	store, err := state.Open(statePath)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:    cfg,
		logger: logger,
		client: client,
		store:  store,
		render: term.NewRenderer(os.Stdout),
		view:   viewport.New(cfg.BottomThreshold),
	}
	s.view.Resize(windowRows)
	indicator := thread.NewIndicator(cfg.TypingTTL, func() {
		s.render.Notice("peer stopped typing")
	})
	s.engine = thread.NewEngine(client, client.SessionUserID(), indicator, thread.Hooks{
		OnAppend:  s.onAppend,
		OnPrepend: s.onPrepend,
		OnUpdate:  s.onUpdate,
	}, logger)
	s.typing = thread.NewTypingNotifier(cfg.TypingInterval, func() {
		s.mu.Lock()
		ch := s.channel
		s.mu.Unlock()
		if ch != nil {
			ch.SendTyping()
		}
	})
	return s, nil
}

func (s *session) run(ctx context.Context, openFirst string) error {
	pushCfg := push.Config{
		APIBaseURL:   s.cfg.APIBaseURL,
		SessionToken: s.cfg.SessionToken,
		Backoff:      s.cfg.RetryBackoff,
	}
	notifier, err := push.OpenNotifier(ctx, pushCfg, s.logger)
	if err != nil {
		return err
	}
	defer notifier.Close()

	syncer := inbox.NewSyncer(
		s.client,
		s.cfg.PollInterval,
		notifier.Changes(),
		notifier.Connected,
		func() { s.renderBadge() },
		s.logger,
	)
	go func() { _ = syncer.Run(ctx) }()

	s.render.Notice("signed in as %s", s.client.SessionUserID())
	if !s.store.Dismissed("command-hint") {
		s.render.Notice("commands: /list /open <id> /older /new /retry /read /away /back /quit")
		_ = s.store.Dismiss("command-hint")
	}
	if openFirst != "" {
		s.openConversation(ctx, openFirst)
	} else {
		s.render.Notice("no conversation open; /list then /open <id>")
	}

	inputDone := make(chan error, 1)
	go func() {
		inputDone <- term.ReadLines(ctx, os.Stdin, s.render, func(line string) {
			s.handleInput(ctx, syncer, line)
		})
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-inputDone:
		return err
	}
}

func (s *session) handleInput(ctx context.Context, syncer *inbox.Syncer, line string) {
	switch {
	case line == "/quit":
		s.close()
		os.Exit(0)
	case line == "/list":
		items := syncer.Conversations()
		if len(items) == 0 {
			s.render.Notice("no conversations loaded yet")
			return
		}
		for _, item := range items {
			s.render.Line("%s", term.SummaryLine(item))
		}
		s.render.Notice("%d unread in total", syncer.UnreadTotal())
	case strings.HasPrefix(line, "/open "):
		id := strings.TrimSpace(strings.TrimPrefix(line, "/open "))
		if id != "" {
			s.openConversation(ctx, id)
		}
	case line == "/older":
		if err := s.engine.LoadOlder(); err != nil {
			s.render.Notice("could not load older messages")
			return
		}
		s.renderWindow()
	case line == "/new":
		s.mu.Lock()
		s.view.JumpToNewest()
		s.mu.Unlock()
		s.renderWindow()
		_, _ = s.engine.MarkReadIfNeeded(ctx)
	case line == "/retry":
		s.mu.Lock()
		target := s.lastFailed
		s.mu.Unlock()
		if target == "" {
			s.render.Notice("nothing to retry")
			return
		}
		if err := s.engine.Retry(ctx, target); err != nil {
			s.render.Notice("retry failed: %v", err)
		}
	case line == "/read":
		invoked, _ := s.engine.MarkReadIfNeeded(ctx)
		if !invoked {
			s.render.Notice("nothing unread here")
		}
	case line == "/away":
		syncer.SetVisible(false)
		s.render.Notice("away; list refresh paused")
	case line == "/back":
		syncer.SetVisible(true)
		s.render.Notice("back; list refreshed")
	case strings.HasPrefix(line, "/"):
		s.render.Notice("commands: /list /open <id> /older /new /retry /read /away /back /quit")
	default:
		s.sendText(ctx, line)
	}
}

func (s *session) sendText(ctx context.Context, text string) {
	s.mu.Lock()
	conv := s.currentConv
	s.mu.Unlock()
	if conv == "" {
		s.render.Notice("open a conversation first")
		return
	}
	s.typing.Touch()
	localID, err := s.engine.Send(ctx, text, nil)
	switch {
	case errors.Is(err, thread.ErrEmptyMessage):
	case errors.Is(err, thread.ErrSendInFlight):
		s.render.Notice("still sending the previous message")
	case err != nil:
		s.mu.Lock()
		s.lastFailed = localID
		s.mu.Unlock()
		s.render.Notice("send failed, /retry to try again")
	default:
		s.mu.Lock()
		if s.lastFailed == localID {
			s.lastFailed = ""
		}
		s.view.JumpToNewest()
		s.mu.Unlock()
	}
}

func (s *session) openConversation(ctx context.Context, id string) {
	s.mu.Lock()
	previous := s.currentConv
	if previous != "" {
		s.persistOffsetLocked(previous)
	}
	if s.channelCancel != nil {
		s.channelCancel()
		s.channel = nil
	}
	s.currentConv = id
	s.lastFailed = ""
	s.mu.Unlock()

	if err := s.engine.Open(ctx, id); err != nil {
		s.render.Notice("could not open conversation %s", id)
		return
	}

	snap := s.engine.Snapshot()
	s.mu.Lock()
	s.view = viewport.New(s.cfg.BottomThreshold)
	s.view.Resize(windowRows)
	s.view.Prepend(len(snap.Messages))
	offset, saved := s.store.ScrollOffset(id)
	s.view.Restore(offset, saved)
	s.mu.Unlock()

	s.renderWindow()
	_, _ = s.engine.MarkReadIfNeeded(ctx)
	s.startChannel(ctx, id)
}

func (s *session) startChannel(ctx context.Context, id string) {
	chanCtx, cancel := context.WithCancel(ctx)
	ch, err := push.OpenConversation(chanCtx, push.Config{
		APIBaseURL:   s.cfg.APIBaseURL,
		SessionToken: s.cfg.SessionToken,
		Backoff:      s.cfg.RetryBackoff,
		OnState: func(st push.State) {
			switch st {
			case push.StateOpen:
				s.render.Notice("live updates connected")
			case push.StateDead:
				s.render.Notice("live updates unavailable, reopen to retry")
			}
		},
	}, id, s.logger)
	if err != nil {
		cancel()
		s.logger.Error("push channel open failed", "conversation_id", id, "error", err)
		return
	}
	s.mu.Lock()
	s.channel = ch
	s.channelCancel = cancel
	s.mu.Unlock()

	go func() {
		for event := range ch.Events() {
			s.engine.Apply(event)
			if _, ok := event.(push.MessageCreated); ok {
				s.mu.Lock()
				atBottom := s.view.AtBottom()
				s.mu.Unlock()
				if atBottom {
					_, _ = s.engine.MarkReadIfNeeded(ctx)
				}
			}
			if _, ok := event.(push.Typing); ok {
				s.render.Notice("peer is typing…")
			}
		}
	}()
}

// onAppend applies the scroll policy to one new message: follow it when
// the viewer is at the bottom, count it otherwise.
func (s *session) onAppend(msg chat.Message) {
	s.mu.Lock()
	s.view.Append(1)
	pending := s.view.Pending()
	s.mu.Unlock()
	if pending > 0 {
		s.render.Notice("%d new message(s), /new to jump", pending)
		return
	}
	s.render.Line("%s", term.MessageLine(msg, s.client.SessionUserID()))
}

func (s *session) onPrepend(count int) {
	s.mu.Lock()
	s.view.Prepend(count)
	s.mu.Unlock()
	s.render.Notice("loaded %d older message(s)", count)
}

func (s *session) onUpdate() {
	// In-place changes (status flips, read receipts) redraw lazily; the
	// next window render picks them up.
}

func (s *session) renderWindow() {
	snap := s.engine.Snapshot()
	local := s.client.SessionUserID()
	s.render.Line("—— %s ——", conversationTitle(snap.Conversation))
	start := 0
	if len(snap.Messages) > windowRows {
		start = len(snap.Messages) - windowRows
	}
	for _, m := range snap.Messages[start:] {
		s.render.Line("%s", term.MessageLine(m, local))
	}
	if snap.HasMore {
		s.render.Notice("older history available, /older to load")
	}
}

func (s *session) renderBadge() {
	// The badge is redrawn on demand via /list; a change nudge alone
	// should not interrupt typing.
}

// persistOffsetLocked applies the viewport's leave policy to the store.
// Callers hold s.mu.
func (s *session) persistOffsetLocked(conversationID string) {
	if offset, keep := s.view.Leave(); keep {
		_ = s.store.SaveScrollOffset(conversationID, offset)
	} else {
		_ = s.store.ClearScrollOffset(conversationID)
	}
}

func (s *session) close() {
	s.mu.Lock()
	if s.currentConv != "" {
		s.persistOffsetLocked(s.currentConv)
	}
	if s.channelCancel != nil {
		s.channelCancel()
	}
	s.mu.Unlock()
	s.engine.Close()
}

func conversationTitle(c chat.Conversation) string {
	if c.Listing.Title != "" {
		return fmt.Sprintf("%s (%s)", c.Listing.Title, c.ID)
	}
	return c.ID
}
