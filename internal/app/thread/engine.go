// Package thread drives one open conversation: paginated history
// anchored to the newest page, push-event intake, the optimistic send
// pipeline and read receipts.
package thread

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"marketchat/internal/domain/chat"
	"marketchat/internal/infra/push"
)

var (
	// ErrEmptyMessage rejects a send with neither text nor attachments.
	ErrEmptyMessage = errors.New("thread: nothing to send")
	// ErrSendInFlight rejects a send while another one is pending.
	ErrSendInFlight = errors.New("thread: a send is already in flight")
	// ErrNoSuchMessage is returned by Retry for an unknown or non-failed slot.
	ErrNoSuchMessage = errors.New("thread: no failed message with that id")
)

// Snapshot is a consistent copy of the engine state for rendering.
type Snapshot struct {
	Conversation chat.Conversation
	Messages     []chat.Message
	HasMore      bool
	PeerTyping   bool
	Sending      bool
}

// Engine owns the message window of the currently open conversation.
// One engine is reused across conversation switches; Open resets all
// state and invalidates every in-flight fetch of the previous epoch.
type Engine struct {
	svc       MessageService
	localUser string
	hooks     Hooks
	logger    *slog.Logger
	indicator *Indicator

	mu           sync.Mutex
	epoch        uint64
	fetchCtx     context.Context
	fetchCancel  context.CancelFunc
	convID       string
	conversation chat.Conversation
	messages     []chat.Message
	page         int
	hasMore      bool
	sending      bool
	failed       map[string]outbound
}

// NewEngine builds an engine for the given local user.
func NewEngine(svc MessageService, localUser string, indicator *Indicator, hooks Hooks, logger *slog.Logger) *Engine {
	return &Engine{
		svc:       svc,
		localUser: localUser,
		hooks:     hooks,
		logger:    logger,
		indicator: indicator,
		failed:    map[string]outbound{},
	}
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Conversation: e.conversation,
		Messages:     append([]chat.Message(nil), e.messages...),
		HasMore:      e.hasMore,
		PeerTyping:   e.indicator.Active(),
		Sending:      e.sending,
	}
}

// Open switches the engine to a conversation and materializes the most
// recent page: page 1 is fetched to learn the total count and page size,
// and when more than one page exists only the last page is fetched and
// displayed. Intermediate pages are skipped; LoadOlder walks backwards.
func (e *Engine) Open(ctx context.Context, conversationID string) error {
	e.mu.Lock()
	e.epoch++
	epoch := e.epoch
	if e.fetchCancel != nil {
		e.fetchCancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	e.fetchCtx = fetchCtx
	e.fetchCancel = cancel
	e.convID = conversationID
	e.conversation = chat.Conversation{ID: conversationID}
	e.messages = nil
	e.page = 0
	e.hasMore = false
	e.sending = false
	e.failed = map[string]outbound{}
	e.indicator.Reset()
	e.mu.Unlock()

	conv, err := e.svc.Conversation(fetchCtx, conversationID)
	if err != nil {
		e.logger.Error("conversation load failed", "conversation_id", conversationID, "error", err)
	} else if e.stillCurrent(epoch) {
		e.mu.Lock()
		e.conversation = conv
		e.mu.Unlock()
	}

	first, err := e.svc.Messages(fetchCtx, conversationID, 1)
	if err != nil {
		e.logger.Error("initial page load failed", "conversation_id", conversationID, "error", err)
		return err
	}
	if !e.stillCurrent(epoch) {
		return nil
	}

	pageSize := len(first.Messages)
	lastPage := 1
	if pageSize > 0 {
		lastPage = (first.Count + pageSize - 1) / pageSize
	}
	window := first
	if lastPage > 1 {
		window, err = e.svc.Messages(fetchCtx, conversationID, lastPage)
		if err != nil {
			e.logger.Error("last page load failed",
				"conversation_id", conversationID, "page", lastPage, "error", err)
			return err
		}
		if !e.stillCurrent(epoch) {
			return nil
		}
	}

	e.mu.Lock()
	e.messages = chat.Merge(nil, window.Messages)
	e.page = lastPage
	e.hasMore = lastPage > 1 || window.HasPrev
	e.mu.Unlock()
	e.hooks.updated()
	return nil
}

// LoadOlder fetches the page before the oldest one loaded and prepends
// it. A failed fetch leaves the window untouched.
func (e *Engine) LoadOlder() error {
	e.mu.Lock()
	if !e.hasMore || e.page <= 1 {
		e.mu.Unlock()
		return nil
	}
	epoch := e.epoch
	target := e.page - 1
	convID := e.convID
	fetchCtx := e.fetchCtx
	e.mu.Unlock()

	batch, err := e.svc.Messages(fetchCtx, convID, target)
	if err != nil {
		e.logger.Error("older page load failed", "conversation_id", convID, "page", target, "error", err)
		return err
	}
	if !e.stillCurrent(epoch) {
		return nil
	}

	e.mu.Lock()
	before := len(e.messages)
	e.messages = chat.Merge(e.messages, batch.Messages)
	added := len(e.messages) - before
	e.page = target
	e.hasMore = target > 1 || batch.HasPrev
	e.mu.Unlock()
	e.hooks.prepended(added)
	return nil
}

// Apply folds one push event into the window. Events for other
// conversations are dropped.
func (e *Engine) Apply(event push.Event) {
	switch ev := event.(type) {
	case push.MessageCreated:
		e.applyMessage(ev.Message)
	case push.Typing:
		// A frame without identity is dropped, never attributed.
		if ev.UserID == "" || ev.UserID == e.localUser {
			return
		}
		e.indicator.Touch()
		e.hooks.updated()
	case push.Read:
		if ev.UserID == "" || ev.UserID == e.localUser {
			return
		}
		e.applyRead()
	}
}

func (e *Engine) applyMessage(msg chat.Message) {
	e.mu.Lock()
	if msg.ConversationID != "" && msg.ConversationID != e.convID {
		e.mu.Unlock()
		return
	}
	for _, existing := range e.messages {
		if existing.ID == msg.ID {
			e.mu.Unlock()
			return
		}
	}
	if msg.SenderID != "" && msg.SenderID == e.localUser {
		for i := range e.messages {
			m := e.messages[i]
			if m.Status == chat.StatusPending && m.ID == "" && m.Text == msg.Text {
				// Echo of the in-flight send arriving before the HTTP
				// confirmation: fold it into the placeholder slot so one
				// logical send stays one entry.
				msg.LocalID = m.LocalID
				e.messages[i] = msg
				chat.SortMessages(e.messages)
				e.conversation.LastMessage = msg.Text
				e.conversation.LastMessageAt = msg.CreatedAt
				e.mu.Unlock()
				e.hooks.updated()
				return
			}
		}
	}
	e.messages = chat.Merge(e.messages, []chat.Message{msg})
	e.conversation.LastMessage = msg.Text
	e.conversation.LastMessageAt = msg.CreatedAt
	e.mu.Unlock()
	e.hooks.appended(msg)
}

// applyRead marks every own sent message as read. Only reached for read
// events originating from the peer.
func (e *Engine) applyRead() {
	e.mu.Lock()
	for i := range e.messages {
		if e.messages[i].SenderID == e.localUser && e.messages[i].Status == chat.StatusSent {
			e.messages[i].Read = true
		}
	}
	e.mu.Unlock()
	e.hooks.updated()
}

// MarkReadIfNeeded acknowledges the conversation exactly when the loaded
// window contains an unread message from the peer. Returns whether the
// call was issued.
func (e *Engine) MarkReadIfNeeded(ctx context.Context) (bool, error) {
	e.mu.Lock()
	needed := chat.NeedsReadReceipt(e.messages, e.localUser)
	convID := e.convID
	epoch := e.epoch
	e.mu.Unlock()
	if !needed {
		return false, nil
	}
	if err := e.svc.MarkRead(ctx, convID); err != nil {
		e.logger.Error("mark read failed", "conversation_id", convID, "error", err)
		return true, err
	}
	if !e.stillCurrent(epoch) {
		return true, nil
	}
	e.mu.Lock()
	for i := range e.messages {
		if e.messages[i].SenderID != e.localUser {
			e.messages[i].Read = true
		}
	}
	e.conversation.UnreadCount = 0
	e.mu.Unlock()
	e.hooks.updated()
	return true, nil
}

// Close cancels outstanding fetches and stops the typing indicator.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.fetchCancel != nil {
		e.fetchCancel()
	}
	e.mu.Unlock()
	e.indicator.Stop()
}

func (e *Engine) stillCurrent(epoch uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch == epoch
}
