package thread

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"marketchat/internal/domain/chat"
	"marketchat/internal/infra/api"
)

// Send runs the optimistic pipeline for one logical send: a placeholder
// appears immediately with a temporary id, the server round-trip happens
// on the caller's context, and the placeholder is replaced in place on
// success or marked failed in place on error. At most one send is in
// flight; an empty payload is rejected outright. The placeholder's
// local id is returned so callers can reference the slot for retry.
func (e *Engine) Send(ctx context.Context, text string, files []File) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(files) == 0 {
		return "", ErrEmptyMessage
	}

	e.mu.Lock()
	if e.sending {
		e.mu.Unlock()
		return "", ErrSendInFlight
	}
	e.sending = true
	epoch := e.epoch
	convID := e.convID
	localID := "local-" + uuid.NewString()
	placeholder := chat.Message{
		LocalID:        localID,
		ConversationID: convID,
		SenderID:       e.localUser,
		Text:           text,
		CreatedAt:      time.Now(),
		Status:         chat.StatusPending,
	}
	for _, f := range files {
		placeholder.Attachments = append(placeholder.Attachments, chat.Attachment{Name: f.Name})
	}
	e.messages = append(e.messages, placeholder)
	e.mu.Unlock()
	e.hooks.appended(placeholder)

	err := e.deliver(ctx, epoch, localID, outbound{text: text, files: files})
	return localID, err
}

// Retry re-attempts a failed send in the same list slot, re-sending the
// full payload, attachments included.
func (e *Engine) Retry(ctx context.Context, localID string) error {
	e.mu.Lock()
	out, ok := e.failed[localID]
	if !ok {
		e.mu.Unlock()
		return ErrNoSuchMessage
	}
	if e.sending {
		e.mu.Unlock()
		return ErrSendInFlight
	}
	e.sending = true
	delete(e.failed, localID)
	e.setStatusLocked(localID, chat.StatusPending)
	epoch := e.epoch
	e.mu.Unlock()
	e.hooks.updated()

	return e.deliver(ctx, epoch, localID, out)
}

// deliver performs the network leg and reconciles the placeholder slot.
// Results landing after a conversation switch are discarded: the slot
// they would target no longer exists.
func (e *Engine) deliver(ctx context.Context, epoch uint64, localID string, out outbound) error {
	e.mu.Lock()
	convID := e.convID
	e.mu.Unlock()

	var (
		confirmed chat.Message
		err       error
	)
	if len(out.files) > 0 {
		uploads := make([]api.Upload, 0, len(out.files))
		for _, f := range out.files {
			uploads = append(uploads, api.Upload{Name: f.Name, Content: bytes.NewReader(f.Data)})
		}
		confirmed, err = e.svc.SendAttachments(ctx, convID, out.text, uploads)
	} else {
		confirmed, err = e.svc.SendText(ctx, convID, out.text)
	}

	e.mu.Lock()
	if e.epoch != epoch {
		e.mu.Unlock()
		return err
	}
	e.sending = false
	if err != nil {
		for i := range e.messages {
			if e.messages[i].LocalID == localID && e.messages[i].ID != "" {
				// The push echo already confirmed this send; the failed
				// round-trip is moot.
				e.mu.Unlock()
				e.hooks.updated()
				return nil
			}
		}
		e.failed[localID] = out
		e.setStatusLocked(localID, chat.StatusFailed)
		e.mu.Unlock()
		e.logger.Error("send failed", "conversation_id", convID, "local_id", localID, "error", err)
		e.hooks.updated()
		return err
	}
	confirmed.LocalID = localID
	confirmed.Status = chat.StatusSent
	slot, existing := -1, -1
	for i := range e.messages {
		switch {
		case e.messages[i].LocalID == localID:
			slot = i
		case confirmed.ID != "" && e.messages[i].ID == confirmed.ID:
			existing = i
		}
	}
	if existing >= 0 {
		// The push echo landed as its own entry before the confirmation;
		// the server record wins and the placeholder goes away.
		e.messages[existing] = confirmed
		if slot >= 0 {
			e.messages = append(e.messages[:slot], e.messages[slot+1:]...)
		}
	} else if slot >= 0 {
		e.messages[slot] = confirmed
	}
	// Server timestamp is authoritative; restore display order.
	chat.SortMessages(e.messages)
	e.conversation.LastMessage = confirmed.Text
	e.conversation.LastMessageAt = confirmed.CreatedAt
	e.mu.Unlock()
	e.hooks.updated()
	return nil
}

func (e *Engine) setStatusLocked(localID string, status chat.Status) {
	for i := range e.messages {
		if e.messages[i].LocalID == localID {
			e.messages[i].Status = status
			return
		}
	}
}
