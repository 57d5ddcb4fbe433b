package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketchat/internal/domain/chat"
)

// Errors reported by the frame decoder. Malformed frames are dropped by
// the channel; unknown event tags are logged so a contract change is
// visible, then dropped.
var (
	ErrMalformedFrame = errors.New("push: malformed frame")
	ErrUnknownEvent   = errors.New("push: unknown event")
)

// Event is the closed set of push events a conversation channel can
// deliver. The marker method seals the union so every consumer switch
// covers MessageCreated, Typing and Read.
type Event interface {
	pushEvent()
}

// MessageCreated announces a new message in the conversation. SenderID
// may be empty when the server omitted it; consumers must treat that as
// unknown, never infer.
type MessageCreated struct {
	Message chat.Message
}

// Typing announces that a participant is composing.
type Typing struct {
	UserID string
}

// Read announces that a participant acknowledged the conversation.
type Read struct {
	UserID string
}

func (MessageCreated) pushEvent() {}
func (Typing) pushEvent()         {}
func (Read) pushEvent()           {}

type frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type messagePayload struct {
	ID           string    `json:"id"`
	Conversation string    `json:"conversation"`
	SentBy       string    `json:"sent_by"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"created_at"`
	IsRead       bool      `json:"is_read"`
	Attachments  []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"attachments"`
}

type userPayload struct {
	UserID string `json:"user_id"`
}

// DecodeEvent parses one wire frame into the event union.
func DecodeEvent(raw []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch f.Event {
	case "message.created":
		var p messagePayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		msg := chat.Message{
			ID:             p.ID,
			ConversationID: p.Conversation,
			SenderID:       p.SentBy,
			Text:           p.Text,
			CreatedAt:      p.CreatedAt,
			Read:           p.IsRead,
			Status:         chat.StatusSent,
		}
		for _, a := range p.Attachments {
			msg.Attachments = append(msg.Attachments, chat.Attachment{ID: a.ID, Name: a.Name, URL: a.URL})
		}
		return MessageCreated{Message: msg}, nil
	case "typing":
		var p userPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return Typing{UserID: p.UserID}, nil
	case "read":
		var p userPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return Read{UserID: p.UserID}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}
}
