package thread

import (
	"context"

	"marketchat/internal/domain/chat"
	"marketchat/internal/infra/api"
)

// MessageService is the REST surface the engine consumes. Implemented by
// *api.Client; tests substitute fakes.
type MessageService interface {
	Conversation(ctx context.Context, id string) (chat.Conversation, error)
	Messages(ctx context.Context, conversationID string, page int) (api.MessagePage, error)
	SendText(ctx context.Context, conversationID, text string) (chat.Message, error)
	SendAttachments(ctx context.Context, conversationID, text string, files []api.Upload) (chat.Message, error)
	MarkRead(ctx context.Context, conversationID string) error
}

// File is one attachment queued for sending. Contents are held in memory
// so a failed multipart send can be retried whole, attachments included.
type File struct {
	Name string
	Data []byte
}

// outbound is the payload of one logical send, kept until the server
// confirms so retry never loses the attachments.
type outbound struct {
	text  string
	files []File
}

// Hooks receive engine mutations. All hooks are optional and are invoked
// with the engine lock released; they map one-to-one onto the scroll
// policy: appends may follow, prepends preserve the anchor, updates
// redraw in place.
type Hooks struct {
	OnAppend  func(msg chat.Message)
	OnPrepend func(count int)
	OnUpdate  func()
}

func (h Hooks) appended(msg chat.Message) {
	if h.OnAppend != nil {
		h.OnAppend(msg)
	}
}

func (h Hooks) prepended(count int) {
	if h.OnPrepend != nil && count > 0 {
		h.OnPrepend(count)
	}
}

func (h Hooks) updated() {
	if h.OnUpdate != nil {
		h.OnUpdate()
	}
}
