package api

import (
	"time"

	"marketchat/internal/domain/chat"
)

// Wire shapes for the marketplace REST API. Field names follow the
// upstream contract (snake_case, page-numbered result envelopes).

type listingWire struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	Owner     string `json:"owner"`
}

type conversationWire struct {
	ID            string      `json:"id"`
	Listing       listingWire `json:"listing"`
	Participants  []string    `json:"participants"`
	LastMessage   string      `json:"last_message"`
	LastMessageAt time.Time   `json:"last_message_at"`
	UnreadCount   int         `json:"unread_count"`
}

type attachmentWire struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type messageWire struct {
	ID           string           `json:"id"`
	Conversation string           `json:"conversation"`
	SentBy       string           `json:"sent_by"`
	Text         string           `json:"text"`
	Attachments  []attachmentWire `json:"attachments"`
	CreatedAt    time.Time        `json:"created_at"`
	IsRead       bool             `json:"is_read"`
}

type messagePageWire struct {
	Results  []messageWire `json:"results"`
	Count    int           `json:"count"`
	Next     *string       `json:"next"`
	Previous *string       `json:"previous"`
}

func (w conversationWire) toDomain() chat.Conversation {
	return chat.Conversation{
		ID: w.ID,
		Listing: chat.ListingRef{
			ID:        w.Listing.ID,
			Title:     w.Listing.Title,
			Thumbnail: w.Listing.Thumbnail,
			OwnerID:   w.Listing.Owner,
		},
		Participants:  append([]string(nil), w.Participants...),
		LastMessage:   w.LastMessage,
		LastMessageAt: w.LastMessageAt,
		UnreadCount:   w.UnreadCount,
	}
}

func (w conversationWire) toSummary() chat.Summary {
	return chat.Summary{
		ID: w.ID,
		Listing: chat.ListingRef{
			ID:        w.Listing.ID,
			Title:     w.Listing.Title,
			Thumbnail: w.Listing.Thumbnail,
			OwnerID:   w.Listing.Owner,
		},
		LastMessage:   w.LastMessage,
		LastMessageAt: w.LastMessageAt,
		UnreadCount:   w.UnreadCount,
	}
}

func (w messageWire) toDomain() chat.Message {
	msg := chat.Message{
		ID:             w.ID,
		ConversationID: w.Conversation,
		SenderID:       w.SentBy,
		Text:           w.Text,
		CreatedAt:      w.CreatedAt,
		Read:           w.IsRead,
		Status:         chat.StatusSent,
	}
	for _, a := range w.Attachments {
		msg.Attachments = append(msg.Attachments, chat.Attachment{ID: a.ID, Name: a.Name, URL: a.URL})
	}
	return msg
}
