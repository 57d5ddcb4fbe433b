package chat

import (
	"errors"
	"time"
)

// ErrNotParticipant is returned when the local user is not part of a
// conversation they tried to resolve a peer for.
var ErrNotParticipant = errors.New("chat: local user is not a participant")

// ListingRef points at the listing a conversation was opened about.
type ListingRef struct {
	ID        string
	Title     string
	Thumbnail string
	OwnerID   string
}

// Conversation is a two-party thread anchored to one listing. The client
// never deletes conversations; it only refetches them.
type Conversation struct {
	ID            string
	Listing       ListingRef
	Participants  []string
	LastMessage   string
	LastMessageAt time.Time
	UnreadCount   int
}

// Peer returns the other participant of a two-party conversation.
func (c Conversation) Peer(localUserID string) (string, error) {
	for _, p := range c.Participants {
		if p != localUserID {
			return p, nil
		}
	}
	return "", ErrNotParticipant
}

// Summary is the sidebar representation of a conversation.
type Summary struct {
	ID            string
	Listing       ListingRef
	LastMessage   string
	LastMessageAt time.Time
	UnreadCount   int
}

// UnreadTotal sums unread counts over loaded summaries. The application
// badge is always this derived aggregate, never independent state.
func UnreadTotal(items []Summary) int {
	total := 0
	for _, s := range items {
		if s.UnreadCount > 0 {
			total += s.UnreadCount
		}
	}
	return total
}
