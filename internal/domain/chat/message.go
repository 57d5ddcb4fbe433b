package chat

import (
	"sort"
	"strings"
	"time"
)

// Status is the client-side delivery state of a message. It exists only
// for rendering optimistic sends and is never sent to the server.
type Status string

const (
	// StatusPending marks a locally synthesized message awaiting the
	// server round-trip.
	StatusPending Status = "pending"
	// StatusSent marks a server-confirmed message.
	StatusSent Status = "sent"
	// StatusFailed marks a send the server rejected or that never
	// completed; the entry stays in place and can be retried.
	StatusFailed Status = "failed"
)

// Attachment is a file attached to a message.
type Attachment struct {
	ID   string
	Name string
	URL  string
}

// Message is a single chat message. ID is the server identifier and is
// empty until the server confirms an optimistic send; LocalID is a
// client-generated identifier that stays stable across that confirmation
// so the list slot never moves.
type Message struct {
	ID             string
	LocalID        string
	ConversationID string
	SenderID       string
	Text           string
	Attachments    []Attachment
	CreatedAt      time.Time
	Read           bool
	Status         Status
}

// Key returns the identity used for de-duplication: the server id when
// known, the local id otherwise.
func (m Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.LocalID
}

// Empty reports whether the message carries neither text nor attachments.
func (m Message) Empty() bool {
	return strings.TrimSpace(m.Text) == "" && len(m.Attachments) == 0
}

// Less orders messages by ascending timestamp, identifier as tie-break.
// This is the one display order for every conversation window.
func Less(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Key() < b.Key()
}

// SortMessages sorts in place into display order. The sort is stable so
// equal-key entries (which Merge prevents anyway) keep arrival order.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return Less(msgs[i], msgs[j]) })
}

// Merge combines a fetched batch into an existing window, dropping batch
// entries whose identity is already present, and returns the combined
// slice in display order. The input slices are not mutated.
func Merge(existing, batch []Message) []Message {
	seen := make(map[string]struct{}, len(existing))
	for _, m := range existing {
		seen[m.Key()] = struct{}{}
		if m.ID != "" && m.LocalID != "" {
			seen[m.LocalID] = struct{}{}
		}
	}
	merged := make([]Message, 0, len(existing)+len(batch))
	merged = append(merged, existing...)
	for _, m := range batch {
		if _, dup := seen[m.Key()]; dup {
			continue
		}
		seen[m.Key()] = struct{}{}
		merged = append(merged, m)
	}
	SortMessages(merged)
	return merged
}

// NeedsReadReceipt reports whether the window contains at least one
// unread message authored by someone other than localUserID. Mark-read
// must be issued exactly when this holds.
func NeedsReadReceipt(msgs []Message, localUserID string) bool {
	for _, m := range msgs {
		if m.SenderID != localUserID && m.SenderID != "" && !m.Read {
			return true
		}
	}
	return false
}
