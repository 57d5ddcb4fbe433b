package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// Store is the session-scoped scratch persistence: the last scroll
// offset per conversation and string dismissal flags. It is a small JSON
// file rewritten atomically on every change; a missing or corrupt file
// is treated as empty.
type Store struct {
	mu   sync.Mutex
	path string
	data payload
}

type payload struct {
	ScrollOffsets map[string]int  `json:"scroll_offsets"`
	Dismissed     map[string]bool `json:"dismissed"`
}

// Open loads the store at path, creating parent directories as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &Store{
		path: path,
		data: payload{
			ScrollOffsets: map[string]int{},
			Dismissed:     map[string]bool{},
		},
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, nil
	}
	var loaded payload
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return s, nil
	}
	if loaded.ScrollOffsets != nil {
		s.data.ScrollOffsets = loaded.ScrollOffsets
	}
	if loaded.Dismissed != nil {
		s.data.Dismissed = loaded.Dismissed
	}
	return s, nil
}

// ScrollOffset returns the saved offset for a conversation.
func (s *Store) ScrollOffset(conversationID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data.ScrollOffsets[conversationID]
	return v, ok
}

// SaveScrollOffset persists the offset for a conversation.
func (s *Store) SaveScrollOffset(conversationID string, offset int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ScrollOffsets[conversationID] = offset
	return s.flushLocked()
}

// ClearScrollOffset drops the saved offset, if any.
func (s *Store) ClearScrollOffset(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.ScrollOffsets, conversationID)
	return s.flushLocked()
}

// Dismissed reports whether a flag (banner key) was dismissed this session.
func (s *Store) Dismissed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Dismissed[key]
}

// Dismiss records a dismissal flag.
func (s *Store) Dismiss(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Dismissed[key] = true
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
