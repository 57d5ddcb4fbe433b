// Package inbox keeps the conversation list fresh: interval polling
// while the app is visible, suspended entirely while the session push
// channel is connected, with push nudges triggering silent refreshes.
package inbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"marketchat/internal/domain/chat"
)

// ListService is the REST surface the syncer consumes.
type ListService interface {
	Conversations(ctx context.Context) ([]chat.Summary, error)
}

// Syncer owns the shared conversation list. Only the sync routine
// mutates it; everyone else reads snapshots.
type Syncer struct {
	svc      ListService
	interval time.Duration
	// connected reports whether the session push channel is open; while
	// it is, interval polling is suspended.
	connected func() bool
	changes   <-chan struct{}
	logger    *slog.Logger

	kick     chan struct{}
	mu       sync.RWMutex
	items    []chat.Summary
	visible  bool
	onChange func()
}

// NewSyncer builds a syncer. changes is the session notifier's nudge
// channel and may be nil; connected may be nil (treated as never
// connected); onChange may be nil.
func NewSyncer(svc ListService, interval time.Duration, changes <-chan struct{}, connected func() bool, onChange func(), logger *slog.Logger) *Syncer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Syncer{
		svc:       svc,
		interval:  interval,
		connected: connected,
		changes:   changes,
		logger:    logger,
		kick:      make(chan struct{}, 1),
		visible:   true,
		onChange:  onChange,
	}
}

// Run drives the sync loop until the context ends. The list is loaded
// once up front; afterwards refreshes come from the ticker (when
// polling is allowed), from push nudges, and from visibility kicks.
func (s *Syncer) Run(ctx context.Context) error {
	s.refresh(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	changes := s.changes
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !s.shouldPoll() {
				continue
			}
			s.refresh(ctx)
		case _, ok := <-changes:
			if !ok {
				// Notifier died; the ticker takes over again.
				changes = nil
				continue
			}
			s.refresh(ctx)
		case <-s.kick:
			s.refresh(ctx)
		}
	}
}

// SetVisible flips the visibility gate. Turning visible kicks an
// immediate refresh so a returning viewer sees a fresh list.
func (s *Syncer) SetVisible(visible bool) {
	s.mu.Lock()
	was := s.visible
	s.visible = visible
	s.mu.Unlock()
	if visible && !was {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
}

// Conversations returns a snapshot of the current list.
func (s *Syncer) Conversations() []chat.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.Summary(nil), s.items...)
}

// UnreadTotal is the derived badge value: the sum of unread counts over
// the loaded summaries.
func (s *Syncer) UnreadTotal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return chat.UnreadTotal(s.items)
}

func (s *Syncer) shouldPoll() bool {
	s.mu.RLock()
	visible := s.visible
	s.mu.RUnlock()
	if !visible {
		return false
	}
	if s.connected != nil && s.connected() {
		return false
	}
	return true
}

// refresh replaces the list with the server's. A failed fetch keeps the
// previous list; the next trigger retries.
func (s *Syncer) refresh(ctx context.Context) {
	items, err := s.svc.Conversations(ctx)
	if err != nil {
		s.logger.Warn("conversation list refresh failed", "error", err)
		return
	}
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
	if s.onChange != nil {
		s.onChange()
	}
}
