package thread

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultTypingTTL is how long a typing signal stays visible without a
// follow-up.
const DefaultTypingTTL = 1500 * time.Millisecond

// Indicator tracks the peer's ephemeral typing state. Each signal arms a
// fresh expiry; silence for the TTL clears the flag and fires the
// expiry callback so the UI can erase the line.
type Indicator struct {
	mu       sync.Mutex
	ttl      time.Duration
	timer    *time.Timer
	active   bool
	onExpire func()
}

// NewIndicator builds an indicator; a non-positive ttl falls back to the
// default. onExpire may be nil.
func NewIndicator(ttl time.Duration, onExpire func()) *Indicator {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &Indicator{ttl: ttl, onExpire: onExpire}
}

// Touch records a typing signal and re-arms the expiry.
func (i *Indicator) Touch() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.active = true
	if i.timer != nil {
		i.timer.Stop()
	}
	i.timer = time.AfterFunc(i.ttl, i.expire)
}

// Active reports whether the peer is currently typing.
func (i *Indicator) Active() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.active
}

// Reset clears the flag without firing the expiry callback.
func (i *Indicator) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.active = false
	if i.timer != nil {
		i.timer.Stop()
		i.timer = nil
	}
}

// Stop releases the timer. The indicator is unusable afterwards.
func (i *Indicator) Stop() {
	i.Reset()
}

func (i *Indicator) expire() {
	i.mu.Lock()
	wasActive := i.active
	i.active = false
	i.timer = nil
	i.mu.Unlock()
	if wasActive && i.onExpire != nil {
		i.onExpire()
	}
}

// TypingNotifier throttles outbound typing signals so a burst of
// keystrokes produces at most one frame per interval.
type TypingNotifier struct {
	limiter *rate.Limiter
	send    func()
}

// NewTypingNotifier wraps send with a one-per-interval limiter.
func NewTypingNotifier(interval time.Duration, send func()) *TypingNotifier {
	if interval <= 0 {
		interval = DefaultTypingTTL
	}
	return &TypingNotifier{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		send:    send,
	}
}

// Touch emits a typing signal if the limiter allows one.
func (t *TypingNotifier) Touch() {
	if t.send == nil {
		return
	}
	if t.limiter.Allow() {
		t.send()
	}
}
