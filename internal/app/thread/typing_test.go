package thread

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestIndicatorExpires(t *testing.T) {
	expired := make(chan struct{}, 1)
	ind := NewIndicator(25*time.Millisecond, func() { expired <- struct{}{} })
	defer ind.Stop()

	ind.Touch()
	if !ind.Active() {
		t.Fatal("indicator must be active right after a signal")
	}
	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("indicator never expired")
	}
	if ind.Active() {
		t.Error("indicator still active after expiry")
	}
}

func TestIndicatorTouchExtendsDeadline(t *testing.T) {
	ind := NewIndicator(60*time.Millisecond, nil)
	defer ind.Stop()

	ind.Touch()
	time.Sleep(35 * time.Millisecond)
	ind.Touch()
	time.Sleep(35 * time.Millisecond)
	if !ind.Active() {
		t.Error("second signal must re-arm the expiry")
	}
}

func TestIndicatorResetSkipsCallback(t *testing.T) {
	var fired atomic.Int32
	ind := NewIndicator(20*time.Millisecond, func() { fired.Add(1) })
	ind.Touch()
	ind.Reset()
	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("reset must not fire the expiry callback")
	}
	if ind.Active() {
		t.Error("reset must clear the flag")
	}
}

func TestTypingNotifierThrottles(t *testing.T) {
	var sent atomic.Int32
	n := NewTypingNotifier(time.Hour, func() { sent.Add(1) })
	for i := 0; i < 10; i++ {
		n.Touch()
	}
	if got := sent.Load(); got != 1 {
		t.Errorf("burst of keystrokes produced %d frames, want 1", got)
	}
}
