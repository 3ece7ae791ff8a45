package flow

import (
	"sync"
	"time"
)

// ==============================================
// DEADLINE TIMER
// ==============================================

// DeadlineTimer turns an absolute expiry instant into a live countdown and a
// single expiry signal. Every tick recomputes remaining time from the instant
// rather than decrementing a counter, so a process that was suspended catches
// up to the correct remaining value on its next tick instead of drifting.
type DeadlineTimer struct {
	expireAt time.Time
	interval time.Duration
	now      func() time.Time
	onTick   func(remaining time.Duration)
	onExpire func()

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
	expire  sync.Once
}

// NewDeadlineTimer starts a countdown toward expireAt with one-second
// resolution. onTick receives the recomputed remaining duration (never
// negative); onExpire fires exactly once when the instant passes, including
// immediately when expireAt is already in the past. The returned timer must be
// stopped when the owning screen unmounts or the payment id changes.
func NewDeadlineTimer(expireAt time.Time, onTick func(remaining time.Duration), onExpire func()) *DeadlineTimer {
	return newDeadlineTimer(expireAt, time.Second, time.Now, onTick, onExpire)
}

func newDeadlineTimer(expireAt time.Time, interval time.Duration, now func() time.Time, onTick func(remaining time.Duration), onExpire func()) *DeadlineTimer {
	t := &DeadlineTimer{
		expireAt: expireAt,
		interval: interval,
		now:      now,
		onTick:   onTick,
		onExpire: onExpire,
		done:     make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *DeadlineTimer) run() {
	// Immediate first evaluation, matching the tick that follows each
	// interval. An already-expired instant fires without waiting a second.
	if t.fire() {
		return
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if t.fire() {
				return
			}
		}
	}
}

// fire evaluates the deadline once. Returns true when the timer is finished.
func (t *DeadlineTimer) fire() bool {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return true
	}
	remaining := t.expireAt.Sub(t.now())
	t.mu.Unlock()

	if remaining <= 0 {
		t.expire.Do(func() {
			if t.onExpire != nil {
				t.onExpire()
			}
		})
		t.Stop()
		return true
	}
	if t.onTick != nil {
		t.onTick(remaining)
	}
	return false
}

// Remaining reports the current time left, floored at zero.
func (t *DeadlineTimer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	remaining := t.expireAt.Sub(t.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Stop tears the timer down. Safe to call more than once, concurrently with
// ticks, and from inside the timer's own callbacks. A tick already in flight
// may still deliver; owners that outlive their payment id must guard for that.
func (t *DeadlineTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.done)
}
