// Package clock provides cancellable one-shot and repeating timers behind
// an interface so session logic can run against a deterministic fake in
// tests. Every scheduled callback returns an opaque Handle; callers must
// keep the handle and cancel it on any path that invalidates the timer's
// purpose. Cancelling twice, or cancelling a handle whose timer already
// fired, is a no-op.
package clock

import (
	"sync"
	"time"
)

// Handle is a cancellable reference to a scheduled callback.
type Handle interface {
	// Cancel stops the timer. It is idempotent and safe to call after the
	// callback has already run.
	Cancel()
}

// Clock schedules callbacks against a time source.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Schedule runs fn once after delay.
	Schedule(delay time.Duration, fn func()) Handle

	// ScheduleRepeating runs fn every interval until the handle is cancelled.
	ScheduleRepeating(interval time.Duration, fn func()) Handle
}

// System is the real Clock backed by the time package.
type System struct{}

// NewSystem returns a Clock backed by real timers.
func NewSystem() *System {
	return &System{}
}

// Now implements Clock.
func (*System) Now() time.Time {
	return time.Now()
}

// Schedule implements Clock.
func (*System) Schedule(delay time.Duration, fn func()) Handle {
	h := &oneShotHandle{}
	h.timer = time.AfterFunc(delay, func() {
		h.mu.Lock()
		if h.cancelled {
			h.mu.Unlock()
			return
		}
		h.fired = true
		h.mu.Unlock()
		fn()
	})
	return h
}

// ScheduleRepeating implements Clock.
func (*System) ScheduleRepeating(interval time.Duration, fn func()) Handle {
	h := &repeatingHandle{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-h.done:
				return
			case <-h.ticker.C:
				fn()
			}
		}
	}()
	return h
}

type oneShotHandle struct {
	mu        sync.Mutex
	timer     *time.Timer
	fired     bool
	cancelled bool
}

func (h *oneShotHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled || h.fired {
		return
	}
	h.cancelled = true
	h.timer.Stop()
}

type repeatingHandle struct {
	once   sync.Once
	ticker *time.Ticker
	done   chan struct{}
}

func (h *repeatingHandle) Cancel() {
	h.once.Do(func() {
		h.ticker.Stop()
		close(h.done)
	})
}
