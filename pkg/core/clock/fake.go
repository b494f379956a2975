package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a deterministic Clock for tests. Time only moves when Advance is
// called; due callbacks run synchronously on the advancing goroutine, in
// firing order. Callbacks may schedule or cancel timers re-entrantly.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	nextID  int
	entries map[int]*fakeEntry
}

type fakeEntry struct {
	id       int
	at       time.Time
	interval time.Duration // 0 for one-shot
	fn       func()
}

// NewFake creates a fake clock starting at an arbitrary fixed time.
func NewFake() *Fake {
	return &Fake{
		now:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		entries: make(map[int]*fakeEntry),
	}
}

// Now implements Clock.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Schedule implements Clock.
func (f *Fake) Schedule(delay time.Duration, fn func()) Handle {
	return f.add(delay, 0, fn)
}

// ScheduleRepeating implements Clock.
func (f *Fake) ScheduleRepeating(interval time.Duration, fn func()) Handle {
	return f.add(interval, interval, fn)
}

func (f *Fake) add(delay, interval time.Duration, fn func()) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	e := &fakeEntry{
		id:       f.nextID,
		at:       f.now.Add(delay),
		interval: interval,
		fn:       fn,
	}
	f.entries[e.id] = e
	return &fakeHandle{clock: f, id: e.id}
}

// Advance moves the fake time forward by d, running every callback that
// comes due, in chronological order. A repeating callback fires once per
// elapsed interval.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	for {
		e := f.nextDue(target)
		if e == nil {
			break
		}
		f.now = e.at
		if e.interval > 0 {
			e.at = e.at.Add(e.interval)
		} else {
			delete(f.entries, e.id)
		}
		fn := e.fn
		f.mu.Unlock()
		fn()
		f.mu.Lock()
	}
	f.now = target
	f.mu.Unlock()
}

// nextDue returns the earliest entry at or before target. Caller holds mu.
func (f *Fake) nextDue(target time.Time) *fakeEntry {
	var due []*fakeEntry
	for _, e := range f.entries {
		if !e.at.After(target) {
			due = append(due, e)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].id < due[j].id
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}

// Pending returns the number of scheduled entries, for test assertions.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type fakeHandle struct {
	clock *Fake
	id    int
}

func (h *fakeHandle) Cancel() {
	h.clock.mu.Lock()
	defer h.clock.mu.Unlock()
	delete(h.clock.entries, h.id)
}
