package pipeline

import (
	"strings"
	"sync"
	"time"
)

// Window accumulates transcript text and releases it as one chunk once the
// flush interval has elapsed.
type Window struct {
	interval time.Duration

	mu        sync.Mutex
	pending   []string
	lastFlush time.Time
}

// NewWindow creates a window whose first interval starts at now.
func NewWindow(interval time.Duration, now time.Time) *Window {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Window{interval: interval, lastFlush: now}
}

// Add queues text; blank text is ignored.
func (w *Window) Add(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	w.mu.Lock()
	w.pending = append(w.pending, text)
	w.mu.Unlock()
}

// Ready reports whether the interval has elapsed with text pending.
func (w *Window) Ready(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending) > 0 && now.Sub(w.lastFlush) >= w.interval
}

// Take returns the pending text joined by spaces and starts a new interval.
func (w *Window) Take(now time.Time) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastFlush = now
	return w.drainLocked()
}

// Drain returns whatever is pending regardless of the interval.
func (w *Window) Drain() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.drainLocked()
}

// Len returns the number of pending texts.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *Window) drainLocked() string {
	chunk := strings.TrimSpace(strings.Join(w.pending, " "))
	w.pending = nil
	return chunk
}
