package ratelimit

import (
	"sync"
	"time"
)

// Limiter defaults.
const (
	// MaxBurst is the number of events admitted before suppression starts.
	MaxBurst = 3

	// SuppressWindow is how long the event stream must stay active before
	// a suppressed summary is re-admitted. The window slides with every
	// suppressed event: admission resumes only once this much time has
	// passed since the most recent event.
	SuppressWindow = 5 * time.Second
)

// Limiter implements burst-then-suppress admission for one log channel.
// The first MaxBurst events are admitted. Further events are suppressed
// until SuppressWindow has elapsed since the most recent event; the next
// admission then reports the number of suppressed events and the burst
// starts over.
type Limiter struct {
	mu sync.Mutex

	burst      int
	window     time.Duration
	count      int
	suppressed int
	lastEvent  time.Time

	// now is the time source, replaceable in tests.
	now func() time.Time
}

// NewLimiter creates a Limiter with the default burst size and window.
func NewLimiter() *Limiter {
	return NewLimiterWithConfig(MaxBurst, SuppressWindow)
}

// NewLimiterWithConfig creates a Limiter with a custom burst size and window.
func NewLimiterWithConfig(burst int, window time.Duration) *Limiter {
	if burst <= 0 {
		burst = MaxBurst
	}
	if window <= 0 {
		window = SuppressWindow
	}
	return &Limiter{
		burst:  burst,
		window: window,
		now:    time.Now,
	}
}

// Allow reports whether the caller should log this event. When it returns
// true with suppressed > 0, the caller should additionally log a one-line
// summary of the suppressed events ("suppressed N similar messages").
func (l *Limiter) Allow() (ok bool, suppressed int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if l.count < l.burst {
		l.count++
		l.lastEvent = now
		return true, 0
	}

	if now.Sub(l.lastEvent) >= l.window {
		n := l.suppressed
		l.suppressed = 0
		l.count = 1
		l.lastEvent = now
		return true, n
	}

	l.suppressed++
	l.lastEvent = now
	return false, 0
}

// Suppressed returns the number of events dropped since the last admission.
func (l *Limiter) Suppressed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.suppressed
}

// Reset clears all counters, re-admitting a full burst.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count = 0
	l.suppressed = 0
	l.lastEvent = time.Time{}
}
