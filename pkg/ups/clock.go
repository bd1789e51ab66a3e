package ups

import "time"

// Clock abstracts time for the core so tests can drive polling and timeout
// logic deterministically.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time

	// NowMillis returns a monotonic millisecond timestamp.
	NowMillis() int64
}

// systemClock is the real time source.
type systemClock struct {
	base time.Time
}

// NewSystemClock returns a Clock backed by the system timer.
func NewSystemClock() Clock {
	return &systemClock{base: time.Now()}
}

func (c *systemClock) Now() time.Time { return time.Now() }

func (c *systemClock) NowMillis() int64 {
	return time.Since(c.base).Milliseconds()
}
