package log

// Logger is the leveled logging interface consumed by all bridge components.
// Implementations must be safe for concurrent use.
type Logger interface {
	// Tracef logs very verbose per-report details (raw bytes, parse steps).
	Tracef(format string, args ...any)

	// Debugf logs development diagnostics (probe results, state transitions).
	Debugf(format string, args ...any)

	// Infof logs normal operational milestones (device attached, server up).
	Infof(format string, args ...any)

	// Warnf logs recoverable anomalies (transfer timeout, client rejected).
	Warnf(format string, args ...any)

	// Errorf logs failures that degrade functionality.
	Errorf(format string, args ...any)
}

// NoopLogger discards all messages. Use when logging is disabled.
// NoopLogger is safe for concurrent use and usable as a zero value.
type NoopLogger struct{}

// Tracef discards the message.
func (NoopLogger) Tracef(string, ...any) {}

// Debugf discards the message.
func (NoopLogger) Debugf(string, ...any) {}

// Infof discards the message.
func (NoopLogger) Infof(string, ...any) {}

// Warnf discards the message.
func (NoopLogger) Warnf(string, ...any) {}

// Errorf discards the message.
func (NoopLogger) Errorf(string, ...any) {}

// Compile-time interface satisfaction check.
var _ Logger = NoopLogger{}

// OrNoop returns l if non-nil, otherwise a NoopLogger. Components call this
// on their configured logger so that a nil Logger is always safe.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}
