package log

// MultiLogger sends messages to multiple loggers.
// Useful when you want both console output (via ZerologAdapter)
// and another backend simultaneously.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger that sends messages to all provided loggers.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Tracef sends the message to all configured loggers.
func (m *MultiLogger) Tracef(format string, args ...any) {
	for _, l := range m.loggers {
		l.Tracef(format, args...)
	}
}

// Debugf sends the message to all configured loggers.
func (m *MultiLogger) Debugf(format string, args ...any) {
	for _, l := range m.loggers {
		l.Debugf(format, args...)
	}
}

// Infof sends the message to all configured loggers.
func (m *MultiLogger) Infof(format string, args ...any) {
	for _, l := range m.loggers {
		l.Infof(format, args...)
	}
}

// Warnf sends the message to all configured loggers.
func (m *MultiLogger) Warnf(format string, args ...any) {
	for _, l := range m.loggers {
		l.Warnf(format, args...)
	}
}

// Errorf sends the message to all configured loggers.
func (m *MultiLogger) Errorf(format string, args ...any) {
	for _, l := range m.loggers {
		l.Errorf(format, args...)
	}
}

// Compile-time interface satisfaction check.
var _ Logger = (*MultiLogger)(nil)
