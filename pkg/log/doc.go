// Package log provides leveled operational logging for the UPS bridge.
//
// This package defines the Logger interface used by every component. It is
// deliberately small: five printf-style levels and nothing else. Components
// accept a Logger at construction time; pass nil or NoopLogger to disable
// logging entirely.
//
// # Basic Usage
//
//	// For development: human-readable console output via zerolog
//	logger := log.NewZerologAdapter(zerolog.New(os.Stderr).With().Timestamp().Logger())
//
//	// Silence a component
//	core := ups.NewCore(cfg, transport, log.NoopLogger{})
//
//	// Fan out to several backends
//	logger := log.NewMultiLogger(consoleLogger, fileLogger)
//
// Machine-readable diagnostic capture (status transitions, client activity)
// is a separate concern handled by package eventlog.
package log
