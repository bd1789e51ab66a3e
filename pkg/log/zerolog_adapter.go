package log

import (
	"github.com/rs/zerolog"
)

// ZerologAdapter writes messages to a zerolog.Logger.
// Trace maps to zerolog's Trace level, the rest map one-to-one.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter creates a new ZerologAdapter that writes to the given
// zerolog.Logger.
func NewZerologAdapter(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

// Tracef writes the message at trace level.
func (a *ZerologAdapter) Tracef(format string, args ...any) {
	a.logger.Trace().Msgf(format, args...)
}

// Debugf writes the message at debug level.
func (a *ZerologAdapter) Debugf(format string, args ...any) {
	a.logger.Debug().Msgf(format, args...)
}

// Infof writes the message at info level.
func (a *ZerologAdapter) Infof(format string, args ...any) {
	a.logger.Info().Msgf(format, args...)
}

// Warnf writes the message at warn level.
func (a *ZerologAdapter) Warnf(format string, args ...any) {
	a.logger.Warn().Msgf(format, args...)
}

// Errorf writes the message at error level.
func (a *ZerologAdapter) Errorf(format string, args ...any) {
	a.logger.Error().Msgf(format, args...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*ZerologAdapter)(nil)
