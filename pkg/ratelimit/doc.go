// Package ratelimit provides a burst-then-suppress admission helper for
// repetitive log messages.
//
// Error paths in the USB and protocol layers can fire on every poll cycle.
// A Limiter admits a short burst, then suppresses repeats until the stream
// quiets down, and reports how many messages were dropped when it re-admits.
package ratelimit
