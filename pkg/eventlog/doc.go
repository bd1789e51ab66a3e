// Package eventlog captures machine-readable bridge diagnostics: UPS status
// transitions, protocol detection and drops, and NUT client activity.
//
// The log file is a sequence of framed records: a uvarint byte length
// followed by one CBOR-encoded event. The explicit framing lets the Reader
// validate record boundaries and stop cleanly at a truncated tail (a crash
// mid-append), instead of trusting the decoder to resynchronize. Capture is
// separate from operational logging (package log): the event log is a
// complete, structured trace; the logger is for humans.
package eventlog
