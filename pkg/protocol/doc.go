// Package protocol turns raw HID reports (or byte streams) from one vendor's
// UPS family into the normalized data model.
//
// Each decoder implements the Decoder contract: a cheap Detect probe, a
// one-shot Initialize, and ReadData which resets and refills a caller-owned
// UpsData. Control operations (beeper, self-tests, delays) are optional;
// unsupported ones fail with ErrNotSupported.
//
// A Registry holds decoder constructors keyed by USB vendor ID with
// priorities, plus fallback constructors tried for unknown vendors. Explicit
// registration through NewDefaultRegistry keeps startup order deterministic
// and tests hermetic.
package protocol
