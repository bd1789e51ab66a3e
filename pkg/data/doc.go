// Package data defines the normalized UPS data model shared by the decoders,
// the polling core, and the NUT server.
//
// UpsData is a composite of battery, power, device, test, and configuration
// records. Every field carries an explicit "unset" sentinel: NaN for floats,
// the empty string for text, and -1 for signed delays and timers. Decoders
// fill a caller-supplied UpsData in place; consumers take by-value snapshots
// under the owner's lock and never retain references.
package data
