// Package ups orchestrates the bridge: transport lifecycle, protocol
// detection, periodic polling, the shared data cache, sink publication, and
// the control/test API.
//
// A single Core owns the UpsData record. Decoders refill a scratch record on
// the polling task; consumers (sinks, the NUT server) take by-value
// snapshots under the cache mutex. Control operations forward to the active
// decoder.
package ups
