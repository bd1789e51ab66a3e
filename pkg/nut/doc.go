// Package nut exposes the normalized UPS data model over the Network UPS
// Tools (NUT) TCP line protocol, version 1.3.
//
// The server keeps a fixed array of client slots serviced round-robin by a
// single task on a short tick: non-blocking accept, per-slot reads, idle
// cleanup. Commands are case-insensitive on the leading token; UPS and
// variable names are case-sensitive. Standard NUT clients (upsc, upsmon,
// home-automation integrations) drive the exchange; the server never greets.
package nut
