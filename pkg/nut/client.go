package nut

import (
	"net"
	"time"
)

// ClientState is the per-slot authentication state.
type ClientState int

// Client states.
const (
	StateDisconnected ClientState = iota
	StateConnected
	StateAuthenticated
)

// String returns the state name used by LIST CLIENTS.
func (s ClientState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// clientSlot holds one client connection and its protocol state. Slots are
// preallocated and reused; reset returns a slot to the free pool.
type clientSlot struct {
	conn  net.Conn
	id    string
	state ClientState

	remoteIP     string
	connectTime  time.Time
	lastActivity time.Time

	loginAttempts int
	username      string
	tempUsername  string
	tempPassword  string

	// pending accumulates bytes until a full \n-terminated line arrives.
	pending []byte
}

// active reports whether the slot holds a live connection.
func (c *clientSlot) active() bool {
	return c.conn != nil && c.state != StateDisconnected
}

// authenticated reports whether the client has logged in.
func (c *clientSlot) authenticated() bool {
	return c.state == StateAuthenticated
}

// reset returns the slot to the free pool.
func (c *clientSlot) reset() {
	*c = clientSlot{}
}
