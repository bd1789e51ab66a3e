// Package version identifies the bridge build to NUT clients.
package version

import "fmt"

// Number is the bridge release version.
const Number = "1.2.0"

// name is the server identity reported over the wire.
const name = "nutbridge"

// String returns the identity reported by the VERSION command.
func String() string {
	return fmt.Sprintf("%s %s", name, Number)
}

// Upsd returns the identity reported by the UPSDVER command.
func Upsd() string {
	return fmt.Sprintf("%s upsd %s", name, Number)
}
