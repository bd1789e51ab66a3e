package eventlog

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Kind classifies an event.
type Kind string

// Event kinds.
const (
	KindStatusChange   Kind = "status_change"
	KindProtocolDetect Kind = "protocol_detect"
	KindProtocolDrop   Kind = "protocol_drop"
	KindDeviceAttach   Kind = "device_attach"
	KindDeviceDetach   Kind = "device_detach"
	KindClientConnect  Kind = "client_connect"
	KindClientClose    Kind = "client_close"
)

// Event is one diagnostic record. Fields use short named CBOR keys so a
// generic CBOR dump of a log file stays readable without this package.
type Event struct {
	// Timestamp is when the event happened.
	Timestamp time.Time `cbor:"ts"`

	// Kind classifies the event.
	Kind Kind `cbor:"kind"`

	// OldState/NewState carry status transitions ("OL CHRG" to "OB").
	OldState string `cbor:"old,omitempty"`
	NewState string `cbor:"new,omitempty"`

	// Protocol names the decoder involved, if any.
	Protocol string `cbor:"proto,omitempty"`

	// RemoteIP identifies the NUT client, if any.
	RemoteIP string `cbor:"ip,omitempty"`

	// Detail is free-text context.
	Detail string `cbor:"detail,omitempty"`
}

// encMode marshals timestamps as microsecond epoch numbers: compact, and
// precise enough for a poll-driven diagnostic trace.
var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeUnixMicro}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create event CBOR encoder mode: %v", err))
	}
	return em
}

// Encode marshals one event to CBOR bytes (without the length frame).
func Encode(event Event) ([]byte, error) {
	return encMode.Marshal(event)
}

// Decode unmarshals CBOR bytes into an event.
func Decode(raw []byte) (Event, error) {
	var event Event
	if err := cbor.Unmarshal(raw, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}
