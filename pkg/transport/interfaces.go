package transport

import (
	"context"
	"errors"
	"time"
)

// ReportType selects the HID report class for GET_REPORT/SET_REPORT.
type ReportType uint8

// HID report types (USB HID 1.11, §7.2.1).
const (
	ReportTypeInput   ReportType = 0x01
	ReportTypeOutput  ReportType = 0x02
	ReportTypeFeature ReportType = 0x03
)

// String returns the report type's wire name.
func (r ReportType) String() string {
	switch r {
	case ReportTypeInput:
		return "Input"
	case ReportTypeOutput:
		return "Output"
	case ReportTypeFeature:
		return "Feature"
	default:
		return "Unknown"
	}
}

// Control-transfer timeout bounds. Callers may ask for anything; the
// transport clamps to this range before submitting.
const (
	MinTransferTimeout = 100 * time.Millisecond
	MaxTransferTimeout = 30 * time.Second
)

// Transport errors.
var (
	// ErrNotConnected indicates no UPS device is currently attached.
	ErrNotConnected = errors.New("ups device not connected")

	// ErrTimeout indicates a control transfer exceeded its timeout.
	ErrTimeout = errors.New("transfer timed out")

	// ErrInputOnly indicates the device exposes no OUT endpoint, so
	// byte-stream writes are impossible.
	ErrInputOnly = errors.New("device is input-only")

	// ErrNoStringDescriptor indicates the requested string index is zero
	// or the device returned nothing. Index 0 is the language-ID table,
	// never a manufacturer/model/serial/firmware string.
	ErrNoStringDescriptor = errors.New("no string descriptor")
)

// Transport is the contract between the polling core, the decoders, and the
// USB (or simulated) device.
type Transport interface {
	// Initialize opens the host stack, starts the enumeration task, and
	// attempts an initial probe. It returns nil even when no UPS is yet
	// present; attachment is reported through IsConnected.
	Initialize(ctx context.Context) error

	// Deinitialize tears down tasks and the device handle. Safe to call
	// more than once.
	Deinitialize() error

	// IsConnected reports whether a UPS device is attached and claimed.
	IsConnected() bool

	// VendorID returns the attached device's USB vendor ID (0 if unknown).
	VendorID() uint16

	// ProductID returns the attached device's USB product ID (0 if unknown).
	ProductID() uint16

	// IsInputOnly reports whether the claimed HID interface has no OUT
	// endpoint.
	IsInputOnly() bool

	// HIDGetReport issues a class-specific GET_REPORT control transfer and
	// fills buf with the response payload (setup bytes stripped). It
	// returns the payload length. The timeout is clamped to
	// [MinTransferTimeout, MaxTransferTimeout].
	HIDGetReport(reportType ReportType, reportID uint8, buf []byte, timeout time.Duration) (int, error)

	// HIDSetReport issues a class-specific SET_REPORT control transfer.
	HIDSetReport(reportType ReportType, reportID uint8, data []byte, timeout time.Duration) error

	// GetStringDescriptor fetches the indexed USB string descriptor,
	// decoded from UTF-16LE to UTF-8. Index 0 always fails with
	// ErrNoStringDescriptor.
	GetStringDescriptor(index uint8) (string, error)

	// ReadBytes reads from the interrupt IN endpoint for byte-stream
	// protocols (APC Smart). Returns the number of bytes read.
	ReadBytes(buf []byte, timeout time.Duration) (int, error)

	// WriteBytes writes to the OUT endpoint for byte-stream protocols.
	// Fails with ErrInputOnly on input-only devices.
	WriteBytes(data []byte, timeout time.Duration) error
}

// ClampTimeout bounds a requested transfer timeout to the allowed range.
func ClampTimeout(d time.Duration) time.Duration {
	if d < MinTransferTimeout {
		return MinTransferTimeout
	}
	if d > MaxTransferTimeout {
		return MaxTransferTimeout
	}
	return d
}
