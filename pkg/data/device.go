package data

// Protocol identifies the decoder family that produced the data.
type Protocol int

// Known protocol identifiers.
const (
	ProtocolUnknown Protocol = iota
	ProtocolApcSmart
	ProtocolApcHid
	ProtocolCyberPowerHid
	ProtocolEatonHid
	ProtocolGenericHid
)

// String returns the protocol's display name.
func (p Protocol) String() string {
	switch p {
	case ProtocolApcSmart:
		return "APC Smart"
	case ProtocolApcHid:
		return "APC HID"
	case ProtocolCyberPowerHid:
		return "CyberPower HID"
	case ProtocolEatonHid:
		return "Eaton HID"
	case ProtocolGenericHid:
		return "Generic HID"
	default:
		return "Unknown"
	}
}

// DeviceInfo holds static UPS identity.
type DeviceInfo struct {
	Manufacturer    string
	Model           string
	SerialNumber    string
	FirmwareVersion string

	// FirmwareAux is a secondary firmware identifier some models expose.
	FirmwareAux string

	// MfrDate is the unit manufacture date as reported by the UPS.
	MfrDate string

	// DetectedProtocol survives UpsData resets: read cycles reset-then-fill,
	// and the active decoder identity must not be lost in between.
	DetectedProtocol Protocol
}

// NewDeviceInfo returns an empty DeviceInfo.
func NewDeviceInfo() DeviceInfo {
	return DeviceInfo{}
}

// IsValid reports whether any identity field has been decoded.
func (d *DeviceInfo) IsValid() bool {
	return d.Manufacturer != "" || d.Model != "" || d.SerialNumber != "" ||
		d.FirmwareVersion != ""
}

// Reset clears identity fields but preserves DetectedProtocol.
func (d *DeviceInfo) Reset() {
	proto := d.DetectedProtocol
	*d = DeviceInfo{DetectedProtocol: proto}
}
