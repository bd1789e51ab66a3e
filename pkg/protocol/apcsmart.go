package protocol

import (
	"strconv"
	"strings"
	"time"

	"github.com/nutbridge/nutbridge-go/pkg/data"
	"github.com/nutbridge/nutbridge-go/pkg/transport"
)

// APC Smart protocol single-character commands.
const (
	apcSmartCmdStatus   = 'Q'
	apcSmartCmdBattery  = 'f'
	apcSmartCmdInputV   = 'L'
	apcSmartCmdOutputV  = 'O'
	apcSmartCmdLoad     = 'P'
	apcSmartCmdRuntime  = 'j'
	apcSmartCmdFreq     = 'F'
	apcSmartCmdModel    = 0x01
	apcSmartCmdFirmware = 'V'
	apcSmartCmdSerial   = 'n'
	apcSmartCmdSelfTest = 'A'
)

// Status byte bits for hex-form 'Q' responses.
const (
	apcSmartBitLowBattery = 0x01
	apcSmartBitCharging   = 0x04
	apcSmartBitOnline     = 0x08
	apcSmartBitOnBattery  = 0x10
	apcSmartBitReplace    = 0x40
)

// apcSmartIdentityInterval is how often the static identity is re-read.
const apcSmartIdentityInterval = 60 * time.Second

// Smart-protocol numeric bounds; values outside are parse failures.
const (
	apcSmartMinVoltage = 80.0
	apcSmartMaxVoltage = 300.0
)

// ApcSmartDecoder speaks the single-character "Smart" protocol over the
// transport's byte-stream endpoints. Requires a bidirectional device.
type ApcSmartDecoder struct {
	Base

	model    string
	firmware string
	serial   string

	lastIdentityRead time.Time

	// now is the time source, replaceable in tests.
	now func() time.Time
}

// NewApcSmartDecoder creates an APC Smart decoder bound to tr.
func NewApcSmartDecoder(tr transport.Transport, opts Options) *ApcSmartDecoder {
	return &ApcSmartDecoder{Base: NewBase(tr, opts), now: time.Now}
}

// Name returns the decoder's display name.
func (d *ApcSmartDecoder) Name() string { return "APC Smart" }

// Protocol returns the protocol identifier.
func (d *ApcSmartDecoder) Protocol() data.Protocol { return data.ProtocolApcSmart }

// Detect sends a status inquiry over the byte stream. Input-only devices
// are refused outright.
func (d *ApcSmartDecoder) Detect() bool {
	if d.Transport().IsInputOnly() {
		d.Logger().Debugf("apc-smart: device is input-only, skipping")
		return false
	}
	resp, ok := d.sendCommand(apcSmartCmdStatus)
	return ok && resp != ""
}

// Initialize reads the static identity.
func (d *ApcSmartDecoder) Initialize() error {
	d.readIdentity()
	return nil
}

// readIdentity fetches model, firmware, and serial, at most once per
// apcSmartIdentityInterval.
func (d *ApcSmartDecoder) readIdentity() {
	now := d.now()
	if !d.lastIdentityRead.IsZero() && now.Sub(d.lastIdentityRead) < apcSmartIdentityInterval {
		return
	}
	d.lastIdentityRead = now

	if resp, ok := d.sendCommand(apcSmartCmdModel); ok && resp != "" {
		d.model = resp
	}
	if resp, ok := d.sendCommand(apcSmartCmdFirmware); ok && resp != "" {
		d.firmware = resp
	}
	if resp, ok := d.sendCommand(apcSmartCmdSerial); ok && resp != "" {
		d.serial = resp
	}
}

// ReadData refills the record from a fresh command sweep.
func (d *ApcSmartDecoder) ReadData(u *data.UpsData) bool {
	u.Reset()
	u.Device.DetectedProtocol = data.ProtocolApcSmart
	u.Device.Manufacturer = "APC"

	d.readIdentity()
	u.Device.Model = d.model
	u.Device.FirmwareVersion = d.firmware
	u.Device.SerialNumber = d.serial

	updated := false

	if resp, ok := d.sendCommand(apcSmartCmdStatus); ok && resp != "" {
		u.SetStatus(parseSmartStatus(resp))
		updated = true
	}
	if v, ok := d.readPercent(apcSmartCmdBattery); ok {
		u.Battery.Level = v
		updated = true
	}
	if v, ok := d.readVoltage(apcSmartCmdInputV); ok {
		u.Power.InputVoltage = v
		updated = true
	}
	if v, ok := d.readVoltage(apcSmartCmdOutputV); ok {
		u.Power.OutputVoltage = v
		updated = true
	}
	if v, ok := d.readPercent(apcSmartCmdLoad); ok {
		u.Power.LoadPercent = v
		updated = true
	}
	if resp, ok := d.sendCommand(apcSmartCmdRuntime); ok {
		if v, err := strconv.ParseFloat(strings.TrimSuffix(resp, ":"), 64); err == nil && data.IsValidRuntime(v) {
			u.Battery.RuntimeMinutes = v
			updated = true
		}
	}
	if resp, ok := d.sendCommand(apcSmartCmdFreq); ok {
		if v, err := strconv.ParseFloat(resp, 64); err == nil && data.IsValidFrequency(v) {
			u.Power.Frequency = v
			updated = true
		}
	}

	return updated
}

// readVoltage sends a command and parses a bounded voltage.
func (d *ApcSmartDecoder) readVoltage(cmd byte) (float64, bool) {
	resp, ok := d.sendCommand(cmd)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(resp, 64)
	if err != nil || v < apcSmartMinVoltage || v > apcSmartMaxVoltage {
		return 0, false
	}
	return v, true
}

// readPercent sends a command and parses a percentage, clamped to [0, 100].
func (d *ApcSmartDecoder) readPercent(cmd byte) (float64, bool) {
	resp, ok := d.sendCommand(cmd)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return 0, false
	}
	return data.ClampPercent(v), true
}

// sendCommand writes one command byte and reads the whitespace-trimmed
// response.
func (d *ApcSmartDecoder) sendCommand(cmd byte) (string, bool) {
	tr := d.Transport()
	if err := tr.WriteBytes([]byte{cmd}, d.Timeout()); err != nil {
		d.Logger().Tracef("apc-smart: write 0x%02X: %v", cmd, err)
		return "", false
	}
	buf := make([]byte, 64)
	n, err := tr.ReadBytes(buf, d.Timeout())
	if err != nil {
		d.Logger().Tracef("apc-smart: read after 0x%02X: %v", cmd, err)
		return "", false
	}
	return strings.TrimSpace(string(buf[:n])), true
}

// parseSmartStatus decodes a 'Q' response: a 1-2 character hex byte or a
// textual keyword. A non-empty response matching nothing is assumed online.
func parseSmartStatus(resp string) data.StatusFlags {
	if len(resp) <= 2 {
		if raw, err := strconv.ParseUint(resp, 16, 8); err == nil {
			var flags data.StatusFlags
			if raw&apcSmartBitOnBattery != 0 {
				flags |= data.StatusOnBattery
			} else if raw&apcSmartBitOnline != 0 {
				flags |= data.StatusOnline
			}
			if raw&apcSmartBitLowBattery != 0 {
				flags |= data.StatusLowBattery
			}
			if raw&apcSmartBitCharging != 0 {
				flags |= data.StatusCharging
			}
			if raw&apcSmartBitReplace != 0 {
				flags |= data.StatusReplaceBattery
			}
			if flags != data.StatusUnknown {
				return flags
			}
		}
	}

	upper := strings.ToUpper(resp)
	var flags data.StatusFlags
	switch {
	case strings.Contains(upper, "ONLINE"):
		flags |= data.StatusOnline
	case strings.Contains(upper, "ONBATT"), strings.Contains(upper, "ON BATTERY"):
		flags |= data.StatusOnBattery
	}
	if strings.Contains(upper, "LOWBATT") {
		flags |= data.StatusLowBattery
	}
	if strings.Contains(upper, "CHARGING") {
		flags |= data.StatusCharging
	}
	if strings.Contains(upper, "REPLACE") {
		flags |= data.StatusReplaceBattery
	}
	if strings.Contains(upper, "OVERLOAD") {
		flags |= data.StatusOverload
	}
	if strings.Contains(upper, "FAULT") || strings.Contains(upper, "ERROR") {
		flags |= data.StatusFault
	}

	if flags == data.StatusUnknown {
		// Unrecognized but non-empty: the unit answered, assume online.
		flags = data.StatusOnline
	}
	return flags
}

// Commands lists the instant commands the Smart path supports.
func (d *ApcSmartDecoder) Commands() []string {
	return []string{"test.battery.start.quick", "test.ups.start"}
}

// StartBatteryTestQuick triggers the 'A' self-test.
func (d *ApcSmartDecoder) StartBatteryTestQuick() error {
	if _, ok := d.sendCommand(apcSmartCmdSelfTest); !ok {
		return ErrNotSupported
	}
	return nil
}

// StartUpsTest triggers the 'A' self-test.
func (d *ApcSmartDecoder) StartUpsTest() error {
	return d.StartBatteryTestQuick()
}

// Compile-time interface satisfaction check.
var _ Decoder = (*ApcSmartDecoder)(nil)
