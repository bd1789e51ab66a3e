package protocol

import (
	"fmt"
	"strings"
	"time"

	"github.com/nutbridge/nutbridge-go/pkg/data"
	"github.com/nutbridge/nutbridge-go/pkg/transport"
)

// APC HID report IDs.
const (
	apcReportPowerSummary  = 0x0C
	apcReportPresentStatus = 0x16
	apcReportLegacyStatus  = 0x06
	apcReportInputVoltage  = 0x31
	apcReportLoad          = 0x50
	apcReportOutputLegacy  = 0x09
	apcReportConfig        = 0x05
)

// PresentStatus (0x16) bit positions.
const (
	apcBitCharging         = 1 << 0
	apcBitDischarging      = 1 << 1
	apcBitACPresent        = 1 << 2
	apcBitBatteryPresent   = 1 << 3
	apcBitBelowCapacity    = 1 << 4
	apcBitShutdownImminent = 1 << 5
	apcBitTimeLimitExpired = 1 << 6
	apcBitNeedsReplacement = 1 << 7
)

// Battery-test command reports, primary then fallback. Values: 1 quick,
// 2 deep, 3 abort.
var apcBatteryTestReports = []uint8{0x52, 0x14}

// UPS/panel-test command reports, primary then fallbacks. Values: 1 start,
// 0 stop.
var apcUpsTestReports = []uint8{0x79, 0x0C, 0x1F, 0x15}

// apcDetectOrder is the probe sequence; the first report answering with at
// least one byte wins.
var apcDetectOrder = []uint8{0x0C, 0x16, 0x06, 0x01, 0x09}

// ApcHidDecoder decodes APC Back-UPS / Smart-UPS HID reports.
type ApcHidDecoder struct {
	Base

	model string
}

// NewApcHidDecoder creates an APC HID decoder bound to tr.
func NewApcHidDecoder(tr transport.Transport, opts Options) *ApcHidDecoder {
	return &ApcHidDecoder{Base: NewBase(tr, opts)}
}

// Name returns the decoder's display name.
func (d *ApcHidDecoder) Name() string { return "APC HID" }

// Protocol returns the protocol identifier.
func (d *ApcHidDecoder) Protocol() data.Protocol { return data.ProtocolApcHid }

// Detect probes the well-known APC report IDs with a short timeout.
func (d *ApcHidDecoder) Detect() bool {
	for _, id := range apcDetectOrder {
		if rep, ok := d.ReadReportTimeout(id, DetectTimeout); ok && len(rep) >= 1 {
			d.Logger().Debugf("apc-hid: detected via report 0x%02X (%d bytes)", id, len(rep))
			// Slow firmwares need a moment before the first real read.
			time.Sleep(SettleDelay)
			return true
		}
	}
	return false
}

// Initialize reads static identity. The model stays "Back-UPS ES" unless a
// product string descriptor overrides it.
func (d *ApcHidDecoder) Initialize() error {
	d.model = "Back-UPS ES"
	if s, err := d.Transport().GetStringDescriptor(1); err == nil {
		if product := cleanIdentityString(s); product != "" {
			d.model = product
		}
	}
	return nil
}

// ReadData refills the record from a fresh report sweep.
func (d *ApcHidDecoder) ReadData(u *data.UpsData) bool {
	u.Reset()
	u.Device.DetectedProtocol = data.ProtocolApcHid
	u.Device.Manufacturer = "APC"
	u.Device.Model = d.model

	updated := false

	if rep, ok := d.ReadReport(apcReportPowerSummary); ok && len(rep) >= 4 {
		u.Battery.Level = data.ClampPercent(float64(rep[1]))
		runtime := float64(uint16(rep[2]) | uint16(rep[3])<<8)
		if data.IsValidRuntime(runtime) {
			u.Battery.RuntimeMinutes = runtime
		}
		updated = true
	}

	haveStatus := false
	if rep, ok := d.ReadReport(apcReportPresentStatus); ok && len(rep) >= 2 {
		overload := len(rep) >= 3 && rep[2]&0x01 != 0
		d.applyPresentStatus(u, rep[1], overload)
		haveStatus = true
		updated = true
	}

	// The legacy single-byte status confirms 0x16 but never overrides it.
	if rep, ok := d.ReadReport(apcReportLegacyStatus); ok && len(rep) >= 2 {
		switch rep[1] {
		case 8:
			if !haveStatus {
				u.SetStatus(data.StatusOnline)
				updated = true
			}
		case 16:
			if !haveStatus {
				u.SetStatus(data.StatusOnBattery)
				updated = true
			}
		default:
			// Values other than 8/16 are seen in the wild; their meaning
			// is undefined, so the state is left alone.
			d.Logger().Debugf("apc-hid: unknown legacy status 0x%02X", rep[1])
		}
	}

	if rep, ok := d.ReadReport(apcReportInputVoltage); ok && len(rep) >= 3 {
		v := scaleLegacyVoltage(float64(uint16(rep[1]) | uint16(rep[2])<<8))
		if data.IsValidVoltage(v) {
			u.Power.InputVoltage = v
			updated = true
		}
	}

	if rep, ok := d.ReadReport(apcReportLoad); ok && len(rep) >= 2 {
		u.Power.LoadPercent = data.ClampPercent(float64(rep[1]))
		updated = true
	}

	if rep, ok := d.ReadReport(apcReportOutputLegacy); ok && len(rep) >= 3 {
		v := scaleLegacyVoltage(float64(uint16(rep[1]) | uint16(rep[2])<<8))
		if data.IsValidVoltage(v) {
			u.Power.OutputVoltage = v
			updated = true
		}
	}

	if rep, ok := d.ReadReport(apcReportConfig); ok && len(rep) >= 12 {
		raw := uint32(rep[8]) | uint32(rep[9])<<8 | uint32(rep[10])<<16 | uint32(rep[11])<<24
		if date := decodeApcDate(raw); date != "" {
			u.Device.MfrDate = date
			updated = true
		}
	}

	return updated
}

// applyPresentStatus maps the 0x16 bitmap onto status flags. Discharging
// evidence outranks AC-present when both appear.
func (d *ApcHidDecoder) applyPresentStatus(u *data.UpsData, bits uint8, overload bool) {
	var flags data.StatusFlags

	acPresent := bits&apcBitACPresent != 0
	discharging := bits&apcBitDischarging != 0

	if acPresent && !discharging {
		flags |= data.StatusOnline
	} else if discharging || !acPresent {
		flags |= data.StatusOnBattery
	}

	if bits&apcBitCharging != 0 {
		flags |= data.StatusCharging
		u.Battery.Status = "charging"
	} else if discharging {
		u.Battery.Status = "discharging"
	}

	if bits&(apcBitBelowCapacity|apcBitShutdownImminent) != 0 {
		flags |= data.StatusLowBattery
	}
	if bits&apcBitNeedsReplacement != 0 || bits&apcBitBatteryPresent == 0 {
		flags |= data.StatusFault
	}
	if overload {
		flags |= data.StatusOverload
	}

	u.SetStatus(flags)
}

// Commands lists the instant commands the APC HID path supports.
func (d *ApcHidDecoder) Commands() []string {
	return []string{
		"test.battery.start.quick",
		"test.battery.start.deep",
		"test.battery.stop",
		"test.panel.start",
		"test.panel.stop",
		"test.ups.start",
		"test.ups.stop",
	}
}

// writeCommand writes a single-byte command to the first report in the
// chain that accepts it.
func (d *ApcHidDecoder) writeCommand(reports []uint8, value uint8) error {
	var lastErr error
	for _, id := range reports {
		if err := d.WriteFeature(id, []byte{value}); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = ErrNotSupported
	}
	return fmt.Errorf("apc-hid command %d: %w", value, lastErr)
}

// StartBatteryTestQuick starts a quick battery self-test.
func (d *ApcHidDecoder) StartBatteryTestQuick() error {
	return d.writeCommand(apcBatteryTestReports, 1)
}

// StartBatteryTestDeep starts a deep battery self-test.
func (d *ApcHidDecoder) StartBatteryTestDeep() error {
	return d.writeCommand(apcBatteryTestReports, 2)
}

// StopBatteryTest aborts a running battery test.
func (d *ApcHidDecoder) StopBatteryTest() error {
	return d.writeCommand(apcBatteryTestReports, 3)
}

// StartUpsTest starts a UPS/panel self-test.
func (d *ApcHidDecoder) StartUpsTest() error {
	return d.writeCommand(apcUpsTestReports, 1)
}

// StopUpsTest stops a UPS/panel self-test.
func (d *ApcHidDecoder) StopUpsTest() error {
	return d.writeCommand(apcUpsTestReports, 0)
}

// scaleLegacyVoltage rescales raw voltage words that arrive in tenths.
func scaleLegacyVoltage(raw float64) float64 {
	if raw > 1000 {
		return raw / 10
	}
	return raw
}

// decodeApcDate decodes APC's "hex-as-decimal" date encoding: 0x102202
// reads as 10/22/02. Two-digit years follow the usual Y2K rule.
func decodeApcDate(raw uint32) string {
	if raw == 0 {
		return ""
	}
	month := hexAsDecimal(uint8(raw >> 16))
	day := hexAsDecimal(uint8(raw >> 8))
	year := hexAsDecimal(uint8(raw))
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return ""
	}
	full := 1900 + year
	if year <= 69 {
		full = 2000 + year
	}
	return fmt.Sprintf("%02d/%02d/%04d", month, day, full)
}

// hexAsDecimal reads a byte's hex digits as a decimal number: 0x22 → 22.
func hexAsDecimal(b uint8) int {
	return int(b>>4)*10 + int(b&0x0F)
}

// cleanIdentityString trims whitespace and any trailing " FW:..." token.
func cleanIdentityString(s string) string {
	if i := strings.Index(s, " FW:"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// Compile-time interface satisfaction check.
var _ Decoder = (*ApcHidDecoder)(nil)
