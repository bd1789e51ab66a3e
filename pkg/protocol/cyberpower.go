package protocol

import (
	"fmt"
	"strings"
	"time"

	"github.com/nutbridge/nutbridge-go/pkg/data"
	"github.com/nutbridge/nutbridge-go/pkg/transport"
)

// CyberPower report IDs.
const (
	cpsReportSerialIndex    = 0x02
	cpsReportCapacityLimits = 0x07
	cpsReportBatteryStatus  = 0x08
	cpsReportVoltageNominal = 0x09
	cpsReportVoltage        = 0x0A
	cpsReportStatus         = 0x0B
	cpsReportBeeper         = 0x0C
	cpsReportInputNominal   = 0x0E
	cpsReportInputVoltage   = 0x0F
	cpsReportTransferLimits = 0x10
	cpsReportOutputVoltage  = 0x12
	cpsReportLoad           = 0x13
	cpsReportBatteryTest    = 0x14
	cpsReportDelayShutdown  = 0x15
	cpsReportDelayStart     = 0x16
	cpsReportOverload       = 0x17
	cpsReportRealpower      = 0x18
	cpsReportSensitivity    = 0x1A
	cpsReportFirmwareIndex  = 0x1B
)

// Status report (0x0B) bits.
const (
	cpsBitACPresent        = 1 << 0
	cpsBitCharging         = 1 << 1
	cpsBitDischarging      = 1 << 2
	cpsBitLowBattery       = 1 << 3
	cpsBitFullyCharged     = 1 << 4
	cpsBitTimeLimitExpired = 1 << 5
)

// Beeper control values for report 0x0C.
const (
	cpsBeeperDisable = 1
	cpsBeeperEnable  = 2
	cpsBeeperMute    = 3
)

// Default delays substituted when the device reports the 0xFFFF sentinel.
const (
	cpsDefaultShutdownDelay = 60
	cpsDefaultStartDelay    = 120
)

// cpsDetectOrder is the probe sequence.
var cpsDetectOrder = []uint8{0x08, 0x0B, 0x0F, 0x13, 0x0A}

// CyberPowerDecoder decodes CyberPower (CPS) HID reports. Static identity
// comes from USB string descriptors; two reports point at the serial and
// firmware string indexes.
type CyberPowerDecoder struct {
	Base

	// Battery voltage scaling guard: decided exactly once per session.
	scalingDecided bool
	scaleBattery   bool

	mfr      string
	model    string
	serial   string
	firmware string
}

// NewCyberPowerDecoder creates a CyberPower decoder bound to tr.
func NewCyberPowerDecoder(tr transport.Transport, opts Options) *CyberPowerDecoder {
	return &CyberPowerDecoder{Base: NewBase(tr, opts)}
}

// Name returns the decoder's display name.
func (d *CyberPowerDecoder) Name() string { return "CyberPower HID" }

// Protocol returns the protocol identifier.
func (d *CyberPowerDecoder) Protocol() data.Protocol { return data.ProtocolCyberPowerHid }

// Detect probes the well-known CyberPower report IDs.
func (d *CyberPowerDecoder) Detect() bool {
	for _, id := range cpsDetectOrder {
		if rep, ok := d.ReadReportTimeout(id, DetectTimeout); ok && len(rep) >= 1 {
			d.Logger().Debugf("cyberpower: detected via report 0x%02X (%d bytes)", id, len(rep))
			time.Sleep(SettleDelay)
			return true
		}
	}
	return false
}

// Initialize resolves static identity from string descriptors. Descriptor
// failures leave fields unset; no hard-coded per-device fallbacks.
func (d *CyberPowerDecoder) Initialize() error {
	tr := d.Transport()

	if s, err := tr.GetStringDescriptor(3); err == nil {
		d.mfr = strings.TrimSpace(s)
	}
	if s, err := tr.GetStringDescriptor(1); err == nil {
		d.model = cleanIdentityString(s)
	}

	// Report 0x02 points at the serial-number string index.
	if rep, ok := d.ReadReport(cpsReportSerialIndex); ok && len(rep) >= 2 && rep[1] != 0 {
		if s, err := tr.GetStringDescriptor(rep[1]); err == nil {
			d.serial = strings.TrimSpace(s)
		}
	}

	// Report 0x1B points at the firmware-version string index.
	if rep, ok := d.ReadReport(cpsReportFirmwareIndex); ok && len(rep) >= 2 {
		d.firmware = d.resolveFirmware(rep)
	}

	return nil
}

// resolveFirmware tries the descriptor the report points at, then printable
// bytes of the report itself, then a synthesized CP-XX.YY.ZZ form.
func (d *CyberPowerDecoder) resolveFirmware(rep []byte) string {
	if rep[1] != 0 {
		if s, err := d.Transport().GetStringDescriptor(rep[1]); err == nil {
			if fw := cleanFirmwareString(s); fw != "" {
				return fw
			}
		}
	}
	if fw := cleanFirmwareString(string(rep[1:])); fw != "" {
		return fw
	}
	if len(rep) >= 4 {
		return fmt.Sprintf("CP-%02X.%02X.%02X", rep[1], rep[2], rep[3])
	}
	return ""
}

// ReadData refills the record from a fresh report sweep. Reports are read
// in a defined order: the nominal battery voltage must arrive before the
// measured one so the scaling guard can compare them.
func (d *CyberPowerDecoder) ReadData(u *data.UpsData) bool {
	u.Reset()
	u.Device.DetectedProtocol = data.ProtocolCyberPowerHid
	u.Device.Manufacturer = d.mfr
	u.Device.Model = d.model
	u.Device.SerialNumber = d.serial
	u.Device.FirmwareVersion = d.firmware

	updated := false

	// Capacity limits. FullChargeCapacity at byte 6 is informational only
	// and must never feed battery.status.
	if rep, ok := d.ReadReport(cpsReportCapacityLimits); ok && len(rep) >= 6 {
		u.Battery.ChargeWarning = data.ClampPercent(float64(rep[4]))
		u.Battery.ChargeLow = data.ClampPercent(float64(rep[5]))
		updated = true
	}

	if rep, ok := d.ReadReport(cpsReportBatteryStatus); ok && len(rep) >= 4 {
		u.Battery.Level = data.ClampPercent(float64(rep[1]))
		runtime := float64(uint16(rep[2]) | uint16(rep[3])<<8)
		if data.IsValidRuntime(runtime) {
			u.Battery.RuntimeMinutes = runtime
		}
		if len(rep) >= 6 {
			low := float64(uint16(rep[4]) | uint16(rep[5])<<8)
			if data.IsValidRuntime(low) {
				u.Battery.RuntimeLowMinutes = low
			}
		}
		updated = true
	}

	if rep, ok := d.ReadReport(cpsReportVoltageNominal); ok && len(rep) >= 2 {
		u.Battery.VoltageNominal = float64(rep[1]) / 10
		updated = true
	}

	if rep, ok := d.ReadReport(cpsReportVoltage); ok && len(rep) >= 2 {
		v := float64(rep[1]) / 10
		u.Battery.Voltage = d.guardBatteryScale(v, u.Battery.VoltageNominal)
		updated = true
	}

	if rep, ok := d.ReadReport(cpsReportStatus); ok && len(rep) >= 2 {
		d.applyStatus(u, rep[1])
		updated = true
	}

	if rep, ok := d.ReadReport(cpsReportBeeper); ok && len(rep) >= 2 {
		switch rep[1] {
		case cpsBeeperDisable:
			u.Config.ParseBeeperStatus("disabled")
		case cpsBeeperEnable:
			u.Config.ParseBeeperStatus("enabled")
		case cpsBeeperMute:
			u.Config.ParseBeeperStatus("muted")
		default:
			u.Config.ParseBeeperStatus("unknown")
		}
		updated = true
	}

	if rep, ok := d.ReadReport(cpsReportInputNominal); ok && len(rep) >= 2 {
		v := float64(rep[1])
		if data.IsValidVoltage(v) {
			u.Power.InputVoltageNominal = v
			updated = true
		}
	}

	if rep, ok := d.ReadReport(cpsReportInputVoltage); ok && len(rep) >= 3 {
		v := float64(uint16(rep[1]) | uint16(rep[2])<<8)
		if data.IsValidVoltage(v) {
			u.Power.InputVoltage = v
			updated = true
		}
	}

	if rep, ok := d.ReadReport(cpsReportTransferLimits); ok && len(rep) >= 5 {
		low := float64(uint16(rep[1]) | uint16(rep[2])<<8)
		high := float64(uint16(rep[3]) | uint16(rep[4])<<8)
		if data.IsValidVoltage(low) {
			u.Power.InputTransferLow = low
		}
		if data.IsValidVoltage(high) {
			u.Power.InputTransferHigh = high
		}
		updated = true
	}

	if rep, ok := d.ReadReport(cpsReportOutputVoltage); ok && len(rep) >= 3 {
		v := float64(uint16(rep[1]) | uint16(rep[2])<<8)
		if data.IsValidVoltage(v) {
			u.Power.OutputVoltage = v
			updated = true
		}
	}

	if rep, ok := d.ReadReport(cpsReportLoad); ok && len(rep) >= 2 {
		u.Power.LoadPercent = data.ClampPercent(float64(rep[1]))
		updated = true
	}

	if d.readDelays(u) {
		updated = true
	}

	if rep, ok := d.ReadReport(cpsReportOverload); ok && len(rep) >= 2 && rep[1]&0x01 != 0 {
		u.SetStatus(u.StatusFlags | data.StatusOverload)
		updated = true
	}

	if rep, ok := d.ReadReport(cpsReportRealpower); ok && len(rep) >= 3 {
		w := float64(uint16(rep[1]) | uint16(rep[2])<<8)
		if w > 0 {
			u.Power.RealpowerNominal = w
			updated = true
		}
	}

	if rep, ok := d.ReadReport(cpsReportSensitivity); ok && len(rep) >= 2 {
		d.applySensitivity(u, rep)
		updated = true
	}

	return updated
}

// guardBatteryScale applies the one-shot 2/3 correction for models that
// report battery voltage in a higher-range unit.
func (d *CyberPowerDecoder) guardBatteryScale(v, nominal float64) float64 {
	if !d.scalingDecided && data.IsSet(nominal) && nominal > 0 {
		d.scalingDecided = true
		d.scaleBattery = v > 1.4*nominal
		if d.scaleBattery {
			d.Logger().Debugf("cyberpower: battery voltage %.1fV vs nominal %.1fV, applying 2/3 scale", v, nominal)
		}
	}
	if d.scaleBattery {
		return v * 2 / 3
	}
	return v
}

// applyStatus maps the 0x0B bitmap onto status flags. Discharging evidence
// outranks AC-present.
func (d *CyberPowerDecoder) applyStatus(u *data.UpsData, bits uint8) {
	var flags data.StatusFlags

	acPresent := bits&cpsBitACPresent != 0
	discharging := bits&cpsBitDischarging != 0

	if acPresent && !discharging {
		flags |= data.StatusOnline
	} else {
		flags |= data.StatusOnBattery
	}

	if bits&cpsBitCharging != 0 {
		flags |= data.StatusCharging
		u.Battery.Status = "charging"
	} else if discharging {
		u.Battery.Status = "discharging"
	}

	if bits&(cpsBitLowBattery|cpsBitTimeLimitExpired) != 0 {
		flags |= data.StatusLowBattery
	}

	u.SetStatus(flags)
}

// applySensitivity decodes report 0x1A. Values of 100 and above indicate
// the setting lives in the alternate byte on some firmwares.
func (d *CyberPowerDecoder) applySensitivity(u *data.UpsData, rep []byte) {
	raw := rep[1]
	if raw >= 100 && len(rep) >= 3 {
		raw = rep[2]
	}
	switch raw {
	case 0:
		u.Config.ParseInputSensitivity("high")
	case 1:
		u.Config.ParseInputSensitivity("normal")
	case 2:
		u.Config.ParseInputSensitivity("low")
	case 3:
		u.Config.ParseInputSensitivity("auto")
	default:
		d.Logger().Debugf("cyberpower: unknown sensitivity value %d", raw)
	}
}

// readDelays reads the shutdown/start delay reports into config and timer
// fields. The 0xFFFF sentinel substitutes the documented defaults.
func (d *CyberPowerDecoder) readDelays(u *data.UpsData) bool {
	updated := false

	if rep, ok := d.ReadReport(cpsReportDelayShutdown); ok && len(rep) >= 3 {
		raw := int16(uint16(rep[1]) | uint16(rep[2])<<8)
		u.Config.DelayShutdown = delayOrDefault(raw, cpsDefaultShutdownDelay)
		if raw > 0 {
			u.Test.TimerShutdown = int(raw)
		}
		updated = true
	}

	if rep, ok := d.ReadReport(cpsReportDelayStart); ok && len(rep) >= 3 {
		raw := int16(uint16(rep[1]) | uint16(rep[2])<<8)
		u.Config.DelayStart = delayOrDefault(raw, cpsDefaultStartDelay)
		if raw > 0 {
			u.Test.TimerStart = int(raw)
		}
		updated = true
	}

	return updated
}

// delayOrDefault maps the 0xFFFF (-1) sentinel to the model default.
func delayOrDefault(raw int16, def int) int {
	if raw == -1 {
		return def
	}
	return int(raw)
}

// ReadTimerData refreshes only the countdown timers for the fast-poll path.
func (d *CyberPowerDecoder) ReadTimerData(u *data.UpsData) bool {
	updated := false

	if rep, ok := d.ReadReport(cpsReportDelayShutdown); ok && len(rep) >= 3 {
		raw := int16(uint16(rep[1]) | uint16(rep[2])<<8)
		if raw > 0 {
			u.Test.TimerShutdown = int(raw)
		} else {
			u.Test.TimerShutdown = -1
		}
		updated = true
	}

	if rep, ok := d.ReadReport(cpsReportDelayStart); ok && len(rep) >= 3 {
		raw := int16(uint16(rep[1]) | uint16(rep[2])<<8)
		if raw > 0 {
			u.Test.TimerStart = int(raw)
		} else {
			u.Test.TimerStart = -1
		}
		updated = true
	}

	return updated
}

// Commands lists the instant commands the CyberPower path supports.
func (d *CyberPowerDecoder) Commands() []string {
	return []string{
		"beeper.enable",
		"beeper.disable",
		"beeper.mute",
		"beeper.test",
		"test.battery.start.quick",
		"test.battery.start.deep",
		"test.battery.stop",
	}
}

// BeeperEnable turns the audible alarm on.
func (d *CyberPowerDecoder) BeeperEnable() error {
	return d.WriteFeature(cpsReportBeeper, []byte{cpsBeeperEnable})
}

// BeeperDisable turns the audible alarm off.
func (d *CyberPowerDecoder) BeeperDisable() error {
	return d.WriteFeature(cpsReportBeeper, []byte{cpsBeeperDisable})
}

// BeeperMute silences the current alarm without disabling future ones.
func (d *CyberPowerDecoder) BeeperMute() error {
	return d.WriteFeature(cpsReportBeeper, []byte{cpsBeeperMute})
}

// BeeperTest toggles the beeper off and on, then restores the original
// setting. Audible on some firmwares.
func (d *CyberPowerDecoder) BeeperTest() error {
	original := byte(cpsBeeperEnable)
	if rep, ok := d.ReadReport(cpsReportBeeper); ok && len(rep) >= 2 {
		original = rep[1]
	}

	if err := d.WriteFeature(cpsReportBeeper, []byte{cpsBeeperDisable}); err != nil {
		return err
	}
	time.Sleep(3 * time.Second)
	if err := d.WriteFeature(cpsReportBeeper, []byte{cpsBeeperEnable}); err != nil {
		return err
	}
	time.Sleep(500 * time.Millisecond)
	return d.WriteFeature(cpsReportBeeper, []byte{original})
}

// StartBatteryTestQuick starts a quick battery self-test.
func (d *CyberPowerDecoder) StartBatteryTestQuick() error {
	return d.WriteFeature(cpsReportBatteryTest, []byte{1})
}

// StartBatteryTestDeep starts a deep battery self-test.
func (d *CyberPowerDecoder) StartBatteryTestDeep() error {
	return d.WriteFeature(cpsReportBatteryTest, []byte{2})
}

// StopBatteryTest aborts a running battery test.
func (d *CyberPowerDecoder) StopBatteryTest() error {
	return d.WriteFeature(cpsReportBatteryTest, []byte{3})
}

// SetShutdownDelay writes the shutdown delay in seconds.
func (d *CyberPowerDecoder) SetShutdownDelay(seconds int) error {
	return d.writeDelay(cpsReportDelayShutdown, seconds)
}

// SetStartDelay writes the start delay in seconds.
func (d *CyberPowerDecoder) SetStartDelay(seconds int) error {
	return d.writeDelay(cpsReportDelayStart, seconds)
}

// writeDelay writes a signed 16-bit little-endian delay.
func (d *CyberPowerDecoder) writeDelay(reportID uint8, seconds int) error {
	if seconds < -32768 || seconds > 32767 {
		return fmt.Errorf("delay %d out of range", seconds)
	}
	v := uint16(int16(seconds))
	return d.WriteFeature(reportID, []byte{uint8(v), uint8(v >> 8)})
}

// cleanFirmwareString keeps [A-Za-z0-9.- ] and trims the result.
func cleanFirmwareString(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9',
			r == '.', r == '-', r == ' ':
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// Compile-time interface satisfaction check.
var _ Decoder = (*CyberPowerDecoder)(nil)
