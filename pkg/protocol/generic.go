package protocol

import (
	"sort"
	"time"

	"github.com/nutbridge/nutbridge-go/pkg/data"
	"github.com/nutbridge/nutbridge-go/pkg/transport"
)

// genericCuratedReports are the report IDs probed first: the ones UPS
// firmwares most commonly answer.
var genericCuratedReports = []uint8{0x01, 0x06, 0x0C, 0x16, 0x30, 0x31, 0x40, 0x50}

// genericExtendedRange is scanned once at initialization to map the rest of
// the device's report surface.
const (
	genericExtendedFrom = 0x02
	genericExtendedTo   = 0x20
)

// genericSpecializedVendors are vendors with dedicated decoders; the
// heuristic fallback refuses them so the specialized path always wins.
var genericSpecializedVendors = map[uint16]bool{
	transport.VendorAPC:        true,
	transport.VendorCyberPower: true,
}

// reportProbe records how a report answered during enumeration.
type reportProbe struct {
	id   uint8
	typ  transport.ReportType
	size int
}

// GenericHidDecoder enumerates whatever reports the device answers and
// parses them heuristically. It is the fallback of last resort for vendors
// without a dedicated decoder.
type GenericHidDecoder struct {
	Base

	probes map[uint8]*reportProbe
}

// NewGenericHidDecoder creates a generic fallback decoder bound to tr.
func NewGenericHidDecoder(tr transport.Transport, opts Options) *GenericHidDecoder {
	return &GenericHidDecoder{
		Base:   NewBase(tr, opts),
		probes: make(map[uint8]*reportProbe),
	}
}

// Name returns the decoder's display name.
func (d *GenericHidDecoder) Name() string { return "Generic HID" }

// Protocol returns the protocol identifier.
func (d *GenericHidDecoder) Protocol() data.Protocol { return data.ProtocolGenericHid }

// Detect refuses specialized vendors and otherwise probes the curated set.
func (d *GenericHidDecoder) Detect() bool {
	if genericSpecializedVendors[d.Transport().VendorID()] {
		d.Logger().Debugf("generic-hid: specialized vendor %04x, deferring", d.Transport().VendorID())
		return false
	}
	for _, id := range genericCuratedReports {
		if rep, ok := d.ReadReportTimeout(id, DetectTimeout); ok && len(rep) >= 1 {
			d.Logger().Debugf("generic-hid: detected via report 0x%02X", id)
			time.Sleep(SettleDelay)
			return true
		}
	}
	return false
}

// Initialize enumerates the device's report surface: the curated set plus
// an extended ID range, recording report type and size per answering ID.
func (d *GenericHidDecoder) Initialize() error {
	ids := append([]uint8(nil), genericCuratedReports...)
	for id := uint8(genericExtendedFrom); id <= genericExtendedTo; id++ {
		ids = append(ids, id)
	}

	seen := make(map[uint8]bool)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		d.probeReport(id)
	}

	d.Logger().Debugf("generic-hid: enumerated %d answering reports", len(d.probes))
	return nil
}

// probeReport records whether a report answers as Input or Feature.
func (d *GenericHidDecoder) probeReport(id uint8) {
	buf := make([]byte, 64)
	for _, rt := range []transport.ReportType{transport.ReportTypeInput, transport.ReportTypeFeature} {
		n, err := d.Transport().HIDGetReport(rt, id, buf, DetectTimeout)
		if err != nil || n == 0 {
			continue
		}
		d.probes[id] = &reportProbe{id: id, typ: rt, size: n}
		return
	}
}

// enumeratedIDs returns answering report IDs in ascending order.
func (d *GenericHidDecoder) enumeratedIDs() []uint8 {
	ids := make([]uint8, 0, len(d.probes))
	for id := range d.probes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ReadData refills the record by sweeping every enumerated report through
// the heuristic parsers.
func (d *GenericHidDecoder) ReadData(u *data.UpsData) bool {
	u.Reset()
	u.Device.DetectedProtocol = data.ProtocolGenericHid

	if len(d.probes) == 0 {
		// Detect-then-read without Initialize still works.
		_ = d.Initialize()
	}

	updated := false
	for _, id := range d.enumeratedIDs() {
		probe := d.probes[id]
		buf := make([]byte, 64)
		n, err := d.Transport().HIDGetReport(probe.typ, id, buf, d.Timeout())
		if err != nil || n == 0 {
			continue
		}
		if d.parseReport(u, id, buf[:n]) {
			updated = true
		}
	}
	return updated
}

// parseReport dispatches one report to its heuristic parser.
func (d *GenericHidDecoder) parseReport(u *data.UpsData, id uint8, rep []byte) bool {
	switch id {
	case 0x0C:
		return parseGenericPowerSummary(u, rep)
	case 0x06:
		return parseGenericStatusByte(u, rep)
	case 0x16:
		return parseGenericPresentStatus(u, rep)
	case 0x30:
		return parseGenericVoltage(&u.Power.InputVoltage, rep)
	case 0x31:
		return parseGenericVoltage(&u.Power.OutputVoltage, rep)
	case 0x50:
		return parseGenericLoad(u, rep)
	case 0x1A, 0x35:
		return parseGenericSensitivity(u, rep)
	default:
		return scanUnknownReport(u, rep)
	}
}

// parseGenericPowerSummary reads battery percent (halved when doubled) and
// runtime minutes.
func parseGenericPowerSummary(u *data.UpsData, rep []byte) bool {
	if len(rep) < 2 {
		return false
	}
	level := float64(rep[1])
	if level > 100 && level <= 200 {
		level /= 2
	}
	if !data.IsValidPercent(level) {
		return false
	}
	u.Battery.Level = level

	if len(rep) >= 4 {
		runtime := float64(uint16(rep[2]) | uint16(rep[3])<<8)
		if data.IsValidRuntime(runtime) {
			u.Battery.RuntimeMinutes = runtime
		}
	}
	return true
}

// parseGenericStatusByte reads the compact status byte, with an optional
// battery percentage in the following byte.
func parseGenericStatusByte(u *data.UpsData, rep []byte) bool {
	if len(rep) < 2 {
		return false
	}
	bits := rep[1]
	var flags data.StatusFlags
	if bits&(1<<1) != 0 {
		flags |= data.StatusOnBattery
	} else if bits&(1<<0) != 0 {
		flags |= data.StatusOnline
	}
	if bits&(1<<2) != 0 {
		flags |= data.StatusLowBattery
	}
	if bits&(1<<3) != 0 {
		flags |= data.StatusCharging
	}
	if bits&(1<<4) != 0 {
		flags |= data.StatusReplaceBattery
	}
	if flags == data.StatusUnknown {
		return false
	}
	u.SetStatus(flags)

	if len(rep) >= 3 && !data.IsSet(u.Battery.Level) {
		if level := float64(rep[2]); data.IsValidPercent(level) {
			u.Battery.Level = level
		}
	}
	return true
}

// parseGenericPresentStatus reads the 7-bit PresentStatus bitmap with the
// usual power-device semantics.
func parseGenericPresentStatus(u *data.UpsData, rep []byte) bool {
	if len(rep) < 2 {
		return false
	}
	bits := rep[1]
	var flags data.StatusFlags

	acPresent := bits&apcBitACPresent != 0
	discharging := bits&apcBitDischarging != 0

	if acPresent && !discharging {
		flags |= data.StatusOnline
	} else {
		flags |= data.StatusOnBattery
	}
	if bits&apcBitCharging != 0 {
		flags |= data.StatusCharging
	}
	if bits&(apcBitBelowCapacity|apcBitShutdownImminent) != 0 {
		flags |= data.StatusLowBattery
	}
	if bits&apcBitNeedsReplacement != 0 {
		flags |= data.StatusReplaceBattery
	}
	u.SetStatus(flags)
	return true
}

// parseGenericVoltage reads a 16-bit little-endian voltage, auto-scaled
// from tenths, and accepts it only in the plausible mains range.
func parseGenericVoltage(field *float64, rep []byte) bool {
	if len(rep) < 3 {
		return false
	}
	raw := float64(uint16(rep[1]) | uint16(rep[2])<<8)
	if raw == 0xFFFF {
		return false
	}
	v := scaleLegacyVoltage(raw)
	if v < 80 || v > 300 {
		return false
	}
	*field = v
	return true
}

// parseGenericLoad reads the load percentage, halving doubled encodings.
func parseGenericLoad(u *data.UpsData, rep []byte) bool {
	if len(rep) < 2 {
		return false
	}
	load := float64(rep[1])
	if load >= 100 && load <= 200 {
		load /= 2
	}
	if !data.IsValidPercent(load) {
		return false
	}
	u.Power.LoadPercent = load
	return true
}

// parseGenericSensitivity reads an input-sensitivity selector.
func parseGenericSensitivity(u *data.UpsData, rep []byte) bool {
	if len(rep) < 2 {
		return false
	}
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
		return false
	}
	return true
}

// scanUnknownReport looks for plausible percentages, voltages, and runtime
// values in a report with no dedicated parser. Fields already filled by a
// dedicated parser are never overwritten.
func scanUnknownReport(u *data.UpsData, rep []byte) bool {
	updated := false

	for i := 1; i < len(rep); i++ {
		if !data.IsSet(u.Battery.Level) {
			if v := float64(rep[i]); v > 0 && v <= 100 {
				u.Battery.Level = v
				updated = true
				continue
			}
		}
	}

	for i := 1; i+1 < len(rep); i++ {
		raw := float64(uint16(rep[i]) | uint16(rep[i+1])<<8)
		if raw == 0 || raw == 0xFFFF {
			continue
		}
		if !data.IsSet(u.Power.InputVoltage) {
			if v := scaleLegacyVoltage(raw); v >= 80 && v <= 300 {
				u.Power.InputVoltage = v
				updated = true
				continue
			}
		}
		if !data.IsSet(u.Battery.RuntimeMinutes) && raw >= 1 && raw <= 999 {
			u.Battery.RuntimeMinutes = raw
			updated = true
		}
	}

	return updated
}

// Commands lists the instant commands attempted through the common report
// chains.
func (d *GenericHidDecoder) Commands() []string {
	return []string{
		"test.battery.start.quick",
		"test.battery.start.deep",
		"test.battery.stop",
		"test.ups.start",
		"test.ups.stop",
	}
}

// genericBatteryTestReports are tried in order for battery-test commands.
var genericBatteryTestReports = []uint8{0x14, 0x52, 0x0F, 0x1A}

// genericUpsTestReports are tried in order for UPS-test commands.
var genericUpsTestReports = []uint8{0x79, 0x0C, 0x1F, 0x15}

// writeCommand writes a single-byte command through a report chain.
func (d *GenericHidDecoder) writeCommand(reports []uint8, value uint8) error {
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
	return lastErr
}

// StartBatteryTestQuick starts a quick battery self-test.
func (d *GenericHidDecoder) StartBatteryTestQuick() error {
	return d.writeCommand(genericBatteryTestReports, 1)
}

// StartBatteryTestDeep starts a deep battery self-test.
func (d *GenericHidDecoder) StartBatteryTestDeep() error {
	return d.writeCommand(genericBatteryTestReports, 2)
}

// StopBatteryTest aborts a running battery test.
func (d *GenericHidDecoder) StopBatteryTest() error {
	return d.writeCommand(genericBatteryTestReports, 3)
}

// StartUpsTest starts a UPS self-test.
func (d *GenericHidDecoder) StartUpsTest() error {
	return d.writeCommand(genericUpsTestReports, 1)
}

// StopUpsTest stops a UPS self-test.
func (d *GenericHidDecoder) StopUpsTest() error {
	return d.writeCommand(genericUpsTestReports, 0)
}

// Compile-time interface satisfaction check.
var _ Decoder = (*GenericHidDecoder)(nil)
