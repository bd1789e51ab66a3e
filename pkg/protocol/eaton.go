package protocol

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nutbridge/nutbridge-go/pkg/data"
	"github.com/nutbridge/nutbridge-go/pkg/transport"
)

// Eaton/MGE report IDs.
const (
	eatonReportPowerSummary  = 0x0C
	eatonReportPresentStatus = 0x16
	eatonReportVoltageA      = 0x30
	eatonReportVoltageB      = 0x31
	eatonReportLoad          = 0x35
)

// eatonDetectOrder is the probe sequence.
var eatonDetectOrder = []uint8{0x0C, 0x16, 0x06, 0x30, 0x31}

// eatonSwapBias is how much closer (in volts) the 0x31 candidate must sit to
// the nominal before the input/output role assignment switches.
const eatonSwapBias = 8.0

// eatonDefaultNominalWatts is the heuristic wattage used for load-from-power
// derivation when the model string does not reveal a rating.
const eatonDefaultNominalWatts = 1500.0

// EatonDecoder probes MGE-style reports with heuristic voltage and load
// extraction. Eaton units vary widely in scaling; candidates are rescaled
// and matched against the configured nominal voltage.
type EatonDecoder struct {
	Base

	mfr   string
	model string
}

// NewEatonDecoder creates an Eaton/MGE decoder bound to tr.
func NewEatonDecoder(tr transport.Transport, opts Options) *EatonDecoder {
	return &EatonDecoder{Base: NewBase(tr, opts)}
}

// Name returns the decoder's display name.
func (d *EatonDecoder) Name() string { return "Eaton HID" }

// Protocol returns the protocol identifier.
func (d *EatonDecoder) Protocol() data.Protocol { return data.ProtocolEatonHid }

// Detect probes the MGE-style report set.
func (d *EatonDecoder) Detect() bool {
	for _, id := range eatonDetectOrder {
		if rep, ok := d.ReadReportTimeout(id, DetectTimeout); ok && len(rep) >= 1 {
			d.Logger().Debugf("eaton: detected via report 0x%02X (%d bytes)", id, len(rep))
			time.Sleep(SettleDelay)
			return true
		}
	}
	return false
}

// Initialize resolves identity from string descriptors.
func (d *EatonDecoder) Initialize() error {
	tr := d.Transport()
	if s, err := tr.GetStringDescriptor(3); err == nil {
		d.mfr = strings.TrimSpace(s)
	}
	if s, err := tr.GetStringDescriptor(1); err == nil {
		d.model = cleanIdentityString(s)
	}
	return nil
}

// ReadData refills the record from a fresh report sweep.
func (d *EatonDecoder) ReadData(u *data.UpsData) bool {
	u.Reset()
	u.Device.DetectedProtocol = data.ProtocolEatonHid
	u.Device.Manufacturer = d.mfr
	u.Device.Model = d.model

	updated := false

	if rep, ok := d.ReadReport(eatonReportPowerSummary); ok && len(rep) >= 4 {
		u.Battery.Level = data.ClampPercent(float64(rep[1]))
		// MGE firmwares report runtime in seconds.
		seconds := float64(uint16(rep[2]) | uint16(rep[3])<<8)
		minutes := seconds / 60
		if data.IsValidRuntime(minutes) {
			u.Battery.RuntimeMinutes = minutes
		}
		updated = true
	}

	if rep, ok := d.ReadReport(eatonReportPresentStatus); ok && len(rep) >= 2 {
		d.applyPresentStatus(u, rep[1])
		updated = true
	}

	if d.readVoltages(u) {
		updated = true
	}
	if d.readLoad(u) {
		updated = true
	}

	return updated
}

// applyPresentStatus reuses the APC bit semantics for the 0x16 bitmap.
func (d *EatonDecoder) applyPresentStatus(u *data.UpsData, bits uint8) {
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
		u.Battery.Status = "charging"
	} else if discharging {
		u.Battery.Status = "discharging"
	}
	if bits&(apcBitBelowCapacity|apcBitShutdownImminent) != 0 {
		flags |= data.StatusLowBattery
	}
	if bits&apcBitNeedsReplacement != 0 {
		flags |= data.StatusFault
	}

	u.SetStatus(flags)
}

// readVoltages extracts input/output voltages from reports 0x30/0x31 with
// heuristic rescaling. Input prefers 0x30 and output 0x31; roles switch
// only when the other candidate sits clearly closer to the nominal.
func (d *EatonDecoder) readVoltages(u *data.UpsData) bool {
	nominal := d.FallbackNominalVoltage()

	vA, okA := d.readScaledVoltage(eatonReportVoltageA, nominal)
	vB, okB := d.readScaledVoltage(eatonReportVoltageB, nominal)

	switch {
	case okA && okB:
		if math.Abs(vB-nominal)+eatonSwapBias < math.Abs(vA-nominal) {
			vA, vB = vB, vA
		}
		u.Power.InputVoltage = vA
		u.Power.OutputVoltage = vB
	case okA:
		u.Power.InputVoltage = vA
	case okB:
		u.Power.OutputVoltage = vB
	default:
		return false
	}
	return true
}

// readScaledVoltage reads a 16-bit little-endian word and picks the scale
// divisor whose result lands closest to the nominal voltage.
func (d *EatonDecoder) readScaledVoltage(reportID uint8, nominal float64) (float64, bool) {
	rep, ok := d.ReadReport(reportID)
	if !ok || len(rep) < 3 {
		return 0, false
	}
	raw := float64(uint16(rep[1]) | uint16(rep[2])<<8)
	if raw == 0 || raw == 0xFFFF {
		return 0, false
	}
	return pickVoltageScale(raw, nominal)
}

// pickVoltageScale tries the known divisors and returns the valid candidate
// closest to nominal.
func pickVoltageScale(raw, nominal float64) (float64, bool) {
	best := 0.0
	bestDist := math.Inf(1)
	for _, div := range []float64{1, 10, 100, 2, 5} {
		v := raw / div
		if !data.IsValidVoltage(v) {
			continue
		}
		if dist := math.Abs(v - nominal); dist < bestDist {
			best, bestDist = v, dist
		}
	}
	return best, !math.IsInf(bestDist, 1)
}

// readLoad extracts the load percentage: the dedicated report when
// plausible, otherwise a scan of nearby reports, otherwise a watts-based
// derivation against the nominal rating. The wattage fallback is heuristic.
func (d *EatonDecoder) readLoad(u *data.UpsData) bool {
	if rep, ok := d.ReadReport(eatonReportLoad); ok && len(rep) >= 2 && rep[1] <= 100 {
		u.Power.LoadPercent = float64(rep[1])
		return true
	}

	// Scan neighboring reports for a plausible percentage.
	for _, id := range []uint8{eatonReportVoltageB, 0x06, eatonReportPowerSummary} {
		rep, ok := d.ReadReport(id)
		if !ok {
			continue
		}
		for _, b := range rep[1:] {
			if b > 0 && b <= 100 {
				u.Power.LoadPercent = float64(b)
				return true
			}
		}
	}

	// Last resort: a 16-bit value that looks like watts, against the
	// model-derived or default nominal rating.
	nominalW := d.nominalWatts()
	for _, id := range []uint8{eatonReportVoltageA, eatonReportVoltageB} {
		rep, ok := d.ReadReport(id)
		if !ok || len(rep) < 3 {
			continue
		}
		w := float64(uint16(rep[1]) | uint16(rep[2])<<8)
		if w >= 50 && w <= nominalW {
			u.Power.LoadPercent = data.ClampPercent(w / nominalW * 100)
			u.Power.RealpowerNominal = nominalW
			return true
		}
	}
	return false
}

// nominalWatts parses a rating out of the model string ("5PX 1500" → 1500),
// defaulting to 1500 W.
func (d *EatonDecoder) nominalWatts() float64 {
	for _, tok := range strings.Fields(d.model) {
		n, err := strconv.Atoi(strings.TrimFunc(tok, func(r rune) bool {
			return r < '0' || r > '9'
		}))
		if err == nil && n >= 300 && n <= 20000 {
			return float64(n)
		}
	}
	return eatonDefaultNominalWatts
}

// Compile-time interface satisfaction check.
var _ Decoder = (*EatonDecoder)(nil)
