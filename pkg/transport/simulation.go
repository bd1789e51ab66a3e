package transport

import (
	"context"
	"math"
	"sync"
	"time"
)

// Simulation timing.
const (
	// simStatusCycle is the length of the full status rotation:
	// online+charging → on battery → on battery+low → fault.
	simStatusCycle = 20 * time.Second

	// simDisconnectEvery is how often a transient disconnect is simulated.
	simDisconnectEvery = 5 * time.Minute

	// simDisconnectFor is how long each simulated disconnect lasts.
	simDisconnectFor = 5 * time.Second
)

// Simulated identity: an APC Back-UPS ES, so the APC HID decoder exercises
// the same code path as real hardware.
const (
	simVendorID  = VendorAPC
	simProductID = 0x0002
)

// SimulationTransport implements Transport without hardware. Telemetry
// varies sinusoidally around realistic centers with a monotonic-time phase,
// the status cycles every 20 seconds, and a transient disconnect happens
// roughly every 5 minutes.
type SimulationTransport struct {
	mu sync.Mutex

	start       time.Time
	initialized bool

	// writes records SET_REPORT payloads by report ID so control-command
	// round trips can be observed.
	writes map[uint8][]byte

	// now is the time source, replaceable in tests.
	now func() time.Time
}

// NewSimulationTransport creates a simulation transport.
func NewSimulationTransport() *SimulationTransport {
	return &SimulationTransport{
		writes: make(map[uint8][]byte),
		now:    time.Now,
	}
}

// Initialize starts the simulated clock.
func (s *SimulationTransport) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start = s.now()
	s.initialized = true
	return nil
}

// Deinitialize stops the simulation.
func (s *SimulationTransport) Deinitialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
	return nil
}

// IsConnected reports the simulated attachment state, including the
// periodic transient disconnects.
func (s *SimulationTransport) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return false
	}
	return !s.inDisconnectWindow()
}

// inDisconnectWindow reports whether the current instant falls inside a
// simulated disconnect. Caller holds mu.
func (s *SimulationTransport) inDisconnectWindow() bool {
	elapsed := s.now().Sub(s.start)
	if elapsed < simDisconnectEvery {
		return false
	}
	return elapsed%simDisconnectEvery < simDisconnectFor
}

// VendorID returns the simulated APC vendor ID.
func (s *SimulationTransport) VendorID() uint16 { return simVendorID }

// ProductID returns the simulated product ID.
func (s *SimulationTransport) ProductID() uint16 { return simProductID }

// IsInputOnly reports false: the simulated device accepts commands.
func (s *SimulationTransport) IsInputOnly() bool { return false }

// phase returns elapsed simulated seconds.
func (s *SimulationTransport) phase() float64 {
	return s.now().Sub(s.start).Seconds()
}

// statusBits returns the PresentStatus bitmap for the current cycle step.
func (s *SimulationTransport) statusBits() (bits uint8, overload bool) {
	step := int(s.now().Sub(s.start)/(simStatusCycle/4)) % 4

	const (
		bitCharging         = 1 << 0
		bitDischarging      = 1 << 1
		bitACPresent        = 1 << 2
		bitBatteryPresent   = 1 << 3
		bitBelowCapacity    = 1 << 4
		bitNeedsReplacement = 1 << 7
	)

	switch step {
	case 0: // online, charging
		return bitACPresent | bitCharging | bitBatteryPresent, false
	case 1: // on battery
		return bitDischarging | bitBatteryPresent, false
	case 2: // on battery, low
		return bitDischarging | bitBelowCapacity | bitBatteryPresent, false
	default: // fault: battery needs replacement
		return bitACPresent | bitNeedsReplacement | bitBatteryPresent, false
	}
}

// HIDGetReport synthesizes APC-shaped reports.
func (s *SimulationTransport) HIDGetReport(reportType ReportType, reportID uint8, buf []byte, timeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized || s.inDisconnectWindow() {
		return 0, ErrNotConnected
	}

	t := s.phase()
	payload := s.reportPayload(reportID, t)
	if payload == nil {
		return 0, ErrTimeout
	}
	n := copy(buf, payload)
	return n, nil
}

// reportPayload builds one report. Values are sinusoids around realistic
// centers so plots look alive rather than flat.
func (s *SimulationTransport) reportPayload(reportID uint8, t float64) []byte {
	battery := 85 + 10*math.Sin(t/60)
	runtimeMin := uint16(25 + 8*math.Sin(t/90))
	inputV := 230 + 5*math.Sin(t/30)
	outputV := 229 + 4*math.Sin(t/35)
	load := 35 + 15*math.Sin(t/45)

	bits, _ := s.statusBits()

	switch reportID {
	case 0x0C: // PowerSummary: battery %, runtime minutes LE
		return []byte{0x0C, uint8(battery), uint8(runtimeMin), uint8(runtimeMin >> 8)}
	case 0x16: // PresentStatus bitmap
		return []byte{0x16, bits, 0x00}
	case 0x06: // legacy status flag
		if bits&0x02 != 0 {
			return []byte{0x06, 16}
		}
		return []byte{0x06, 8}
	case 0x31: // input voltage, 16-bit LE tenths
		raw := uint16(inputV * 10)
		return []byte{0x31, uint8(raw), uint8(raw >> 8)}
	case 0x09: // output voltage, 16-bit LE tenths
		raw := uint16(outputV * 10)
		return []byte{0x09, uint8(raw), uint8(raw >> 8)}
	case 0x50: // load percent
		return []byte{0x50, uint8(load)}
	default:
		if data, ok := s.writes[reportID]; ok {
			// Written configuration reads back.
			return append([]byte{reportID}, data...)
		}
		return nil
	}
}

// HIDSetReport records the write so subsequent reads observe it.
func (s *SimulationTransport) HIDSetReport(reportType ReportType, reportID uint8, data []byte, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized || s.inDisconnectWindow() {
		return ErrNotConnected
	}
	s.writes[reportID] = append([]byte(nil), data...)
	return nil
}

// LastWrite returns the most recent SET_REPORT payload for a report ID.
// Test helper.
func (s *SimulationTransport) LastWrite(reportID uint8) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.writes[reportID]
	return data, ok
}

// GetStringDescriptor returns simulated identity strings.
func (s *SimulationTransport) GetStringDescriptor(index uint8) (string, error) {
	if index == 0 {
		return "", ErrNoStringDescriptor
	}
	switch index {
	case 1:
		return "Back-UPS ES 700", nil
	case 2:
		return "SIM000001", nil
	case 3:
		return "APC", nil
	default:
		return "", ErrNoStringDescriptor
	}
}

// ReadBytes is unsupported: the simulated device is HID-report based.
func (s *SimulationTransport) ReadBytes(buf []byte, timeout time.Duration) (int, error) {
	return 0, ErrTimeout
}

// WriteBytes is unsupported: the simulated device is HID-report based.
func (s *SimulationTransport) WriteBytes(data []byte, timeout time.Duration) error {
	return ErrTimeout
}

// Compile-time interface satisfaction check.
var _ Transport = (*SimulationTransport)(nil)
