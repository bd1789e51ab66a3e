package data

import "strings"

// StatusFlags is a bitset of UPS operating conditions.
type StatusFlags uint32

// Status flag bits. Online and OnBattery are mutually exclusive at any
// sampled instant; decoders must prefer discharging evidence when both are
// derivable.
const (
	StatusOnline StatusFlags = 1 << iota
	StatusOnBattery
	StatusLowBattery
	StatusReplaceBattery
	StatusCharging
	StatusFault
	StatusOverload
	StatusCalibrating
	StatusOff

	StatusUnknown StatusFlags = 0
)

// Has reports whether all bits of flag are set.
func (s StatusFlags) Has(flag StatusFlags) bool {
	return s&flag == flag
}

// Online reports whether the UPS is running on utility power.
func (s StatusFlags) Online() bool { return s.Has(StatusOnline) }

// OnBattery reports whether the UPS is discharging its battery.
func (s StatusFlags) OnBattery() bool { return s.Has(StatusOnBattery) }

// LowBattery reports whether the remaining charge is below the warning level.
func (s StatusFlags) LowBattery() bool { return s.Has(StatusLowBattery) }

// Charging reports whether the battery is charging.
func (s StatusFlags) Charging() bool { return s.Has(StatusCharging) }

// Fault reports whether the UPS signals a fault or battery-replacement
// condition.
func (s StatusFlags) Fault() bool {
	return s.Has(StatusFault) || s.Has(StatusReplaceBattery)
}

// Overload reports whether the output is overloaded.
func (s StatusFlags) Overload() bool { return s.Has(StatusOverload) }

// NutString renders the flags using NUT status-word conventions, joined by
// spaces in the order OL, OB, LB, CHRG, ALARM. Returns "" when no flag is set.
func (s StatusFlags) NutString() string {
	var words []string
	if s.Online() {
		words = append(words, "OL")
	} else if s.OnBattery() {
		words = append(words, "OB")
	}
	if s.LowBattery() {
		words = append(words, "LB")
	}
	if s.Charging() {
		words = append(words, "CHRG")
	}
	if s.Fault() {
		words = append(words, "ALARM")
	}
	return strings.Join(words, " ")
}
