package data

// BatteryData holds battery state and identity.
type BatteryData struct {
	// Level is the remaining charge in percent.
	Level float64

	// Voltage is the measured battery voltage in volts.
	Voltage float64

	// VoltageNominal is the design battery voltage in volts.
	VoltageNominal float64

	// RuntimeMinutes is the estimated runtime at the present load.
	RuntimeMinutes float64

	// RuntimeLowMinutes is the runtime threshold that triggers low-battery.
	RuntimeLowMinutes float64

	// Status is a free-text battery status ("charging", "discharging", ...).
	Status string

	// Type is the battery chemistry ("PbAc", ...).
	Type string

	// MfrDate is the battery manufacture date as reported by the UPS.
	MfrDate string

	// ChargeWarning is the charge percentage below which the UPS warns.
	ChargeWarning float64

	// ChargeLow is the charge percentage below which the UPS signals LB.
	ChargeLow float64
}

// NewBatteryData returns a BatteryData with all fields unset.
func NewBatteryData() BatteryData {
	return BatteryData{
		Level:             Unset(),
		Voltage:           Unset(),
		VoltageNominal:    Unset(),
		RuntimeMinutes:    Unset(),
		RuntimeLowMinutes: Unset(),
		ChargeWarning:     Unset(),
		ChargeLow:         Unset(),
	}
}

// IsValid reports whether any battery field has been decoded.
func (b *BatteryData) IsValid() bool {
	return IsSet(b.Level) || IsSet(b.Voltage) || IsSet(b.RuntimeMinutes) ||
		b.Status != "" || b.Type != ""
}

// Reset returns all fields to their unset sentinels.
func (b *BatteryData) Reset() {
	*b = NewBatteryData()
}
