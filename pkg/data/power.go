package data

// PowerData holds input/output power measurements and nominal ratings.
type PowerData struct {
	// Status is the NUT status word ("OL", "OB", "OL LB", ...).
	Status string

	// InputVoltage is the measured utility voltage in volts.
	InputVoltage float64

	// InputVoltageNominal is the configured utility voltage in volts.
	InputVoltageNominal float64

	// OutputVoltage is the measured output voltage in volts.
	OutputVoltage float64

	// OutputVoltageNominal is the rated output voltage in volts.
	OutputVoltageNominal float64

	// LoadPercent is the output load in percent of capacity.
	LoadPercent float64

	// Frequency is the line frequency in Hz.
	Frequency float64

	// InputTransferLow is the low-voltage transfer point in volts.
	InputTransferLow float64

	// InputTransferHigh is the high-voltage transfer point in volts.
	InputTransferHigh float64

	// RealpowerNominal is the rated real power in watts.
	RealpowerNominal float64

	// ApparentPowerNominal is the rated apparent power in VA.
	ApparentPowerNominal float64
}

// NewPowerData returns a PowerData with all fields unset.
func NewPowerData() PowerData {
	return PowerData{
		InputVoltage:         Unset(),
		InputVoltageNominal:  Unset(),
		OutputVoltage:        Unset(),
		OutputVoltageNominal: Unset(),
		LoadPercent:          Unset(),
		Frequency:            Unset(),
		InputTransferLow:     Unset(),
		InputTransferHigh:    Unset(),
		RealpowerNominal:     Unset(),
		ApparentPowerNominal: Unset(),
	}
}

// InputVoltageValid reports whether the measured input voltage passes the
// physical range check.
func (p *PowerData) InputVoltageValid() bool {
	return IsValidVoltage(p.InputVoltage)
}

// IsValid reports whether any power field has been decoded.
func (p *PowerData) IsValid() bool {
	return p.Status != "" || IsSet(p.InputVoltage) || IsSet(p.OutputVoltage) ||
		IsSet(p.LoadPercent) || IsSet(p.Frequency)
}

// Reset returns all fields to their unset sentinels.
func (p *PowerData) Reset() {
	*p = NewPowerData()
}
