package data

// UpsData is the composite record decoders fill and consumers snapshot.
type UpsData struct {
	Battery BatteryData
	Power   PowerData
	Device  DeviceInfo
	Test    TestStatus
	Config  ConfigData

	// StatusFlags is the decoded status bitset; Power.Status carries the
	// NUT text form derived from it.
	StatusFlags StatusFlags
}

// NewUpsData returns a UpsData with every field at its unset sentinel.
func NewUpsData() UpsData {
	return UpsData{
		Battery: NewBatteryData(),
		Power:   NewPowerData(),
		Device:  NewDeviceInfo(),
		Test:    NewTestStatus(),
		Config:  NewConfigData(),
	}
}

// IsValid reports whether any component holds decoded data.
func (u *UpsData) IsValid() bool {
	return u.Battery.IsValid() || u.Power.IsValid() || u.Device.IsValid() ||
		u.Test.IsValid() || u.Config.IsValid()
}

// HasCoreData reports whether both battery and power telemetry decoded.
func (u *UpsData) HasCoreData() bool {
	return u.Battery.IsValid() && u.Power.IsValid()
}

// SetStatus stores the flag bitset and its NUT text rendering. Callers must
// never set Online and OnBattery together; decoders prefer discharging
// evidence when both are derivable.
func (u *UpsData) SetStatus(flags StatusFlags) {
	u.StatusFlags = flags
	u.Power.Status = flags.NutString()
}

// Reset returns every component to its unset state. Device.Reset preserves
// the detected protocol: read cycles are reset-then-fill and must not lose
// the active decoder identity.
func (u *UpsData) Reset() {
	u.Battery.Reset()
	u.Power.Reset()
	u.Device.Reset()
	u.Test.Reset()
	u.Config.Reset()
	u.StatusFlags = StatusUnknown
}
