package data

// BeeperState is the audible-alarm configuration of the UPS.
type BeeperState int

// Beeper states.
const (
	BeeperUnknown BeeperState = iota
	BeeperEnabled
	BeeperDisabled
	BeeperMuted
)

// String returns the beeper state's display name.
func (b BeeperState) String() string {
	switch b {
	case BeeperEnabled:
		return "Enabled"
	case BeeperDisabled:
		return "Disabled"
	case BeeperMuted:
		return "Muted"
	default:
		return "Unknown"
	}
}

// SensitivityLevel is the input power sensitivity setting.
type SensitivityLevel int

// Sensitivity levels.
const (
	SensitivityUnknown SensitivityLevel = iota
	SensitivityLow
	SensitivityMedium
	SensitivityHigh
	SensitivityAuto
)

// String returns the sensitivity level's display name.
func (s SensitivityLevel) String() string {
	switch s {
	case SensitivityLow:
		return "Low"
	case SensitivityMedium:
		return "Medium"
	case SensitivityHigh:
		return "High"
	case SensitivityAuto:
		return "Auto"
	default:
		return "Unknown"
	}
}

// ConfigData holds UPS-side configuration readable (and partly writable)
// through the vendor protocols.
type ConfigData struct {
	// Delays in seconds, -1 when not set.
	DelayShutdown int
	DelayStart    int
	DelayReboot   int

	// BeeperStatus is the raw text form; BeeperState the parsed enum.
	BeeperStatus string
	BeeperState  BeeperState

	// InputSensitivity is the raw text form; SensitivityLevel the parsed enum.
	InputSensitivity string
	SensitivityLevel SensitivityLevel

	// Thresholds, NaN when the model does not expose them.
	LowBatteryThreshold      float64
	CriticalBatteryThreshold float64
	HighTemperatureThreshold float64

	AutoRestartEnabled  bool
	ColdStartEnabled    bool
	AudibleAlarmEnabled bool

	// Communication settings.
	ProtocolTimeoutMillis uint32
	RetryCount            uint16
	AutoDetectProtocol    bool
}

// NewConfigData returns a ConfigData with defaults matching a freshly
// attached UPS: delays unset, thresholds unset, alarm audible, protocol
// auto-detection on.
func NewConfigData() ConfigData {
	return ConfigData{
		DelayShutdown:            -1,
		DelayStart:               -1,
		DelayReboot:              -1,
		LowBatteryThreshold:      Unset(),
		CriticalBatteryThreshold: Unset(),
		HighTemperatureThreshold: Unset(),
		AudibleAlarmEnabled:      true,
		ProtocolTimeoutMillis:    15000,
		RetryCount:               3,
		AutoDetectProtocol:       true,
	}
}

// ParseBeeperStatus stores the raw text and derives the enum form.
func (c *ConfigData) ParseBeeperStatus(status string) {
	c.BeeperStatus = status
	switch status {
	case "enabled", "on", "1":
		c.BeeperState = BeeperEnabled
	case "disabled", "off", "0":
		c.BeeperState = BeeperDisabled
	case "muted":
		c.BeeperState = BeeperMuted
	default:
		c.BeeperState = BeeperUnknown
	}
}

// ParseInputSensitivity stores the raw text and derives the enum form.
func (c *ConfigData) ParseInputSensitivity(sensitivity string) {
	c.InputSensitivity = sensitivity
	switch sensitivity {
	case "low", "L":
		c.SensitivityLevel = SensitivityLow
	case "medium", "M", "normal":
		c.SensitivityLevel = SensitivityMedium
	case "high", "H":
		c.SensitivityLevel = SensitivityHigh
	case "auto", "A":
		c.SensitivityLevel = SensitivityAuto
	default:
		c.SensitivityLevel = SensitivityUnknown
	}
}

// HasTimingConfig reports whether any delay has been read.
func (c *ConfigData) HasTimingConfig() bool {
	return c.DelayShutdown != -1 || c.DelayStart != -1 || c.DelayReboot != -1
}

// HasBeeperConfig reports whether the beeper state is known.
func (c *ConfigData) HasBeeperConfig() bool {
	return c.BeeperStatus != "" || c.BeeperState != BeeperUnknown
}

// HasSensitivityConfig reports whether the sensitivity setting is known.
func (c *ConfigData) HasSensitivityConfig() bool {
	return c.InputSensitivity != "" || c.SensitivityLevel != SensitivityUnknown
}

// HasThresholds reports whether any threshold has been read.
func (c *ConfigData) HasThresholds() bool {
	return IsSet(c.LowBatteryThreshold) || IsSet(c.CriticalBatteryThreshold) ||
		IsSet(c.HighTemperatureThreshold)
}

// IsValid reports whether any configuration field has been decoded.
func (c *ConfigData) IsValid() bool {
	return c.HasTimingConfig() || c.HasBeeperConfig() ||
		c.HasSensitivityConfig() || c.HasThresholds()
}

// Reset returns all fields to their defaults.
func (c *ConfigData) Reset() {
	*c = NewConfigData()
}
