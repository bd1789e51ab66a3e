package ups

import (
	"github.com/nutbridge/nutbridge-go/pkg/data"
)

// NumericSink receives real-valued telemetry for one key.
type NumericSink interface {
	PublishNumeric(key string, value float64)
}

// BinarySink receives boolean telemetry for one key.
type BinarySink interface {
	PublishBinary(key string, value bool)
}

// TextSink receives textual telemetry for one key.
type TextSink interface {
	PublishText(key string, value string)
}

// Telemetry keys published by the core. Sinks register against one key each.
const (
	KeyBatteryLevel          = "battery.level"
	KeyBatteryVoltage        = "battery.voltage"
	KeyBatteryVoltageNominal = "battery.voltage.nominal"
	KeyBatteryRuntime        = "battery.runtime"
	KeyInputVoltage          = "input.voltage"
	KeyInputVoltageNominal   = "input.voltage.nominal"
	KeyInputFrequency        = "input.frequency"
	KeyInputTransferLow      = "input.transfer.low"
	KeyInputTransferHigh     = "input.transfer.high"
	KeyOutputVoltage         = "output.voltage"
	KeyLoad                  = "ups.load"
	KeyRealpowerNominal      = "ups.realpower.nominal"

	KeyStatus           = "ups.status"
	KeyBeeperStatus     = "ups.beeper.status"
	KeyInputSensitivity = "input.sensitivity"
	KeyModel            = "ups.model"
	KeyManufacturer     = "ups.mfr"
	KeySerial           = "ups.serial"
	KeyFirmware         = "ups.firmware"

	KeyOnline     = "ups.online"
	KeyOnBattery  = "ups.on.battery"
	KeyLowBattery = "ups.low.battery"
	KeyCharging   = "ups.charging"
	KeyFault      = "ups.fault"
	KeyOverload   = "ups.overload"
)

// numericValue resolves a numeric key against a snapshot. The second result
// is false for unknown keys; callers still must skip NaN values.
func numericValue(u *data.UpsData, key string) (float64, bool) {
	switch key {
	case KeyBatteryLevel:
		return u.Battery.Level, true
	case KeyBatteryVoltage:
		return u.Battery.Voltage, true
	case KeyBatteryVoltageNominal:
		return u.Battery.VoltageNominal, true
	case KeyBatteryRuntime:
		return u.Battery.RuntimeMinutes, true
	case KeyInputVoltage:
		return u.Power.InputVoltage, true
	case KeyInputVoltageNominal:
		return u.Power.InputVoltageNominal, true
	case KeyInputFrequency:
		return u.Power.Frequency, true
	case KeyInputTransferLow:
		return u.Power.InputTransferLow, true
	case KeyInputTransferHigh:
		return u.Power.InputTransferHigh, true
	case KeyOutputVoltage:
		return u.Power.OutputVoltage, true
	case KeyLoad:
		return u.Power.LoadPercent, true
	case KeyRealpowerNominal:
		return u.Power.RealpowerNominal, true
	default:
		return 0, false
	}
}

// binaryValue resolves a boolean key against a snapshot.
func binaryValue(u *data.UpsData, key string) (bool, bool) {
	switch key {
	case KeyOnline:
		return u.StatusFlags.Online(), true
	case KeyOnBattery:
		return u.StatusFlags.OnBattery(), true
	case KeyLowBattery:
		return u.StatusFlags.LowBattery(), true
	case KeyCharging:
		return u.StatusFlags.Charging(), true
	case KeyFault:
		return u.StatusFlags.Fault(), true
	case KeyOverload:
		return u.StatusFlags.Overload(), true
	default:
		return false, false
	}
}

// textValue resolves a text key against a snapshot.
func textValue(u *data.UpsData, key string) (string, bool) {
	switch key {
	case KeyStatus:
		return u.Power.Status, true
	case KeyBeeperStatus:
		return u.Config.BeeperStatus, true
	case KeyInputSensitivity:
		return u.Config.InputSensitivity, true
	case KeyModel:
		return u.Device.Model, true
	case KeyManufacturer:
		return u.Device.Manufacturer, true
	case KeySerial:
		return u.Device.SerialNumber, true
	case KeyFirmware:
		return u.Device.FirmwareVersion, true
	default:
		return "", false
	}
}

// rangeCheck validates a numeric value for publication. Battery level and
// load are clamped; every other physical quantity is dropped when out of
// range.
func rangeCheck(key string, v float64) (float64, bool) {
	if !data.IsSet(v) {
		return 0, false
	}
	switch key {
	case KeyBatteryLevel, KeyLoad:
		return data.ClampPercent(v), true
	case KeyBatteryVoltage, KeyBatteryVoltageNominal:
		// Battery packs run below the mains range; accept anything
		// positive and bounded.
		return v, v > 0 && v <= data.MaxVoltage
	case KeyInputVoltage, KeyInputVoltageNominal, KeyOutputVoltage,
		KeyInputTransferLow, KeyInputTransferHigh:
		return v, data.IsValidVoltage(v)
	case KeyInputFrequency:
		return v, data.IsValidFrequency(v)
	case KeyBatteryRuntime:
		return v, data.IsValidRuntime(v)
	default:
		return v, true
	}
}
