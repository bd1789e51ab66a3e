package nut

import (
	"fmt"
	"math"

	"github.com/nutbridge/nutbridge-go/pkg/data"
)

// variableNames is the stable listing order for LIST VAR.
var variableNames = []string{
	"ups.mfr",
	"ups.model",
	"ups.status",
	"ups.serial",
	"ups.firmware",
	"battery.charge",
	"battery.voltage",
	"battery.voltage.nominal",
	"battery.runtime",
	"input.voltage",
	"input.voltage.nominal",
	"input.frequency",
	"input.transfer.low",
	"input.transfer.high",
	"output.voltage",
	"output.voltage.nominal",
	"ups.load",
	"ups.realpower.nominal",
	"ups.power.nominal",
}

// legacyVariableNames is the bare listing for old-style `upsc -l` support.
var legacyVariableNames = []string{
	"ups.mfr",
	"ups.model",
	"battery.charge",
	"input.voltage",
	"output.voltage",
	"ups.load",
	"battery.runtime",
	"ups.status",
}

// variableValue renders one NUT variable from a snapshot. An empty result
// means the variable is unavailable and must be omitted from listings.
func variableValue(u *data.UpsData, name string) string {
	switch name {
	case "ups.mfr":
		return u.Device.Manufacturer
	case "ups.model":
		return u.Device.Model
	case "ups.status":
		return u.StatusFlags.NutString()
	case "ups.serial":
		return u.Device.SerialNumber
	case "ups.firmware":
		return u.Device.FirmwareVersion
	case "battery.charge":
		return formatInt(u.Battery.Level)
	case "battery.voltage":
		return formatReal(u.Battery.Voltage)
	case "battery.voltage.nominal":
		return formatReal(u.Battery.VoltageNominal)
	case "battery.runtime":
		// NUT reports runtime in seconds; the model keeps minutes.
		if !data.IsSet(u.Battery.RuntimeMinutes) {
			return ""
		}
		return fmt.Sprintf("%d", int(u.Battery.RuntimeMinutes*60))
	case "input.voltage":
		return formatReal(u.Power.InputVoltage)
	case "input.voltage.nominal":
		return formatReal(u.Power.InputVoltageNominal)
	case "input.frequency":
		return formatReal(u.Power.Frequency)
	case "input.transfer.low":
		return formatReal(u.Power.InputTransferLow)
	case "input.transfer.high":
		return formatReal(u.Power.InputTransferHigh)
	case "output.voltage":
		return formatReal(u.Power.OutputVoltage)
	case "output.voltage.nominal":
		return formatReal(u.Power.OutputVoltageNominal)
	case "ups.load":
		return formatInt(u.Power.LoadPercent)
	case "ups.realpower.nominal":
		return formatInt(u.Power.RealpowerNominal)
	case "ups.power.nominal":
		return formatInt(u.Power.ApparentPowerNominal)
	case "ups.beeper.status":
		return u.Config.BeeperStatus
	case "input.sensitivity":
		return u.Config.InputSensitivity
	default:
		return ""
	}
}

// formatReal renders a real-valued variable with one decimal place, or ""
// when unset.
func formatReal(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return fmt.Sprintf("%.1f", v)
}

// formatInt renders an integer-valued variable without decimals, or ""
// when unset.
func formatInt(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return fmt.Sprintf("%d", int(v))
}
