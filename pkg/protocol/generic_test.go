package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutbridge/nutbridge-go/pkg/data"
	"github.com/nutbridge/nutbridge-go/pkg/transport"
)

func TestGenericSkipsSpecializedVendors(t *testing.T) {
	for _, vid := range []uint16{transport.VendorAPC, transport.VendorCyberPower} {
		f := newFakeTransport()
		f.vendorID = vid
		f.reports[0x0C] = []byte{0x0C, 50}

		d := NewGenericHidDecoder(f, testOptions())
		assert.False(t, d.Detect(), "vendor %04x has a dedicated decoder", vid)
	}
}

func TestGenericDetectUnknownVendor(t *testing.T) {
	f := newFakeTransport()
	f.vendorID = 0x1234
	f.reports[0x0C] = []byte{0x0C, 50}

	d := NewGenericHidDecoder(f, testOptions())
	assert.True(t, d.Detect())
}

func TestGenericEnumeration(t *testing.T) {
	f := newFakeTransport()
	f.vendorID = 0x1234
	f.reports[0x0C] = []byte{0x0C, 50, 30, 0}
	f.reports[0x16] = []byte{0x16, 0x05}
	f.reports[0x1D] = []byte{0x1D, 0xAA} // extended-range report
	f.featureOnly[0x16] = true

	d := NewGenericHidDecoder(f, testOptions())
	require.NoError(t, d.Initialize())

	require.Contains(t, d.probes, uint8(0x0C))
	require.Contains(t, d.probes, uint8(0x16))
	require.Contains(t, d.probes, uint8(0x1D))
	assert.Equal(t, transport.ReportTypeInput, d.probes[0x0C].typ)
	assert.Equal(t, transport.ReportTypeFeature, d.probes[0x16].typ)
}

func TestGenericPowerSummaryHalving(t *testing.T) {
	u := data.NewUpsData()
	// 160 reads as a doubled percentage.
	require.True(t, parseGenericPowerSummary(&u, []byte{0x0C, 160, 10, 0}))
	assert.Equal(t, 80.0, u.Battery.Level)
	assert.Equal(t, 10.0, u.Battery.RuntimeMinutes)

	u = data.NewUpsData()
	assert.False(t, parseGenericPowerSummary(&u, []byte{0x0C, 250}),
		"beyond 200 is implausible")
}

func TestGenericStatusByte(t *testing.T) {
	u := data.NewUpsData()
	require.True(t, parseGenericStatusByte(&u, []byte{0x06, 0x09, 77}))
	assert.True(t, u.StatusFlags.Online())
	assert.True(t, u.StatusFlags.Charging())
	assert.Equal(t, 77.0, u.Battery.Level)

	u = data.NewUpsData()
	require.True(t, parseGenericStatusByte(&u, []byte{0x06, 0x06}))
	assert.True(t, u.StatusFlags.OnBattery())
	assert.True(t, u.StatusFlags.LowBattery())
}

func TestGenericVoltageScaling(t *testing.T) {
	var v float64
	require.True(t, parseGenericVoltage(&v, []byte{0x30, 0x00, 0x09})) // 2304 → 230.4
	assert.InDelta(t, 230.4, v, 0.01)

	var w float64
	assert.False(t, parseGenericVoltage(&w, []byte{0x30, 0xFF, 0xFF}))
	assert.False(t, parseGenericVoltage(&w, []byte{0x30, 0x20, 0x00}), "32 V out of range")
}

func TestGenericLoadHalving(t *testing.T) {
	u := data.NewUpsData()
	require.True(t, parseGenericLoad(&u, []byte{0x50, 144}))
	assert.Equal(t, 72.0, u.Power.LoadPercent)

	u = data.NewUpsData()
	require.True(t, parseGenericLoad(&u, []byte{0x50, 55}))
	assert.Equal(t, 55.0, u.Power.LoadPercent)
}

func TestGenericUnknownReportScan(t *testing.T) {
	u := data.NewUpsData()
	// Byte 60 is a plausible percentage; word at 2..3 is 2300 → 230 V.
	require.True(t, scanUnknownReport(&u, []byte{0x1D, 60, 0xFC, 0x08}))
	assert.Equal(t, 60.0, u.Battery.Level)
	assert.InDelta(t, 230.0, u.Power.InputVoltage, 0.5)
}

func TestGenericFullSweep(t *testing.T) {
	f := newFakeTransport()
	f.vendorID = 0x1234
	f.reports[0x0C] = []byte{0x0C, 73, 22, 0}
	f.reports[0x16] = []byte{0x16, 0x04}
	f.reports[0x30] = []byte{0x30, 0xE6, 0x00}
	f.reports[0x50] = []byte{0x50, 31}

	d := NewGenericHidDecoder(f, testOptions())
	require.NoError(t, d.Initialize())

	u := data.NewUpsData()
	require.True(t, d.ReadData(&u))

	assert.Equal(t, 73.0, u.Battery.Level)
	assert.Equal(t, 22.0, u.Battery.RuntimeMinutes)
	assert.Equal(t, "OL", u.Power.Status)
	assert.Equal(t, 230.0, u.Power.InputVoltage)
	assert.Equal(t, 31.0, u.Power.LoadPercent)
	assert.Equal(t, data.ProtocolGenericHid, u.Device.DetectedProtocol)
}
