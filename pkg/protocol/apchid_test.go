package protocol

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutbridge/nutbridge-go/pkg/data"
	"github.com/nutbridge/nutbridge-go/pkg/transport"
)

func newApcFake() *fakeTransport {
	f := newFakeTransport()
	f.vendorID = transport.VendorAPC
	f.productID = 0x0002
	return f
}

func TestApcHidHealthySnapshot(t *testing.T) {
	f := newApcFake()
	// PowerSummary: 99 % battery, 615 minutes runtime.
	f.reports[0x0C] = []byte{0x0C, 0x63, 0x67, 0x02}
	// PresentStatus: charging + AC present + battery present.
	f.reports[0x16] = []byte{0x16, 0x0D}

	d := NewApcHidDecoder(f, testOptions())
	require.True(t, d.Detect())
	require.NoError(t, d.Initialize())

	u := data.NewUpsData()
	require.True(t, d.ReadData(&u))

	assert.Equal(t, 99.0, u.Battery.Level)
	assert.Equal(t, 615.0, u.Battery.RuntimeMinutes)
	assert.Equal(t, "OL CHRG", u.Power.Status)
	assert.True(t, u.StatusFlags.Online())
	assert.True(t, u.StatusFlags.Charging())
	assert.False(t, u.StatusFlags.OnBattery())
}

func TestApcHidOnBatteryLow(t *testing.T) {
	f := newApcFake()
	// Discharging (bit1) + battery present (bit3) + below capacity (bit4).
	f.reports[0x16] = []byte{0x16, 0x1A}

	d := NewApcHidDecoder(f, testOptions())

	u := data.NewUpsData()
	require.True(t, d.ReadData(&u))

	assert.Equal(t, "OB LB", u.Power.Status)
	assert.True(t, u.StatusFlags.OnBattery())
	assert.True(t, u.StatusFlags.LowBattery())
	assert.False(t, u.StatusFlags.Online())
	assert.Equal(t, "discharging", u.Battery.Status)
}

func TestApcHidDischargingWinsOverACPresent(t *testing.T) {
	f := newApcFake()
	// Both AC present and discharging derivable: discharging evidence wins.
	f.reports[0x16] = []byte{0x16, 0x0E}

	d := NewApcHidDecoder(f, testOptions())
	u := data.NewUpsData()
	require.True(t, d.ReadData(&u))

	assert.True(t, u.StatusFlags.OnBattery())
	assert.False(t, u.StatusFlags.Online())
}

func TestApcHidVoltagesAndLoad(t *testing.T) {
	f := newApcFake()
	f.reports[0x16] = []byte{0x16, 0x0C}
	// Input voltage 2304 tenths → 230.4 V.
	f.reports[0x31] = []byte{0x31, 0x00, 0x09}
	// Load 42 %.
	f.reports[0x50] = []byte{0x50, 0x2A}
	// Output legacy: 229 V direct.
	f.reports[0x09] = []byte{0x09, 0xE5, 0x00}

	d := NewApcHidDecoder(f, testOptions())
	u := data.NewUpsData()
	require.True(t, d.ReadData(&u))

	assert.InDelta(t, 230.4, u.Power.InputVoltage, 0.01)
	assert.Equal(t, 42.0, u.Power.LoadPercent)
	assert.Equal(t, 229.0, u.Power.OutputVoltage)
}

func TestApcHidInvalidVoltageDropped(t *testing.T) {
	f := newApcFake()
	f.reports[0x16] = []byte{0x16, 0x0C}
	// 0xFFFF raw must never publish a voltage.
	f.reports[0x31] = []byte{0x31, 0xFF, 0xFF}

	d := NewApcHidDecoder(f, testOptions())
	u := data.NewUpsData()
	require.True(t, d.ReadData(&u))

	assert.True(t, math.IsNaN(u.Power.InputVoltage))
}

func TestApcHidLegacyStatusNeverOverrides(t *testing.T) {
	f := newApcFake()
	f.reports[0x16] = []byte{0x16, 0x0D} // online + charging
	f.reports[0x06] = []byte{0x06, 16}   // legacy claims on-battery

	d := NewApcHidDecoder(f, testOptions())
	u := data.NewUpsData()
	require.True(t, d.ReadData(&u))

	assert.True(t, u.StatusFlags.Online(), "0x16 must not be overridden by legacy 0x06")
}

func TestApcHidLegacyStatusUsedWhenAlone(t *testing.T) {
	f := newApcFake()
	f.reports[0x06] = []byte{0x06, 8}

	d := NewApcHidDecoder(f, testOptions())
	u := data.NewUpsData()
	require.True(t, d.ReadData(&u))

	assert.True(t, u.StatusFlags.Online())

	// Unknown legacy values leave state untouched.
	f.reports[0x06] = []byte{0x06, 42}
	u = data.NewUpsData()
	d.ReadData(&u)
	assert.Equal(t, data.StatusUnknown, u.StatusFlags)
}

func TestApcHidDetectOrder(t *testing.T) {
	f := newApcFake()
	f.reports[0x09] = []byte{0x09, 0xE6, 0x00}

	d := NewApcHidDecoder(f, testOptions())
	assert.True(t, d.Detect(), "last probe ID must still detect")

	assert.False(t, NewApcHidDecoder(newApcFake(), testOptions()).Detect(),
		"no answering reports means no detection")
}

func TestApcHidIdentity(t *testing.T) {
	f := newApcFake()
	f.reports[0x16] = []byte{0x16, 0x0C}

	d := NewApcHidDecoder(f, testOptions())
	require.NoError(t, d.Initialize())

	u := data.NewUpsData()
	require.True(t, d.ReadData(&u))
	assert.Equal(t, "APC", u.Device.Manufacturer)
	assert.Equal(t, "Back-UPS ES", u.Device.Model)
	assert.Equal(t, data.ProtocolApcHid, u.Device.DetectedProtocol)

	// A product string descriptor overrides the default model.
	f.strings[1] = "Smart-UPS 1500 FW:601.3.D"
	d2 := NewApcHidDecoder(f, testOptions())
	require.NoError(t, d2.Initialize())
	u = data.NewUpsData()
	require.True(t, d2.ReadData(&u))
	assert.Equal(t, "Smart-UPS 1500", u.Device.Model)
}

func TestApcHidProtocolPreservedAcrossReset(t *testing.T) {
	f := newApcFake()
	f.reports[0x16] = []byte{0x16, 0x0C}

	d := NewApcHidDecoder(f, testOptions())
	u := data.NewUpsData()
	require.True(t, d.ReadData(&u))
	require.Equal(t, data.ProtocolApcHid, u.Device.DetectedProtocol)

	// ReadData is reset-then-fill; a second cycle must keep the protocol
	// even if the device momentarily answers nothing.
	f.reports = map[uint8][]byte{}
	d.ReadData(&u)
	assert.Equal(t, data.ProtocolApcHid, u.Device.DetectedProtocol)
}

func TestApcHidBatteryTestCommands(t *testing.T) {
	f := newApcFake()
	d := NewApcHidDecoder(f, testOptions())

	require.NoError(t, d.StartBatteryTestQuick())
	require.NoError(t, d.StartBatteryTestDeep())
	require.NoError(t, d.StopBatteryTest())

	writes := f.writes[0x52]
	require.Len(t, writes, 3)
	assert.Equal(t, []byte{1}, writes[0])
	assert.Equal(t, []byte{2}, writes[1])
	assert.Equal(t, []byte{3}, writes[2])
}

func TestApcHidBatteryTestFallbackReport(t *testing.T) {
	f := newApcFake()
	f.rejectWrites[0x52] = true

	d := NewApcHidDecoder(f, testOptions())
	require.NoError(t, d.StartBatteryTestQuick())

	writes := f.writes[0x14]
	require.Len(t, writes, 1)
	assert.Equal(t, []byte{1}, writes[0])
}

func TestApcHidMfrDate(t *testing.T) {
	f := newApcFake()
	f.reports[0x16] = []byte{0x16, 0x0C}
	// Config report with date 10/22/02 at offsets 8..11 (hex-as-decimal).
	cfg := make([]byte, 16)
	cfg[0] = 0x05
	cfg[8] = 0x02  // year
	cfg[9] = 0x22  // day
	cfg[10] = 0x10 // month
	f.reports[0x05] = cfg

	d := NewApcHidDecoder(f, testOptions())
	u := data.NewUpsData()
	require.True(t, d.ReadData(&u))

	assert.Equal(t, "10/22/2002", u.Device.MfrDate)
}

func TestDecodeApcDate(t *testing.T) {
	assert.Equal(t, "10/22/2002", decodeApcDate(0x102202))
	assert.Equal(t, "01/05/1999", decodeApcDate(0x010599))
	assert.Equal(t, "12/31/2069", decodeApcDate(0x123169))
	assert.Equal(t, "01/01/1970", decodeApcDate(0x010170))
	assert.Equal(t, "", decodeApcDate(0))
	assert.Equal(t, "", decodeApcDate(0x990101), "month 99 is invalid")
}
