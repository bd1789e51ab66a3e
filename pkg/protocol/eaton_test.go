package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutbridge/nutbridge-go/pkg/data"
	"github.com/nutbridge/nutbridge-go/pkg/transport"
)

func newEatonFake() *fakeTransport {
	f := newFakeTransport()
	f.vendorID = transport.VendorMGEEaton
	return f
}

func TestEatonVoltageRescaling(t *testing.T) {
	f := newEatonFake()
	// Raw 0x0964 = 2404; /10 → 240.4 V, closest to nominal 230.
	f.reports[0x30] = []byte{0x30, 0x64, 0x09}

	d := NewEatonDecoder(f, testOptions())
	u := data.NewUpsData()
	require.True(t, d.ReadData(&u))

	assert.InDelta(t, 240.4, u.Power.InputVoltage, 0.01)
}

func TestPickVoltageScale(t *testing.T) {
	tests := []struct {
		raw     float64
		nominal float64
		want    float64
		ok      bool
	}{
		{2404, 230, 240.4, true}, // /10
		{230, 230, 230, true},    // /1
		{23000, 230, 230, true},  // /100
		{460, 230, 230, true},    // /2
		{1150, 230, 230, true},   // /5
		{115, 120, 115, true},    // /1, US nominal
		{40, 230, 0, false},      // nothing lands in range
		{12, 230, 0, false},      // too small under every divisor
	}
	for _, tt := range tests {
		got, ok := pickVoltageScale(tt.raw, tt.nominal)
		assert.Equal(t, tt.ok, ok, "raw %v", tt.raw)
		if ok {
			assert.InDelta(t, tt.want, got, 0.01, "raw %v", tt.raw)
		}
	}
}

func TestEatonRuntimeSecondsToMinutes(t *testing.T) {
	f := newEatonFake()
	// 92 % battery, 1800 seconds runtime → 30 minutes.
	f.reports[0x0C] = []byte{0x0C, 92, 0x08, 0x07}

	d := NewEatonDecoder(f, testOptions())
	u := data.NewUpsData()
	require.True(t, d.ReadData(&u))

	assert.Equal(t, 92.0, u.Battery.Level)
	assert.Equal(t, 30.0, u.Battery.RuntimeMinutes)
}

func TestEatonPresentStatus(t *testing.T) {
	f := newEatonFake()
	f.reports[0x16] = []byte{0x16, 0x05} // AC + charging

	d := NewEatonDecoder(f, testOptions())
	u := data.NewUpsData()
	require.True(t, d.ReadData(&u))

	assert.Equal(t, "OL CHRG", u.Power.Status)
}

func TestEatonLoadFromDedicatedReport(t *testing.T) {
	f := newEatonFake()
	f.reports[0x35] = []byte{0x35, 18}

	d := NewEatonDecoder(f, testOptions())
	u := data.NewUpsData()
	require.True(t, d.ReadData(&u))

	assert.Equal(t, 18.0, u.Power.LoadPercent)
}

func TestEatonNominalWattsFromModel(t *testing.T) {
	d := NewEatonDecoder(newEatonFake(), testOptions())

	d.model = "Eaton 5PX 1500"
	assert.Equal(t, 1500.0, d.nominalWatts())

	d.model = "Eaton 5PX"
	assert.Equal(t, eatonDefaultNominalWatts, d.nominalWatts())
}

func TestEatonCustomNominalVoltage(t *testing.T) {
	f := newEatonFake()
	// Raw 1150: /10 → 115 V, closest to US nominal 120.
	f.reports[0x30] = []byte{0x30, 0x7E, 0x04}

	opts := testOptions()
	opts.FallbackNominalVoltage = 120
	d := NewEatonDecoder(f, opts)
	u := data.NewUpsData()
	require.True(t, d.ReadData(&u))

	assert.InDelta(t, 115.0, u.Power.InputVoltage, 0.01)
}
