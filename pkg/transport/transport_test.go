package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampTimeout(t *testing.T) {
	assert.Equal(t, MinTransferTimeout, ClampTimeout(0))
	assert.Equal(t, MinTransferTimeout, ClampTimeout(50*time.Millisecond))
	assert.Equal(t, MaxTransferTimeout, ClampTimeout(time.Minute))
	assert.Equal(t, 5*time.Second, ClampTimeout(5*time.Second))
}

func TestVendorRegistry(t *testing.T) {
	assert.True(t, IsKnownVendor(VendorAPC))
	assert.True(t, IsKnownVendor(VendorCyberPower))
	assert.True(t, IsKnownVendor(VendorMGEEaton))
	assert.False(t, IsKnownVendor(0x1234))

	assert.Equal(t, "APC", VendorName(VendorAPC))
	assert.Equal(t, "CyberPower", VendorName(VendorCyberPower))
	assert.Equal(t, "", VendorName(0x1234))
}

func TestDecodeUTF16LEDescriptor(t *testing.T) {
	// "APC" as a string descriptor: length 8, type 0x03, UTF-16LE payload.
	raw := []byte{8, 0x03, 'A', 0, 'P', 0, 'C', 0}
	assert.Equal(t, "APC", decodeUTF16LEDescriptor(raw))

	// Wrong descriptor type.
	assert.Equal(t, "", decodeUTF16LEDescriptor([]byte{4, 0x01, 'A', 0}))

	// Truncated length byte is tolerated.
	raw = []byte{200, 0x03, 'H', 0, 'i', 0}
	assert.Equal(t, "Hi", decodeUTF16LEDescriptor(raw))
}

func newRunningSim(t *testing.T) (*SimulationTransport, func(time.Duration)) {
	t.Helper()
	sim := NewSimulationTransport()
	base := time.Unix(10000, 0)
	offset := time.Duration(0)
	sim.now = func() time.Time { return base.Add(offset) }
	require.NoError(t, sim.Initialize(context.Background()))
	return sim, func(d time.Duration) { offset += d }
}

func TestSimulationIdentity(t *testing.T) {
	sim, _ := newRunningSim(t)

	assert.Equal(t, uint16(VendorAPC), sim.VendorID())
	assert.True(t, sim.IsConnected())
	assert.False(t, sim.IsInputOnly())

	mfr, err := sim.GetStringDescriptor(3)
	require.NoError(t, err)
	assert.Equal(t, "APC", mfr)

	_, err = sim.GetStringDescriptor(0)
	assert.ErrorIs(t, err, ErrNoStringDescriptor)
}

func TestSimulationReportsPlausible(t *testing.T) {
	sim, _ := newRunningSim(t)

	buf := make([]byte, 8)
	n, err := sim.HIDGetReport(ReportTypeInput, 0x0C, buf, time.Second)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 4)

	level := float64(buf[1])
	assert.GreaterOrEqual(t, level, 70.0)
	assert.LessOrEqual(t, level, 100.0)

	n, err = sim.HIDGetReport(ReportTypeInput, 0x31, buf, time.Second)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 3)
	volts := float64(uint16(buf[1])|uint16(buf[2])<<8) / 10
	assert.Greater(t, volts, 200.0)
	assert.Less(t, volts, 260.0)
}

func TestSimulationStatusCycle(t *testing.T) {
	sim, advance := newRunningSim(t)

	readBits := func() uint8 {
		buf := make([]byte, 4)
		_, err := sim.HIDGetReport(ReportTypeInput, 0x16, buf, time.Second)
		require.NoError(t, err)
		return buf[1]
	}

	// Step 0: AC present + charging.
	bits := readBits()
	assert.NotZero(t, bits&0x04, "expected AC present in step 0")
	assert.NotZero(t, bits&0x01, "expected charging in step 0")

	// Step 1: discharging.
	advance(simStatusCycle / 4)
	bits = readBits()
	assert.NotZero(t, bits&0x02, "expected discharging in step 1")
	assert.Zero(t, bits&0x04, "expected no AC in step 1")

	// Step 2: discharging + below capacity.
	advance(simStatusCycle / 4)
	bits = readBits()
	assert.NotZero(t, bits&0x10, "expected below-capacity in step 2")

	// Step 3: needs replacement.
	advance(simStatusCycle / 4)
	bits = readBits()
	assert.NotZero(t, bits&0x80, "expected replacement flag in step 3")

	// Full cycle wraps back to step 0.
	advance(simStatusCycle / 4)
	bits = readBits()
	assert.NotZero(t, bits&0x01, "expected charging after full cycle")
}

func TestSimulationTransientDisconnect(t *testing.T) {
	sim, advance := newRunningSim(t)

	assert.True(t, sim.IsConnected())

	advance(simDisconnectEvery)
	assert.False(t, sim.IsConnected(), "expected disconnect window after 5 minutes")

	buf := make([]byte, 4)
	_, err := sim.HIDGetReport(ReportTypeInput, 0x0C, buf, time.Second)
	assert.ErrorIs(t, err, ErrNotConnected)

	advance(simDisconnectFor)
	assert.True(t, sim.IsConnected(), "expected reconnect after window")
}

func TestSimulationWriteReadback(t *testing.T) {
	sim, _ := newRunningSim(t)

	require.NoError(t, sim.HIDSetReport(ReportTypeFeature, 0x15, []byte{60, 0}, time.Second))

	data, ok := sim.LastWrite(0x15)
	require.True(t, ok)
	assert.Equal(t, []byte{60, 0}, data)

	buf := make([]byte, 4)
	n, err := sim.HIDGetReport(ReportTypeFeature, 0x15, buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x15, 60, 0}, buf[:n])
}
