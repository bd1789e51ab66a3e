package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutbridge/nutbridge-go/pkg/data"
	"github.com/nutbridge/nutbridge-go/pkg/transport"
)

func TestFactoryPicksApcHid(t *testing.T) {
	f := newApcFake()
	f.reports[0x0C] = []byte{0x0C, 90, 10, 0}

	r := NewDefaultRegistry()
	d := r.CreateForVendor(transport.VendorAPC, f, testOptions())
	require.NotNil(t, d)
	assert.Equal(t, "APC HID", d.Name())
	assert.Equal(t, data.ProtocolApcHid, d.Protocol())
}

func TestFactoryFallsBackToApcSmart(t *testing.T) {
	// No HID reports answer, but the byte stream does: the lower-priority
	// APC Smart entry detects.
	f := newApcFake()
	f.stream['Q'] = "08"

	r := NewDefaultRegistry()
	d := r.CreateForVendor(transport.VendorAPC, f, testOptions())
	require.NotNil(t, d)
	assert.Equal(t, "APC Smart", d.Name())
}

func TestFactoryGenericFallbackForUnknownVendor(t *testing.T) {
	f := newFakeTransport()
	f.vendorID = 0x5AB0
	f.reports[0x06] = []byte{0x06, 0x01}

	r := NewDefaultRegistry()
	d := r.CreateForVendor(0x5AB0, f, testOptions())
	require.NotNil(t, d)
	assert.Equal(t, "Generic HID", d.Name())
}

func TestFactoryNothingDetects(t *testing.T) {
	f := newFakeTransport()
	f.vendorID = 0x5AB0

	r := NewDefaultRegistry()
	assert.Nil(t, r.CreateForVendor(0x5AB0, f, testOptions()))
}

func TestFactoryGenericNeverClaimsApc(t *testing.T) {
	// An APC unit whose HID reports and byte stream are both silent must
	// not land on the generic decoder.
	f := newApcFake()

	r := NewDefaultRegistry()
	assert.Nil(t, r.CreateForVendor(transport.VendorAPC, f, testOptions()))
}

func TestFactoryCreateByName(t *testing.T) {
	f := newFakeTransport()
	r := NewDefaultRegistry()

	d := r.CreateByName("cyberpower", f, testOptions())
	require.NotNil(t, d)
	assert.Equal(t, "CyberPower HID", d.Name())

	// Case-insensitive substring match.
	d = r.CreateByName("SMART", f, testOptions())
	require.NotNil(t, d)
	assert.Equal(t, "APC Smart", d.Name())

	assert.Nil(t, r.CreateByName("nonexistent", f, testOptions()))
}

func TestFactoryPriorityOrdering(t *testing.T) {
	r := NewRegistry()
	var order []string
	mk := func(name string, detect bool) Constructor {
		return func(tr transport.Transport, opts Options) Decoder {
			return &orderProbe{Base: NewBase(tr, opts), name: name, detect: detect, order: &order}
		}
	}

	r.RegisterVendor("low", 10, []uint16{0x1111}, mk("low", true))
	r.RegisterVendor("high", 90, []uint16{0x1111}, mk("high", false))

	d := r.CreateForVendor(0x1111, newFakeTransport(), testOptions())
	require.NotNil(t, d)
	assert.Equal(t, []string{"high", "low"}, order,
		"higher priority must be probed first")
	assert.Equal(t, "low", d.Name())
}

func TestFactoryNames(t *testing.T) {
	names := NewDefaultRegistry().Names()
	assert.Contains(t, names, "APC HID")
	assert.Contains(t, names, "APC Smart")
	assert.Contains(t, names, "CyberPower HID")
	assert.Contains(t, names, "Eaton HID")
	assert.Contains(t, names, "Generic HID")
}

// orderProbe records detection order for priority tests.
type orderProbe struct {
	Base
	name   string
	detect bool
	order  *[]string
}

func (o *orderProbe) Name() string            { return o.name }
func (o *orderProbe) Protocol() data.Protocol { return data.ProtocolUnknown }
func (o *orderProbe) Detect() bool {
	*o.order = append(*o.order, o.name)
	return o.detect
}
func (o *orderProbe) Initialize() error             { return nil }
func (o *orderProbe) ReadData(u *data.UpsData) bool { return false }
