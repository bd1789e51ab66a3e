package protocol

import (
	"context"
	"time"

	"github.com/nutbridge/nutbridge-go/pkg/transport"
)

// fakeTransport is a scripted transport: reports are served from a map and
// SET_REPORT payloads are recorded. Byte-stream commands answer from a
// command→response table.
type fakeTransport struct {
	vendorID  uint16
	productID uint16
	inputOnly bool
	connected bool

	// reports maps report ID → payload (served for Input and Feature).
	reports map[uint8][]byte

	// featureOnly report IDs answer only as Feature.
	featureOnly map[uint8]bool

	// writes records SET_REPORT payloads by report ID, in order.
	writes map[uint8][][]byte

	// rejectWrites fails SET_REPORT for these report IDs.
	rejectWrites map[uint8]bool

	// strings maps descriptor index → string.
	strings map[uint8]string

	// stream maps a command byte to its response line.
	stream  map[byte]string
	lastCmd byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		connected:    true,
		reports:      map[uint8][]byte{},
		featureOnly:  map[uint8]bool{},
		writes:       map[uint8][][]byte{},
		rejectWrites: map[uint8]bool{},
		strings:      map[uint8]string{},
		stream:       map[byte]string{},
	}
}

func (f *fakeTransport) Initialize(context.Context) error { return nil }
func (f *fakeTransport) Deinitialize() error              { return nil }
func (f *fakeTransport) IsConnected() bool                { return f.connected }
func (f *fakeTransport) VendorID() uint16                 { return f.vendorID }
func (f *fakeTransport) ProductID() uint16                { return f.productID }
func (f *fakeTransport) IsInputOnly() bool                { return f.inputOnly }

func (f *fakeTransport) HIDGetReport(rt transport.ReportType, id uint8, buf []byte, _ time.Duration) (int, error) {
	payload, ok := f.reports[id]
	if !ok {
		return 0, transport.ErrTimeout
	}
	if f.featureOnly[id] && rt != transport.ReportTypeFeature {
		return 0, transport.ErrTimeout
	}
	return copy(buf, payload), nil
}

func (f *fakeTransport) HIDSetReport(_ transport.ReportType, id uint8, payload []byte, _ time.Duration) error {
	if f.rejectWrites[id] {
		return transport.ErrTimeout
	}
	f.writes[id] = append(f.writes[id], append([]byte(nil), payload...))
	return nil
}

func (f *fakeTransport) GetStringDescriptor(index uint8) (string, error) {
	if index == 0 {
		return "", transport.ErrNoStringDescriptor
	}
	s, ok := f.strings[index]
	if !ok {
		return "", transport.ErrNoStringDescriptor
	}
	return s, nil
}

func (f *fakeTransport) ReadBytes(buf []byte, _ time.Duration) (int, error) {
	resp, ok := f.stream[f.lastCmd]
	if !ok {
		return 0, transport.ErrTimeout
	}
	return copy(buf, resp), nil
}

func (f *fakeTransport) WriteBytes(data []byte, _ time.Duration) error {
	if f.inputOnly {
		return transport.ErrInputOnly
	}
	if len(data) > 0 {
		f.lastCmd = data[0]
	}
	return nil
}

var _ transport.Transport = (*fakeTransport)(nil)

// testOptions returns decoder options with a short timeout for tests.
func testOptions() Options {
	return Options{Timeout: 50 * time.Millisecond}
}
