package nut

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/nutbridge/nutbridge-go/pkg/data"
	"github.com/nutbridge/nutbridge-go/pkg/protocol"
)

// fakeProvider scripts the polling core surface.
type fakeProvider struct {
	mu        sync.Mutex
	snapshot  data.UpsData
	hasData   bool
	connected bool
	commands  []string
	calls     []string
	failCmds  bool
}

func newFakeProvider() *fakeProvider {
	u := data.NewUpsData()
	u.Device.Manufacturer = "APC"
	u.Device.Model = "Back-UPS ES 700"
	u.Device.SerialNumber = "5B1234X56789"
	u.Battery.Level = 99
	u.Battery.RuntimeMinutes = 10.25
	u.Power.InputVoltage = 230.4
	u.Power.LoadPercent = 7
	u.SetStatus(data.StatusOnline | data.StatusCharging)

	return &fakeProvider{
		snapshot:  u,
		hasData:   true,
		connected: true,
		commands:  []string{"beeper.enable", "test.battery.start.quick"},
	}
}

func (f *fakeProvider) SnapshotData() (data.UpsData, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, f.hasData
}

func (f *fakeProvider) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeProvider) Commands() []string { return f.commands }

func (f *fakeProvider) call(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.failCmds {
		return protocol.ErrNotSupported
	}
	return nil
}

func (f *fakeProvider) BeeperEnable() error          { return f.call("beeper.enable") }
func (f *fakeProvider) BeeperDisable() error         { return f.call("beeper.disable") }
func (f *fakeProvider) BeeperMute() error            { return f.call("beeper.mute") }
func (f *fakeProvider) BeeperTest() error            { return f.call("beeper.test") }
func (f *fakeProvider) StartBatteryTestQuick() error { return f.call("test.battery.start.quick") }
func (f *fakeProvider) StartBatteryTestDeep() error  { return f.call("test.battery.start.deep") }
func (f *fakeProvider) StopBatteryTest() error       { return f.call("test.battery.stop") }
func (f *fakeProvider) StartUpsTest() error          { return f.call("test.ups.start") }
func (f *fakeProvider) StopUpsTest() error           { return f.call("test.ups.stop") }

// fakeConn captures writes for dispatch-level tests.
type fakeConn struct {
	mu     sync.Mutex
	out    bytes.Buffer
	closed bool
}

type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }

func (f *fakeConn) Read([]byte) (int, error) { return 0, errors.New("not readable") }

func (f *fakeConn) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.Write(p)
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) LocalAddr() net.Addr              { return fakeAddr("127.0.0.1:3493") }
func (f *fakeConn) RemoteAddr() net.Addr             { return fakeAddr("192.168.1.50:40000") }
func (f *fakeConn) SetDeadline(time.Time) error      { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) output() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.String()
}

func (f *fakeConn) drain() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.out.String()
	f.out.Reset()
	return s
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// testServer wires a server with one scripted client slot.
func testServer(cfg ServerConfig, provider UpsProvider) (*Server, *clientSlot, *fakeConn) {
	if provider == nil {
		provider = newFakeProvider()
	}
	s := NewServer(cfg, provider)

	conn := &fakeConn{}
	now := time.Now()
	s.slots[0] = clientSlot{
		conn:         conn,
		id:           "test-client",
		state:        StateConnected,
		remoteIP:     "192.168.1.50",
		connectTime:  now,
		lastActivity: now,
	}
	return s, &s.slots[0], conn
}
