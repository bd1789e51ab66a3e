package ups

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nutbridge/nutbridge-go/pkg/data"
	"github.com/nutbridge/nutbridge-go/pkg/log"
	"github.com/nutbridge/nutbridge-go/pkg/protocol"
	"github.com/nutbridge/nutbridge-go/pkg/ratelimit"
	"github.com/nutbridge/nutbridge-go/pkg/transport"
)

// Polling constants.
const (
	// DefaultUpdateInterval is the normal polling period.
	DefaultUpdateInterval = 5 * time.Second

	// FastPollInterval is the elevated polling period while a countdown
	// timer is active.
	FastPollInterval = 2 * time.Second

	// RedetectThreshold is the consecutive read-failure count that
	// triggers a protocol re-probe.
	RedetectThreshold = 3

	// MaxConsecutiveFailures is the read/detect failure count beyond which
	// the active decoder is dropped (or the component marked failed).
	MaxConsecutiveFailures = 5

	// Protocol-timeout clamp bounds.
	MinProtocolTimeout = 5 * time.Second
	MaxProtocolTimeout = 300 * time.Second
)

// ErrNoDecoder is returned by control operations while no protocol is
// active.
var ErrNoDecoder = errors.New("no active protocol decoder")

// Config configures the polling core.
type Config struct {
	// SimulationMode selects the synthetic transport instead of USB.
	SimulationMode bool

	// VendorID/ProductID restrict USB matching (0 = auto).
	VendorID  uint16
	ProductID uint16

	// UpdateInterval is the normal polling period (DefaultUpdateInterval
	// if zero).
	UpdateInterval time.Duration

	// ProtocolTimeout is how long reads may fail before the cached data
	// is considered stale. Clamped to [MinProtocolTimeout,
	// MaxProtocolTimeout].
	ProtocolTimeout time.Duration

	// ProtocolSelection is "auto" (or empty) for detection, otherwise a
	// case-insensitive substring of a decoder name.
	ProtocolSelection string

	// FallbackNominalVoltage guides heuristic decoders (230 if zero).
	FallbackNominalVoltage float64

	// Transport overrides the built-in transport construction (tests).
	Transport transport.Transport

	// Registry overrides the default decoder registry (tests).
	Registry *protocol.Registry

	// Clock overrides the system clock (tests).
	Clock Clock

	// Logger for core diagnostics (optional).
	Logger log.Logger
}

// sinkEntry binds one registered sink to its telemetry key.
type sinkEntry[S any] struct {
	key  string
	sink S
}

// Core drives the bridge lifecycle and owns the shared UpsData cache.
type Core struct {
	cfg      Config
	logger   log.Logger
	tr       transport.Transport
	registry *protocol.Registry
	clock    Clock

	// mu protects the cache, staleness bookkeeping, and sink lists.
	mu           sync.Mutex
	cache        data.UpsData
	hasData      bool
	lastGoodRead time.Time
	numericSinks []sinkEntry[NumericSink]
	binarySinks  []sinkEntry[BinarySink]
	textSinks    []sinkEntry[TextSink]

	// decMu protects the active decoder; control operations and the
	// polling task both go through it.
	decMu   sync.Mutex
	decoder protocol.Decoder

	readFailures   int
	detectFailures int
	nextDetect     time.Time
	detectBackoff  *DetectBackoff

	fastPolling atomic.Bool
	failed      atomic.Bool

	usbErrors   *ratelimit.Limiter
	protoErrors *ratelimit.Limiter
}

// NewCore creates the core. Call Setup before Run.
func NewCore(cfg Config) *Core {
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = DefaultUpdateInterval
	}
	if cfg.ProtocolTimeout < MinProtocolTimeout {
		cfg.ProtocolTimeout = MinProtocolTimeout
	} else if cfg.ProtocolTimeout > MaxProtocolTimeout {
		cfg.ProtocolTimeout = MaxProtocolTimeout
	}
	if cfg.FallbackNominalVoltage <= 0 {
		cfg.FallbackNominalVoltage = 230
	}
	if cfg.Registry == nil {
		cfg.Registry = protocol.NewDefaultRegistry()
	}
	if cfg.Clock == nil {
		cfg.Clock = NewSystemClock()
	}

	logger := log.OrNoop(cfg.Logger)

	tr := cfg.Transport
	if tr == nil {
		if cfg.SimulationMode {
			tr = transport.NewSimulationTransport()
		} else {
			tr = transport.NewUSBTransport(transport.USBConfig{
				VendorID:  cfg.VendorID,
				ProductID: cfg.ProductID,
				Logger:    logger,
			})
		}
	}

	return &Core{
		cfg:           cfg,
		logger:        logger,
		tr:            tr,
		registry:      cfg.Registry,
		clock:         cfg.Clock,
		cache:         data.NewUpsData(),
		detectBackoff: NewDetectBackoff(),
		usbErrors:     ratelimit.NewLimiter(),
		protoErrors:   ratelimit.NewLimiter(),
	}
}

// Setup initializes the transport. Decoder detection is deferred to the
// first Update so a late-attached UPS still works.
func (c *Core) Setup(ctx context.Context) error {
	if err := c.tr.Initialize(ctx); err != nil {
		return fmt.Errorf("transport init: %w", err)
	}
	c.logger.Infof("ups core ready (simulation=%v)", c.cfg.SimulationMode)
	return nil
}

// Run polls until the context is canceled, switching to the fast interval
// while countdown timers are active.
func (c *Core) Run(ctx context.Context) {
	for {
		interval := c.cfg.UpdateInterval
		if c.fastPolling.Load() {
			interval = FastPollInterval
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		c.Update()
	}
}

// Close tears down the transport.
func (c *Core) Close() error {
	return c.tr.Deinitialize()
}

// AddNumericSink registers a numeric sink for one telemetry key.
func (c *Core) AddNumericSink(key string, sink NumericSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.numericSinks = append(c.numericSinks, sinkEntry[NumericSink]{key, sink})
}

// AddBinarySink registers a boolean sink for one telemetry key.
func (c *Core) AddBinarySink(key string, sink BinarySink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.binarySinks = append(c.binarySinks, sinkEntry[BinarySink]{key, sink})
}

// AddTextSink registers a text sink for one telemetry key.
func (c *Core) AddTextSink(key string, sink TextSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.textSinks = append(c.textSinks, sinkEntry[TextSink]{key, sink})
}

// IsConnected reports whether the transport has a device and a read
// succeeded within the protocol timeout.
func (c *Core) IsConnected() bool {
	if !c.tr.IsConnected() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasData
}

// Failed reports whether detection has failed persistently.
func (c *Core) Failed() bool { return c.failed.Load() }

// SnapshotData returns a by-value copy of the cached record. The second
// result is false while no valid read has happened.
func (c *Core) SnapshotData() (data.UpsData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache, c.hasData
}

// ActiveProtocol returns the active decoder's protocol identifier.
func (c *Core) ActiveProtocol() data.Protocol {
	c.decMu.Lock()
	defer c.decMu.Unlock()
	if c.decoder == nil {
		return data.ProtocolUnknown
	}
	return c.decoder.Protocol()
}

// Commands lists the instant commands of the active decoder.
func (c *Core) Commands() []string {
	c.decMu.Lock()
	defer c.decMu.Unlock()
	if c.decoder == nil {
		return nil
	}
	return c.decoder.Commands()
}

// Update runs one polling cycle: connection check, detection, read, cache
// swap, sink publication, and fast-poll bookkeeping.
func (c *Core) Update() {
	now := c.clock.Now()

	if !c.tr.IsConnected() {
		if ok, suppressed := c.usbErrors.Allow(); ok {
			if suppressed > 0 {
				c.logger.Debugf("transport not connected (suppressed %d similar messages)", suppressed)
			} else {
				c.logger.Debugf("transport not connected")
			}
		}
		c.dropDecoder()
		c.expireStaleData(now)
		return
	}

	if !c.ensureDecoder(now) {
		return
	}

	if c.fastPolling.Load() {
		c.updateTimersOnly(now)
		return
	}

	c.updateFull(now)
}

// ensureDecoder detects a protocol when none is active. Detection attempts
// are paced by the backoff.
func (c *Core) ensureDecoder(now time.Time) bool {
	c.decMu.Lock()
	defer c.decMu.Unlock()

	if c.decoder != nil {
		return true
	}
	if now.Before(c.nextDetect) {
		return false
	}

	opts := protocol.Options{
		Timeout:                0, // decoder default
		FallbackNominalVoltage: c.cfg.FallbackNominalVoltage,
		Logger:                 c.logger,
	}

	var d protocol.Decoder
	selection := strings.TrimSpace(c.cfg.ProtocolSelection)
	if selection != "" && !strings.EqualFold(selection, "auto") {
		d = c.registry.CreateByName(selection, c.tr, opts)
		if d != nil && !d.Detect() {
			c.logger.Warnf("selected protocol %q did not answer", selection)
			d = nil
		}
	} else {
		d = c.registry.CreateForVendor(c.tr.VendorID(), c.tr, opts)
	}

	if d == nil {
		c.detectFailures++
		c.nextDetect = now.Add(c.detectBackoff.Next())
		if c.detectFailures > MaxConsecutiveFailures {
			if !c.failed.Load() {
				c.logger.Errorf("protocol detection failed %d times, marking component failed", c.detectFailures)
			}
			c.failed.Store(true)
		}
		return false
	}

	if err := d.Initialize(); err != nil {
		c.logger.Warnf("decoder %s init: %v", d.Name(), err)
	}

	c.decoder = d
	c.detectFailures = 0
	c.readFailures = 0
	c.failed.Store(false)
	c.detectBackoff.Reset()
	c.logger.Infof("detected protocol: %s", d.Name())
	return true
}

// updateFull performs a complete read cycle into a scratch record, swapping
// it into the cache when valid.
func (c *Core) updateFull(now time.Time) {
	c.decMu.Lock()
	d := c.decoder
	if d == nil {
		c.decMu.Unlock()
		return
	}

	local := data.NewUpsData()
	local.Device.DetectedProtocol = d.Protocol()
	ok := d.ReadData(&local)

	if ok && local.IsValid() {
		c.readFailures = 0
		c.decMu.Unlock()

		c.mu.Lock()
		c.cache = local
		c.hasData = true
		c.lastGoodRead = now
		c.mu.Unlock()

		c.fastPolling.Store(local.Test.HasActiveTimers())
		c.publish(&local)
		return
	}

	c.readFailures++
	failures := c.readFailures
	if ok, suppressed := c.protoErrors.Allow(); ok {
		if suppressed > 0 {
			c.logger.Warnf("decoder %s read failed (%d consecutive, suppressed %d similar messages)",
				d.Name(), failures, suppressed)
		} else {
			c.logger.Warnf("decoder %s read failed (%d consecutive)", d.Name(), failures)
		}
	}

	switch {
	case failures >= MaxConsecutiveFailures:
		c.logger.Warnf("dropping decoder %s after %d failures, forcing re-detection", d.Name(), failures)
		c.decoder = nil
		c.readFailures = 0
	case failures >= RedetectThreshold:
		if !d.Detect() {
			c.logger.Debugf("decoder %s re-probe failed", d.Name())
		}
	}
	c.decMu.Unlock()

	c.expireStaleData(now)
}

// updateTimersOnly refreshes only the countdown timers, reverting to the
// normal interval once every timer is inactive.
func (c *Core) updateTimersOnly(now time.Time) {
	c.decMu.Lock()
	d := c.decoder
	if d == nil {
		c.decMu.Unlock()
		c.fastPolling.Store(false)
		return
	}

	scratch := data.NewUpsData()
	updated := d.ReadTimerData(&scratch)
	c.decMu.Unlock()

	if !updated {
		c.fastPolling.Store(false)
		return
	}

	c.mu.Lock()
	c.cache.Test.TimerShutdown = scratch.Test.TimerShutdown
	c.cache.Test.TimerStart = scratch.Test.TimerStart
	c.cache.Test.TimerReboot = scratch.Test.TimerReboot
	active := c.cache.Test.HasActiveTimers()
	c.lastGoodRead = now
	snapshot := c.cache
	c.mu.Unlock()

	c.fastPolling.Store(active)
	c.publish(&snapshot)
}

// expireStaleData clears the cached record once no read has succeeded for
// the protocol timeout, and resets the failure counters.
func (c *Core) expireStaleData(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasData || now.Sub(c.lastGoodRead) <= c.cfg.ProtocolTimeout {
		return
	}
	c.logger.Warnf("no successful read for %v, marking data stale", c.cfg.ProtocolTimeout)
	c.hasData = false
	c.readFailures = 0
	c.detectFailures = 0
}

// dropDecoder discards the active decoder (device gone).
func (c *Core) dropDecoder() {
	c.decMu.Lock()
	defer c.decMu.Unlock()
	if c.decoder != nil {
		c.logger.Infof("device gone, dropping decoder %s", c.decoder.Name())
		c.decoder = nil
	}
	c.fastPolling.Store(false)
}

// publish fans the snapshot out to every registered sink. NaN and
// out-of-range values are skipped; battery level and load are clamped.
func (c *Core) publish(u *data.UpsData) {
	c.mu.Lock()
	numeric := append([]sinkEntry[NumericSink](nil), c.numericSinks...)
	binary := append([]sinkEntry[BinarySink](nil), c.binarySinks...)
	text := append([]sinkEntry[TextSink](nil), c.textSinks...)
	c.mu.Unlock()

	for _, e := range numeric {
		v, known := numericValue(u, e.key)
		if !known {
			continue
		}
		if v, ok := rangeCheck(e.key, v); ok {
			e.sink.PublishNumeric(e.key, v)
		}
	}
	for _, e := range binary {
		if v, known := binaryValue(u, e.key); known {
			e.sink.PublishBinary(e.key, v)
		}
	}
	for _, e := range text {
		v, known := textValue(u, e.key)
		if !known || v == "" {
			continue
		}
		e.sink.PublishText(e.key, v)
	}
}

// Control API. Each call forwards to the active decoder.

// controlCall runs fn against the active decoder under the decoder lock.
func (c *Core) controlCall(fn func(protocol.Decoder) error) error {
	c.decMu.Lock()
	defer c.decMu.Unlock()
	if c.decoder == nil {
		return ErrNoDecoder
	}
	return fn(c.decoder)
}

// BeeperEnable turns the audible alarm on.
func (c *Core) BeeperEnable() error {
	return c.controlCall(func(d protocol.Decoder) error { return d.BeeperEnable() })
}

// BeeperDisable turns the audible alarm off.
func (c *Core) BeeperDisable() error {
	return c.controlCall(func(d protocol.Decoder) error { return d.BeeperDisable() })
}

// BeeperMute silences the current alarm.
func (c *Core) BeeperMute() error {
	return c.controlCall(func(d protocol.Decoder) error { return d.BeeperMute() })
}

// BeeperTest exercises the beeper and restores its setting.
func (c *Core) BeeperTest() error {
	return c.controlCall(func(d protocol.Decoder) error { return d.BeeperTest() })
}

// StartBatteryTestQuick starts a quick battery self-test and tracks it.
func (c *Core) StartBatteryTestQuick() error {
	return c.startTest(data.TestTypeBatteryQuick, func(d protocol.Decoder) error {
		return d.StartBatteryTestQuick()
	})
}

// StartBatteryTestDeep starts a deep battery self-test and tracks it.
func (c *Core) StartBatteryTestDeep() error {
	return c.startTest(data.TestTypeBatteryDeep, func(d protocol.Decoder) error {
		return d.StartBatteryTestDeep()
	})
}

// StopBatteryTest aborts a running battery test.
func (c *Core) StopBatteryTest() error {
	err := c.controlCall(func(d protocol.Decoder) error { return d.StopBatteryTest() })
	if err == nil {
		c.mu.Lock()
		c.cache.Test.AbortTest()
		c.mu.Unlock()
	}
	return err
}

// StartUpsTest starts a UPS/panel self-test and tracks it.
func (c *Core) StartUpsTest() error {
	return c.startTest(data.TestTypeUpsSelfTest, func(d protocol.Decoder) error {
		return d.StartUpsTest()
	})
}

// StopUpsTest stops a UPS/panel self-test.
func (c *Core) StopUpsTest() error {
	err := c.controlCall(func(d protocol.Decoder) error { return d.StopUpsTest() })
	if err == nil {
		c.mu.Lock()
		c.cache.Test.AbortTest()
		c.mu.Unlock()
	}
	return err
}

// startTest forwards a test-start command and records the running state.
func (c *Core) startTest(typ data.TestType, fn func(protocol.Decoder) error) error {
	if err := c.controlCall(fn); err != nil {
		return err
	}
	c.mu.Lock()
	c.cache.Test.StartTest(typ, c.clock.NowMillis())
	c.mu.Unlock()
	return nil
}

// SetShutdownDelay writes the shutdown delay in seconds.
func (c *Core) SetShutdownDelay(seconds int) error {
	return c.controlCall(func(d protocol.Decoder) error { return d.SetShutdownDelay(seconds) })
}

// SetStartDelay writes the start delay in seconds.
func (c *Core) SetStartDelay(seconds int) error {
	return c.controlCall(func(d protocol.Decoder) error { return d.SetStartDelay(seconds) })
}

// SetRebootDelay writes the reboot delay in seconds.
func (c *Core) SetRebootDelay(seconds int) error {
	return c.controlCall(func(d protocol.Decoder) error { return d.SetRebootDelay(seconds) })
}
