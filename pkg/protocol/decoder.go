package protocol

import (
	"errors"
	"time"

	"github.com/nutbridge/nutbridge-go/pkg/data"
	"github.com/nutbridge/nutbridge-go/pkg/log"
	"github.com/nutbridge/nutbridge-go/pkg/transport"
)

// ErrNotSupported is returned by control operations a decoder does not
// implement.
var ErrNotSupported = errors.New("operation not supported by decoder")

// DefaultReadTimeout bounds individual report reads during normal polling.
const DefaultReadTimeout = 1 * time.Second

// DetectTimeout bounds the probe reads used by Detect; probes must be cheap.
const DetectTimeout = 500 * time.Millisecond

// SettleDelay is inserted after a successful probe before the first real
// read, letting slow firmwares finish internal bookkeeping.
const SettleDelay = 100 * time.Millisecond

// Decoder is the contract between the polling core and one vendor protocol.
type Decoder interface {
	// Name returns the decoder's display name (matched by the manual
	// protocol_selection override).
	Name() string

	// Protocol returns the protocol identifier written into DeviceInfo.
	Protocol() data.Protocol

	// Detect probes the device cheaply, typically one or two report reads
	// with a short timeout. It must not assume a prior Initialize.
	Detect() bool

	// Initialize performs one-shot setup: identity descriptors, scaling
	// decisions. Called once after a successful Detect.
	Initialize() error

	// ReadData resets and refills the caller-supplied record. It returns
	// true if any useful field was updated.
	ReadData(u *data.UpsData) bool

	// ReadTimerData refreshes only countdown-timer fields for the fast
	// polling path. Returns true if any timer was read.
	ReadTimerData(u *data.UpsData) bool

	// Commands lists the NUT instant-command names this decoder supports.
	Commands() []string

	// Control operations. All optional; default ErrNotSupported.
	BeeperEnable() error
	BeeperDisable() error
	BeeperMute() error
	BeeperTest() error
	StartBatteryTestQuick() error
	StartBatteryTestDeep() error
	StopBatteryTest() error
	StartUpsTest() error
	StopUpsTest() error
	SetShutdownDelay(seconds int) error
	SetStartDelay(seconds int) error
	SetRebootDelay(seconds int) error
}

// Options carries per-decoder configuration from the polling core.
type Options struct {
	// Timeout bounds individual report reads (DefaultReadTimeout if zero).
	Timeout time.Duration

	// FallbackNominalVoltage guides heuristic voltage rescaling when the
	// device does not report a nominal (230 if zero).
	FallbackNominalVoltage float64

	// Logger for decoder diagnostics (optional).
	Logger log.Logger
}

// withDefaults fills unset options.
func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultReadTimeout
	}
	if o.FallbackNominalVoltage <= 0 {
		o.FallbackNominalVoltage = 230
	}
	o.Logger = log.OrNoop(o.Logger)
	return o
}

// Base supplies transport access, report-read helpers, and default
// implementations of every optional operation. Decoders embed it and
// override what they support.
type Base struct {
	tr     transport.Transport
	opts   Options
	logger log.Logger
}

// NewBase creates the shared decoder plumbing.
func NewBase(tr transport.Transport, opts Options) Base {
	opts = opts.withDefaults()
	return Base{tr: tr, opts: opts, logger: opts.Logger}
}

// Transport returns the non-owning transport capability.
func (b *Base) Transport() transport.Transport { return b.tr }

// Logger returns the decoder logger.
func (b *Base) Logger() log.Logger { return b.logger }

// Timeout returns the configured per-read timeout.
func (b *Base) Timeout() time.Duration { return b.opts.Timeout }

// FallbackNominalVoltage returns the configured heuristic nominal voltage.
func (b *Base) FallbackNominalVoltage() float64 { return b.opts.FallbackNominalVoltage }

// ReadReport reads a report trying Input first, then Feature, using the
// configured timeout. It returns the payload (report ID stripped when the
// device echoes it) and whether at least one byte arrived.
func (b *Base) ReadReport(reportID uint8) ([]byte, bool) {
	return b.ReadReportTimeout(reportID, b.opts.Timeout)
}

// ReadReportTimeout is ReadReport with an explicit timeout.
func (b *Base) ReadReportTimeout(reportID uint8, timeout time.Duration) ([]byte, bool) {
	buf := make([]byte, 64)
	for _, rt := range []transport.ReportType{transport.ReportTypeInput, transport.ReportTypeFeature} {
		n, err := b.tr.HIDGetReport(rt, reportID, buf, timeout)
		if err != nil || n == 0 {
			continue
		}
		b.logger.Tracef("report 0x%02X (%s): % X", reportID, rt, buf[:n])
		return buf[:n], true
	}
	return nil, false
}

// WriteFeature issues a SET_REPORT Feature transfer.
func (b *Base) WriteFeature(reportID uint8, payload []byte) error {
	return b.tr.HIDSetReport(transport.ReportTypeFeature, reportID, payload, b.opts.Timeout)
}

// ReadTimerData implements the optional fast-poll refresh; no timers by
// default.
func (b *Base) ReadTimerData(*data.UpsData) bool { return false }

// Commands lists no instant commands by default.
func (b *Base) Commands() []string { return nil }

// Default control operations.

func (b *Base) BeeperEnable() error  { return ErrNotSupported }
func (b *Base) BeeperDisable() error { return ErrNotSupported }
func (b *Base) BeeperMute() error    { return ErrNotSupported }
func (b *Base) BeeperTest() error    { return ErrNotSupported }

func (b *Base) StartBatteryTestQuick() error { return ErrNotSupported }
func (b *Base) StartBatteryTestDeep() error  { return ErrNotSupported }
func (b *Base) StopBatteryTest() error       { return ErrNotSupported }
func (b *Base) StartUpsTest() error          { return ErrNotSupported }
func (b *Base) StopUpsTest() error           { return ErrNotSupported }

func (b *Base) SetShutdownDelay(int) error { return ErrNotSupported }
func (b *Base) SetStartDelay(int) error    { return ErrNotSupported }
func (b *Base) SetRebootDelay(int) error   { return ErrNotSupported }
