// Command nutbridge bridges a USB-HID UPS onto the NUT network protocol.
//
// The daemon speaks vendor HID conventions (APC, CyberPower, Eaton/MGE, APC
// Smart, generic fallback) directly over libusb, normalizes the telemetry,
// and re-exports it to standard NUT clients (upsc, upsmon, home-automation
// integrations) over TCP port 3493. Optional extras: an MQTT telemetry
// sink, mDNS advertisement of the NUT service, and a CBOR event log.
//
// Usage:
//
//	nutbridge [flags]
//
// Flags:
//
//	-config string      Configuration file path (YAML)
//	-simulate           Force simulation mode with synthetic data
//	-port int           NUT listen port override
//	-log-level string   Log level: trace, debug, info, warn, error
//
// Examples:
//
//	# Auto-detect an attached UPS and serve NUT on :3493
//	nutbridge
//
//	# Development without hardware
//	nutbridge -simulate -log-level debug
//
//	# Full configuration
//	nutbridge -config /etc/nutbridge/bridge.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/nutbridge/nutbridge-go/pkg/config"
	"github.com/nutbridge/nutbridge-go/pkg/discovery"
	"github.com/nutbridge/nutbridge-go/pkg/eventlog"
	"github.com/nutbridge/nutbridge-go/pkg/log"
	"github.com/nutbridge/nutbridge-go/pkg/nut"
	"github.com/nutbridge/nutbridge-go/pkg/sink/mqtt"
	"github.com/nutbridge/nutbridge-go/pkg/ups"
	"github.com/nutbridge/nutbridge-go/pkg/version"
)

var (
	configPath = flag.String("config", "", "Configuration file path (YAML)")
	simulate   = flag.Bool("simulate", false, "Force simulation mode with synthetic data")
	port       = flag.Int("port", 0, "NUT listen port override")
	logLevel   = flag.String("log-level", "", "Log level: trace, debug, info, warn, error")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version.String())
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "nutbridge: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// CLI flags override file values.
	if *simulate {
		cfg.SimulationMode = true
	}
	if *port != 0 {
		cfg.Nut.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := newLogger(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

// newLogger builds the console logger at the configured level.
func newLogger(level string) log.Logger {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	switch level {
	case "trace":
		zl = zl.Level(zerolog.TraceLevel)
	case "debug":
		zl = zl.Level(zerolog.DebugLevel)
	case "warn":
		zl = zl.Level(zerolog.WarnLevel)
	case "error":
		zl = zl.Level(zerolog.ErrorLevel)
	default:
		zl = zl.Level(zerolog.InfoLevel)
	}
	return log.NewZerologAdapter(zl)
}

// run wires the components and blocks until a signal arrives.
func run(cfg *config.Config, logger log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vendorID, err := cfg.USBVendorID()
	if err != nil {
		return err
	}
	productID, err := cfg.USBProductID()
	if err != nil {
		return err
	}

	core := ups.NewCore(ups.Config{
		SimulationMode:         cfg.SimulationMode,
		VendorID:               vendorID,
		ProductID:              productID,
		UpdateInterval:         time.Duration(cfg.UpdateIntervalMillis) * time.Millisecond,
		ProtocolTimeout:        time.Duration(cfg.ProtocolTimeoutMillis) * time.Millisecond,
		ProtocolSelection:      cfg.ProtocolSelection,
		FallbackNominalVoltage: cfg.FallbackNominalVoltage,
		Logger:                 logger,
	})
	if err := core.Setup(ctx); err != nil {
		return err
	}
	defer core.Close()

	// Diagnostic event log, wired as a status-transition observer.
	if cfg.EventLog.Path != "" {
		writer, err := eventlog.NewWriter(cfg.EventLog.Path)
		if err != nil {
			return fmt.Errorf("event log: %w", err)
		}
		defer writer.Close()
		core.AddTextSink(ups.KeyStatus, newStatusRecorder(writer))
	}

	// MQTT telemetry sink.
	if cfg.Mqtt.Enabled {
		sink := mqtt.NewSink(mqtt.Config{
			Broker:      cfg.Mqtt.Broker,
			ClientID:    cfg.Mqtt.ClientID,
			Username:    cfg.Mqtt.Username,
			Password:    cfg.Mqtt.Password,
			TopicPrefix: cfg.Mqtt.TopicPrefix,
			QoS:         cfg.Mqtt.QoS,
			Retain:      cfg.Mqtt.Retain,
			Logger:      logger,
		})
		if err := sink.Connect(); err != nil {
			return err
		}
		defer sink.Close()
		registerMqttSink(core, sink)
	}

	server := nut.NewServer(nut.ServerConfig{
		Address:        fmt.Sprintf(":%d", cfg.Nut.Port),
		MaxClients:     cfg.Nut.MaxClients,
		Username:       cfg.Nut.Username,
		Password:       cfg.Nut.Password,
		UpsName:        cfg.Ups.Name,
		UpsDescription: cfg.Ups.Description,
		Logger:         logger,
	}, core)
	if err := server.Start(ctx); err != nil {
		return err
	}
	defer server.Stop()

	if cfg.Discovery.Enabled {
		adv := discovery.NewAdvertiser(discovery.AdvertiserConfig{})
		err := adv.Advertise(discovery.Info{
			Port:        cfg.Nut.Port,
			UpsName:     cfg.Ups.Name,
			Description: cfg.Ups.Description,
		})
		if err != nil {
			logger.Warnf("mdns advertisement failed: %v", err)
		} else {
			defer adv.Stop()
		}
	}

	go core.Run(ctx)

	logger.Infof("%s serving %q on :%d", version.String(), cfg.Ups.Name, cfg.Nut.Port)
	<-ctx.Done()
	logger.Infof("shutting down")
	return nil
}

// statusRecorder writes UPS status transitions into the event log.
type statusRecorder struct {
	mu     sync.Mutex
	writer *eventlog.Writer
	last   string
}

func newStatusRecorder(w *eventlog.Writer) *statusRecorder {
	return &statusRecorder{writer: w}
}

// PublishText records a transition whenever the status word changes.
func (r *statusRecorder) PublishText(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if value == r.last {
		return
	}
	r.writer.Record(eventlog.Event{
		Kind:     eventlog.KindStatusChange,
		OldState: r.last,
		NewState: value,
	})
	r.last = value
}

// registerMqttSink subscribes the sink to every published key.
func registerMqttSink(core *ups.Core, sink *mqtt.Sink) {
	numericKeys := []string{
		ups.KeyBatteryLevel, ups.KeyBatteryVoltage, ups.KeyBatteryVoltageNominal,
		ups.KeyBatteryRuntime, ups.KeyInputVoltage, ups.KeyInputVoltageNominal,
		ups.KeyInputFrequency, ups.KeyInputTransferLow, ups.KeyInputTransferHigh,
		ups.KeyOutputVoltage, ups.KeyLoad, ups.KeyRealpowerNominal,
	}
	for _, key := range numericKeys {
		core.AddNumericSink(key, sink)
	}

	binaryKeys := []string{
		ups.KeyOnline, ups.KeyOnBattery, ups.KeyLowBattery,
		ups.KeyCharging, ups.KeyFault, ups.KeyOverload,
	}
	for _, key := range binaryKeys {
		core.AddBinarySink(key, sink)
	}

	textKeys := []string{
		ups.KeyStatus, ups.KeyBeeperStatus, ups.KeyInputSensitivity,
		ups.KeyModel, ups.KeyManufacturer, ups.KeySerial, ups.KeyFirmware,
	}
	for _, key := range textKeys {
		core.AddTextSink(key, sink)
	}
}
