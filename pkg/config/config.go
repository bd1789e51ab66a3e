// Package config provides configuration loading and defaults for the bridge.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// USBConfig selects the UPS device on the bus.
type USBConfig struct {
	// VendorID/ProductID as hex or decimal strings ("0x051d", "1309");
	// empty means auto-detect.
	VendorID  string `yaml:"vendor_id"`
	ProductID string `yaml:"product_id"`
}

// NutConfig holds the NUT server settings.
type NutConfig struct {
	Port       int    `yaml:"port"`
	MaxClients int    `yaml:"max_clients"`
	Username   string `yaml:"username"`
	// Password may be plaintext or a bcrypt hash ("$2..." prefix).
	Password string `yaml:"password"`
}

// UpsConfig names the exported UPS.
type UpsConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// MqttConfig holds the optional MQTT telemetry sink settings.
type MqttConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
}

// DiscoveryConfig controls mDNS advertisement of the NUT service.
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// EventLogConfig controls the CBOR diagnostic event log.
type EventLogConfig struct {
	Path string `yaml:"path"`
}

// Config is the top-level configuration.
type Config struct {
	SimulationMode bool `yaml:"simulation_mode"`

	USB USBConfig `yaml:"usb"`

	ProtocolTimeoutMillis  int     `yaml:"protocol_timeout_ms"`
	ProtocolSelection      string  `yaml:"protocol_selection"`
	FallbackNominalVoltage float64 `yaml:"fallback_nominal_voltage"`
	UpdateIntervalMillis   int     `yaml:"update_interval_ms"`

	Nut       NutConfig       `yaml:"nut"`
	Ups       UpsConfig       `yaml:"ups"`
	Mqtt      MqttConfig      `yaml:"mqtt"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	EventLog  EventLogConfig  `yaml:"event_log"`

	// LogLevel: trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns a Config populated with default values. Each call returns
// a distinct instance.
func Default() *Config {
	return &Config{
		ProtocolTimeoutMillis:  15000,
		ProtocolSelection:      "auto",
		FallbackNominalVoltage: 230,
		UpdateIntervalMillis:   5000,
		Nut: NutConfig{
			Port:       3493,
			MaxClients: 4,
		},
		Ups: UpsConfig{
			Name:        "ups",
			Description: "USB HID UPS",
		},
		Mqtt: MqttConfig{
			TopicPrefix: "nutbridge",
			ClientID:    "nutbridge",
		},
		LogLevel: "info",
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and identifier syntax.
func (c *Config) Validate() error {
	if c.Nut.Port < 1 || c.Nut.Port > 65535 {
		return fmt.Errorf("nut.port %d out of range", c.Nut.Port)
	}
	if c.Nut.MaxClients < 1 {
		return fmt.Errorf("nut.max_clients must be at least 1")
	}
	if c.Ups.Name == "" || strings.ContainsAny(c.Ups.Name, " \t\"") {
		return fmt.Errorf("ups.name %q must be a single bare word", c.Ups.Name)
	}
	if _, err := c.USBVendorID(); err != nil {
		return err
	}
	if _, err := c.USBProductID(); err != nil {
		return err
	}
	switch c.LogLevel {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q unknown", c.LogLevel)
	}
	return nil
}

// USBVendorID parses the configured vendor ID (0 = auto).
func (c *Config) USBVendorID() (uint16, error) {
	return parseUSBID("usb.vendor_id", c.USB.VendorID)
}

// USBProductID parses the configured product ID (0 = auto).
func (c *Config) USBProductID() (uint16, error) {
	return parseUSBID("usb.product_id", c.USB.ProductID)
}

// parseUSBID accepts "0x051d", "051d", or decimal; empty means 0 (auto).
func parseUSBID(field, s string) (uint16, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	} else if strings.ContainsAny(s, "abcdefABCDEF") {
		base = 16
	}
	v, err := strconv.ParseUint(s, base, 16)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid USB id %q", field, s)
	}
	return uint16(v), nil
}
