package mqtt

import (
	"fmt"
	"strconv"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/nutbridge/nutbridge-go/pkg/log"
)

// Connection constants.
const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second

	// availabilitySuffix is appended to the topic prefix for the
	// online/offline availability topic.
	availabilitySuffix = "availability"
)

// Config configures the MQTT sink.
type Config struct {
	// Broker is the broker URL (tcp://host:1883).
	Broker string

	// ClientID identifies this bridge to the broker.
	ClientID string

	// Username/Password authenticate when non-empty.
	Username string
	Password string

	// TopicPrefix is prepended to every telemetry key.
	TopicPrefix string

	// QoS for all publications.
	QoS byte

	// Retain marks publications as retained.
	Retain bool

	// Logger for sink diagnostics (optional).
	Logger log.Logger
}

// Sink publishes telemetry to MQTT. It implements the core's numeric,
// binary, and text sink interfaces.
type Sink struct {
	cfg    Config
	logger log.Logger
	client paho.Client
}

// NewSink creates an MQTT sink. Call Connect before registering it.
func NewSink(cfg Config) *Sink {
	if cfg.ClientID == "" {
		cfg.ClientID = "nutbridge"
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "nutbridge"
	}
	return &Sink{cfg: cfg, logger: log.OrNoop(cfg.Logger)}
}

// Connect dials the broker, announcing availability with a last will.
func (s *Sink) Connect() error {
	opts := paho.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true).
		SetWill(s.topic(availabilitySuffix), "offline", s.cfg.QoS, true)

	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connect to %s timed out", s.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", s.cfg.Broker, err)
	}

	s.client = client
	s.publish(availabilitySuffix, "online")
	s.logger.Infof("mqtt sink connected to %s", s.cfg.Broker)
	return nil
}

// Close announces offline and disconnects.
func (s *Sink) Close() {
	if s.client == nil {
		return
	}
	s.publish(availabilitySuffix, "offline")
	s.client.Disconnect(uint(publishTimeout.Milliseconds()))
	s.client = nil
}

// PublishNumeric publishes a real value.
func (s *Sink) PublishNumeric(key string, value float64) {
	s.publish(key, strconv.FormatFloat(value, 'f', -1, 64))
}

// PublishBinary publishes a boolean as ON/OFF.
func (s *Sink) PublishBinary(key string, value bool) {
	payload := "OFF"
	if value {
		payload = "ON"
	}
	s.publish(key, payload)
}

// PublishText publishes a string value.
func (s *Sink) PublishText(key string, value string) {
	s.publish(key, value)
}

// publish sends one payload; failures are logged, never fatal.
func (s *Sink) publish(key, payload string) {
	if s.client == nil {
		return
	}
	token := s.client.Publish(s.topic(key), s.cfg.QoS, s.cfg.Retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		s.logger.Warnf("mqtt publish %s timed out", key)
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Warnf("mqtt publish %s: %v", key, err)
	}
}

// topic joins the prefix and key.
func (s *Sink) topic(key string) string {
	return s.cfg.TopicPrefix + "/" + key
}
