package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicJoining(t *testing.T) {
	s := NewSink(Config{TopicPrefix: "home/ups"})
	assert.Equal(t, "home/ups/battery.level", s.topic("battery.level"))
	assert.Equal(t, "home/ups/availability", s.topic(availabilitySuffix))
}

func TestConfigDefaults(t *testing.T) {
	s := NewSink(Config{})
	assert.Equal(t, "nutbridge", s.cfg.ClientID)
	assert.Equal(t, "nutbridge", s.cfg.TopicPrefix)
}

func TestPublishWithoutConnectIsSafe(t *testing.T) {
	s := NewSink(Config{})

	// Must not panic before Connect.
	s.PublishNumeric("battery.level", 99)
	s.PublishBinary("ups.online", true)
	s.PublishText("ups.status", "OL")
	s.Close()
}
