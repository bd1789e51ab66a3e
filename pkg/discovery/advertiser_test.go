package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeTXT(t *testing.T) {
	txt := encodeTXT(Info{
		UpsName:      "ups",
		Description:  "Office UPS",
		Manufacturer: "APC",
		Model:        "Back-UPS ES 700",
	})

	assert.Contains(t, txt, "ups=ups")
	assert.Contains(t, txt, "desc=Office UPS")
	assert.Contains(t, txt, "mfr=APC")
	assert.Contains(t, txt, "model=Back-UPS ES 700")
}

func TestEncodeTXTOmitsEmptyFields(t *testing.T) {
	txt := encodeTXT(Info{UpsName: "ups"})
	assert.Equal(t, []string{"ups=ups"}, txt)
}

func TestAdvertiserConfigDefaults(t *testing.T) {
	a := NewAdvertiser(AdvertiserConfig{})
	assert.Equal(t, DefaultTTL, a.config.TTL)
	assert.Nil(t, a.getInterfaces(), "empty interface name means all interfaces")

	// Stop before any Advertise is a no-op.
	a.Stop()
}
