package nut

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutbridge/nutbridge-go/pkg/version"
)

func TestListVarWellFormed(t *testing.T) {
	s, c, conn := testServer(ServerConfig{}, nil)

	s.processCommand(c, "LIST VAR ups")
	out := conn.output()

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "BEGIN LIST VAR ups", lines[0])
	assert.Equal(t, "END LIST VAR ups", lines[len(lines)-1])

	for _, line := range lines[1 : len(lines)-1] {
		assert.True(t, strings.HasPrefix(line, "VAR ups "), "line %q", line)
		assert.True(t, strings.HasSuffix(line, `"`), "value must be quoted: %q", line)
	}

	assert.Contains(t, out, `VAR ups ups.status "OL CHRG"`)
	assert.Contains(t, out, `VAR ups battery.charge "99"`)
	assert.Contains(t, out, `VAR ups input.voltage "230.4"`)
	assert.Contains(t, out, `VAR ups ups.load "7"`)
	// 10.25 minutes → 615 seconds.
	assert.Contains(t, out, `VAR ups battery.runtime "615"`)
	// Unset fields are omitted entirely.
	assert.NotContains(t, out, "output.voltage")
	assert.NotContains(t, out, "input.frequency")
}

func TestListVarDataStale(t *testing.T) {
	p := newFakeProvider()
	p.connected = false
	s, c, conn := testServer(ServerConfig{}, p)

	s.processCommand(c, "LIST VAR ups")
	assert.Equal(t, "ERR DATA-STALE\n", conn.output())
}

func TestListVarUnknownUps(t *testing.T) {
	s, c, conn := testServer(ServerConfig{}, nil)

	s.processCommand(c, "LIST VAR otherups")
	assert.Equal(t, "ERR UNKNOWN-UPS\n", conn.output())
}

func TestUpsNamesAreCaseSensitive(t *testing.T) {
	s, c, conn := testServer(ServerConfig{}, nil)

	s.processCommand(c, "list var UPS")
	assert.Equal(t, "ERR UNKNOWN-UPS\n", conn.output(),
		"commands are case-insensitive but UPS names are not")
}

func TestGetVar(t *testing.T) {
	s, c, conn := testServer(ServerConfig{}, nil)

	s.processCommand(c, "GET VAR ups ups.status")
	assert.Equal(t, "VAR ups ups.status \"OL CHRG\"\n", conn.drain())

	s.processCommand(c, "GET VAR ups input.frequency")
	assert.Equal(t, "ERR VAR-NOT-SUPPORTED\n", conn.drain(),
		"unset variables answer VAR-NOT-SUPPORTED")

	s.processCommand(c, "GET VAR ups no.such.var")
	assert.Equal(t, "ERR VAR-NOT-SUPPORTED\n", conn.drain())

	s.processCommand(c, "GET VAR otherups ups.status")
	assert.Equal(t, "ERR UNKNOWN-UPS\n", conn.drain())

	s.processCommand(c, "GET VAR ups")
	assert.Equal(t, "ERR INVALID-ARGUMENT\n", conn.drain())
}

func TestGetVarDataStale(t *testing.T) {
	p := newFakeProvider()
	p.hasData = false
	s, c, conn := testServer(ServerConfig{}, p)

	s.processCommand(c, "GET VAR ups ups.status")
	assert.Equal(t, "ERR DATA-STALE\n", conn.output())
}

func TestListUps(t *testing.T) {
	p := newFakeProvider()
	p.hasData = false
	p.connected = false
	s, c, conn := testServer(ServerConfig{UpsDescription: "ESPHome UPS"}, p)

	s.processCommand(c, "LIST UPS")
	assert.Equal(t, "BEGIN LIST UPS\nUPS ups \"ESPHome UPS\"\nEND LIST UPS\n", conn.drain())

	// With live identity the description is derived from the device.
	p.hasData = true
	p.connected = true
	s.processCommand(c, "LIST UPS")
	assert.Equal(t, "BEGIN LIST UPS\nUPS ups \"APC Back-UPS ES 700\"\nEND LIST UPS\n", conn.drain())
}

func TestListCmd(t *testing.T) {
	s, c, conn := testServer(ServerConfig{}, nil)

	s.processCommand(c, "LIST CMD ups")
	out := conn.output()
	assert.Contains(t, out, "BEGIN LIST CMD ups\n")
	assert.Contains(t, out, "CMD ups beeper.enable\n")
	assert.Contains(t, out, "CMD ups test.battery.start.quick\n")
	assert.Contains(t, out, "END LIST CMD ups\n")
}

func TestListEmptyBlocks(t *testing.T) {
	s, c, conn := testServer(ServerConfig{}, nil)

	s.processCommand(c, "LIST RW ups")
	assert.Equal(t, "BEGIN LIST RW ups\nEND LIST RW ups\n", conn.drain())

	s.processCommand(c, "LIST ENUM ups input.voltage")
	assert.Equal(t, "BEGIN LIST ENUM ups input.voltage\nEND LIST ENUM ups input.voltage\n", conn.drain())

	s.processCommand(c, "LIST RANGE ups battery.charge")
	assert.Equal(t, "BEGIN LIST RANGE ups battery.charge\nEND LIST RANGE ups battery.charge\n", conn.drain())
}

func TestListClients(t *testing.T) {
	s, c, conn := testServer(ServerConfig{}, nil)

	s.processCommand(c, "LIST CLIENTS")
	out := conn.output()
	assert.Contains(t, out, "BEGIN LIST CLIENT\n")
	assert.Contains(t, out, "CLIENT 192.168.1.50 0 connected\n")
	assert.Contains(t, out, "END LIST CLIENT\n")
}

func TestSetVarNotSupported(t *testing.T) {
	s, c, conn := testServer(ServerConfig{}, nil)

	s.processCommand(c, "SET VAR ups battery.charge 50")
	assert.Equal(t, "ERR CMD-NOT-SUPPORTED\n", conn.output())
}

func TestInstCmd(t *testing.T) {
	p := newFakeProvider()
	s, c, conn := testServer(ServerConfig{}, p)

	s.processCommand(c, "INSTCMD ups beeper.enable")
	assert.Equal(t, "OK\n", conn.drain())
	assert.Equal(t, []string{"beeper.enable"}, p.calls)

	s.processCommand(c, "INSTCMD ups test.panel.start")
	assert.Equal(t, "OK\n", conn.drain())
	assert.Equal(t, "test.ups.start", p.calls[len(p.calls)-1],
		"test.panel.start maps onto the UPS test")

	s.processCommand(c, "INSTCMD ups no.such.command")
	assert.Equal(t, "ERR CMD-NOT-SUPPORTED\n", conn.drain())

	s.processCommand(c, "INSTCMD ups")
	assert.Equal(t, "ERR INVALID-ARGUMENT\n", conn.drain())
}

func TestInstCmdDriverNotConnected(t *testing.T) {
	p := newFakeProvider()
	p.connected = false
	s, c, conn := testServer(ServerConfig{}, p)

	s.processCommand(c, "INSTCMD ups beeper.enable")
	assert.Equal(t, "ERR DRIVER-NOT-CONNECTED\n", conn.output())
}

func TestInstCmdDecoderRefuses(t *testing.T) {
	p := newFakeProvider()
	p.failCmds = true
	s, c, conn := testServer(ServerConfig{}, p)

	s.processCommand(c, "INSTCMD ups beeper.mute")
	assert.Equal(t, "ERR CMD-NOT-SUPPORTED\n", conn.output())
}

func TestFsd(t *testing.T) {
	s, c, conn := testServer(ServerConfig{}, nil)

	s.processCommand(c, "FSD ups")
	assert.Equal(t, "OK FSD-SET\n", conn.output())
}

func TestVersionCommands(t *testing.T) {
	s, c, conn := testServer(ServerConfig{}, nil)

	s.processCommand(c, "VERSION")
	assert.Equal(t, fmt.Sprintf("VERSION %q\n", version.String()), conn.drain())

	s.processCommand(c, "VER")
	assert.Equal(t, fmt.Sprintf("VERSION %q\n", version.String()), conn.drain())

	s.processCommand(c, "NETVER")
	assert.Equal(t, "1.3\n", conn.drain(), "NETVER has no prefix")

	s.processCommand(c, "UPSDVER")
	assert.Equal(t, version.Upsd()+"\n", conn.drain())
}

func TestStartTLSRefused(t *testing.T) {
	s, c, conn := testServer(ServerConfig{}, nil)

	s.processCommand(c, "STARTTLS")
	assert.Equal(t, "ERR FEATURE-NOT-SUPPORTED\n", conn.output())
}

func TestUnknownCommand(t *testing.T) {
	s, c, conn := testServer(ServerConfig{}, nil)

	s.processCommand(c, "FROBNICATE now")
	assert.Equal(t, "ERR UNKNOWN-COMMAND\n", conn.output())
}

func TestLogout(t *testing.T) {
	s, c, conn := testServer(ServerConfig{}, nil)

	s.processCommand(c, "LOGOUT")
	assert.Equal(t, "OK Goodbye\n", conn.output())
	assert.True(t, conn.isClosed())
	assert.False(t, c.active())
}

func TestLegacyBareNameListing(t *testing.T) {
	s, c, conn := testServer(ServerConfig{}, nil)

	s.processCommand(c, "ups")
	out := conn.output()
	assert.Contains(t, out, "ups.mfr\n")
	assert.Contains(t, out, "ups.status\n")
	assert.NotContains(t, out, "BEGIN")
}

func TestSplitArgsQuoting(t *testing.T) {
	assert.Equal(t, []string{"ups", "a value"}, splitArgs(`ups "a value"`))
	assert.Equal(t, []string{"one", "two", "three"}, splitArgs("one two three"))
	assert.Empty(t, splitArgs(""))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "230.4", formatReal(230.4))
	assert.Equal(t, "230.0", formatReal(230))
	assert.Equal(t, "", formatReal(math.NaN()))
	assert.Equal(t, "99", formatInt(99.6))
	assert.Equal(t, "", formatInt(math.NaN()))
}
