package nut

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func authedConfig() ServerConfig {
	return ServerConfig{Username: "ups", Password: "secret"}
}

func TestAuthRequiredForStatefulCommands(t *testing.T) {
	s, c, conn := testServer(authedConfig(), nil)

	s.processCommand(c, "LIST VAR ups")
	assert.Equal(t, "ERR ACCESS-DENIED\n", conn.drain())

	// Unauthenticated commands still work.
	s.processCommand(c, "NETVER")
	assert.Equal(t, "1.3\n", conn.drain())
}

func TestLoginSuccess(t *testing.T) {
	s, c, conn := testServer(authedConfig(), nil)

	s.processCommand(c, "LOGIN ups secret")
	assert.Equal(t, "OK\n", conn.drain())
	assert.True(t, c.authenticated())

	s.processCommand(c, "LIST UPS")
	assert.Contains(t, conn.drain(), "BEGIN LIST UPS\n")
}

func TestLoginFailureThenLockout(t *testing.T) {
	s, c, conn := testServer(authedConfig(), nil)

	s.processCommand(c, "LOGIN ups wrong")
	assert.Equal(t, "ERR ACCESS-DENIED\n", conn.drain())
	s.processCommand(c, "LOGIN ups wrong")
	assert.Equal(t, "ERR ACCESS-DENIED\n", conn.drain())

	// Third bad login closes the socket without a reply.
	s.processCommand(c, "LOGIN ups wrong")
	assert.Equal(t, "", conn.drain())
	assert.True(t, conn.isClosed())
	assert.False(t, c.active())
}

func TestLoginInvalidArguments(t *testing.T) {
	s, c, conn := testServer(authedConfig(), nil)

	s.processCommand(c, "LOGIN")
	assert.Equal(t, "ERR INVALID-ARGUMENT\n", conn.drain())

	s.processCommand(c, "LOGIN onlyuser")
	assert.Equal(t, "ERR INVALID-ARGUMENT\n", conn.drain())
}

func TestUsernamePasswordSequence(t *testing.T) {
	s, c, conn := testServer(authedConfig(), nil)

	s.processCommand(c, "USERNAME ups")
	assert.Equal(t, "OK\n", conn.drain())
	assert.False(t, c.authenticated(), "authentication happens on PASSWORD")

	s.processCommand(c, "PASSWORD secret")
	assert.Equal(t, "OK\n", conn.drain())
	assert.True(t, c.authenticated())
	assert.Equal(t, "", c.tempUsername, "scratch credentials are cleared")
	assert.Equal(t, "", c.tempPassword)
}

func TestUsernamePasswordWrong(t *testing.T) {
	s, c, conn := testServer(authedConfig(), nil)

	s.processCommand(c, "USERNAME ups")
	conn.drain()
	s.processCommand(c, "PASSWORD wrong")
	assert.Equal(t, "ERR ACCESS-DENIED\n", conn.drain())
	assert.False(t, c.authenticated())
}

func TestNoPasswordMeansOpenAccess(t *testing.T) {
	s, c, conn := testServer(ServerConfig{}, nil)

	s.processCommand(c, "LIST UPS")
	assert.Contains(t, conn.drain(), "BEGIN LIST UPS\n")

	// LOGIN still answers OK.
	s.processCommand(c, "LOGIN anyone anything")
	assert.Equal(t, "OK\n", conn.drain())
}

func TestBcryptPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	s, c, conn := testServer(ServerConfig{Username: "ups", Password: string(hash)}, nil)

	s.processCommand(c, "LOGIN ups secret")
	assert.Equal(t, "OK\n", conn.drain())
	assert.True(t, c.authenticated())

	c.state = StateConnected
	s.processCommand(c, "LOGIN ups wrong")
	assert.Equal(t, "ERR ACCESS-DENIED\n", conn.drain())
}

// TestServerOverSocket exercises the real listener path: accept, line
// framing, authentication, and variable listing end to end.
func TestServerOverSocket(t *testing.T) {
	p := newFakeProvider()
	s := NewServer(ServerConfig{
		Address:        "127.0.0.1:0",
		Username:       "ups",
		Password:       "secret",
		UpsDescription: "ESPHome UPS",
	}, p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(conn)

	send := func(line string) {
		_, err := conn.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}
	readLine := func() string {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		return line
	}

	send("LOGIN ups secret")
	assert.Equal(t, "OK\n", readLine())

	send("LIST UPS")
	assert.Equal(t, "BEGIN LIST UPS\n", readLine())
	assert.Equal(t, "UPS ups \"APC Back-UPS ES 700\"\n", readLine())
	assert.Equal(t, "END LIST UPS\n", readLine())

	send("GET VAR ups ups.status")
	assert.Equal(t, "VAR ups ups.status \"OL CHRG\"\n", readLine())

	send("LOGOUT")
	assert.Equal(t, "OK Goodbye\n", readLine())
}

func TestServerMaxClients(t *testing.T) {
	s := NewServer(ServerConfig{Address: "127.0.0.1:0", MaxClients: 1}, newFakeProvider())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	first, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer first.Close()

	// Give the server task a tick to seat the first client.
	require.Eventually(t, func() bool { return s.ClientCount() == 1 },
		time.Second, tickInterval)

	second, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer second.Close()
	second.SetDeadline(time.Now().Add(5 * time.Second))

	line, err := bufio.NewReader(second).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ERR MAX-CLIENTS Maximum number of clients reached\n", line)
}
