package nut

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nutbridge/nutbridge-go/pkg/data"
	"github.com/nutbridge/nutbridge-go/pkg/log"
	"github.com/nutbridge/nutbridge-go/pkg/version"
)

// Server limits and defaults.
const (
	// DefaultPort is the IANA-assigned NUT port.
	DefaultPort = 3493

	// DefaultMaxClients is the preallocated slot count.
	DefaultMaxClients = 4

	// MaxClients is the hard ceiling on configurable slots.
	MaxClients = 16

	// ClientTimeout disconnects idle clients.
	ClientTimeout = 30 * time.Second

	// MaxCommandLength bounds one command line in bytes.
	MaxCommandLength = 256

	// MaxLoginAttempts closes the connection when exceeded.
	MaxLoginAttempts = 3

	// tickInterval paces the single server task: accept, per-slot reads,
	// idle cleanup, all within one tick.
	tickInterval = 10 * time.Millisecond

	// netProtocolVersion is the NUT network protocol version.
	netProtocolVersion = "1.3"
)

// UpsProvider is the surface the server needs from the polling core.
type UpsProvider interface {
	// SnapshotData returns a by-value copy of the current record; false
	// while no valid read has happened.
	SnapshotData() (data.UpsData, bool)

	// IsConnected reports whether live data is available.
	IsConnected() bool

	// Commands lists the instant commands of the active decoder.
	Commands() []string

	BeeperEnable() error
	BeeperDisable() error
	BeeperMute() error
	BeeperTest() error
	StartBatteryTestQuick() error
	StartBatteryTestDeep() error
	StopBatteryTest() error
	StartUpsTest() error
	StopUpsTest() error
}

// ServerConfig configures the NUT server.
type ServerConfig struct {
	// Address to listen on (":3493" when empty).
	Address string

	// MaxClients is the slot count, clamped to [1, MaxClients].
	MaxClients int

	// Username/Password guard all stateful commands when Password is
	// non-empty. Password may be a bcrypt hash ("$2..." prefix) or plain.
	Username string
	Password string

	// UpsName is the single exported UPS name ("ups" when empty).
	UpsName string

	// UpsDescription is the LIST UPS description.
	UpsDescription string

	// Logger for server diagnostics (optional).
	Logger log.Logger
}

// Server is the NUT TCP server. One task owns the listener and every slot.
type Server struct {
	cfg    ServerConfig
	logger log.Logger
	ups    UpsProvider

	listener net.Listener

	// slotsMu guards the slot array; it is held by the server task and the
	// cleanup helper only.
	slotsMu sync.Mutex
	slots   []clientSlot

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a NUT server over the given provider.
func NewServer(cfg ServerConfig, ups UpsProvider) *Server {
	if cfg.Address == "" {
		cfg.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = DefaultMaxClients
	}
	if cfg.MaxClients > MaxClients {
		cfg.MaxClients = MaxClients
	}
	if cfg.UpsName == "" {
		cfg.UpsName = "ups"
	}
	if cfg.UpsDescription == "" {
		cfg.UpsDescription = "USB HID UPS"
	}

	return &Server{
		cfg:    cfg,
		logger: log.OrNoop(cfg.Logger),
		ups:    ups,
		slots:  make([]clientSlot, cfg.MaxClients),
	}
}

// Start opens the listener and launches the server task.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return errors.New("server already running")
	}

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	listener, err := lc.Listen(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}
	s.listener = listener
	s.running.Store(true)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.serveLoop(runCtx)

	s.logger.Infof("nut server listening on %s (ups %q)", listener.Addr(), s.cfg.UpsName)
	return nil
}

// Stop closes the listener and every client.
func (s *Server) Stop() error {
	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()

	s.slotsMu.Lock()
	for i := range s.slots {
		if s.slots[i].active() {
			s.disconnect(&s.slots[i])
		}
	}
	s.slotsMu.Unlock()
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ClientCount returns the number of active slots.
func (s *Server) ClientCount() int {
	s.slotsMu.Lock()
	defer s.slotsMu.Unlock()
	n := 0
	for i := range s.slots {
		if s.slots[i].active() {
			n++
		}
	}
	return n
}

// serveLoop is the single server task: accept, per-slot service, idle
// cleanup, every tick.
func (s *Server) serveLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.acceptPending()
		s.serviceSlots()
		s.cleanupIdle()
	}
}

// acceptPending performs one non-blocking accept round.
func (s *Server) acceptPending() {
	tcp, ok := s.listener.(*net.TCPListener)
	if !ok {
		return
	}
	if err := tcp.SetDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return
	}

	conn, err := tcp.Accept()
	if err != nil {
		if !errors.Is(err, os.ErrDeadlineExceeded) && s.running.Load() {
			s.logger.Debugf("accept: %v", err)
		}
		return
	}

	s.slotsMu.Lock()
	defer s.slotsMu.Unlock()

	for i := range s.slots {
		if s.slots[i].active() {
			continue
		}
		now := time.Now()
		s.slots[i] = clientSlot{
			conn:         conn,
			id:           uuid.New().String(),
			state:        StateConnected,
			remoteIP:     remoteIP(conn),
			connectTime:  now,
			lastActivity: now,
		}
		s.logger.Debugf("client connected from %s", s.slots[i].remoteIP)
		// NUT clients drive the exchange; no greeting is sent.
		return
	}

	s.logger.Warnf("maximum clients reached, rejecting %s", remoteIP(conn))
	_ = writeAll(conn, "ERR MAX-CLIENTS Maximum number of clients reached\n")
	conn.Close()
}

// serviceSlots reads available bytes from every active slot and dispatches
// complete lines.
func (s *Server) serviceSlots() {
	s.slotsMu.Lock()
	defer s.slotsMu.Unlock()

	for i := range s.slots {
		c := &s.slots[i]
		if !c.active() {
			continue
		}
		s.serviceSlot(c)
	}
}

// serviceSlot performs one bounded read on a slot.
func (s *Server) serviceSlot(c *clientSlot) {
	if err := c.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		s.disconnect(c)
		return
	}

	buf := make([]byte, MaxCommandLength)
	n, err := c.conn.Read(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return // nothing to read this tick
		}
		if isPeerGone(err) {
			s.logger.Debugf("client %s connection reset", c.remoteIP)
		} else {
			s.logger.Debugf("client %s read: %v", c.remoteIP, err)
		}
		s.disconnect(c)
		return
	}
	if n == 0 {
		return
	}

	c.lastActivity = time.Now()
	c.pending = append(c.pending, buf[:n]...)

	for {
		idx := bytes.IndexByte(c.pending, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(c.pending[:idx]), "\r")
		c.pending = c.pending[idx+1:]
		s.processCommand(c, line)
		if !c.active() {
			return
		}
	}

	if len(c.pending) > MaxCommandLength {
		s.logger.Warnf("client %s exceeded command length, disconnecting", c.remoteIP)
		s.disconnect(c)
	}
}

// cleanupIdle disconnects clients idle beyond ClientTimeout.
func (s *Server) cleanupIdle() {
	s.slotsMu.Lock()
	defer s.slotsMu.Unlock()

	now := time.Now()
	for i := range s.slots {
		c := &s.slots[i]
		if c.active() && now.Sub(c.lastActivity) > ClientTimeout {
			s.logger.Debugf("client %s timed out", c.remoteIP)
			s.disconnect(c)
		}
	}
}

// disconnect closes and frees a slot.
func (s *Server) disconnect(c *clientSlot) {
	if c.conn != nil {
		c.conn.Close()
	}
	c.reset()
}

// processCommand parses and dispatches one line. The leading token is
// case-insensitive; UPS and variable names are case-sensitive.
func (s *Server) processCommand(c *clientSlot, line string) {
	if line == "" {
		return
	}

	cmd, args := splitCommand(line)
	s.logger.Tracef("client %s: %s", c.remoteIP, line)

	switch cmd {
	// Commands that never require authentication.
	case "HELP":
		s.send(c, "Commands: HELP VERSION NETVER STARTTLS USERNAME PASSWORD LOGIN LOGOUT LIST GET SET INSTCMD FSD UPSDVER\n")
		return
	case "VER", "VERSION":
		s.send(c, fmt.Sprintf("VERSION %q\n", version.String()))
		return
	case "NETVER":
		s.send(c, netProtocolVersion+"\n")
		return
	case "UPSDVER":
		s.send(c, version.Upsd()+"\n")
		return
	case "STARTTLS":
		s.sendError(c, "FEATURE-NOT-SUPPORTED")
		return
	case "USERNAME":
		s.handleUsername(c, args)
		return
	case "PASSWORD":
		s.handlePassword(c, args)
		return
	case "LOGIN":
		s.handleLogin(c, args)
		return
	case "LOGOUT":
		s.send(c, "OK Goodbye\n")
		s.disconnect(c)
		return
	}

	// Everything else needs authentication whenever a password is set.
	if s.cfg.Password != "" && !c.authenticated() {
		s.sendError(c, "ACCESS-DENIED")
		return
	}

	switch cmd {
	case "LIST":
		s.handleList(c, args)
	case "GET":
		sub, rest := splitCommand(args)
		if sub == "VAR" {
			s.handleGetVar(c, rest)
		} else {
			s.sendError(c, "INVALID-ARGUMENT")
		}
	case "SET":
		sub, _ := splitCommand(args)
		if sub == "VAR" {
			s.sendError(c, "CMD-NOT-SUPPORTED")
		} else {
			s.sendError(c, "INVALID-ARGUMENT")
		}
	case "INSTCMD":
		s.handleInstCmd(c, args)
	case "FSD":
		// Acknowledged but deliberately not acted upon.
		s.logger.Warnf("FSD received from %s", c.remoteIP)
		s.send(c, "OK FSD-SET\n")
	default:
		if line == s.cfg.UpsName {
			// Old upsc -l style: the bare UPS name lists variable names.
			s.handleLegacyList(c)
			return
		}
		s.logger.Debugf("unknown command from %s: %q", c.remoteIP, line)
		s.sendError(c, "UNKNOWN-COMMAND")
	}
}

// handleUsername stages the username half of the two-message login.
func (s *Server) handleUsername(c *clientSlot, args string) {
	if args == "" {
		s.sendError(c, "INVALID-ARGUMENT")
		return
	}
	c.tempUsername = args
	s.send(c, "OK\n")
}

// handlePassword completes the two-message login.
func (s *Server) handlePassword(c *clientSlot, args string) {
	if args == "" {
		s.sendError(c, "INVALID-ARGUMENT")
		return
	}
	c.tempPassword = args

	if s.authenticate(c.tempUsername, c.tempPassword) {
		c.state = StateAuthenticated
		c.username = c.tempUsername
		c.loginAttempts = 0
		s.logger.Infof("client %s authenticated as %s", c.remoteIP, c.username)
		s.send(c, "OK\n")
	} else {
		c.loginAttempts++
		if c.loginAttempts >= MaxLoginAttempts {
			s.logger.Warnf("client %s exceeded login attempts", c.remoteIP)
			s.disconnect(c)
		} else {
			s.sendError(c, "ACCESS-DENIED")
		}
	}

	c.tempUsername = ""
	c.tempPassword = ""
}

// handleLogin processes the single-message LOGIN form.
func (s *Server) handleLogin(c *clientSlot, args string) {
	parts := splitArgs(args)

	if c.authenticated() {
		c.loginAttempts++
		if c.loginAttempts >= MaxLoginAttempts {
			s.logger.Warnf("client %s exceeded login attempts", c.remoteIP)
			s.disconnect(c)
			return
		}
		s.send(c, "OK\n")
		return
	}

	if len(parts) != 2 {
		s.sendError(c, "INVALID-ARGUMENT")
		return
	}

	if s.authenticate(parts[0], parts[1]) {
		c.state = StateAuthenticated
		c.username = parts[0]
		s.logger.Infof("client %s authenticated as %s", c.remoteIP, c.username)
		s.send(c, "OK\n")
		return
	}

	c.loginAttempts++
	if c.loginAttempts >= MaxLoginAttempts {
		s.logger.Warnf("client %s exceeded login attempts", c.remoteIP)
		s.disconnect(c)
		return
	}
	s.sendError(c, "ACCESS-DENIED")
}

// authenticate checks credentials. Without a configured password every
// login succeeds. A stored "$2..." password is compared as a bcrypt hash.
func (s *Server) authenticate(username, password string) bool {
	if s.cfg.Password == "" {
		return true
	}
	if username != s.cfg.Username {
		return false
	}
	if strings.HasPrefix(s.cfg.Password, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(s.cfg.Password), []byte(password)) == nil
	}
	return password == s.cfg.Password
}

// handleList dispatches the LIST subcommands.
func (s *Server) handleList(c *clientSlot, args string) {
	sub, rest := splitCommand(args)
	switch sub {
	case "UPS":
		s.send(c, fmt.Sprintf("BEGIN LIST UPS\nUPS %s %q\nEND LIST UPS\n",
			s.cfg.UpsName, s.upsDescription()))
	case "VAR":
		s.handleListVar(c, rest)
	case "CMD":
		s.handleListCmd(c, rest)
	case "CLIENTS":
		s.handleListClients(c)
	case "RW":
		if rest != s.cfg.UpsName {
			s.sendError(c, "UNKNOWN-UPS")
			return
		}
		s.send(c, fmt.Sprintf("BEGIN LIST RW %s\nEND LIST RW %s\n", s.cfg.UpsName, s.cfg.UpsName))
	case "ENUM":
		s.handleEmptyBlock(c, "ENUM", rest)
	case "RANGE":
		s.handleEmptyBlock(c, "RANGE", rest)
	default:
		s.sendError(c, "INVALID-ARGUMENT")
	}
}

// handleListVar emits one VAR line per variable with a non-empty value.
func (s *Server) handleListVar(c *clientSlot, upsName string) {
	if upsName != s.cfg.UpsName {
		s.sendError(c, "UNKNOWN-UPS")
		return
	}
	snapshot, ok := s.snapshot()
	if !ok {
		s.sendError(c, "DATA-STALE")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "BEGIN LIST VAR %s\n", s.cfg.UpsName)
	for _, name := range variableNames {
		if value := variableValue(&snapshot, name); value != "" {
			fmt.Fprintf(&b, "VAR %s %s %q\n", s.cfg.UpsName, name, value)
		}
	}
	fmt.Fprintf(&b, "END LIST VAR %s\n", s.cfg.UpsName)
	s.send(c, b.String())
}

// handleGetVar emits a single VAR line.
func (s *Server) handleGetVar(c *clientSlot, args string) {
	parts := splitArgs(args)
	if len(parts) != 2 {
		s.sendError(c, "INVALID-ARGUMENT")
		return
	}
	if parts[0] != s.cfg.UpsName {
		s.sendError(c, "UNKNOWN-UPS")
		return
	}
	snapshot, ok := s.snapshot()
	if !ok {
		s.sendError(c, "DATA-STALE")
		return
	}

	value := variableValue(&snapshot, parts[1])
	if value == "" {
		s.sendError(c, "VAR-NOT-SUPPORTED")
		return
	}
	s.send(c, fmt.Sprintf("VAR %s %s %q\n", s.cfg.UpsName, parts[1], value))
}

// handleListCmd emits the instant commands of the active decoder.
func (s *Server) handleListCmd(c *clientSlot, upsName string) {
	if upsName != s.cfg.UpsName {
		s.sendError(c, "UNKNOWN-UPS")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "BEGIN LIST CMD %s\n", s.cfg.UpsName)
	for _, cmd := range s.ups.Commands() {
		fmt.Fprintf(&b, "CMD %s %s\n", s.cfg.UpsName, cmd)
	}
	fmt.Fprintf(&b, "END LIST CMD %s\n", s.cfg.UpsName)
	s.send(c, b.String())
}

// handleListClients lists every active slot. The caller already holds the
// slot mutex (the server task).
func (s *Server) handleListClients(c *clientSlot) {
	now := time.Now()
	var b strings.Builder
	b.WriteString("BEGIN LIST CLIENT\n")
	for i := range s.slots {
		sc := &s.slots[i]
		if !sc.active() {
			continue
		}
		fmt.Fprintf(&b, "CLIENT %s %d %s\n",
			sc.remoteIP, int(now.Sub(sc.connectTime).Seconds()), sc.state)
	}
	b.WriteString("END LIST CLIENT\n")
	s.send(c, b.String())
}

// handleEmptyBlock answers LIST ENUM/RANGE with a well-formed empty block.
func (s *Server) handleEmptyBlock(c *clientSlot, kind, args string) {
	parts := splitArgs(args)
	if len(parts) != 2 || parts[0] != s.cfg.UpsName {
		s.sendError(c, "INVALID-ARGUMENT")
		return
	}
	s.send(c, fmt.Sprintf("BEGIN LIST %s %s %s\nEND LIST %s %s %s\n",
		kind, s.cfg.UpsName, parts[1], kind, s.cfg.UpsName, parts[1]))
}

// handleLegacyList answers the bare-UPS-name form of old upsc -l clients.
func (s *Server) handleLegacyList(c *clientSlot) {
	if _, ok := s.snapshot(); !ok {
		s.sendError(c, "DATA-STALE")
		return
	}
	var b strings.Builder
	for _, name := range legacyVariableNames {
		b.WriteString(name)
		b.WriteByte('\n')
	}
	s.send(c, b.String())
}

// handleInstCmd maps a NUT instant command onto the core control API.
func (s *Server) handleInstCmd(c *clientSlot, args string) {
	parts := splitArgs(args)
	if len(parts) != 2 {
		s.sendError(c, "INVALID-ARGUMENT")
		return
	}
	if parts[0] != s.cfg.UpsName {
		s.sendError(c, "UNKNOWN-UPS")
		return
	}
	if !s.ups.IsConnected() {
		s.sendError(c, "DRIVER-NOT-CONNECTED")
		return
	}

	if err := s.executeCommand(parts[1]); err != nil {
		s.logger.Warnf("instcmd %q failed: %v", parts[1], err)
		s.sendError(c, "CMD-NOT-SUPPORTED")
		return
	}
	s.send(c, "OK\n")
}

// executeCommand dispatches one instant command name.
func (s *Server) executeCommand(command string) error {
	switch command {
	case "beeper.enable":
		return s.ups.BeeperEnable()
	case "beeper.disable":
		return s.ups.BeeperDisable()
	case "beeper.mute":
		return s.ups.BeeperMute()
	case "beeper.test":
		return s.ups.BeeperTest()
	case "test.battery.start.quick":
		return s.ups.StartBatteryTestQuick()
	case "test.battery.start.deep":
		return s.ups.StartBatteryTestDeep()
	case "test.battery.stop":
		return s.ups.StopBatteryTest()
	case "test.panel.start", "test.ups.start":
		return s.ups.StartUpsTest()
	case "test.panel.stop", "test.ups.stop":
		return s.ups.StopUpsTest()
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// upsDescription prefers the detected identity over the configured text.
func (s *Server) upsDescription() string {
	if snapshot, ok := s.snapshot(); ok {
		mfr := snapshot.Device.Manufacturer
		model := snapshot.Device.Model
		switch {
		case mfr != "" && model != "":
			return mfr + " " + model
		case mfr != "":
			return mfr
		}
	}
	return s.cfg.UpsDescription
}

// snapshot fetches live data; false means stale.
func (s *Server) snapshot() (data.UpsData, bool) {
	if !s.ups.IsConnected() {
		return data.UpsData{}, false
	}
	return s.ups.SnapshotData()
}

// send writes a full reply in one write; a blocked or broken socket tears
// the slot down.
func (s *Server) send(c *clientSlot, response string) {
	if c.conn == nil {
		return
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(tickInterval)); err != nil {
		s.disconnect(c)
		return
	}
	if err := writeAll(c.conn, response); err != nil {
		if isPeerGone(err) {
			s.logger.Debugf("client %s gone during write", c.remoteIP)
		} else {
			s.logger.Debugf("client %s write: %v", c.remoteIP, err)
		}
		s.disconnect(c)
	}
}

// sendError writes an ERR reply.
func (s *Server) sendError(c *clientSlot, code string) {
	s.send(c, "ERR "+code+"\n")
}

// splitCommand splits a line into an uppercased leading token and the
// untouched remainder.
func splitCommand(line string) (string, string) {
	line = strings.TrimSpace(line)
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return strings.ToUpper(line[:i]), strings.TrimSpace(line[i+1:])
	}
	return strings.ToUpper(line), ""
}

// splitArgs splits arguments on spaces, honoring double quotes.
func splitArgs(args string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false

	for _, r := range args {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// writeAll writes the whole string.
func writeAll(conn net.Conn, response string) error {
	b := []byte(response)
	for len(b) > 0 {
		n, err := conn.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// remoteIP extracts the host part of the peer address.
func remoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// isPeerGone reports errors worth only a debug line: the peer reset or
// closed the connection.
func isPeerGone(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF)
}
