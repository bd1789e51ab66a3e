// Command nutctl is an interactive console for a NUT server.
//
// It speaks the NUT 1.3 line protocol against any upsd-compatible server
// (including nutbridge itself) and can also inspect a bridge's CBOR event
// log offline.
//
// Usage:
//
//	nutctl [flags]
//	nutctl -events /var/log/nutbridge.elog
//
// Flags:
//
//	-host string    Server host (default "127.0.0.1")
//	-port int       Server port (default 3493)
//	-user string    Username for LOGIN
//	-pass string    Password for LOGIN
//	-events string  Read a CBOR event log instead of connecting
//
// Console commands:
//
//	vars            LIST VAR for the first UPS
//	get <var>       GET VAR
//	cmds            LIST CMD
//	instcmd <cmd>   Run an instant command
//	clients         LIST CLIENTS
//	raw <line>      Send a raw protocol line
//	help            Show help
//	exit            Quit
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/nutbridge/nutbridge-go/pkg/eventlog"
)

var (
	host      = flag.String("host", "127.0.0.1", "Server host")
	port      = flag.Int("port", 3493, "Server port")
	user      = flag.String("user", "", "Username for LOGIN")
	pass      = flag.String("pass", "", "Password for LOGIN")
	eventPath = flag.String("events", "", "Read a CBOR event log instead of connecting")
)

const responseTimeout = 5 * time.Second

func main() {
	flag.Parse()

	if *eventPath != "" {
		if err := dumpEvents(*eventPath); err != nil {
			fmt.Fprintf(os.Stderr, "nutctl: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runConsole(); err != nil {
		fmt.Fprintf(os.Stderr, "nutctl: %v\n", err)
		os.Exit(1)
	}
}

// dumpEvents prints a CBOR event log, one line per event.
func dumpEvents(path string) error {
	r, err := eventlog.NewReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		event, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		printEvent(event)
	}
}

// printEvent renders one event for the console.
func printEvent(e eventlog.Event) {
	ts := e.Timestamp.Format(time.RFC3339)
	switch e.Kind {
	case eventlog.KindStatusChange:
		fmt.Printf("%s  status  %q -> %q\n", ts, e.OldState, e.NewState)
	case eventlog.KindProtocolDetect, eventlog.KindProtocolDrop:
		fmt.Printf("%s  %s  %s\n", ts, e.Kind, e.Protocol)
	case eventlog.KindClientConnect, eventlog.KindClientClose:
		fmt.Printf("%s  %s  %s\n", ts, e.Kind, e.RemoteIP)
	default:
		fmt.Printf("%s  %s  %s\n", ts, e.Kind, e.Detail)
	}
}

// session is one connection to a NUT server.
type session struct {
	conn    net.Conn
	reader  *bufio.Reader
	upsName string
}

// runConsole drives the interactive loop.
func runConsole() error {
	addr := net.JoinHostPort(*host, fmt.Sprintf("%d", *port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	s := &session{conn: conn, reader: bufio.NewReader(conn)}

	if *user != "" || *pass != "" {
		reply, err := s.exchange(fmt.Sprintf("LOGIN %s %s", *user, *pass))
		if err != nil {
			return err
		}
		if !strings.HasPrefix(reply, "OK") {
			return fmt.Errorf("login failed: %s", strings.TrimSpace(reply))
		}
	}

	if err := s.resolveUpsName(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		s.upsName = "ups"
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "nut> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("connected to %s (ups %q); type help\n", addr, s.upsName)

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or readline.ErrInterrupt
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if done, err := s.dispatch(rl.Stdout(), line); done {
			return nil
		} else if err != nil {
			fmt.Fprintf(rl.Stderr(), "error: %v\n", err)
		}
	}
}

// resolveUpsName asks the server for its first UPS.
func (s *session) resolveUpsName() error {
	lines, err := s.exchangeList("LIST UPS")
	if err != nil {
		return err
	}
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "UPS" {
			s.upsName = fields[1]
			return nil
		}
	}
	return errors.New("server lists no UPS")
}

// dispatch handles one console command. The bool result requests exit.
func (s *session) dispatch(out io.Writer, line string) (bool, error) {
	cmd, args, _ := strings.Cut(line, " ")

	switch strings.ToLower(cmd) {
	case "exit", "quit":
		_, _ = s.exchange("LOGOUT")
		return true, nil
	case "help":
		fmt.Fprintln(out, "vars | get <var> | cmds | instcmd <cmd> | clients | raw <line> | exit")
		return false, nil
	case "vars":
		return false, s.printList(out, "LIST VAR "+s.upsName)
	case "cmds":
		return false, s.printList(out, "LIST CMD "+s.upsName)
	case "clients":
		return false, s.printList(out, "LIST CLIENTS")
	case "get":
		if args == "" {
			return false, errors.New("usage: get <var>")
		}
		reply, err := s.exchange(fmt.Sprintf("GET VAR %s %s", s.upsName, args))
		if err != nil {
			return false, err
		}
		fmt.Fprint(out, reply)
		return false, nil
	case "instcmd":
		if args == "" {
			return false, errors.New("usage: instcmd <cmd>")
		}
		reply, err := s.exchange(fmt.Sprintf("INSTCMD %s %s", s.upsName, args))
		if err != nil {
			return false, err
		}
		fmt.Fprint(out, reply)
		return false, nil
	case "raw":
		if args == "" {
			return false, errors.New("usage: raw <line>")
		}
		return false, s.printRaw(out, args)
	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

// printList runs a LIST exchange and prints every line.
func (s *session) printList(out io.Writer, request string) error {
	lines, err := s.exchangeList(request)
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	return nil
}

// printRaw sends a raw line and prints either one reply line or a full
// BEGIN/END block.
func (s *session) printRaw(out io.Writer, request string) error {
	if strings.HasPrefix(strings.ToUpper(request), "LIST ") {
		return s.printList(out, request)
	}
	reply, err := s.exchange(request)
	if err != nil {
		return err
	}
	fmt.Fprint(out, reply)
	return nil
}

// exchange sends one line and reads one reply line.
func (s *session) exchange(request string) (string, error) {
	if err := s.send(request); err != nil {
		return "", err
	}
	return s.readLine()
}

// exchangeList sends one line and reads a BEGIN/END block (or a single ERR
// line).
func (s *session) exchangeList(request string) ([]string, error) {
	if err := s.send(request); err != nil {
		return nil, err
	}

	first, err := s.readLine()
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(first, "ERR ") {
		return []string{strings.TrimSpace(first)}, nil
	}

	lines := []string{strings.TrimSpace(first)}
	for {
		line, err := s.readLine()
		if err != nil {
			return lines, err
		}
		lines = append(lines, strings.TrimSpace(line))
		if strings.HasPrefix(line, "END ") {
			return lines, nil
		}
	}
}

// send writes one protocol line.
func (s *session) send(request string) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(responseTimeout)); err != nil {
		return err
	}
	_, err := s.conn.Write([]byte(request + "\n"))
	return err
}

// readLine reads one protocol line.
func (s *session) readLine() (string, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(responseTimeout)); err != nil {
		return "", err
	}
	return s.reader.ReadString('\n')
}
