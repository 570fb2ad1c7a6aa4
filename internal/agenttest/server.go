// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-agentclient.
//
// go-agentclient is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package agenttest provides a scripted in-process agent for tests.
//
// A Server answers every command with OK unless a handler registered for
// the command says otherwise. Handlers reply through an Exchange, which can
// send data, status lines and comments, issue inquiries and finish with
// OK or ERR:
//
//	srv := agenttest.New(t)
//	srv.Handle("PKSIGN", func(x *agenttest.Exchange) {
//		x.Data([]byte("(7:sig-val(3:rsa(1:s1:\x01)))"))
//	})
//	conn, err := assuan.NewConn(ctx, srv.Connect())
package agenttest

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
)

// DefaultGreeting is sent when a client connects.
const DefaultGreeting = "OK Pleased to meet you"

// ErrCanceled is returned by Exchange.Inquire when the client answered CAN.
var ErrCanceled = errors.New("agenttest: inquiry cancelled by client")

// HandlerFunc answers one command.
type HandlerFunc func(x *Exchange)

// Inquiry records an INQUIRE issued by a handler and the client's answer.
type Inquiry struct {
	Line     string
	Data     []byte
	Canceled bool
}

// Server is a fake agent. It is safe for use by multiple connections.
type Server struct {
	t testing.TB

	mu        sync.Mutex
	handlers  map[string]HandlerFunc
	commands  []string
	inquiries []Inquiry
	greeting  string
	conns     []net.Conn
	dials     int
	failDial  error

	wg sync.WaitGroup
}

// New creates a server that is shut down when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		t:        t,
		handlers: make(map[string]HandlerFunc),
		greeting: DefaultGreeting,
	}
	t.Cleanup(s.Close)
	return s
}

// Handle registers fn for command lines matching command. A line matches
// the longest registered key that equals the whole line or a prefix of it
// ending at a word boundary, so "SCD PKSIGN" handles
// "SCD PKSIGN --hash=sha1 OPENPGP.3".
func (s *Server) Handle(command string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[command] = fn
}

// SetGreeting replaces the greeting line sent to new connections.
func (s *Server) SetGreeting(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.greeting = line
}

// FailDial makes subsequent Dial calls fail with err. Pass nil to restore.
func (s *Server) FailDial(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDial = err
}

// Connect returns the client end of a new connection.
func (s *Server) Connect() net.Conn {
	client, server := net.Pipe()
	s.mu.Lock()
	s.conns = append(s.conns, server)
	greeting := s.greeting
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = server.Close() }()
		s.serve(server, greeting)
	}()
	return client
}

// Dial has the signature expected by session dialers.
func (s *Server) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	s.mu.Lock()
	s.dials++
	err := s.failDial
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Connect(), nil
}

// Dials returns how many times Dial was called.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Commands returns the command lines received so far, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Inquiries returns the inquiries issued so far, in order.
func (s *Server) Inquiries() []Inquiry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Inquiry(nil), s.inquiries...)
}

// Close terminates all connections and waits for their goroutines.
func (s *Server) Close() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()
}

func (s *Server) serve(conn net.Conn, greeting string) {
	r := bufio.NewReader(conn)
	if !writeLine(conn, greeting) {
		return
	}
	for {
		line, err := readLine(r)
		if err != nil {
			return
		}
		if line == "" {
			continue
		}

		s.mu.Lock()
		s.commands = append(s.commands, line)
		fn := s.lookup(line)
		s.mu.Unlock()

		if line == "BYE" {
			writeLine(conn, "OK closing connection")
			return
		}

		x := &Exchange{Line: line, server: s, conn: conn, r: r}
		if fn != nil {
			fn(x)
		}
		if x.broken {
			return
		}
		if !x.done {
			x.OK()
		}
	}
}

// lookup must be called with s.mu held.
func (s *Server) lookup(line string) HandlerFunc {
	key := line
	for {
		if fn, ok := s.handlers[key]; ok {
			return fn
		}
		i := strings.LastIndexByte(key, ' ')
		if i < 0 {
			return nil
		}
		key = key[:i]
	}
}

// Exchange is the server side of one command.
type Exchange struct {
	// Line is the command line as received
	Line string

	server *Server
	conn   net.Conn
	r      *bufio.Reader
	done   bool
	broken bool
}

// Args returns the command line without its first word.
func (x *Exchange) Args() string {
	_, rest, _ := strings.Cut(x.Line, " ")
	return rest
}

// Data sends p as escaped D lines.
func (x *Exchange) Data(p []byte) {
	const chunk = 400
	for len(p) > 0 {
		n := min(chunk, len(p))
		x.raw("D " + escape(p[:n]))
		p = p[n:]
	}
}

// End sends an END line.
func (x *Exchange) End() {
	x.raw("END")
}

// Status sends "S " followed by line.
func (x *Exchange) Status(line string) {
	x.raw("S " + line)
}

// Comment sends a comment line.
func (x *Exchange) Comment(text string) {
	x.raw("# " + text)
}

// Raw sends line verbatim.
func (x *Exchange) Raw(line string) {
	x.raw(line)
}

// Inquire sends "INQUIRE " followed by line and collects the client's
// D lines until END. It returns ErrCanceled when the client answers CAN.
func (x *Exchange) Inquire(line string) ([]byte, error) {
	x.raw("INQUIRE " + line)
	var data []byte
	for {
		reply, err := readLine(x.r)
		if err != nil {
			x.broken = true
			return nil, err
		}
		switch {
		case reply == "END":
			x.record(Inquiry{Line: line, Data: data})
			return data, nil
		case reply == "CAN":
			x.record(Inquiry{Line: line, Canceled: true})
			return nil, ErrCanceled
		case strings.HasPrefix(reply, "D "):
			data = append(data, unescape(reply[2:])...)
		default:
			x.broken = true
			return nil, fmt.Errorf("agenttest: unexpected inquiry reply %q", reply)
		}
	}
}

// OK finishes the exchange successfully.
func (x *Exchange) OK() {
	x.raw("OK")
	x.done = true
}

// Err finishes the exchange with an error carrying the agent source.
func (x *Exchange) Err(code int, desc string) {
	x.raw(fmt.Sprintf("ERR %d %s <GPG Agent>", 4<<24|code, desc))
	x.done = true
}

// Hangup drops the connection without a reply.
func (x *Exchange) Hangup() {
	_ = x.conn.Close()
	x.broken = true
}

func (x *Exchange) raw(line string) {
	if x.broken {
		return
	}
	if !writeLine(x.conn, line) {
		x.broken = true
	}
}

func (x *Exchange) record(in Inquiry) {
	x.server.mu.Lock()
	defer x.server.mu.Unlock()
	x.server.inquiries = append(x.server.inquiries, in)
}

func writeLine(w io.Writer, line string) bool {
	_, err := io.WriteString(w, line+"\n")
	return err == nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"), nil
}

func escape(p []byte) string {
	var sb strings.Builder
	for _, c := range p {
		if c == '%' || c == '\r' || c == '\n' {
			fmt.Fprintf(&sb, "%%%02X", c)
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func unescape(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			if b, err := hex.DecodeString(s[i+1 : i+3]); err == nil {
				out = append(out, b[0])
				i += 2
				continue
			}
		}
		out = append(out, s[i])
	}
	return out
}
