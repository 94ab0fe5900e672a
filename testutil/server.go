// Package testutil provides a scripted in-process sequencer endpoint for
// connection and engine tests.
package testutil

import (
	"bufio"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/c360/playout/wire"
)

// Responder inspects one inbound message and returns zero or more frames to
// write back. The request ID of the inbound message is available on msg.
type Responder func(msg wire.Message) []wire.Message

// Server is a minimal fake sequencer listening on a loopback port. It
// records every decoded inbound frame and can answer through a Responder or
// push server-originated notifications.
type Server struct {
	t  *testing.T
	ln net.Listener

	mu       sync.Mutex
	conns    []net.Conn
	received []wire.Message
	respond  Responder
	accepts  int
}

// NewServer starts a fake sequencer on an ephemeral loopback port and
// registers cleanup with t.
func NewServer(t *testing.T) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &Server{t: t, ln: ln}
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

// Addr returns the dialable address of the server.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// HostPort splits the listen address for channel configuration.
func (s *Server) HostPort() (string, int) {
	addr := s.ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

// SetResponder installs fn to answer inbound frames. Passing nil leaves
// inbound frames unanswered.
func (s *Server) SetResponder(fn Responder) {
	s.mu.Lock()
	s.respond = fn
	s.mu.Unlock()
}

// Received returns a copy of every frame decoded so far, across all
// connections.
func (s *Server) Received() []wire.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Message, len(s.received))
	copy(out, s.received)
	return out
}

// AcceptCount reports how many connections have been accepted.
func (s *Server) AcceptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepts
}

// Notify writes a server-originated frame (request ID "*") to the most
// recent connection.
func (s *Server) Notify(verb string, args ...string) {
	s.Write(wire.Message{RequestID: wire.NotificationID, Verb: verb, Args: args})
}

// Write encodes and sends msg on the most recent connection.
func (s *Server) Write(msg wire.Message) {
	s.WriteRaw(wire.Encode(msg))
}

// WriteRaw sends raw bytes on the most recent connection, for tests that
// need malformed or hand-built frames.
func (s *Server) WriteRaw(raw []byte) {
	s.mu.Lock()
	var conn net.Conn
	if len(s.conns) > 0 {
		conn = s.conns[len(s.conns)-1]
	}
	s.mu.Unlock()

	if conn == nil {
		s.t.Errorf("no connection to write to")
		return
	}
	if _, err := conn.Write(raw); err != nil {
		s.t.Logf("server write: %v", err)
	}
}

// DropClient closes the most recent connection, simulating an unexpected
// network failure.
func (s *Server) DropClient() {
	s.mu.Lock()
	var conn net.Conn
	if len(s.conns) > 0 {
		conn = s.conns[len(s.conns)-1]
	}
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// WaitForMessages blocks until at least n frames have been received or the
// timeout elapses, returning the frames seen.
func (s *Server) WaitForMessages(n int, timeout time.Duration) []wire.Message {
	deadline := time.Now().Add(timeout)
	for {
		got := s.Received()
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			s.t.Fatalf("timed out waiting for %d messages, have %d", n, len(got))
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// WaitForAccepts blocks until at least n connections have been accepted.
func (s *Server) WaitForAccepts(n int, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for s.AcceptCount() < n {
		if time.Now().After(deadline) {
			s.t.Fatalf("timed out waiting for %d accepts, have %d", n, s.AcceptCount())
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Close shuts the listener and all connections.
func (s *Server) Close() {
	s.ln.Close()
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.accepts++
		s.mu.Unlock()
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	reader := bufio.NewReader(conn)
	for {
		msg, err := wire.ReadMessage(reader)
		if err != nil {
			return
		}

		s.mu.Lock()
		s.received = append(s.received, msg)
		respond := s.respond
		s.mu.Unlock()

		if respond == nil {
			continue
		}
		for _, reply := range respond(msg) {
			if _, err := conn.Write(wire.Encode(reply)); err != nil {
				return
			}
		}
	}
}
