// Package testserver provides in-process TCP servers that speak the
// length-prefixed request framing, for use in tests.
package testserver

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/torosent/tcpcrank/internal/frame"
)

// Handler serves one accepted connection. The server closes conn when the
// handler returns.
type Handler func(s *Server, conn net.Conn)

// Server is a loopback TCP listener running a Handler per connection.
type Server struct {
	ln       net.Listener
	handler  Handler
	wg       sync.WaitGroup
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	received []string
	closed   atomic.Bool
	accepted atomic.Int64
}

// New starts a server on 127.0.0.1 with an ephemeral port.
// Like httptest.NewServer it panics if the listener cannot be created.
func New(h Handler) *Server {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(fmt.Sprintf("testserver: failed to listen: %v", err))
	}
	s := &Server{ln: ln, handler: h, conns: map[net.Conn]struct{}{}}
	s.wg.Add(1)
	go s.serve()
	return s
}

// Addr returns the host:port clients should dial.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Accepted returns how many connections have been accepted.
func (s *Server) Accepted() int {
	return int(s.accepted.Load())
}

// Received returns a copy of every request payload recorded so far.
func (s *Server) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// Record stores a request payload for later inspection.
func (s *Server) Record(payload []byte) {
	s.mu.Lock()
	s.received = append(s.received, string(payload))
	s.mu.Unlock()
}

// Close stops accepting, closes open connections and waits for handlers.
func (s *Server) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	_ = s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.closed.Load() {
				return
			}
			continue
		}
		s.accepted.Add(1)
		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handler(s, conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

// Respond replies with reply to every request frame until the client hangs up.
func Respond(reply []byte) Handler {
	return func(s *Server, conn net.Conn) {
		for {
			payload, err := frame.Read(conn)
			if err != nil {
				return
			}
			s.Record(payload)
			if _, err := conn.Write(reply); err != nil {
				return
			}
		}
	}
}

// Ack replies "ack" to every request.
func Ack() Handler {
	return Respond([]byte("ack"))
}

// Echo writes each request payload back unframed.
func Echo() Handler {
	return func(s *Server, conn net.Conn) {
		for {
			payload, err := frame.Read(conn)
			if err != nil {
				return
			}
			s.Record(payload)
			if _, err := conn.Write(payload); err != nil {
				return
			}
		}
	}
}

// CloseImmediately accepts and closes without reading.
func CloseImmediately() Handler {
	return func(*Server, net.Conn) {}
}

// CloseAfter answers n requests with "ack", then reads one more request and
// closes the connection without replying.
func CloseAfter(n int) Handler {
	return func(s *Server, conn net.Conn) {
		for i := 0; i <= n; i++ {
			payload, err := frame.Read(conn)
			if err != nil {
				return
			}
			s.Record(payload)
			if i == n {
				return
			}
			if _, err := conn.Write([]byte("ack")); err != nil {
				return
			}
		}
	}
}

// Silent reads requests but never replies.
func Silent() Handler {
	return func(s *Server, conn net.Conn) {
		_, _ = io.Copy(io.Discard, conn)
	}
}
