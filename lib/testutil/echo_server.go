// Package testutil provides test doubles for netpool: a local echo
// server and in-memory channels and connectors.
package testutil

import (
	"io"
	"net"
	"sync"

	"go.uber.org/atomic"
)

// EchoServer is a TCP server on a random local port that echoes every
// byte it reads.
type EchoServer struct {
	listener net.Listener
	addr     string
	accepted atomic.Int64

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewEchoServer starts an echo server on 127.0.0.1.
func NewEchoServer() (*EchoServer, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &EchoServer{
		listener: ln,
		addr:     ln.Addr().String(),
		conns:    make(map[net.Conn]struct{}),
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return s, nil
}

// Addr returns the host:port the server listens on.
func (s *EchoServer) Addr() string {
	return s.addr
}

// Accepted returns the number of connections accepted so far.
func (s *EchoServer) Accepted() int64 {
	return s.accepted.Load()
}

// DropAll closes every open server-side connection, as a peer
// disconnect would.
func (s *EchoServer) DropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

// Close stops the listener and drops all connections.
func (s *EchoServer) Close() error {
	err := s.listener.Close()
	s.DropAll()
	s.wg.Wait()
	return err
}

func (s *EchoServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.accepted.Inc()

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *EchoServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	io.Copy(conn, conn)
}
