// Package ctlserver is the external adapter spec §1 calls out of scope for
// the core ("The TCP listener / connection acceptor and its per-client read
// loop"); this package specifies only the boundary contract the Supervisor
// Loop (spec §4.6) actually depends on: a non-blocking Accept and a
// non-blocking per-client read of one complete command line, both safe to
// poll once per tick without blocking the loop thread.
//
// Because Go's net.Listener.Accept and net.Conn.Read both block, "non-
// blocking" here is implemented the idiomatic Go way: a background
// goroutine per blocking operation, feeding a buffered channel the loop
// polls with a non-blocking select.
package ctlserver

import (
	"bufio"
	"fmt"
	"net"

	"github.com/google/uuid"
)

// Server wraps a TCP listener with a non-blocking Accept.
type Server struct {
	ln       net.Listener
	acceptCh chan net.Conn
	errCh    chan error
}

// Listen binds addr and starts the background accept loop.
func Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	s := &Server{
		ln:       ln,
		acceptCh: make(chan net.Conn, 8),
		errCh:    make(chan error, 1),
	}
	go s.acceptLoop()
	return s, nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case s.errCh <- err:
			default:
			}
			return
		}
		s.acceptCh <- conn
	}
}

// TryAccept returns at most one newly-accepted connection without blocking
// (spec §4.6 step 2: "at most one new client is added per tick").
func (s *Server) TryAccept() (net.Conn, bool) {
	select {
	case conn := <-s.acceptCh:
		return conn, true
	default:
		return nil, false
	}
}

// Close stops accepting and closes the listener.
func (s *Server) Close() error {
	return s.ln.Close()
}

// Addr returns the listener's bound network address, useful when Listen was
// given port 0 and the OS picked one.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Client is one connected control-channel client: a line-delimited UTF-8
// text protocol (spec §6), one command per line, replies terminated by
// newline.
type Client struct {
	ID   string
	conn net.Conn

	lineCh  chan string
	closeCh chan struct{}
	closed  bool
}

// NewClient wraps conn and starts its background line-reader goroutine.
func NewClient(conn net.Conn) *Client {
	c := &Client{
		ID:      uuid.NewString(),
		conn:    conn,
		lineCh:  make(chan string, 4),
		closeCh: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	defer close(c.closeCh)
	scanner := bufio.NewScanner(c.conn)
	for scanner.Scan() {
		c.lineCh <- scanner.Text()
	}
}

// TryReadLine returns at most one complete command line per call without
// blocking (spec §4.6 step 3). ok is false with disconnected=true once the
// client has gone away and no more lines remain buffered.
func (c *Client) TryReadLine() (line string, ok bool, disconnected bool) {
	select {
	case l := <-c.lineCh:
		return l, true, false
	default:
	}
	select {
	case <-c.closeCh:
		select {
		case l := <-c.lineCh:
			return l, true, false
		default:
			return "", false, true
		}
	default:
		return "", false, false
	}
}

// WriteLine sends one newline-terminated response line back to the client.
func (c *Client) WriteLine(s string) error {
	_, err := fmt.Fprintf(c.conn, "%s\n", s)
	return err
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
