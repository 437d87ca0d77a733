package network

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
)

const (
	readChunk   = 4096
	sendBufSize = 256
	writeWait   = 10 * time.Second
	// MaxBuffered bounds the receive buffer; a peer that never sends a
	// newline is disconnected once it is exceeded.
	MaxBuffered = 1 << 20
)

var (
	ErrNotConnected = errors.New("socket not connected")
	ErrClosed       = errors.New("socket was closed")
	ErrLineTooLong  = errors.New("receive buffer exceeded without newline")
)

// Handler is the continuation invoked when an asynchronous operation on a
// Conn completes. It must not block for long: queue the work and return.
type Handler func(c *Conn)

// Conn is the per-socket connection context: the socket, the receive
// accumulation buffer, the registered continuation and the error state.
type Conn struct {
	ID string

	conn net.Conn

	bufMu deadlock.Mutex
	buf   []byte

	mu      deadlock.Mutex
	handler Handler
	errored bool
	errMsg  string
	closing bool // a close-after write is queued

	out       chan outbound
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(nc net.Conn, h Handler) *Conn {
	c := &Conn{
		ID:      uuid.NewString(),
		conn:    nc,
		handler: h,
		out:     make(chan outbound, sendBufSize),
		done:    make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// newErrorConn builds a context for an operation that failed before a
// socket existed.
func newErrorConn(h Handler, err error) *Conn {
	c := &Conn{
		ID:      uuid.NewString(),
		handler: h,
		done:    make(chan struct{}),
	}
	c.closeOnce.Do(func() { close(c.done) })
	c.setError(err)
	return c
}

// SetHandler replaces the continuation invoked by the next completion.
func (c *Conn) SetHandler(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *Conn) invoke() {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(c)
	}
}

// ErrorOccurred reports whether any operation on this connection failed.
func (c *Conn) ErrorOccurred() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errored
}

// ErrorMessage is the diagnostic for the first failure, or "".
func (c *Conn) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

func (c *Conn) setError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errored {
		return
	}
	c.errored = true
	c.errMsg = err.Error()
}

// RemoteAddr returns the peer address, or "" for a failed context.
func (c *Conn) RemoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// Connected reports whether the socket exists and has not been closed.
func (c *Conn) Connected() bool {
	if c.conn == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Receive arms exactly one asynchronous read. When it completes the new
// bytes are appended to the buffer and the continuation runs. A zero-byte
// read or a fault flags the error instead; the read is never re-armed here.
func (c *Conn) Receive() {
	if c.conn == nil {
		c.setError(ErrNotConnected)
		go c.invoke()
		return
	}
	go c.readOnce()
}

func (c *Conn) readOnce() {
	chunk := make([]byte, readChunk)
	n, err := c.conn.Read(chunk)
	if n > 0 {
		c.bufMu.Lock()
		c.buf = append(c.buf, chunk[:n]...)
		over := len(c.buf) > MaxBuffered && bytes.IndexByte(c.buf, '\n') < 0
		c.bufMu.Unlock()
		if over {
			err = ErrLineTooLong
		}
	}
	switch {
	case errors.Is(err, io.EOF):
		c.setError(ErrClosed)
	case err != nil:
		c.setError(err)
	case n == 0:
		c.setError(ErrClosed)
	}
	c.invoke()
}

// Data returns a copy of the unprocessed receive buffer.
func (c *Conn) Data() string {
	c.bufMu.Lock()
	defer c.bufMu.Unlock()
	return string(c.buf)
}

// Lines removes and returns every complete newline-terminated line in the
// buffer. A trailing partial line stays buffered for the next read. Empty
// lines are skipped and invalid UTF-8 is replaced.
func (c *Conn) Lines() []string {
	c.bufMu.Lock()
	defer c.bufMu.Unlock()

	end := bytes.LastIndexByte(c.buf, '\n')
	if end < 0 {
		return nil
	}
	complete := string(c.buf[:end])
	c.buf = append(c.buf[:0], c.buf[end+1:]...)

	parts := strings.Split(complete, "\n")
	lines := parts[:0]
	for _, p := range parts {
		p = strings.TrimSuffix(p, "\r")
		if p == "" {
			continue
		}
		lines = append(lines, strings.ToValidUTF8(p, "\uFFFD"))
	}
	return lines
}

// Close closes the socket. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// abort shuts the socket down hard, discarding unsent data.
func (c *Conn) abort() {
	if tc, ok := c.conn.(*net.TCPConn); ok {
		_ = tc.SetLinger(0)
	}
	_ = c.Close()
}

func setNoDelay(nc net.Conn) {
	if tc, ok := nc.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
}
