package network

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"
)

const waitFor = 2 * time.Second

func listenLocal(t *testing.T, onAccept Handler) *Listener {
	t.Helper()
	l, err := Listen(0, onAccept)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = l.Stop() })
	return l
}

func dialLocal(t *testing.T, port int) net.Conn {
	t.Helper()
	nc, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(port), waitFor)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = nc.Close() })
	return nc
}

func TestEchoRoundTrip(t *testing.T) {
	got := make(chan []string, 4)
	var onLine Handler
	onLine = func(c *Conn) {
		if c.ErrorOccurred() {
			return
		}
		lines := c.Lines()
		if len(lines) > 0 {
			got <- lines
			for _, l := range lines {
				Send(c, strings.ToUpper(l)+"\n")
			}
		}
		c.Receive()
	}
	l := listenLocal(t, func(c *Conn) {
		if c.ErrorOccurred() {
			return
		}
		c.SetHandler(onLine)
		c.Receive()
	})

	nc := dialLocal(t, l.Port())
	if _, err := nc.Write([]byte("hello\nwor")); err != nil {
		t.Fatal(err)
	}

	select {
	case lines := <-got:
		if len(lines) != 1 || lines[0] != "hello" {
			t.Fatalf("expected [hello], got %v", lines)
		}
	case <-time.After(waitFor):
		t.Fatal("no lines received")
	}

	// partial line completes on the next read
	if _, err := nc.Write([]byte("ld\r\n")); err != nil {
		t.Fatal(err)
	}
	select {
	case lines := <-got:
		if len(lines) != 1 || lines[0] != "world" {
			t.Fatalf("expected [world], got %v", lines)
		}
	case <-time.After(waitFor):
		t.Fatal("partial line was lost")
	}

	_ = nc.SetReadDeadline(time.Now().Add(waitFor))
	r := bufio.NewReader(nc)
	for _, want := range []string{"HELLO\n", "WORLD\n"} {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read echo: %v", err)
		}
		if line != want {
			t.Errorf("expected %q, got %q", want, line)
		}
	}
}

func TestSendAndCloseDeliversThenEOF(t *testing.T) {
	l := listenLocal(t, func(c *Conn) {
		if c.ErrorOccurred() {
			return
		}
		SendAndClose(c, "bye\n")
	})
	nc := dialLocal(t, l.Port())
	_ = nc.SetReadDeadline(time.Now().Add(waitFor))
	r := bufio.NewReader(nc)
	line, err := r.ReadString('\n')
	if err != nil || line != "bye\n" {
		t.Fatalf("expected bye, got %q (%v)", line, err)
	}
	if _, err := r.ReadString('\n'); err == nil {
		t.Error("expected EOF after SendAndClose")
	}
}

func TestSendAfterSendAndCloseRefused(t *testing.T) {
	results := make(chan bool, 1)
	l := listenLocal(t, func(c *Conn) {
		if c.ErrorOccurred() {
			return
		}
		SendAndClose(c, "last\n")
		results <- Send(c, "lost\n")
	})
	nc := dialLocal(t, l.Port())
	_ = nc.SetReadDeadline(time.Now().Add(waitFor))

	select {
	case ok := <-results:
		if ok {
			t.Error("send queued behind SendAndClose should be refused")
		}
	case <-time.After(waitFor):
		t.Fatal("accept handler never ran")
	}
	r := bufio.NewReader(nc)
	if line, err := r.ReadString('\n'); err != nil || line != "last\n" {
		t.Fatalf("expected last, got %q (%v)", line, err)
	}
	if _, err := r.ReadString('\n'); err == nil {
		t.Error("nothing should follow the closing write")
	}
}

func TestPeerCloseFlagsError(t *testing.T) {
	errs := make(chan *Conn, 1)
	l := listenLocal(t, func(c *Conn) {
		if c.ErrorOccurred() {
			return
		}
		c.SetHandler(func(c *Conn) {
			if c.ErrorOccurred() {
				errs <- c
				return
			}
			c.Receive()
		})
		c.Receive()
	})
	nc := dialLocal(t, l.Port())
	_ = nc.Close()

	select {
	case c := <-errs:
		if c.ErrorMessage() == "" {
			t.Error("expected an error message")
		}
		_ = c.Close()
		if Send(c, "late\n") {
			t.Error("send after close should not succeed")
		}
	case <-time.After(waitFor):
		t.Fatal("peer close was not reported")
	}
}

func TestStopReportsAcceptError(t *testing.T) {
	errs := make(chan string, 1)
	l, err := Listen(0, func(c *Conn) {
		if c.ErrorOccurred() {
			errs <- c.ErrorMessage()
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	_ = l.Stop()
	select {
	case msg := <-errs:
		if !strings.Contains(msg, "accept") {
			t.Errorf("unexpected message %q", msg)
		}
	case <-time.After(waitFor):
		t.Fatal("accept failure not delivered")
	}
}

func TestListenPortInUse(t *testing.T) {
	l := listenLocal(t, func(*Conn) {})
	if _, err := Listen(l.Port(), func(*Conn) {}); err == nil {
		t.Error("expected bind failure on a used port")
	}
}

func TestConnect(t *testing.T) {
	accepted := make(chan struct{}, 1)
	l := listenLocal(t, func(c *Conn) {
		if !c.ErrorOccurred() {
			accepted <- struct{}{}
		}
	})

	done := make(chan *Conn, 1)
	Connect("localhost", l.Port(), 0, func(c *Conn) { done <- c })
	select {
	case c := <-done:
		if c.ErrorOccurred() {
			t.Fatalf("connect failed: %s", c.ErrorMessage())
		}
		if !c.Connected() {
			t.Error("expected connected socket")
		}
		_ = c.Close()
	case <-time.After(waitFor):
		t.Fatal("connect continuation never ran")
	}
	select {
	case <-accepted:
	case <-time.After(waitFor):
		t.Fatal("server never accepted")
	}
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestConnectFailures(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		port    int
		timeout time.Duration
	}{
		{"unresolvable", "host.invalid", 1, 0},
		{"timeout", "127.0.0.1", 1, time.Nanosecond},
		{"refused", "127.0.0.1", closedPort(t), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan *Conn, 2)
			Connect(tt.host, tt.port, tt.timeout, func(c *Conn) { done <- c })
			select {
			case c := <-done:
				if !c.ErrorOccurred() {
					t.Error("expected error-flagged context")
				}
				if c.ErrorMessage() == "" {
					t.Error("expected a diagnostic message")
				}
				if c.Connected() {
					t.Error("failed context must not be connected")
				}
			case <-time.After(DefaultConnectTimeout + time.Second):
				t.Fatal("continuation never ran")
			}
			select {
			case <-done:
				t.Error("continuation ran twice")
			case <-time.After(50 * time.Millisecond):
			}
		})
	}
}

func TestLinesSkipsEmptyAndKeepsPartial(t *testing.T) {
	c := &Conn{buf: []byte("a\n\nb\r\nrest")}
	lines := c.Lines()
	if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
		t.Fatalf("unexpected lines %v", lines)
	}
	if c.Data() != "rest" {
		t.Errorf("expected partial retained, got %q", c.Data())
	}
	if c.Lines() != nil {
		t.Error("no complete line should yield nil")
	}
}

func TestReceiveWithoutSocket(t *testing.T) {
	done := make(chan *Conn, 1)
	c := newErrorConn(func(c *Conn) { done <- c }, ErrNotConnected)
	c.Receive()
	select {
	case got := <-done:
		if !got.ErrorOccurred() {
			t.Error("expected error")
		}
	case <-time.After(waitFor):
		t.Fatal("continuation never ran")
	}
	if Send(c, "x") {
		t.Error("send on failed context should return false")
	}
}
