package network

import (
	"fmt"
	"net"
	"strconv"
)

// Listener is a running accept loop.
type Listener struct {
	ln       net.Listener
	onAccept Handler
}

// Listen binds the TCP port and starts accepting forever. Every accepted
// socket becomes a fresh Conn handed to onAccept, after which the loop
// re-arms. When Accept fails (for example after Stop) onAccept is invoked
// once with an error-flagged Conn and the loop ends. A bind failure is
// returned directly.
func Listen(port int, onAccept Handler) (*Listener, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", port, err)
	}
	l := &Listener{ln: ln, onAccept: onAccept}
	go l.acceptLoop()
	return l, nil
}

func (l *Listener) acceptLoop() {
	for {
		nc, err := l.ln.Accept()
		if err != nil {
			c := newErrorConn(l.onAccept, fmt.Errorf("accept: %w", err))
			c.invoke()
			return
		}
		setNoDelay(nc)
		c := newConn(nc, l.onAccept)
		c.invoke()
	}
}

// Port is the bound TCP port, useful when listening on port 0.
func (l *Listener) Port() int {
	if addr, ok := l.ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Stop closes the listening socket; the accept loop reports the failure
// through onAccept and exits.
func (l *Listener) Stop() error {
	return l.ln.Close()
}
