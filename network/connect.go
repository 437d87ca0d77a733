package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"
)

// DefaultConnectTimeout bounds resolution plus connection establishment.
const DefaultConnectTimeout = 3 * time.Second

var errNoAddress = errors.New("no usable address")

// Connect resolves host, dials it and invokes onConnect exactly once with a
// Conn describing the outcome. Failures (unresolvable host, every address
// unreachable, timeout) arrive as an error-flagged Conn. A non-positive
// timeout selects DefaultConnectTimeout.
func Connect(host string, port int, timeout time.Duration, onConnect Handler) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	go func() {
		c := dial(host, port, timeout, onConnect)
		c.invoke()
	}()
}

func dial(host string, port int, timeout time.Duration, h Handler) *Conn {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ips, err := resolve(ctx, host)
	if err != nil {
		return newErrorConn(h, err)
	}

	var d net.Dialer
	lastErr := errNoAddress
	for _, ip := range ips {
		nc, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ip.String(), strconv.Itoa(port)))
		if err == nil {
			setNoDelay(nc)
			return newConn(nc, h)
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return newErrorConn(h, fmt.Errorf("connect %s:%d: %w", host, port, lastErr))
}

// resolve looks host up in DNS, IPv4 first, and falls back to parsing it as
// a literal address.
func resolve(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		if ip := net.ParseIP(host); ip != nil {
			return []net.IP{ip}, nil
		}
		if err == nil {
			err = errNoAddress
		}
		return nil, fmt.Errorf("resolve %q: %w", host, err)
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, a.IP)
	}
	sort.SliceStable(ips, func(i, j int) bool {
		return ips[i].To4() != nil && ips[j].To4() == nil
	})
	return ips, nil
}
