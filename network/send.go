package network

import "time"

type outbound struct {
	data       []byte
	closeAfter bool
}

// Send queues payload for asynchronous delivery. Writes on one Conn go out
// in call order. It returns false, after forcibly closing the socket, if the
// socket is not connected; it also returns false without closing when the
// peer is too slow and the queue is full.
func Send(c *Conn, payload string) bool {
	return c.enqueue(payload, false)
}

// SendAndClose is Send followed by closing the socket once the write is done.
// Later sends on the Conn are refused.
func SendAndClose(c *Conn, payload string) bool {
	return c.enqueue(payload, true)
}

func (c *Conn) enqueue(payload string, closeAfter bool) bool {
	if !c.Connected() {
		if c.conn != nil {
			c.abort()
		}
		return false
	}
	msg := outbound{data: []byte(payload), closeAfter: closeAfter}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return false
	}
	select {
	case c.out <- msg:
		c.closing = closeAfter
		return true
	case <-c.done:
		return false
	default:
		// peer too slow, drop rather than block the caller
		return false
	}
}

// writeLoop is the only goroutine that writes to the socket.
func (c *Conn) writeLoop() {
	for {
		select {
		case msg := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if _, err := c.conn.Write(msg.data); err != nil {
				c.setError(err)
				c.abort()
				return
			}
			if msg.closeAfter {
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
