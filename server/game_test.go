package server

import (
	"math/rand"
	"net"
	"strconv"
	"testing"
	"time"

	"tankwars/network"
	"tankwars/protocol"
)

func newTestServer(t *testing.T, mutate func(*Options)) *Server {
	t.Helper()
	opts := Options{Settings: testSettings(), Rand: rand.New(rand.NewSource(1))}
	if mutate != nil {
		mutate(&opts)
	}
	s := New(opts)
	t.Cleanup(s.hub.Close)
	return s
}

func cmd(moving string) protocol.ControlCommand {
	return protocol.ControlCommand{Moving: moving, Fire: protocol.FireNone, Aim: protocol.Vector{X: 0, Y: -1}}
}

// acceptedConn returns the server side of a loopback connection.
func acceptedConn(t *testing.T) *network.Conn {
	t.Helper()
	conns := make(chan *network.Conn, 1)
	l, err := network.Listen(0, func(c *network.Conn) {
		if !c.ErrorOccurred() {
			conns <- c
		}
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = l.Stop() })

	nc, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(l.Port()), waitFor)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { nc.Close() })

	select {
	case c := <-conns:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(waitFor):
		t.Fatal("connection never accepted")
		return nil
	}
}

func joinTank(t *testing.T, s *Server, name string) int {
	t.Helper()
	tk := s.world.AddTank(name)
	s.sessions[tk.ID] = &session{conn: acceptedConn(t), tankID: tk.ID, name: name}
	return tk.ID
}

func fire(token string) protocol.ControlCommand {
	c := cmd(protocol.MoveNone)
	c.Fire = token
	return c
}

func TestFireThenIdleInOneTick(t *testing.T) {
	s := newTestServer(t, nil)
	id := joinTank(t, s, "a")

	s.queueCommand(commandMsg{tankID: id, cmd: fire(protocol.FireMain)})
	s.queueCommand(commandMsg{tankID: id, cmd: fire(protocol.FireNone)})
	s.tick()

	snap := s.Latest()
	if len(snap.Projectiles) != 1 || snap.Projectiles[0].Owner != id {
		t.Fatalf("fire followed by idle should still shoot, got %+v", snap.Projectiles)
	}
	m := s.metrics.Snapshot()
	if m["rate_limited"].(int64) != 0 || m["commands_accepted"].(int64) != 2 {
		t.Errorf("expected both commands applied, got %+v", m)
	}
}

func TestQueueCommandReceiptOrder(t *testing.T) {
	s := newTestServer(t, nil)
	tk := s.world.AddTank("a")
	s.sessions[tk.ID] = &session{tankID: tk.ID, name: "a"}

	moves := []string{protocol.MoveUp, protocol.MoveLeft, protocol.MoveDown}
	for _, m := range moves {
		s.queueCommand(commandMsg{tankID: tk.ID, cmd: cmd(m)})
	}
	q := s.pending[tk.ID]
	if len(q) != len(moves) {
		t.Fatalf("expected %d pending commands, got %d", len(moves), len(q))
	}
	for i, m := range moves {
		if q[i].Moving != m {
			t.Errorf("command %d = %q, want %q", i, q[i].Moving, m)
		}
	}
}

func TestQueueCommandCapRefusesExcess(t *testing.T) {
	s := newTestServer(t, func(o *Options) { o.Settings.MaxCommandsPerTick = 2 })
	tk := s.world.AddTank("a")
	s.sessions[tk.ID] = &session{tankID: tk.ID, name: "a"}

	s.queueCommand(commandMsg{tankID: tk.ID, cmd: fire(protocol.FireAlt)})
	for _, m := range []string{protocol.MoveUp, protocol.MoveLeft, protocol.MoveDown} {
		s.queueCommand(commandMsg{tankID: tk.ID, cmd: cmd(m)})
	}
	q := s.pending[tk.ID]
	if len(q) != 2 || q[0].Fire != protocol.FireAlt || q[1].Moving != protocol.MoveUp {
		t.Errorf("expected the first two commands kept, got %+v", q)
	}
	if got := s.metrics.Snapshot()["rate_limited"].(int64); got != 2 {
		t.Errorf("expected 2 rate limited, got %d", got)
	}
}

func TestQueueCommandUnknownTank(t *testing.T) {
	s := newTestServer(t, nil)
	s.queueCommand(commandMsg{tankID: 42, cmd: cmd(protocol.MoveUp)})
	if len(s.pending) != 0 {
		t.Errorf("command for unknown tank should be ignored: %+v", s.pending)
	}
}

func TestTickWithoutPlayers(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.Settings.NumberOfPowerups = 1
		o.Settings.PowerupRespawnRate = 2
	})
	for i := 0; i < 3; i++ {
		s.tick()
	}
	snap := s.Latest()
	if snap == nil {
		t.Fatal("expected a snapshot after ticking")
	}
	if snap.Tick != 2 {
		t.Errorf("expected last broadcast tick 2, got %d", snap.Tick)
	}
	if len(snap.Powerups) != 1 {
		t.Errorf("expected the first powerup by tick 2, got %d", len(snap.Powerups))
	}
	if got := s.metrics.Snapshot()["tick_count"].(int64); got != 3 {
		t.Errorf("expected 3 ticks counted, got %d", got)
	}
}

func TestTickDrainsInbox(t *testing.T) {
	s := newTestServer(t, nil)
	tk := s.world.AddTank("a")
	s.sessions[tk.ID] = &session{tankID: tk.ID, name: "a"}
	s.inbox <- commandMsg{tankID: tk.ID, cmd: cmd(protocol.MoveUp)}

	s.drainInbox()
	if len(s.pending[tk.ID]) != 1 {
		t.Fatalf("expected the command to be pending, got %+v", s.pending)
	}
}
