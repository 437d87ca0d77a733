package client

import (
	"context"
	"math/rand"
	"net"
	"strconv"
	"testing"
	"time"

	"tankwars/config"
	"tankwars/protocol"
	"tankwars/server"
)

const waitFor = 3 * time.Second

func startServer(t *testing.T) int {
	t.Helper()
	st := config.DefaultSettings()
	st.MSPerFrame = 5
	st.FramesPerShot = 1
	st.NumberOfPowerups = 0
	st.Walls = nil
	s := server.New(server.Options{Settings: st, Rand: rand.New(rand.NewSource(3))})
	if err := s.Listen(0); err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s.Port()
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestControllerJoinsAndFires(t *testing.T) {
	port := startServer(t)

	connected := make(chan [2]int, 1)
	netErr := make(chan string, 1)
	c := NewController(Events{
		OnConnected: func(id, size int) { connected <- [2]int{id, size} },
		OnNetworkError: func(msg string) {
			select {
			case netErr <- msg:
			default:
			}
		},
	})
	c.Connect("ace", "127.0.0.1:"+strconv.Itoa(port))
	defer c.Disconnect()

	select {
	case got := <-connected:
		if got[0] != 0 || got[1] != config.DefaultSettings().UniverseSize {
			t.Errorf("unexpected handshake %v", got)
		}
	case msg := <-netErr:
		t.Fatalf("network error before handshake: %s", msg)
	case <-time.After(waitFor):
		t.Fatal("never connected")
	}

	waitUntil(t, "own tank", func() bool {
		tk, ok := c.Tanks()[c.TankID()]
		return ok && tk.Name == "ace"
	})

	c.SetAim(protocol.Vector{X: 1, Y: 0})
	c.SetFire(protocol.FireMain)
	waitUntil(t, "projectile", func() bool {
		for _, p := range c.Projectiles() {
			if p.Owner == c.TankID() {
				return true
			}
		}
		return false
	})
	waitUntil(t, "aim applied", func() bool {
		return c.Tanks()[c.TankID()].Aim.X == 1
	})
}

func TestControllerConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	failed := make(chan string, 1)
	c := NewController(Events{
		OnConnected:    func(int, int) { t.Error("should not connect") },
		OnNetworkError: func(msg string) { failed <- msg },
	})
	c.Connect("nobody", addr)

	select {
	case msg := <-failed:
		if msg == "" {
			t.Error("expected an error message")
		}
	case <-time.After(waitFor):
		t.Fatal("no network error reported")
	}
}

func TestControllerBeamAging(t *testing.T) {
	c := NewController(Events{})
	c.walls = map[int]protocol.Wall{}
	c.tanks = map[int]protocol.Tank{}
	c.powerups = map[int]protocol.Powerup{}
	c.projectiles = map[int]protocol.Projectile{}
	c.beams = map[int]*beamState{}

	beams, _ := c.apply(protocol.Beam{ID: 4, Dir: protocol.Vector{X: 1}})
	if len(beams) != 1 {
		t.Fatalf("expected new beam event, got %v", beams)
	}
	if again, _ := c.apply(protocol.Beam{ID: 4}); len(again) != 0 {
		t.Error("a beam already drawn should not fire the event twice")
	}
	for i := 0; i < BeamFrames; i++ {
		c.ageBeams()
	}
	if len(c.ActiveBeams()) != 1 {
		t.Fatal("beam should last BeamFrames updates")
	}
	c.ageBeams()
	if len(c.ActiveBeams()) != 0 {
		t.Error("beam should expire")
	}
}

func TestControllerAltFireOnce(t *testing.T) {
	c := NewController(Events{})
	c.SetFire(protocol.FireAlt)
	if got := c.command().Fire; got != protocol.FireAlt {
		t.Errorf("first command should carry alt, got %q", got)
	}
	if got := c.command().Fire; got != protocol.FireNone {
		t.Errorf("alt fire should be one shot, got %q", got)
	}
	c.SetFire(protocol.FireMain)
	c.command()
	if got := c.command().Fire; got != protocol.FireMain {
		t.Errorf("main fire should repeat, got %q", got)
	}
}

func TestControllerDisconnectRemovesTank(t *testing.T) {
	var deaths []protocol.Tank
	c := NewController(Events{})
	c.tanks = map[int]protocol.Tank{}
	c.tanks[2] = protocol.Tank{ID: 2, HP: 3}

	_, d := c.apply(protocol.Tank{ID: 2, Died: true, Disconnected: true})
	deaths = append(deaths, d...)
	if len(deaths) != 1 {
		t.Errorf("expected a death event, got %v", deaths)
	}
	if _, ok := c.Tanks()[2]; ok {
		t.Error("disconnected tank should be dropped")
	}
}
