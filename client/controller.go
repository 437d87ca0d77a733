package client

import (
	"net"
	"strconv"
	"time"

	"github.com/sasha-s/go-deadlock"

	"tankwars/config"
	"tankwars/logging"
	"tankwars/network"
	"tankwars/protocol"
)

// BeamFrames is how many updates a beam stays in ActiveBeams after it was
// fired. The server resolves the hit in a single tick; this is only for
// drawing.
const BeamFrames = 30

// Events are the notifications a front end subscribes to. Any may be nil.
// They run on network goroutines; handlers must not call Connect.
type Events struct {
	OnConnected    func(tankID, worldSize int)
	OnUpdate       func()
	OnNetworkError func(msg string)
	OnBeam         func(b protocol.Beam)
	OnDeath        func(t protocol.Tank)
}

type handshakeStage int

const (
	awaitID handshakeStage = iota
	awaitSize
	steady
)

type beamState struct {
	beam protocol.Beam
	left int
}

// Controller is the client end of the protocol: it connects, performs the
// handshake, keeps a copy of the world from the broadcasts and sends the
// player's control command once per received frame.
type Controller struct {
	events  Events
	timeout time.Duration

	mu          deadlock.Mutex
	conn        *network.Conn
	name        string
	stage       handshakeStage
	tankID      int
	worldSize   int
	walls       map[int]protocol.Wall
	tanks       map[int]protocol.Tank
	powerups    map[int]protocol.Powerup
	projectiles map[int]protocol.Projectile
	beams       map[int]*beamState

	moving string
	fire   string
	aim    protocol.Vector
}

func NewController(ev Events) *Controller {
	return &Controller{
		events:  ev,
		timeout: network.DefaultConnectTimeout,
		moving:  protocol.MoveNone,
		fire:    protocol.FireNone,
		aim:     protocol.Vector{X: 0, Y: -1},
	}
}

// Connect dials host (with an optional ":port", default 11000) and joins
// as name. The outcome arrives through OnConnected or OnNetworkError.
func (c *Controller) Connect(name, host string) {
	port := config.DefaultGamePort
	if h, p, err := net.SplitHostPort(host); err == nil {
		if n, err := strconv.Atoi(p); err == nil {
			host, port = h, n
		}
	}

	c.mu.Lock()
	c.name = name
	c.stage = awaitID
	c.walls = make(map[int]protocol.Wall)
	c.tanks = make(map[int]protocol.Tank)
	c.powerups = make(map[int]protocol.Powerup)
	c.projectiles = make(map[int]protocol.Projectile)
	c.beams = make(map[int]*beamState)
	c.mu.Unlock()

	network.Connect(host, port, c.timeout, c.onConnect)
}

func (c *Controller) onConnect(conn *network.Conn) {
	if conn.ErrorOccurred() {
		c.fail(conn.ErrorMessage())
		return
	}
	c.mu.Lock()
	c.conn = conn
	name := c.name
	c.mu.Unlock()

	conn.SetHandler(c.onReceive)
	if !network.Send(conn, name+"\n") {
		c.fail("could not send player name")
		return
	}
	conn.Receive()
}

func (c *Controller) fail(msg string) {
	logging.Log.Warnw("network error", "err", msg)
	if c.events.OnNetworkError != nil {
		c.events.OnNetworkError(msg)
	}
}

func (c *Controller) onReceive(conn *network.Conn) {
	if conn.ErrorOccurred() {
		c.fail(conn.ErrorMessage())
		return
	}

	lines := conn.Lines()
	var (
		connected bool
		updated   bool
		beams     []protocol.Beam
		deaths    []protocol.Tank
	)

	c.mu.Lock()
	for _, line := range lines {
		switch c.stage {
		case awaitID:
			id, err := protocol.ParseInt(line)
			if err != nil {
				logging.Log.Debugw("bad handshake id", "line", line, "err", err)
				continue
			}
			c.tankID = id
			c.stage = awaitSize
		case awaitSize:
			size, err := protocol.ParseInt(line)
			if err != nil {
				logging.Log.Debugw("bad world size", "line", line, "err", err)
				continue
			}
			c.worldSize = size
			c.stage = steady
			connected = true
		default:
			rec, err := protocol.Decode(line)
			if err != nil {
				logging.Log.Debugw("dropping line", "err", err)
				continue
			}
			b, d := c.apply(rec)
			beams = append(beams, b...)
			deaths = append(deaths, d...)
			updated = true
		}
	}
	if updated {
		c.ageBeams()
	}
	id, size := c.tankID, c.worldSize
	cmd := c.command()
	c.mu.Unlock()

	if connected && c.events.OnConnected != nil {
		c.events.OnConnected(id, size)
	}
	for _, b := range beams {
		if c.events.OnBeam != nil {
			c.events.OnBeam(b)
		}
	}
	for _, t := range deaths {
		if c.events.OnDeath != nil {
			c.events.OnDeath(t)
		}
	}
	if updated {
		if c.events.OnUpdate != nil {
			c.events.OnUpdate()
		}
		c.send(conn, cmd)
	}
	conn.Receive()
}

// apply merges one record into the local world. Called with mu held.
func (c *Controller) apply(rec protocol.Record) (beams []protocol.Beam, deaths []protocol.Tank) {
	switch r := rec.(type) {
	case protocol.Tank:
		if r.Died {
			deaths = append(deaths, r)
		}
		if r.Disconnected {
			delete(c.tanks, r.ID)
		} else {
			c.tanks[r.ID] = r
		}
	case protocol.Wall:
		c.walls[r.ID] = r
	case protocol.Powerup:
		if r.Died {
			delete(c.powerups, r.ID)
		} else {
			c.powerups[r.ID] = r
		}
	case protocol.Projectile:
		if r.Died {
			delete(c.projectiles, r.ID)
		} else {
			c.projectiles[r.ID] = r
		}
	case protocol.Beam:
		if _, seen := c.beams[r.ID]; !seen {
			c.beams[r.ID] = &beamState{beam: r, left: BeamFrames + 1}
			beams = append(beams, r)
		}
	}
	return beams, deaths
}

func (c *Controller) ageBeams() {
	for id, b := range c.beams {
		b.left--
		if b.left <= 0 {
			delete(c.beams, id)
		}
	}
}

// command builds the control command for this frame. Alternate fire is
// sent once per request. Called with mu held.
func (c *Controller) command() protocol.ControlCommand {
	cmd := protocol.ControlCommand{Moving: c.moving, Fire: c.fire, Aim: c.aim}
	if c.fire == protocol.FireAlt {
		c.fire = protocol.FireNone
	}
	return cmd
}

func (c *Controller) send(conn *network.Conn, cmd protocol.ControlCommand) {
	line, err := protocol.EncodeLine(cmd)
	if err != nil {
		logging.Log.Errorw("encode command", "err", err)
		return
	}
	if !network.Send(conn, line) {
		logging.Log.Debugw("command not sent", "conn", conn.ID)
	}
}

// SetMove sets the movement token sent with every frame.
func (c *Controller) SetMove(token string) {
	c.mu.Lock()
	c.moving = token
	c.mu.Unlock()
}

// SetFire sets the fire token. "main" repeats until changed; "alt" is sent
// once.
func (c *Controller) SetFire(token string) {
	c.mu.Lock()
	c.fire = token
	c.mu.Unlock()
}

// SetAim points the turret along dir.
func (c *Controller) SetAim(dir protocol.Vector) {
	c.mu.Lock()
	c.aim = dir
	c.mu.Unlock()
}

// Disconnect closes the connection.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// TankID is the player's tank, valid after OnConnected.
func (c *Controller) TankID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tankID
}

func (c *Controller) WorldSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.worldSize
}

// Tanks returns a copy of the known tanks.
func (c *Controller) Tanks() map[int]protocol.Tank {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]protocol.Tank, len(c.tanks))
	for k, v := range c.tanks {
		out[k] = v
	}
	return out
}

func (c *Controller) Walls() []protocol.Wall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Wall, 0, len(c.walls))
	for _, w := range c.walls {
		out = append(out, w)
	}
	return out
}

func (c *Controller) Powerups() []protocol.Powerup {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Powerup, 0, len(c.powerups))
	for _, p := range c.powerups {
		out = append(out, p)
	}
	return out
}

func (c *Controller) Projectiles() []protocol.Projectile {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Projectile, 0, len(c.projectiles))
	for _, p := range c.projectiles {
		out = append(out, p)
	}
	return out
}

// ActiveBeams returns the beams still being drawn.
func (c *Controller) ActiveBeams() []protocol.Beam {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Beam, 0, len(c.beams))
	for _, b := range c.beams {
		out = append(out, b.beam)
	}
	return out
}
