package game

import (
	"math/rand"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"tankwars/config"
	"tankwars/protocol"
)

// MaxNameLen bounds player names, in runes.
const MaxNameLen = 16

// IDAllocator hands out per-kind IDs that are never reused.
type IDAllocator struct {
	next map[string]int
}

func NewIDAllocator() *IDAllocator {
	return &IDAllocator{next: make(map[string]int)}
}

// Next returns the next ID for kind, starting at 0.
func (a *IDAllocator) Next(kind string) int {
	id := a.next[kind]
	a.next[kind] = id + 1
	return id
}

// Kill records one kill for the match recorder.
type Kill struct {
	Shooter, Victim int
	Beam            bool
}

// World is the authoritative state of one match. It is not safe for
// concurrent use: the server loop is its only reader and writer.
type World struct {
	Size        float64
	Settings    config.Settings
	Tanks       map[int]*Tank
	Walls       map[int]*Wall
	Powerups    map[int]*Powerup
	Projectiles map[int]*Projectile
	Beams       map[int]*Beam

	ids   *IDAllocator
	rng   *rand.Rand
	walls *WallGrid

	tick        uint64
	powerupWait int

	firedBeams []*Beam
	kills      []Kill
	removed    []int
}

// NewWorld builds a world from validated settings. rng drives spawn
// locations and powerup timing; nil seeds one from the clock.
func NewWorld(s config.Settings, rng *rand.Rand) *World {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	w := &World{
		Size:        float64(s.UniverseSize),
		Settings:    s,
		Tanks:       make(map[int]*Tank),
		Walls:       make(map[int]*Wall),
		Powerups:    make(map[int]*Powerup),
		Projectiles: make(map[int]*Projectile),
		Beams:       make(map[int]*Beam),
		ids:         NewIDAllocator(),
		rng:         rng,
	}
	for _, ws := range s.Walls {
		id := w.ids.Next(protocol.KindWall)
		w.Walls[id] = &Wall{
			ID: id,
			P1: Vector{ws.P1.X, ws.P1.Y},
			P2: Vector{ws.P2.X, ws.P2.Y},
		}
	}
	w.walls = NewWallGrid(w.Walls, s.WallSize, s.TankSize)
	return w
}

// Tick is the number of completed ticks.
func (w *World) Tick() uint64 { return w.tick }

// SanitizeName trims a handshake name and caps its length. An empty result
// means the handshake is ignored.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxNameLen {
		name = string([]rune(name)[:MaxNameLen])
	}
	return name
}

// AddTank creates a tank for a new player at a random location clear of
// walls, ready to fire.
func (w *World) AddTank(name string) *Tank {
	id := w.ids.Next(protocol.KindTank)
	t := &Tank{
		ID:      id,
		Name:    name,
		Loc:     w.randomLocation(w.Settings.TankSize),
		BodyDir: Up,
		Aim:     Up,
		HP:      w.Settings.TankHP,
		Joined:  true,
		reload:  w.Settings.FramesPerShot,
	}
	w.Tanks[id] = t
	return t
}

// WallList returns the walls in ID order.
func (w *World) WallList() []protocol.Wall {
	out := make([]protocol.Wall, 0, len(w.Walls))
	for _, id := range sortedKeys(w.Walls) {
		out = append(out, w.Walls[id].Wire())
	}
	return out
}

// randomLocation samples uniformly until it finds a point where an entity
// of the given extent clears every wall.
func (w *World) randomLocation(extent float64) Vector {
	h := w.Size / 2
	for {
		p := Vector{
			X: w.rng.Float64()*w.Size - h,
			Y: w.rng.Float64()*w.Size - h,
		}
		if !w.walls.Blocked(p, extent) {
			return p
		}
	}
}

// Snapshot captures the state broadcast this tick, each kind in ascending
// ID order.
func (w *World) Snapshot() *protocol.Snapshot {
	s := &protocol.Snapshot{
		Tick:        w.tick,
		Tanks:       make([]protocol.Tank, 0, len(w.Tanks)),
		Powerups:    make([]protocol.Powerup, 0, len(w.Powerups)),
		Projectiles: make([]protocol.Projectile, 0, len(w.Projectiles)),
		Beams:       make([]protocol.Beam, 0, len(w.Beams)),
	}
	for _, id := range sortedKeys(w.Tanks) {
		s.Tanks = append(s.Tanks, w.Tanks[id].Wire())
	}
	for _, id := range sortedKeys(w.Powerups) {
		s.Powerups = append(s.Powerups, w.Powerups[id].Wire())
	}
	for _, id := range sortedKeys(w.Projectiles) {
		s.Projectiles = append(s.Projectiles, w.Projectiles[id].Wire())
	}
	for _, id := range sortedKeys(w.Beams) {
		s.Beams = append(s.Beams, w.Beams[id].Wire())
	}
	return s
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
