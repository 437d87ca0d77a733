package game

import "tankwars/protocol"

// Tank is one player's tank. HP zero means dead and waiting to respawn.
type Tank struct {
	ID           int
	Name         string
	Loc          Vector
	BodyDir      Vector
	Aim          Vector
	HP           int
	Score        int
	Died         bool // set for the broadcast following a death
	Disconnected bool
	Joined       bool // set until the tank's first broadcast

	reload      int // ticks since the last main shot
	respawnWait int // ticks spent dead
	charges     int // stored beam shots
}

// Alive reports whether the tank can act and be hit.
func (t *Tank) Alive() bool { return t.HP > 0 && !t.Disconnected }

// Charges is the number of beam shots the tank holds.
func (t *Tank) Charges() int { return t.charges }

func (t *Tank) Wire() protocol.Tank {
	return protocol.Tank{
		ID:           t.ID,
		Loc:          t.Loc.Wire(),
		BodyDir:      t.BodyDir.Wire(),
		Aim:          t.Aim.Wire(),
		Name:         t.Name,
		HP:           t.HP,
		Score:        t.Score,
		Died:         t.Died,
		Disconnected: t.Disconnected,
		Joined:       t.Joined,
	}
}

// Wall is an axis-aligned segment loaded from settings.
type Wall struct {
	ID     int
	P1, P2 Vector
}

func (w *Wall) Wire() protocol.Wall {
	return protocol.Wall{ID: w.ID, P1: w.P1.Wire(), P2: w.P2.Wire()}
}

type Powerup struct {
	ID        int
	Loc       Vector
	Collected bool
}

func (p *Powerup) Wire() protocol.Powerup {
	return protocol.Powerup{ID: p.ID, Loc: p.Loc.Wire(), Died: p.Collected}
}

type Projectile struct {
	ID    int
	Loc   Vector
	Dir   Vector
	Owner int
	Died  bool
}

func (p *Projectile) Wire() protocol.Projectile {
	return protocol.Projectile{ID: p.ID, Loc: p.Loc.Wire(), Dir: p.Dir.Wire(), Died: p.Died, Owner: p.Owner}
}

// Beam is resolved within the tick it is broadcast in.
type Beam struct {
	ID     int
	Origin Vector
	Dir    Vector
	Owner  int
}

func (b *Beam) Wire() protocol.Beam {
	return protocol.Beam{ID: b.ID, Origin: b.Origin.Wire(), Dir: b.Dir.Wire(), Owner: b.Owner}
}
