package game

import (
	"tankwars/protocol"
)

// The methods below are the simulation steps of one tick. The server loop
// calls them in this order:
//
//	SpawnPowerups, PickupPowerups, AdvanceProjectiles, ResolveBeams,
//	Disconnect or Revive per client, ApplyCommand per command then
//	AdvanceReload, Snapshot, Cleanup.

// SpawnPowerups adds a powerup when the spawn schedule allows. The first
// one appears when the tick counter reaches the respawn rate; after that a
// new one appears whenever the jittered wait has run out and the population
// is below the cap.
func (w *World) SpawnPowerups() {
	rate := w.Settings.PowerupRespawnRate
	if w.Settings.NumberOfPowerups == 0 {
		return
	}
	switch {
	case w.tick == uint64(rate):
		w.spawnPowerup()
	case w.tick > uint64(rate):
		if len(w.Powerups) < w.Settings.NumberOfPowerups && w.powerupWait <= 0 {
			w.spawnPowerup()
		}
	}
	w.powerupWait--
}

func (w *World) spawnPowerup() {
	id := w.ids.Next(protocol.KindPowerup)
	w.Powerups[id] = &Powerup{ID: id, Loc: w.randomLocation(0)}
	w.powerupWait = 0
	if rate := w.Settings.PowerupRespawnRate; rate > 0 {
		w.powerupWait = w.rng.Intn(rate)
	}
}

// PickupPowerups hands each uncollected powerup to the first live tank,
// in ID order, whose box contains it.
func (w *World) PickupPowerups() {
	tankIDs := sortedKeys(w.Tanks)
	for _, pid := range sortedKeys(w.Powerups) {
		p := w.Powerups[pid]
		if p.Collected {
			continue
		}
		for _, tid := range tankIDs {
			t := w.Tanks[tid]
			if !t.Alive() || !HitsTank(t.Loc, p.Loc, w.Settings.TankSize) {
				continue
			}
			if limit := w.Settings.MaxPowerupCharges; limit == 0 || t.charges < limit {
				t.charges++
			}
			p.Collected = true
			break
		}
	}
}

// AdvanceProjectiles checks every projectile against walls, then tanks
// other than its owner, then the world bounds. The first match kills it;
// a survivor moves one step along its direction. A dead tank still stops
// the projectile but takes no damage.
func (w *World) AdvanceProjectiles() {
	tankIDs := sortedKeys(w.Tanks)
	for _, id := range sortedKeys(w.Projectiles) {
		p := w.Projectiles[id]
		if p.Died {
			continue
		}
		if w.walls.Blocked(p.Loc, 0) {
			p.Died = true
			continue
		}
		if victim := w.projectileVictim(p, tankIDs); victim != nil {
			p.Died = true
			if victim.Alive() {
				w.damage(victim, p.Owner)
			}
			continue
		}
		if OutOfBounds(p.Loc, w.Size) {
			p.Died = true
			continue
		}
		p.Loc = p.Loc.Add(p.Dir.Scale(w.Settings.ProjectileSpeed))
	}
}

func (w *World) projectileVictim(p *Projectile, tankIDs []int) *Tank {
	for _, tid := range tankIDs {
		t := w.Tanks[tid]
		if tid == p.Owner || t.Disconnected {
			continue
		}
		if HitsTank(t.Loc, p.Loc, w.Settings.TankSize) {
			return t
		}
	}
	return nil
}

func (w *World) damage(victim *Tank, shooter int) {
	victim.HP--
	if victim.HP <= 0 {
		victim.HP = 0
		w.kill(victim, shooter, false)
	}
}

func (w *World) kill(victim *Tank, shooter int, beam bool) {
	victim.Died = true
	victim.respawnWait = 0
	if s, ok := w.Tanks[shooter]; ok {
		s.Score++
	}
	w.kills = append(w.kills, Kill{Shooter: shooter, Victim: victim.ID, Beam: beam})
}

// ResolveBeams brings the beams fired since the last tick into play and
// kills every live tank, other than the shooter, that each one passes
// through.
func (w *World) ResolveBeams() {
	for _, b := range w.firedBeams {
		w.Beams[b.ID] = b
	}
	w.firedBeams = w.firedBeams[:0]

	tankIDs := sortedKeys(w.Tanks)
	r := w.Settings.TankSize / 2
	for _, bid := range sortedKeys(w.Beams) {
		b := w.Beams[bid]
		for _, tid := range tankIDs {
			t := w.Tanks[tid]
			if tid == b.Owner || !t.Alive() {
				continue
			}
			if BeamHits(b.Origin, b.Dir, t.Loc, r) {
				t.HP = 0
				w.kill(t, b.Owner, true)
			}
		}
	}
}

// Disconnect marks a tank whose connection failed. It is removed in
// Cleanup after one broadcast announces it.
func (w *World) Disconnect(id int) {
	t, ok := w.Tanks[id]
	if !ok || t.Disconnected {
		return
	}
	t.Disconnected = true
	t.HP = 0
	t.Died = true
	w.removed = append(w.removed, id)
}

// Revive advances a dead tank's respawn wait, bringing it back with full
// health at a fresh location once the wait reaches the respawn rate.
func (w *World) Revive(id int) {
	t, ok := w.Tanks[id]
	if !ok || t.Disconnected || t.HP > 0 {
		return
	}
	if t.respawnWait >= w.Settings.RespawnRate {
		t.HP = w.Settings.TankHP
		t.Loc = w.randomLocation(w.Settings.TankSize)
		return
	}
	t.respawnWait++
}

// ApplyCommand applies one control command to a live tank. Unknown tanks
// and dead or disconnected ones are ignored.
func (w *World) ApplyCommand(id int, cmd protocol.ControlCommand) {
	t, ok := w.Tanks[id]
	if !ok || !t.Alive() {
		return
	}
	if aim := FromWire(cmd.Aim).Normalize(); aim != (Vector{}) {
		t.Aim = aim
	}

	if dir, ok := Direction(cmd.Moving); ok {
		t.BodyDir = dir
		next := t.Loc.Add(dir.Scale(w.Settings.TankSpeed))
		if !w.walls.Blocked(next, w.Settings.TankSize) {
			t.Loc = Wrap(next, w.Size)
		}
	}

	switch cmd.Fire {
	case protocol.FireMain:
		if t.reload >= w.Settings.FramesPerShot {
			id := w.ids.Next(protocol.KindProjectile)
			w.Projectiles[id] = &Projectile{
				ID:    id,
				Loc:   t.Loc.Add(t.Aim.Scale(w.Settings.TankSize / 2)),
				Dir:   t.Aim,
				Owner: t.ID,
			}
			t.reload = 0
		}
	case protocol.FireAlt:
		if t.charges > 0 {
			id := w.ids.Next(protocol.KindBeam)
			w.firedBeams = append(w.firedBeams, &Beam{ID: id, Origin: t.Loc, Dir: t.Aim, Owner: t.ID})
			t.charges--
		}
	}
}

// AdvanceReload moves every live tank's reload counter on by one tick.
func (w *World) AdvanceReload() {
	for _, t := range w.Tanks {
		if t.Alive() {
			t.reload++
		}
	}
}

// Kills returns the kills scored this tick. The slice is reset by Cleanup.
func (w *World) Kills() []Kill { return w.kills }

// Cleanup ends the tick: disconnected tanks, dead projectiles, collected
// powerups and all beams go away, one-shot flags are cleared and the tick
// counter advances. It returns the IDs of the removed tanks.
func (w *World) Cleanup() []int {
	removed := append([]int(nil), w.removed...)
	for _, id := range removed {
		delete(w.Tanks, id)
	}
	for id, p := range w.Projectiles {
		if p.Died {
			delete(w.Projectiles, id)
		}
	}
	for id, p := range w.Powerups {
		if p.Collected {
			delete(w.Powerups, id)
		}
	}
	for id := range w.Beams {
		delete(w.Beams, id)
	}
	for _, t := range w.Tanks {
		t.Died = false
		t.Joined = false
	}
	w.removed = w.removed[:0]
	w.kills = nil
	w.tick++
	return removed
}
