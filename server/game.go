package server

import (
	"context"
	"sort"
	"time"

	"tankwars/logging"
	"tankwars/network"
)

// Run drives the match until ctx is cancelled: inbound joins and commands
// are handled as they arrive, and the simulation ticks at the configured
// frame interval. It is the only goroutine that touches the world.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.settings.FrameInterval())
	defer ticker.Stop()

	logging.Log.Infow("match running", "frame", s.settings.FrameInterval(), "world", s.settings.UniverseSize, "walls", len(s.settings.Walls))
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case m := <-s.inbox:
			s.handle(m)
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Server) handle(m any) {
	switch m := m.(type) {
	case joinRequest:
		s.join(m)
	case commandMsg:
		s.queueCommand(m)
	}
}

// drainInbox handles everything queued so far without waiting.
func (s *Server) drainInbox() {
	for {
		select {
		case m := <-s.inbox:
			s.handle(m)
		default:
			return
		}
	}
}

// tick runs one simulation step. The order of the steps is fixed.
func (s *Server) tick() {
	start := time.Now()
	s.drainInbox()
	w := s.world

	// 1-4: powerups, projectiles, beams
	w.SpawnPowerups()
	w.PickupPowerups()
	w.AdvanceProjectiles()
	w.ResolveBeams()
	s.recordKills()

	// 5: per-client state
	for _, id := range s.sessionIDs() {
		sess := s.sessions[id]
		if sess.conn.ErrorOccurred() {
			if t, ok := w.Tanks[id]; ok {
				s.recorder.Leave(sess.conn.ID, t.Score)
			}
			w.Disconnect(id)
			logging.Log.Infow("player disconnected", "name", sess.name, "tank", id, "reason", sess.conn.ErrorMessage())
			continue
		}
		w.Revive(id)
	}

	// 6: controls
	ids := make([]int, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		for _, cmd := range s.pending[id] {
			w.ApplyCommand(id, cmd)
			s.metrics.IncAccepted()
		}
		delete(s.pending, id)
	}
	w.AdvanceReload()

	// 7: broadcast
	s.broadcast()

	// 8: cleanup
	for _, id := range w.Cleanup() {
		if sess, ok := s.sessions[id]; ok {
			_ = sess.conn.Close()
			delete(s.sessions, id)
			delete(s.pending, id)
			s.metrics.IncDisconnects()
		}
	}
	s.metrics.AddTick(time.Since(start))
}

func (s *Server) broadcast() {
	snap := s.world.Snapshot()
	s.latest.Store(snap)
	frame, err := snap.Frame()
	if err != nil {
		logging.Log.Errorw("encode frame", "tick", snap.Tick, "err", err)
		return
	}
	for _, id := range s.sessionIDs() {
		sess := s.sessions[id]
		if sess.conn.ErrorOccurred() {
			continue
		}
		if !network.Send(sess.conn, frame) {
			s.metrics.IncSendFailures()
		}
	}
	s.hub.Broadcast(snap, frame)
}

func (s *Server) recordKills() {
	for _, k := range s.world.Kills() {
		var shooter, victim string
		if sess, ok := s.sessions[k.Shooter]; ok {
			shooter = sess.conn.ID
		}
		if sess, ok := s.sessions[k.Victim]; ok {
			victim = sess.conn.ID
		}
		s.recorder.Kill(shooter, victim, k.Beam, s.world.Tick())
		logging.Log.Debugw("tank destroyed", "shooter", k.Shooter, "victim", k.Victim, "beam", k.Beam)
	}
}

func (s *Server) sessionIDs() []int {
	ids := make([]int, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// shutdown closes the listener and every player connection.
func (s *Server) shutdown() {
	if s.listener != nil {
		_ = s.listener.Stop()
	}
	for id, sess := range s.sessions {
		if t, ok := s.world.Tanks[id]; ok {
			s.recorder.Leave(sess.conn.ID, t.Score)
		}
		_ = sess.conn.Close()
	}
	s.hub.Close()
	logging.Log.Infow("match stopped", "tick", s.world.Tick())
}
