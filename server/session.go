package server

import (
	"tankwars/game"
	"tankwars/logging"
	"tankwars/network"
	"tankwars/protocol"
)

// session ties one player's connection to their tank. Sessions are owned
// by the loop goroutine.
type session struct {
	conn   *network.Conn
	tankID int
	name   string
}

// inbound messages, produced by I/O goroutines and consumed by the loop
type joinRequest struct {
	conn *network.Conn
	name string
}

type commandMsg struct {
	tankID int
	cmd    protocol.ControlCommand
}

// accept runs for every connection the listener hands over.
func (s *Server) accept(c *network.Conn) {
	if c.ErrorOccurred() {
		logging.Log.Infow("listener stopped", "reason", c.ErrorMessage())
		return
	}
	s.metrics.IncConnects()
	logging.Log.Debugw("client connected", "conn", c.ID, "addr", c.RemoteAddr())
	c.SetHandler(s.receiveName)
	c.Receive()
}

// receiveName waits for the player's name, the first non-blank line, and
// hands it to the loop. Anything after it in the same read is dropped.
func (s *Server) receiveName(c *network.Conn) {
	if c.ErrorOccurred() {
		logging.Log.Debugw("client left before handshake", "conn", c.ID, "reason", c.ErrorMessage())
		_ = c.Close()
		return
	}
	for _, line := range c.Lines() {
		name := game.SanitizeName(line)
		if name == "" {
			continue
		}
		select {
		case s.inbox <- joinRequest{conn: c, name: name}:
		default:
			s.metrics.IncInboxFull()
			logging.Log.Warnw("inbox full, refusing join", "conn", c.ID)
			_ = c.Close()
		}
		return
	}
	c.Receive()
}

// receiveControls decodes control commands for one tank and queues them
// for the next tick. A read error is left for the loop to reconcile.
func (s *Server) receiveControls(tankID int) network.Handler {
	return func(c *network.Conn) {
		if c.ErrorOccurred() {
			logging.Log.Debugw("receive failed", "conn", c.ID, "tank", tankID, "reason", c.ErrorMessage())
			return
		}
		for _, line := range c.Lines() {
			cmd, err := protocol.DecodeCommand(line)
			if err != nil {
				s.metrics.IncMalformed()
				logging.Log.Debugw("dropping line", "conn", c.ID, "tank", tankID, "err", err)
				continue
			}
			select {
			case s.inbox <- commandMsg{tankID: tankID, cmd: cmd}:
			default:
				s.metrics.IncInboxFull()
			}
		}
		c.Receive()
	}
}

// join creates the tank, replies with the handshake and switches the
// connection to steady state. Runs on the loop goroutine.
func (s *Server) join(req joinRequest) {
	if !req.conn.Connected() || req.conn.ErrorOccurred() {
		return
	}
	t := s.world.AddTank(req.name)
	reply, err := protocol.Handshake(t.ID, int(s.world.Size), s.world.WallList(), t.Wire())
	if err != nil {
		logging.Log.Errorw("encode handshake", "tank", t.ID, "err", err)
		s.world.Disconnect(t.ID)
		_ = req.conn.Close()
		return
	}

	s.sessions[t.ID] = &session{conn: req.conn, tankID: t.ID, name: req.name}
	req.conn.SetHandler(s.receiveControls(t.ID))
	if !network.Send(req.conn, reply) {
		s.metrics.IncSendFailures()
	}
	req.conn.Receive()

	s.metrics.IncJoins()
	s.recorder.Join(req.conn.ID, t.ID, req.name)
	logging.Log.Infow("player joined", "name", req.name, "tank", t.ID, "conn", req.conn.ID)
}

// queueCommand buffers a command for the next tick. Commands are applied in
// receipt order; past MaxCommandsPerTick in one tick the newcomers are
// refused.
func (s *Server) queueCommand(m commandMsg) {
	if _, ok := s.sessions[m.tankID]; !ok {
		return
	}
	q := s.pending[m.tankID]
	if len(q) >= s.settings.MaxCommandsPerTick {
		s.metrics.IncRateLimited()
		return
	}
	s.pending[m.tankID] = append(q, m.cmd)
}
