package server

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tankwars/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufSize    = 64
)

// Spectator is a read-only websocket viewer of the match.
type Spectator struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	id         string
	remoteAddr string
	binary     bool // msgpack snapshots instead of text frames
}

func NewSpectator(hub *Hub, conn *websocket.Conn, remoteAddr string, binary bool) *Spectator {
	return &Spectator{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		id:         uuid.NewString(),
		remoteAddr: remoteAddr,
		binary:     binary,
	}
}

// queue drops the message if the spectator is behind. Callers hold the hub
// lock, so send is never closed underneath.
func (sp *Spectator) queue(data []byte) {
	select {
	case sp.send <- data:
	default:
	}
}

// ReadPump discards anything the spectator sends and detects disconnects.
func (sp *Spectator) ReadPump() {
	defer func() {
		sp.hub.TrackDisconnect(sp.remoteAddr)
		sp.hub.Leave(sp)
		sp.conn.Close()
	}()

	sp.conn.SetReadLimit(maxMessageSize)
	sp.conn.SetReadDeadline(time.Now().Add(pongWait))
	sp.conn.SetPongHandler(func(string) error {
		sp.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := sp.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Log.Debugw("spectator read", "spectator", sp.id, "err", err)
			}
			return
		}
	}
}

// WritePump writes queued frames and keeps the connection alive with pings.
func (sp *Spectator) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sp.conn.Close()
	}()

	msgType := websocket.TextMessage
	if sp.binary {
		msgType = websocket.BinaryMessage
	}
	for {
		select {
		case message, ok := <-sp.send:
			sp.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				sp.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sp.conn.WriteMessage(msgType, message); err != nil {
				return
			}

		case <-ticker.C:
			sp.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sp.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
