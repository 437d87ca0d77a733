package server

import (
	"encoding/json"
	"sync"

	"tankwars/logging"
	"tankwars/protocol"
)

const (
	maxConnsPerIP = 5
	maxTotalConns = 200
)

// Hub fans every tick's broadcast out to websocket spectators.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Spectator]bool
	register   chan *Spectator
	unregister chan *Spectator
	done       chan struct{}
	closeOnce  sync.Once

	welcome protocol.Welcome

	// Connection limiting (accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
}

func NewHub(welcome protocol.Welcome) *Hub {
	return &Hub{
		clients:    make(map[*Spectator]bool),
		register:   make(chan *Spectator, 64),
		unregister: make(chan *Spectator, 64),
		done:       make(chan struct{}),
		welcome:    welcome,
		ipConns:    make(map[string]int),
	}
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	return h.ipConns[ip] < maxConnsPerIP
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events until Close.
func (h *Hub) Run() {
	for {
		select {
		case sp := <-h.register:
			welcome := h.encodeWelcome(sp.binary)
			h.mu.Lock()
			h.clients[sp] = true
			if welcome != nil {
				sp.queue(welcome)
			}
			h.mu.Unlock()
			logging.Log.Debugw("spectator joined", "spectator", sp.id, "binary", sp.binary)

		case sp := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[sp]; ok {
				delete(h.clients, sp)
				close(sp.send)
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for sp := range h.clients {
				delete(h.clients, sp)
				close(sp.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Join queues a spectator for registration. It reports false once the hub
// is closed.
func (h *Hub) Join(sp *Spectator) bool {
	select {
	case h.register <- sp:
		return true
	case <-h.done:
		return false
	}
}

// Leave queues a spectator for removal.
func (h *Hub) Leave(sp *Spectator) {
	select {
	case h.unregister <- sp:
	case <-h.done:
	}
}

// Close disconnects every spectator and stops Run.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// encodeWelcome renders the welcome message. It is queued under the same
// lock that registers the spectator so it always precedes the first tick.
func (h *Hub) encodeWelcome(binary bool) []byte {
	var data []byte
	var err error
	if binary {
		data, err = h.welcome.Pack()
	} else {
		data, err = json.Marshal(h.welcome)
	}
	if err != nil {
		logging.Log.Errorw("encode welcome", "err", err)
		return nil
	}
	return data
}

// Broadcast sends one tick to every spectator: the text frame as is, or
// the msgpack snapshot for binary spectators. Slow spectators miss ticks.
func (h *Hub) Broadcast(snap *protocol.Snapshot, frame string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	var packed []byte
	text := []byte(frame)
	for sp := range h.clients {
		if !sp.binary {
			sp.queue(text)
			continue
		}
		if packed == nil {
			var err error
			if packed, err = snap.Pack(); err != nil {
				logging.Log.Errorw("encode snapshot", "tick", snap.Tick, "err", err)
				return
			}
		}
		sp.queue(packed)
	}
}

// Count returns the number of registered spectators.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
