package server

import (
	"encoding/json"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"

	"tankwars/config"
	"tankwars/game"
	"tankwars/logging"
	"tankwars/network"
	"tankwars/protocol"
	"tankwars/store"
)

const inboxSize = 4096

// Options configures a Server. Recorder and DB may be nil.
type Options struct {
	Settings config.Settings
	Recorder *store.Recorder
	DB       *store.DB
	Rand     *rand.Rand
}

// Server is the authoritative TankWars match: the TCP listener, the client
// registry and the world, driven by Run.
type Server struct {
	settings config.Settings
	world    *game.World
	inbox    chan any

	// owned by the Run goroutine
	sessions map[int]*session
	pending  map[int][]protocol.ControlCommand

	listener *network.Listener
	hub      *Hub
	metrics  *Metrics
	recorder *store.Recorder
	db       *store.DB
	latest   atomic.Pointer[protocol.Snapshot]
}

func New(opts Options) *Server {
	w := game.NewWorld(opts.Settings, opts.Rand)
	s := &Server{
		settings: opts.Settings,
		world:    w,
		inbox:    make(chan any, inboxSize),
		sessions: make(map[int]*session),
		pending:  make(map[int][]protocol.ControlCommand),
		hub:      NewHub(protocol.Welcome{Size: opts.Settings.UniverseSize, Walls: w.WallList()}),
		metrics:  &Metrics{},
		recorder: opts.Recorder,
		db:       opts.DB,
	}
	go s.hub.Run()
	return s
}

// Listen starts accepting players on port; 0 picks a free port.
func (s *Server) Listen(port int) error {
	l, err := network.Listen(port, s.accept)
	if err != nil {
		return err
	}
	s.listener = l
	logging.Log.Infow("accepting players", "port", l.Port())
	return nil
}

// Port is the bound game port, or 0 before Listen.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Port()
}

func (s *Server) Metrics() *Metrics { return s.metrics }
func (s *Server) Hub() *Hub         { return s.hub }

// Latest is the most recently broadcast snapshot, or nil before the first
// tick. Safe to call from any goroutine.
func (s *Server) Latest() *protocol.Snapshot { return s.latest.Load() }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Log.Debugw("write response", "err", err)
	}
}

// SetupRoutes configures the operations and spectator endpoints. joinAddr
// is the host:port players connect to, encoded by /qr.
func SetupRoutes(s *Server, joinAddr string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"status": "ok", "spectators": s.hub.Count()}
		if snap := s.Latest(); snap != nil {
			resp["tick"] = snap.Tick
			resp["tanks"] = len(snap.Tanks)
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.metrics.Snapshot())
	})

	mux.HandleFunc("/scores", func(w http.ResponseWriter, r *http.Request) {
		if s.db == nil {
			http.Error(w, "score store disabled", http.StatusServiceUnavailable)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		rows, err := s.db.Leaderboard(limit)
		if err != nil {
			logging.Log.Errorw("leaderboard", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if rows == nil {
			rows = []store.ScoreRow{}
		}
		writeJSON(w, http.StatusOK, rows)
	})

	mux.HandleFunc("/qr", func(w http.ResponseWriter, r *http.Request) {
		size, _ := strconv.Atoi(r.URL.Query().Get("size"))
		if size <= 0 || size > 1024 {
			size = 256
		}
		png, err := qrcode.Encode("tankwars://"+joinAddr, qrcode.Medium, size)
		if err != nil {
			logging.Log.Errorw("qr encode", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(png)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !s.hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Log.Debugw("upgrade error", "err", err)
			return
		}

		s.hub.TrackConnect(ip)
		sp := NewSpectator(s.hub, conn, ip, r.URL.Query().Get("format") == "msgpack")
		if !s.hub.Join(sp) {
			s.hub.TrackDisconnect(ip)
			conn.Close()
			return
		}

		go sp.WritePump()
		go sp.ReadPump()
	})

	return mux
}
