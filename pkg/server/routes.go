// Package server exposes the relay over HTTP: the WebSocket endpoints that
// feed relay sessions plus the small JSON API around them.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/nikhilsahni7/signal-relay/pkg/access"
	"github.com/nikhilsahni7/signal-relay/pkg/config"
	"github.com/nikhilsahni7/signal-relay/pkg/metrics"
	"github.com/nikhilsahni7/signal-relay/pkg/signaling"
	"github.com/nikhilsahni7/signal-relay/pkg/util"
)

// Server owns the HTTP routes and tracks running sessions so they can be
// closed on shutdown.
type Server struct {
	cfg       config.Config
	hub       *signaling.Hub
	validator access.Validator
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	upgrader  websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires a server around hub. If reg is nil a private registry is used.
func New(cfg config.Config, hub *signaling.Hub, validator access.Validator, m *metrics.Metrics, reg *prometheus.Registry) *Server {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg,
		hub:       hub,
		validator: validator,
		metrics:   m,
		gatherer:  reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are enforced by the CORS layer for the JSON API;
			// WebSocket clients are allowed from anywhere.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handler returns the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/rooms", s.handleRooms)
	mux.HandleFunc("GET /api/ice-servers", s.handleICEServers)
	mux.HandleFunc("POST /validate-room-code", s.handleValidateRoomCode)
	mux.HandleFunc("GET /ws/{roomCode}", s.handleWebSocket)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.Handle("GET /metrics", metrics.Handler(s.gatherer))

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllow,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           86400,
	})
	return c.Handler(mux)
}

// Close ends every running session and waits for them to leave their rooms.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	util.Debug("Health check requested from %s", r.RemoteAddr)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	rooms := s.hub.Rooms()
	util.Debug("Returned %d active rooms to %s", len(rooms), r.RemoteAddr)
	writeJSON(w, http.StatusOK, rooms)
}

func (s *Server) handleICEServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.PeerConnectionICEServers())
}

type roomCodeRequest struct {
	RoomCode string `json:"room_code"`
}

func (s *Server) handleValidateRoomCode(w http.ResponseWriter, r *http.Request) {
	var req roomCodeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Invalid request body"})
		return
	}
	if !s.validator.Valid(req.RoomCode) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Invalid room code"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

// handleWebSocket upgrades a validated join request and runs its relay
// session until the connection ends.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomCode")
	if roomID == "" {
		roomID = r.URL.Query().Get("roomId")
	}
	if !s.validator.Valid(roomID) {
		util.Warn("Rejected join for room %q from %s", roomID, r.RemoteAddr)
		http.Error(w, "invalid room code", http.StatusForbidden)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.Error("Error upgrading to WebSocket: %v", err)
		return
	}

	client := signaling.NewClient(conn, signaling.ClientConfig{
		WriteWait:      s.cfg.WriteWait,
		PongWait:       s.cfg.PongWait,
		MaxMessageSize: s.cfg.MaxMessageBytes,
		SendBuffer:     s.cfg.SendBuffer,
	})
	util.Info("WebSocket connection established: client %s for room %s from %s", client.ID(), roomID, r.RemoteAddr)

	session := signaling.NewSession(s.hub, client, roomID, signaling.SessionOptions{
		ExcludeSender: s.cfg.ExcludeSender,
		RateLimit:     rate.Limit(s.cfg.MaxMessagesPerSecond),
		Observer:      signaling.LogObserver,
		Metrics:       s.metrics,
	})

	// The session outlives the upgrade request, so it is bound to the
	// server's lifetime rather than r.Context().
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := session.Run(s.ctx); err != nil {
			util.Warn("Session for client %s in room %s ended: %v", client.ID(), roomID, err)
		}
		<-client.Done()
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		util.Error("Error encoding response: %v", err)
	}
}
