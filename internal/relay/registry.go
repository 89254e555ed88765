// Package relay multiplexes many independent canvas rooms over one
// websocket listener. Each room serializes its own state behind its own
// locks; the registry lock only guards room membership, so traffic in
// one room never contends with another.
package relay

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/sketchsync/internal/metrics"
)

// DefaultPresenceTimeout evicts presence entries whose client neither
// pings nor disconnects cleanly. Deliberately configurable; 45s sits in
// the middle of the sensible 30-60s band.
const DefaultPresenceTimeout = 45 * time.Second

// DefaultSendBuffer is the per-connection outbound queue size.
const DefaultSendBuffer = 256

// Registry owns the live rooms of one relay instance. It is an explicit
// object, not a process-wide singleton, so tests can run several relays
// side by side.
type Registry struct {
	logger          zerolog.Logger
	presenceTimeout time.Duration
	sendBuffer      int
	upgrader        websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]*Room
}

// Option configures a Registry.
type Option func(*Registry)

// WithPresenceTimeout overrides the stale-presence liveness timeout.
func WithPresenceTimeout(d time.Duration) Option {
	return func(r *Registry) { r.presenceTimeout = d }
}

// WithSendBuffer overrides the per-connection outbound queue size.
func WithSendBuffer(n int) Option {
	return func(r *Registry) { r.sendBuffer = n }
}

// NewRegistry creates an empty room registry.
func NewRegistry(logger zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		logger:          logger,
		presenceTimeout: DefaultPresenceTimeout,
		sendBuffer:      DefaultSendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		rooms: make(map[string]*Room),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleWS upgrades one client connection and registers it in the room
// named in the URL. The room id is fixed for the connection's lifetime.
func (reg *Registry) HandleWS(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room")
	if roomID == "" {
		http.Error(w, "room id required", http.StatusBadRequest)
		return
	}

	clientID := r.URL.Query().Get("client")
	if clientID == "" {
		clientID = uuid.New().String()
	}

	ws, err := reg.upgrader.Upgrade(w, r, nil)
	if err != nil {
		reg.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	room, conn := reg.join(roomID, ws, clientID)

	metrics.ConnectionsOpened.Inc()
	metrics.ActiveConnections.Inc()

	room.welcome(conn)
	go conn.writePump()
	go conn.readPump()
}

// join registers a new connection in the named room, creating the room
// on first join. Membership changes happen under the registry lock so a
// join can never slip into a room that dropIfEmpty is discarding.
func (reg *Registry) join(id string, ws *websocket.Conn, clientID string) (*Room, *Conn) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[id]
	if !ok {
		room = newRoom(id, reg, reg.logger)
		reg.rooms[id] = room
		metrics.ActiveRooms.Inc()
		reg.logger.Info().Str("room", id).Msg("room created")
	}
	conn := newConn(room, ws, clientID, reg.sendBuffer, reg.logger)
	room.addConn(conn)
	return room, conn
}

// dropIfEmpty discards a room's replica and presence once its last
// connection has left. Checked under the registry lock so a concurrent
// join either finds the room alive or creates a fresh one.
func (reg *Registry) dropIfEmpty(room *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if room.ConnCount() > 0 {
		return
	}
	if current, ok := reg.rooms[room.id]; !ok || current != room {
		return
	}
	delete(reg.rooms, room.id)
	close(room.stopPrune)
	metrics.ActiveRooms.Dec()
	reg.logger.Info().Str("room", room.id).Msg("room discarded")
}

// Rooms returns a snapshot of live room ids and their connection counts.
func (reg *Registry) Rooms() map[string]int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make(map[string]int, len(reg.rooms))
	for id, room := range reg.rooms {
		out[id] = room.ConnCount()
	}
	return out
}

// Close tears down every room and its connections, for shutdown.
func (reg *Registry) Close() {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.rooms = make(map[string]*Room)
	reg.mu.Unlock()

	for _, room := range rooms {
		room.shutdown()
		metrics.ActiveRooms.Dec()
	}
}
