package relay

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/sketchsync/internal/document"
	"github.com/eldtechnologies/sketchsync/internal/metrics"
	"github.com/eldtechnologies/sketchsync/internal/presence"
	"github.com/eldtechnologies/sketchsync/internal/protocol"
)

const maxFrameSize = 8 << 20 // image payloads ride inside deltas

// Room is the unit of isolation: a connection set, the relay's own
// replica of the document, and the live presence map. The replica
// exists only to answer late joiners' state-vector requests; it is
// discarded when the last connection leaves.
type Room struct {
	id       string
	registry *Registry
	logger   zerolog.Logger

	mu    sync.RWMutex
	conns map[*Conn]struct{}

	doc      *document.Document
	presence *presence.Tracker

	stopPrune chan struct{}
}

func newRoom(id string, registry *Registry, logger zerolog.Logger) *Room {
	r := &Room{
		id:        id,
		registry:  registry,
		logger:    logger.With().Str("room", id).Logger(),
		conns:     make(map[*Conn]struct{}),
		doc:       document.New("relay:" + id),
		presence:  presence.NewTracker(),
		stopPrune: make(chan struct{}),
	}
	go r.pruneLoop()
	return r
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// ConnCount returns the number of live connections.
func (r *Room) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Room) addConn(c *Conn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
}

// welcome runs once after a join: a new connection immediately learns
// who is here. The document catch-up waits for its state-vector request.
func (r *Room) welcome(c *Conn) {
	c.enqueue(protocol.EncodeAwarenessSnapshot(r.presence.Snapshot()))
	r.logger.Info().Str("client_id", c.clientID).Int("conns", r.ConnCount()).Msg("client joined")
}

// unregister synchronously removes a connection, drops its presence
// entry, and tears the room down if it was the last one. Idempotent;
// both pump exits funnel through here.
func (r *Room) unregister(c *Conn) {
	r.mu.Lock()
	if _, ok := r.conns[c]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, c)
	empty := len(r.conns) == 0
	r.mu.Unlock()

	c.close()
	metrics.ActiveConnections.Dec()

	if r.presence.Remove(c.clientID) && !empty {
		r.broadcastPresence()
	}
	r.logger.Info().Str("client_id", c.clientID).Msg("client left")

	if empty {
		r.registry.dropIfEmpty(r)
	}
}

func (r *Room) shutdown() {
	close(r.stopPrune)

	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[*Conn]struct{})
	r.mu.Unlock()

	for _, c := range conns {
		c.close()
		metrics.ActiveConnections.Dec()
	}
}

// handleFrame routes one inbound frame. Anything that fails to decode
// is dropped on the floor; a bad frame never disconnects its sender and
// never reaches other rooms.
func (r *Room) handleFrame(c *Conn, frame []byte) {
	msg, err := protocol.Decode(frame)
	if err != nil {
		metrics.MalformedFrames.Inc()
		r.logger.Debug().Err(err).Str("client_id", c.clientID).Msg("dropped malformed frame")
		return
	}

	switch msg.Kind {
	case protocol.KindSync:
		r.handleSync(c, msg, frame)
	case protocol.KindAwareness:
		r.handleAwareness(c, msg.Awareness)
	}
}

func (r *Room) handleSync(c *Conn, msg protocol.Message, frame []byte) {
	switch msg.SyncType {
	case protocol.SyncRequest:
		// Answer with everything the requester is missing, plus our own
		// state vector so it can push back what we lack.
		delta := r.doc.DeltaSince(msg.Sync.StateVector)
		c.enqueue(protocol.EncodeSyncReply(delta, r.doc.StateVector()))

	case protocol.SyncReply, protocol.SyncUpdate:
		if msg.Sync.Delta == nil || msg.Sync.Delta.Empty() {
			return
		}
		// Merge into the relay replica so later joiners see it, then
		// rebroadcast the encoded delta to every other connection.
		r.doc.ApplyRemote(*msg.Sync.Delta)
		r.broadcast(protocol.EncodeSyncUpdate(*msg.Sync.Delta), c)
		metrics.SyncMessagesRelayed.Inc()
	}
}

func (r *Room) handleAwareness(c *Conn, p *protocol.AwarenessPayload) {
	if p == nil || p.Snapshot {
		// Snapshots only flow relay -> client.
		return
	}
	// Presence is attributed to the connection, not to whatever id the
	// payload claims, so disconnect cleanup can never miss an entry.
	if r.presence.Apply(c.clientID, p.State) {
		r.broadcastPresence()
	}
}

// broadcastPresence sends the whole presence map to every connection.
// Consumers render "who is where" holistically; a removed client is
// simply absent from the next snapshot.
func (r *Room) broadcastPresence() {
	r.broadcast(protocol.EncodeAwarenessSnapshot(r.presence.Snapshot()), nil)
	metrics.AwarenessMessagesRelayed.Inc()
}

// broadcast enqueues a frame on every connection except the given one.
// Enqueueing never blocks; a backlogged peer is dropped by its own Conn.
func (r *Room) broadcast(frame []byte, except *Conn) {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		if c != except {
			conns = append(conns, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.enqueue(frame)
	}
}

// pruneLoop evicts presence entries whose clients stopped pinging
// without a clean disconnect (killed process, dead network).
func (r *Room) pruneLoop() {
	timeout := r.registry.presenceTimeout
	ticker := time.NewTicker(timeout / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := r.presence.Prune(timeout)
			if len(removed) > 0 {
				metrics.PresenceEntriesPruned.Add(float64(len(removed)))
				r.logger.Info().Strs("client_ids", removed).Msg("pruned stale presence entries")
				r.broadcastPresence()
			}
		case <-r.stopPrune:
			return
		}
	}
}
