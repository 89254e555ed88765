// Package sketchsync provides a Go client for the sketchsync relay: a
// local replica of a room's canvas document, a sync channel to the
// relay, awareness pings, and an offline bootstrap cache.
package sketchsync

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/sketchsync/internal/cache"
	"github.com/eldtechnologies/sketchsync/internal/document"
	"github.com/eldtechnologies/sketchsync/internal/models"
	"github.com/eldtechnologies/sketchsync/internal/protocol"
	"github.com/eldtechnologies/sketchsync/internal/render"
)

// Options configures a Client.
type Options struct {
	// ServerURL is the relay base URL, e.g. "ws://localhost:8080".
	ServerURL string
	// Room is the opaque room identifier to join.
	Room string
	// ClientID identifies this client to peers; a fresh UUID if empty.
	ClientID string
	// User is the display identity carried in awareness pings.
	User string
	// Cache, if non-nil, is used to bootstrap the document before the
	// first sync reply and to persist snapshots on demand.
	Cache *cache.Cache
	// Logger defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Client is one replica of a room's shared canvas, connected to a relay.
type Client struct {
	opts   Options
	logger zerolog.Logger

	doc *document.Document

	mu        sync.RWMutex
	conn      *websocket.Conn
	awareness map[string]models.AwarenessState
	connected bool

	writeMu   sync.Mutex
	send      chan []byte
	done      chan struct{}
	synced    chan struct{}
	syncOnce  sync.Once
	closeOnce sync.Once

	// OnAwareness fires with the full presence snapshot on every
	// awareness broadcast.
	OnAwareness func(map[string]models.AwarenessState)
	// OnChange fires on every locally-visible document change.
	OnChange func(document.Change)
	// OnDisconnect fires once when the sync channel goes down.
	OnDisconnect func(error)
}

// New creates a client replica for the given room. It does not connect;
// the document is usable (and mutable) offline immediately.
func New(opts Options) *Client {
	if opts.ClientID == "" {
		opts.ClientID = uuid.New().String()
	}
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	c := &Client{
		opts:      opts,
		logger:    logger.With().Str("room", opts.Room).Str("client_id", opts.ClientID).Logger(),
		doc:       document.New(opts.ClientID),
		awareness: make(map[string]models.AwarenessState),
		send:      make(chan []byte, 64),
		done:      make(chan struct{}),
		synced:    make(chan struct{}),
	}
	c.doc.Subscribe(func(ch document.Change) {
		if c.OnChange != nil {
			c.OnChange(ch)
		}
	})
	return c
}

// Document returns the underlying replica.
func (c *Client) Document() *document.Document { return c.doc }

// ClientID returns this client's id.
func (c *Client) ClientID() string { return c.opts.ClientID }

// Connect bootstraps from the local cache (if configured), dials the
// relay, performs the sync handshake, and waits for the first reply.
// The wait is bounded only by ctx; cancelling it abandons the bootstrap
// and tears the connection down. Reconnecting means creating a fresh
// client for the room and connecting again; the handshake restarts from
// scratch and converges through the usual merge rules.
func (c *Client) Connect(ctx context.Context) error {
	if c.opts.Cache != nil {
		if state, ok, err := c.opts.Cache.Load(ctx, c.opts.Room); err != nil {
			// Cache trouble never blocks a session; run from memory.
			c.logger.Warn().Err(err).Msg("cache load failed, starting empty")
		} else if ok {
			if err := c.doc.Import(state); err != nil {
				c.logger.Warn().Err(err).Msg("cached snapshot unreadable, starting empty")
			} else {
				c.logger.Info().Msg("bootstrapped from local cache")
			}
		}
	}

	u, err := url.Parse(c.opts.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	u.Path = "/ws/" + c.opts.Room
	u.RawQuery = url.Values{"client": {c.opts.ClientID}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.writeLoop(conn)
	go c.readLoop(conn)

	// Handshake: tell the relay what we already have.
	c.enqueue(protocol.EncodeSyncRequest(c.doc.StateVector()))

	select {
	case <-c.synced:
		return nil
	case <-c.done:
		return fmt.Errorf("connection closed during sync handshake")
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	}
}

// Connected reports whether the sync channel is up.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	case <-c.done:
	}
}

func (c *Client) writeLoop(conn *websocket.Conn) {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(conn, websocket.BinaryMessage, frame); err != nil {
				c.teardown(err)
				return
			}
		case <-c.done:
			return
		}
	}
}

// write serializes wire writes; gorilla connections allow one writer.
func (c *Client) write(conn *websocket.Conn, messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(messageType, data)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		mt, frame, err := conn.ReadMessage()
		if err != nil {
			c.teardown(err)
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		msg, err := protocol.Decode(frame)
		if err != nil {
			// Protocol violations are dropped, never fatal.
			c.logger.Debug().Err(err).Msg("dropped malformed frame")
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg protocol.Message) {
	switch msg.Kind {
	case protocol.KindSync:
		switch msg.SyncType {
		case protocol.SyncReply:
			if msg.Sync.Delta != nil {
				c.doc.ApplyRemote(*msg.Sync.Delta)
			}
			// The reply carries the relay's state vector (absent means
			// it holds nothing); push back whatever it is missing --
			// offline edits, cache-bootstrapped state.
			if back := c.doc.DeltaSince(msg.Sync.StateVector); !back.Empty() {
				c.enqueue(protocol.EncodeSyncUpdate(back))
			}
			c.syncOnce.Do(func() { close(c.synced) })
		case protocol.SyncUpdate:
			if msg.Sync.Delta != nil {
				c.doc.ApplyRemote(*msg.Sync.Delta)
			}
		case protocol.SyncRequest:
			// Peers never request directly from us; the relay answers.
		}
	case protocol.KindAwareness:
		if msg.Awareness == nil || !msg.Awareness.Snapshot {
			return
		}
		c.mu.Lock()
		c.awareness = msg.Awareness.States
		c.mu.Unlock()
		if c.OnAwareness != nil {
			c.OnAwareness(msg.Awareness.States)
		}
	}
}

func (c *Client) teardown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.connected = false
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		close(c.done)
		if c.OnDisconnect != nil {
			c.OnDisconnect(err)
		}
	})
}

// broadcast sends a delta produced by a local mutation, if connected.
// Offline mutations stay in the replica and flow out after the next
// Connect handshake.
func (c *Client) broadcast(delta document.Delta) {
	if !c.Connected() {
		return
	}
	c.enqueue(protocol.EncodeSyncUpdate(delta))
}

// Append inserts an arbitrary drawing operation.
func (c *Client) Append(op models.DrawingOperation) {
	if op.UserID == "" {
		op.UserID = c.opts.User
	}
	c.broadcast(c.doc.AppendOperation(op))
}

// Draw appends one freehand point operation belonging to a stroke.
func (c *Client) Draw(strokeID string, state models.StrokeState, p models.Point, middle []models.Point, color string, brushSize float64) {
	c.Append(models.DrawingOperation{
		Type:         models.OpDraw,
		Tool:         "brush",
		X:            p.X,
		Y:            p.Y,
		MiddlePoints: middle,
		Color:        color,
		BrushSize:    brushSize,
		StrokeID:     strokeID,
		StrokeState:  state,
	})
}

// Clear wipes the rendered scene. Everything at or before the clear
// stops contributing to the render plan; the background survives.
func (c *Client) Clear() {
	c.broadcast(c.doc.Clear(c.opts.User))
}

// AddObject places a shape, text block, or image and returns its id.
func (c *Client) AddObject(obj models.CanvasObject) string {
	if obj.UserID == "" {
		obj.UserID = c.opts.User
	}
	delta := c.doc.PutObject(obj)
	c.broadcast(delta)
	return delta.Objects[0].ID
}

// UpdateObject replaces an object record in full (last write wins).
func (c *Client) UpdateObject(obj models.CanvasObject) {
	c.broadcast(c.doc.PutObject(obj))
}

// RemoveObject deletes a placed object.
func (c *Client) RemoveObject(id string) {
	c.broadcast(c.doc.RemoveObject(id))
}

// SetBackground atomically replaces the room's background image.
func (c *Client) SetBackground(dataURL string, x, y, scale float64) {
	c.broadcast(c.doc.SetBackground(dataURL, x, y, scale))
}

// Ping publishes this client's presence: cursor, selection, activity.
func (c *Client) Ping(cursor *models.Point, selection *models.Rect, isDrawing bool) {
	if !c.Connected() {
		return
	}
	state := &models.AwarenessState{
		User:      c.opts.User,
		Cursor:    cursor,
		Selection: selection,
		IsDrawing: isDrawing,
	}
	c.enqueue(protocol.EncodeAwarenessUpdate(c.opts.ClientID, state))
}

// Awareness returns the latest presence snapshot received.
func (c *Client) Awareness() map[string]models.AwarenessState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := make(map[string]models.AwarenessState, len(c.awareness))
	for id, s := range c.awareness {
		snap[id] = s
	}
	return snap
}

// RenderPlan reconciles the current replica into the canonical scene.
func (c *Client) RenderPlan() render.Plan {
	return render.Reconcile(c.doc.Snapshot())
}

// Save persists the current document snapshot to the local cache, for
// example before navigating away. No-op without a cache.
func (c *Client) Save(ctx context.Context) error {
	if c.opts.Cache == nil {
		return nil
	}
	state, err := c.doc.Export()
	if err != nil {
		return err
	}
	return c.opts.Cache.Save(ctx, c.opts.Room, state)
}

// Close announces departure and tears down the sync channel. The local
// replica stays readable.
func (c *Client) Close() {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if connected && conn != nil {
		// Best effort: peers will also learn via the relay's disconnect
		// cleanup if these frames never arrive.
		_ = c.write(conn, websocket.BinaryMessage, protocol.EncodeAwarenessUpdate(c.opts.ClientID, nil))
		_ = c.write(conn, websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
	c.teardown(nil)
}
