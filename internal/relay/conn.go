package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/sketchsync/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Conn is one client connection registered in a room. Outbound frames
// go through a bounded send queue so a slow peer can never stall the
// room; on overflow the connection is dropped, not the broadcast.
type Conn struct {
	clientID  string
	room      *Room
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    zerolog.Logger
}

func newConn(room *Room, ws *websocket.Conn, clientID string, sendBuffer int, logger zerolog.Logger) *Conn {
	return &Conn{
		clientID: clientID,
		room:     room,
		ws:       ws,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		logger:   logger.With().Str("client_id", clientID).Logger(),
	}
}

// enqueue hands a frame to the write pump without ever blocking. A full
// queue means the peer cannot keep up; we drop the connection and let
// it resync on reconnect. Enqueueing to a closed connection is a no-op.
func (c *Conn) enqueue(frame []byte) {
	select {
	case <-c.done:
	case c.send <- frame:
	default:
		metrics.SlowConsumersDropped.Inc()
		c.logger.Warn().Msg("send queue full, dropping connection")
		c.close()
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump reads frames off the wire and hands them to the room until
// the connection dies. Malformed frames are dropped inside handleFrame;
// only a transport error ends the loop.
func (c *Conn) readPump() {
	defer func() {
		c.room.unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, frame, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		c.room.handleFrame(c, frame)
	}
}

// writePump drains the send queue onto the wire, interleaving protocol
// pings. It exits when the connection is closed or a write fails.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}
