package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the client.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the client.
	pongWait = 60 * time.Second

	// Send pings to client with this period. Must be less than pongWait.
	pingPeriod = 15 * time.Second

	// Maximum message size allowed from client.
	maxMessageSize = 4096

	// Outbound frames buffered per connection before sends start dropping.
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// conn is one live websocket connection. Its id keys the session registry.
type conn struct {
	id string
	ws *websocket.Conn

	mtx    sync.Mutex
	out    chan []byte
	closed bool
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{
		id:  uuid.New().String(),
		ws:  ws,
		out: make(chan []byte, sendBuffer),
	}
}

// send enqueues a JSON reply. Best effort: a closed connection or a full
// buffer drops the frame rather than blocking the caller.
func (c *conn) send(r *Reply) {
	b, err := json.Marshal(r)
	if err != nil {
		log.Printf("[server] encode reply: %v", err)
		return
	}
	c.enqueue(b)
}

// sendText enqueues a plain text frame.
func (c *conn) sendText(text string) {
	c.enqueue([]byte(text))
}

func (c *conn) enqueue(frame []byte) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.closed {
		return
	}
	select {
	case c.out <- frame:
	default:
	}
}

// close stops the outbound side. The write pump flushes already queued
// frames, emits a close frame and closes the socket, so anything enqueued
// before close is delivered first.
func (c *conn) close() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.out)
}

// writePump drains the outbound buffer onto the socket and keeps the
// connection alive with pings. One per connection.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades the request and runs the connection until it closes.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	if s.closing() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[server] upgrade: %v", err)
		return
	}

	c := newConn(ws)
	s.addConn(c)
	connectionsOpen.Inc()
	log.Printf("[server] client connected (%s)", c.id)

	go c.writePump()
	s.readPump(c)
}

// readPump reads inbound envelopes and dispatches them strictly in
// arrival order: the next read does not start until the current message,
// including any backend call it awaits, has completed.
func (s *Server) readPump(c *conn) {
	defer func() {
		c.close()
		s.removeConn(c)
		connectionsOpen.Dec()
		s.handleDisconnect(c)
		log.Printf("[server] client disconnected (%s)", c.id)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { c.ws.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("[server] read: %v", err)
			}
			return
		}
		s.dispatch(c, raw)
	}
}
