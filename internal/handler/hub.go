package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lazyscout/lazyscout/internal/events"
	"github.com/lazyscout/lazyscout/pkg/utils"
)

// eventHub fans queue lifecycle events out to every connected admin
// WebSocket client. Simplified from the teacher's BroadcastManager: no
// geohash grouping is needed since every admin client wants the full
// stream, just the same register/unregister channel discipline and
// per-client bounded send buffer that drops on backpressure.
type eventHub struct {
	clients    map[*wsClient]struct{}
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan events.Event
	logger     *utils.Logger
	mu         sync.RWMutex
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newEventHub(logger *utils.Logger) *eventHub {
	h := &eventHub{
		clients:    make(map[*wsClient]struct{}),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan events.Event, 256),
		logger:     logger,
	}
	go h.run()
	return h
}

// Publish implements events.Sink. Never blocks: a full broadcast
// channel means a burst under heavy load, and the event is dropped
// rather than stalling the publishing component.
func (h *eventHub) Publish(e events.Event) {
	select {
	case h.broadcast <- e:
	default:
		h.logger.Warn("admin event stream backlog full, dropping event")
	}
}

func (h *eventHub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case e := <-h.broadcast:
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					h.logger.Debug("admin ws client send buffer full, dropping event")
				}
			}
			h.mu.RUnlock()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (h *eventHub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithField("error", err.Error()).Warn("admin ws upgrade failed")
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 64)}
	h.register <- client

	go h.writePump(client)
	go h.readPump(client)
}

// readPump exists only to notice the client disconnecting; the admin
// stream is send-only, so any inbound message is ignored.
func (h *eventHub) readPump(c *wsClient) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *eventHub) writePump(c *wsClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
