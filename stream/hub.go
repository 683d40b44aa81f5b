// Package stream pushes chain events to websocket subscribers. The hub
// fans every emitted event out to all connected clients; slow clients are
// dropped rather than allowed to stall block production.
package stream

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wingame/winchain/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// streamedTypes is every event a subscriber can observe over /events.
var streamedTypes = []events.EventType{
	events.EventBlockCommit,
	events.EventTransfer,
	events.EventTokenCreated,
	events.EventTokenTransfer,
	events.EventCompetitionCreated,
	events.EventCompetitionUpdated,
	events.EventCompetitionStarted,
	events.EventTicketSold,
	events.EventCompetitionClosed,
	events.EventCompetitionDrawn,
	events.EventCompetitionFinished,
	events.EventTicketClaimed,
	events.EventOracleUpdated,
}

// Hub maintains the set of active clients and broadcasts events to them.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	broadcast  chan events.Event
	register   chan *client
	unregister chan *client
	done       chan struct{}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan events.Event
}

// NewHub creates a hub wired to the emitter. Call Start to begin serving.
func NewHub(emitter *events.Emitter) *Hub {
	h := &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan events.Event, sendBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
	for _, typ := range streamedTypes {
		emitter.Subscribe(typ, h.onEvent)
	}
	return h
}

// Start begins the hub loop in a goroutine.
func (h *Hub) Start() {
	go h.run()
}

// Stop shuts the hub loop down and disconnects all clients.
func (h *Hub) Stop() {
	close(h.done)
}

// ClientCount reports how many subscribers are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// onEvent is the emitter callback. Emit runs on the consensus goroutine,
// so the event is queued instead of written inline; if the queue is full
// the event is dropped for streaming (state and indexes still have it).
func (h *Hub) onEvent(ev events.Event) {
	select {
	case h.broadcast <- ev:
	default:
		log.Printf("[stream] broadcast queue full, dropping %s", ev.Type)
	}
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("[stream] client connected, %d total", total)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- ev:
				default:
					// Send queue full, drop the client.
					go func(c *client) {
						select {
						case h.unregister <- c:
						case <-h.done:
						}
					}(c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[stream] upgrade failed: %v", err)
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan events.Event, sendBuffer)}
	h.register <- c
	go c.writePump()
	go c.readPump()
}

// readPump drains the connection so pings and close frames are processed.
// Subscribers only listen; inbound payloads are ignored.
func (c *client) readPump() {
	defer func() {
		// The hub loop may already be stopped; don't block on unregister.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
