package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"

	"github.com/ethereum-optimism/infra/op-explorer/metrics"
	"github.com/ethereum-optimism/infra/op-explorer/notify"
	"github.com/ethereum-optimism/infra/op-explorer/tree"
	"github.com/ethereum-optimism/infra/op-explorer/types"
)

const (
	defaultWSWriteTimeout = 10 * time.Second
	defaultWSPingInterval = 30 * time.Second
	clientBufferSize      = 256
)

// ChangeMessage is pushed to websocket clients for every change event.
type ChangeMessage struct {
	Property string           `json:"property"`
	Source   string           `json:"source"`
	Path     string           `json:"path,omitempty"`
	State    *types.TestState `json:"state,omitempty"`
}

// NewChangeMessage describes an event. It reads the node it refers to, so it
// must be called where the event is raised.
func NewChangeMessage(e notify.Event) ChangeMessage {
	msg := ChangeMessage{Property: e.Property, Source: "explorer"}
	if n, ok := e.Source.(*tree.Node); ok {
		msg.Source = "node"
		msg.Path = n.Path()
		if e.Property == notify.PropState {
			s := n.State()
			msg.State = &s
		}
	}
	return msg
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans change events out to websocket clients. A client that cannot keep
// up loses events rather than stalling the explorer.
type Hub struct {
	log      log.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
	wg      sync.WaitGroup
}

func NewHub(logger log.Logger, allowAllOrigins bool) *Hub {
	h := &Hub{
		log:     logger,
		clients: make(map[*wsClient]struct{}),
	}
	// Enable to support browser websocket connections.
	if allowAllOrigins {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	}
	return h
}

func (h *Hub) Notify(e notify.Event) {
	h.mu.Lock()
	if len(h.clients) == 0 {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	msg, err := json.Marshal(NewChangeMessage(e))
	if err != nil {
		h.log.Error("Failed to encode change event", "err", err)
		return
	}
	h.broadcast(msg)
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			metrics.RecordError("ws_event_dropped")
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "err", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, clientBufferSize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.wg.Add(2)
	h.mu.Unlock()
	metrics.SetWebsocketClients(n)
	h.log.Debug("Websocket client connected", "remote", r.RemoteAddr, "clients", n)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetWebsocketClients(n)
}

// readPump discards client messages and notices disconnects.
func (h *Hub) readPump(c *wsClient) {
	defer h.wg.Done()
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	defer h.wg.Done()
	ticker := time.NewTicker(defaultWSPingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(defaultWSWriteTimeout)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug("Websocket write failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(defaultWSWriteTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
		_ = c.conn.Close()
	}
	h.wg.Wait()
}

var _ notify.Notifier = (*Hub)(nil)
