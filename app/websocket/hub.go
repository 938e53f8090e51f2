package websocket

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

// MessageType classifies hub messages.
type MessageType string

const (
	TypeFiscalStatus MessageType = "fiscal_status"
	TypeHeartbeat    MessageType = "heartbeat"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Message is the wire envelope pushed to connected displays.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// StatusEvent is the payload of a fiscal_status message.
type StatusEvent struct {
	Kind   string `json:"kind"` // sale or credit_note
	ID     uint   `json:"id"`
	Status string `json:"status"`
}

// Client is one connected display.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub broadcasts fiscal status transitions to cashier and back-office
// displays on the local network, and optionally announces itself over mDNS
// so displays can find the server without configuration.
type Hub struct {
	clients    map[string]*Client
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
	log        *zap.Logger

	mdns *zeroconf.Server
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Displays connect from the local network only.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run is the hub loop. Start it once in its own goroutine.
func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.log.Info("display connected", zap.String("client_id", client.id))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			h.log.Info("display disconnected", zap.String("client_id", client.id))

		case payload := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- payload:
				default:
					// Slow consumer, drop it.
					delete(h.clients, id)
					close(client.send)
				}
			}
			h.mu.Unlock()

		case <-ticker.C:
			h.send(Message{Type: TypeHeartbeat, Timestamp: time.Now().UTC()})
		}
	}
}

// NotifyStatus pushes a fiscal status transition to every connected
// display. Satisfies the fiscal engine's notifier interface.
func (h *Hub) NotifyStatus(kind string, id uint, status string) {
	data, err := json.Marshal(StatusEvent{Kind: kind, ID: id, Status: status})
	if err != nil {
		return
	}
	h.send(Message{Type: TypeFiscalStatus, Timestamp: time.Now().UTC(), Data: data})
}

func (h *Hub) send(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.log.Warn("broadcast buffer full, dropping message", zap.String("type", string(msg.Type)))
	}
}

// ServeWS upgrades an HTTP request into a hub connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{
		id:   newClientID(),
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
	h.register <- client
	go client.writePump()
	go client.readPump()
}

// Announce registers the hub on the local network over mDNS so displays can
// discover it by service type alone.
func (h *Hub) Announce(instance string, port int) error {
	server, err := zeroconf.Register(
		instance,
		"_posfiscal._tcp",
		"local.",
		port,
		[]string{"version=1.0"},
		nil,
	)
	if err != nil {
		return err
	}
	h.mdns = server
	h.log.Info("mdns announcement started",
		zap.String("instance", instance),
		zap.Int("port", port))
	return nil
}

// Shutdown closes every connection and stops the mDNS announcement.
func (h *Hub) Shutdown() {
	if h.mdns != nil {
		h.mdns.Shutdown()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.send)
		client.conn.Close()
	}
}

// ClientCount reports connected displays, for the health endpoint.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Displays are push only; inbound frames just keep the connection
	// alive.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket read", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

func newClientID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(buf)
}
