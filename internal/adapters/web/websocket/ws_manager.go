package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/lcalzada-xor/nethealth/internal/adapters/web/middleware"
	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/lcalzada-xor/nethealth/internal/core/services/eventbus"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

// Message is the envelope written to clients.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// LatestReader provides the snapshot sent to clients on connect.
type LatestReader interface {
	Latest() (domain.Snapshot, bool)
}

type client struct {
	conn   *gws.Conn
	name   string
	topics map[string]bool
	send   chan []byte
	once   sync.Once
}

func (c *client) wants(topic string) bool {
	return len(c.topics) == 0 || c.topics[topic]
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// WSManager streams bus topics to websocket clients. It implements
// ports.Subscriber; delivery never blocks the publisher, a client whose
// buffer is full is disconnected.
type WSManager struct {
	latest   LatestReader
	upgrader gws.Upgrader
	clients  map[*client]struct{}
	mu       sync.Mutex
}

// NewWSManager creates a manager accepting the given origins. An empty list
// accepts same-origin requests only.
func NewWSManager(latest LatestReader, allowedOrigins []string) *WSManager {
	m := &WSManager{
		latest:  latest,
		clients: make(map[*client]struct{}),
	}
	m.upgrader = gws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			log.Printf("[WS] Rejected origin: %s", origin)
			return false
		},
	}
	return m
}

// HandleWebSocket upgrades the request. The optional "topics" query
// parameter is a comma-separated list of topics to receive.
func (m *WSManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	name, ok := middleware.ClientFromContext(r.Context())
	if !ok {
		name = r.RemoteAddr
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	c := &client{
		conn:   conn,
		name:   name,
		topics: parseTopics(r.URL.Query().Get("topics")),
		send:   make(chan []byte, sendBuffer),
	}

	if m.latest != nil && c.wants(string(eventbus.TopicMetrics)) {
		if snap, ok := m.latest.Latest(); ok {
			if data, err := encode(eventbus.TopicMetrics, snap); err == nil {
				c.send <- data
			}
		}
	}

	m.mu.Lock()
	m.clients[c] = struct{}{}
	m.mu.Unlock()

	log.Printf("[WS] Connected: client=%s", c.name)

	go m.writePump(c)
	go m.readPump(c)
}

func parseTopics(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	topics := make(map[string]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics[t] = true
		}
	}
	return topics
}

func (m *WSManager) remove(c *client) {
	m.mu.Lock()
	_, ok := m.clients[c]
	delete(m.clients, c)
	m.mu.Unlock()

	c.close()
	if ok {
		log.Printf("[WS] Disconnected: client=%s", c.name)
	}
}

// readPump drains client frames so control messages are processed.
func (m *WSManager) readPump(c *client) {
	defer m.remove(c)

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (m *WSManager) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(gws.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(gws.TextMessage, data); err != nil {
				m.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(gws.PingMessage, nil); err != nil {
				m.remove(c)
				return
			}
		}
	}
}

func encode(topic eventbus.Topic, payload any) ([]byte, error) {
	return json.Marshal(Message{Type: string(topic), Payload: payload})
}

func (m *WSManager) broadcast(topic eventbus.Topic, payload any) error {
	data, err := encode(topic, payload)
	if err != nil {
		return err
	}

	var slow []*client
	m.mu.Lock()
	for c := range m.clients {
		if !c.wants(string(topic)) {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	m.mu.Unlock()

	for _, c := range slow {
		log.Printf("[WS] Dropping slow client=%s", c.name)
		m.remove(c)
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (m *WSManager) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// CloseAll disconnects every client.
func (m *WSManager) CloseAll() {
	m.mu.Lock()
	clients := make([]*client, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()

	for _, c := range clients {
		m.remove(c)
	}
}

func (m *WSManager) OnMetrics(snap domain.Snapshot) error {
	return m.broadcast(eventbus.TopicMetrics, snap)
}

func (m *WSManager) OnTopology(diff domain.TopologyDiff) error {
	return m.broadcast(eventbus.TopicTopology, diff)
}

func (m *WSManager) OnDevices(devices []domain.DeviceRecord) error {
	return m.broadcast(eventbus.TopicDevices, devices)
}

func (m *WSManager) OnAlert(ev domain.IntrusionEvent) error {
	return m.broadcast(eventbus.TopicAlerts, ev)
}
