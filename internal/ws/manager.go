// Package ws tracks browser WebSocket connections per tenant and fans
// messages out to them, locally or across instances through Redis.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fleetwatch/internal/logging"
	"fleetwatch/internal/models"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	sendBufSize  = 16

	// MaxConnectionsPerUser caps concurrent sockets for one user.
	MaxConnectionsPerUser = 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one connected socket.
type Client struct {
	TenantID string
	UserID   string

	conn *websocket.Conn
	send chan []byte
}

// Manager holds the sockets connected to this instance.
type Manager struct {
	logger *logging.Logger

	mu      sync.RWMutex
	tenants map[string]map[*Client]struct{}
}

func NewManager(logger *logging.Logger) *Manager {
	return &Manager{
		logger:  logger,
		tenants: make(map[string]map[*Client]struct{}),
	}
}

func normalizeTenant(tenantID string) string {
	if tenantID == "" {
		return models.DefaultTenant
	}
	return tenantID
}

// Connect registers conn and starts its write pump. It returns nil when the
// user already has MaxConnectionsPerUser sockets open; conn is then closed.
func (m *Manager) Connect(conn *websocket.Conn, tenantID, userID string) *Client {
	tenantID = normalizeTenant(tenantID)
	c := &Client{
		TenantID: tenantID,
		UserID:   userID,
		conn:     conn,
		send:     make(chan []byte, sendBufSize),
	}

	m.mu.Lock()
	clients, ok := m.tenants[tenantID]
	if !ok {
		clients = make(map[*Client]struct{})
		m.tenants[tenantID] = clients
	}
	if userID != "" {
		n := 0
		for other := range clients {
			if other.UserID == userID {
				n++
			}
		}
		if n >= MaxConnectionsPerUser {
			m.mu.Unlock()
			m.logger.Warnf("Max connections reached for user %s in tenant %s", userID, tenantID)
			_ = conn.Close()
			return nil
		}
	}
	clients[c] = struct{}{}
	total := len(clients)
	m.mu.Unlock()

	go c.writePump()
	m.logger.Infof("Added WebSocket connection for tenant %s (total: %d)", tenantID, total)
	return c
}

// Disconnect removes c and closes its socket. Safe to call more than once.
func (m *Manager) Disconnect(c *Client) {
	m.mu.Lock()
	clients, ok := m.tenants[c.TenantID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if _, ok := clients[c]; !ok {
		m.mu.Unlock()
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(m.tenants, c.TenantID)
	}
	remaining := len(clients)
	m.mu.Unlock()

	m.logger.Infof("Removed WebSocket connection for tenant %s (remaining: %d)", c.TenantID, remaining)
}

// Send queues message for one client.
func (m *Manager) Send(c *Client, message []byte) bool {
	m.mu.RLock()
	_, ok := m.tenants[c.TenantID][c]
	if ok {
		select {
		case c.send <- message:
		default:
			ok = false
		}
	}
	m.mu.RUnlock()
	if !ok {
		m.Disconnect(c)
	}
	return ok
}

// SendToUser queues message for every socket of userID and returns how many
// sockets it was queued on.
func (m *Manager) SendToUser(tenantID, userID string, message []byte) int {
	n := 0
	for _, c := range m.snapshot(normalizeTenant(tenantID)) {
		if c.UserID == userID && m.Send(c, message) {
			n++
		}
	}
	return n
}

// Broadcast queues message for every socket of the tenant on this instance.
// Clients whose buffer is full are disconnected.
func (m *Manager) Broadcast(_ context.Context, message []byte, tenantID string) error {
	for _, c := range m.snapshot(normalizeTenant(tenantID)) {
		m.Send(c, message)
	}
	return nil
}

// Count returns the number of sockets connected for tenantID.
func (m *Manager) Count(tenantID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tenants[normalizeTenant(tenantID)])
}

// CloseAll disconnects every client.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tenant, clients := range m.tenants {
		for c := range clients {
			close(c.send)
		}
		delete(m.tenants, tenant)
	}
}

func (m *Manager) snapshot(tenantID string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Client, 0, len(m.tenants[tenantID]))
	for c := range m.tenants[tenantID] {
		out = append(out, c)
	}
	return out
}

// ServeWS upgrades the request and serves the socket until it closes.
func (m *Manager) ServeWS(w http.ResponseWriter, r *http.Request, tenantID, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warnf("WebSocket upgrade failed: %v", err)
		return
	}
	c := m.Connect(conn, tenantID, userID)
	if c == nil {
		return
	}
	defer m.Disconnect(c)
	c.readPump()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames and returns when the socket closes.
func (c *Client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
