package ws

import (
	"sort"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn serializes writes to one websocket connection.
type Conn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *Conn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

// Manager keeps track of the ingestion connection of each server.
type Manager struct {
	mu          sync.RWMutex
	connections map[string]*Conn // server ULID -> conn
}

func NewManager() *Manager {
	return &Manager{connections: make(map[string]*Conn)}
}

// Register records conn as the connection of serverULID, closing the one it
// replaces.
func (m *Manager) Register(serverULID string, conn *websocket.Conn) *Conn {
	c := &Conn{conn: conn}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.connections[serverULID]; ok {
		_ = old.Close()
	}
	m.connections[serverULID] = c
	return c
}

// Unregister removes c if it is still the registered connection.
func (m *Manager) Unregister(serverULID string, c *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.connections[serverULID]; ok && cur == c {
		delete(m.connections, serverULID)
	}
	_ = c.Close()
}

func (m *Manager) IsConnected(serverULID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.connections[serverULID]
	return ok
}

// List returns the connected server ULIDs in order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.connections))
	for id := range m.connections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
