package tcp

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ConnectionInfo is a read-only view of one live connection
type ConnectionInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
	Messages    int64     `json:"messages"`
}

// ConnectionManager tracks live connections so the server can report on them
// and close them on shutdown. Handlers never look each other up through it.
type ConnectionManager struct {
	clients map[string]*ClientConnection
	// key: client ID, value: ClientConnection pointer
	mu              sync.RWMutex // read-write mutex for concurrent access
	logger          *slog.Logger
	retiredMessages int64 // messages answered by connections already removed
}

// constructor for ConnectionManager
func NewConnectionManager(logger *slog.Logger) *ConnectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionManager{
		clients: make(map[string]*ClientConnection),
		logger:  logger,
	}
}

func (m *ConnectionManager) AddConnection(client *ClientConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[client.ID] = client
	m.logger.Debug("client_added",
		"client_id", client.ID,
		"remote_addr", client.RemoteAddr,
		"active", len(m.clients),
	)
}

func (m *ConnectionManager) RemoveConnection(client *ClientConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[client.ID]; !ok {
		return
	}
	delete(m.clients, client.ID)
	m.retiredMessages += client.Messages()
	m.logger.Debug("client_removed",
		"client_id", client.ID,
		"active", len(m.clients),
	)
}

// CloseAllConnections closes every live connection; their handlers notice on
// the next read and remove themselves
func (m *ConnectionManager) CloseAllConnections() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, client := range m.clients {
		client.Close()
	}
}

// Count returns the number of live connections
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// TotalMessages counts messages answered by live and already closed connections
func (m *ConnectionManager) TotalMessages() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := m.retiredMessages
	for _, c := range m.clients {
		total += c.Messages()
	}
	return total
}

// Snapshot lists live connections, oldest first
func (m *ConnectionManager) Snapshot() []ConnectionInfo {
	m.mu.RLock()
	infos := make([]ConnectionInfo, 0, len(m.clients))
	for _, c := range m.clients {
		infos = append(infos, ConnectionInfo{
			ID:          c.ID,
			RemoteAddr:  c.RemoteAddr,
			ConnectedAt: c.ConnectedAt,
			Messages:    c.Messages(),
		})
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}
