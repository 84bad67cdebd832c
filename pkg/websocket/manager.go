package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/getrouterd/routerd/pkg/logging"
	"github.com/getrouterd/routerd/pkg/metrics"
	"github.com/getrouterd/routerd/pkg/stats"
)

// Manager tracks open connections and fans broadcasts out to them. It
// implements mcp.Broadcaster.
type Manager struct {
	mu    sync.RWMutex
	conns map[string]*Conn

	stats   *stats.Collector
	metrics *metrics.Set
	log     *slog.Logger
}

// NewManager creates a connection manager. Stats, metrics and logger are
// all optional.
func NewManager(st *stats.Collector, set *metrics.Set, log *slog.Logger) *Manager {
	if log == nil {
		log = logging.Nop()
	}
	return &Manager{
		conns:   make(map[string]*Conn),
		stats:   st,
		metrics: set,
		log:     log,
	}
}

// Add registers a connection.
func (m *Manager) Add(c *Conn) {
	m.mu.Lock()
	m.conns[c.id] = c
	n := len(m.conns)
	m.mu.Unlock()

	if m.stats != nil {
		m.stats.IncWSConnections()
	}
	m.setGauge(n)
	m.log.Debug("connection added", "conn", c.id, "open", n)
}

// Remove unregisters a connection. Removing an unknown id is a no-op.
func (m *Manager) Remove(c *Conn) {
	m.mu.Lock()
	if _, ok := m.conns[c.id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.conns, c.id)
	n := len(m.conns)
	m.mu.Unlock()

	m.setGauge(n)
	m.log.Debug("connection removed", "conn", c.id, "open", n)
}

// Count returns the number of open connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Broadcast sends data to every connection and returns the number of
// successful deliveries. A failed send drops that connection and moves
// on; one bad client never blocks the rest.
func (m *Manager) Broadcast(data []byte) int {
	m.mu.RLock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	sent := 0
	for _, c := range conns {
		if err := c.Send(context.Background(), data); err != nil {
			m.log.Warn("broadcast send failed, dropping connection", "conn", c.id, "error", err)
			if m.stats != nil {
				m.stats.IncErrors()
			}
			m.countTransportError()
			c.closeNow()
			m.Remove(c)
			continue
		}
		sent++
	}
	return sent
}

// BroadcastJSON serializes v once and broadcasts the result. With zero
// connections it still serializes (catching marshal bugs early) and
// returns 0.
func (m *Manager) BroadcastJSON(v interface{}) int {
	data, err := json.Marshal(v)
	if err != nil {
		m.log.Error("broadcast marshal failed", "error", err)
		return 0
	}
	return m.Broadcast(data)
}

// CloseAll closes every connection, used during shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = make(map[string]*Conn)
	m.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	m.setGauge(0)
}

func (m *Manager) countTransportError() {
	if m.metrics == nil {
		return
	}
	if vec, err := m.metrics.ErrorsTotal.WithLabels("transport"); err == nil {
		_ = vec.Inc()
	}
}

func (m *Manager) setGauge(n int) {
	if m.metrics == nil {
		return
	}
	_ = m.metrics.WSConnections.Set(float64(n))
}
