package handlers

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StreamConnection is the API view of one active streaming session
type StreamConnection struct {
	ID           string    `json:"id"`
	RemoteAddr   string    `json:"remote_addr"`
	Query        string    `json:"query"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
	EventsSent   int64     `json:"events_sent"`
}

type trackedConnection struct {
	StreamConnection
	cancel context.CancelFunc
}

// ConnectionManager tracks active streaming connections so they can be
// listed, closed on demand, and reaped when idle. Closing a connection
// cancels its context, which unwinds the SSE loop in the query handler.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*trackedConnection

	idleTimeout time.Duration
	reapPeriod  time.Duration
	logger      *log.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewConnectionManager creates a manager that reaps connections idle
// longer than idleTimeout. Zero idleTimeout disables reaping.
func NewConnectionManager(idleTimeout time.Duration, logger *log.Logger) *ConnectionManager {
	if logger == nil {
		logger = log.New(log.Writer(), "[CONNECTIONS] ", log.LstdFlags)
	}
	return &ConnectionManager{
		connections: make(map[string]*trackedConnection),
		idleTimeout: idleTimeout,
		reapPeriod:  time.Minute,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// Register adds a new connection and returns its ID. The cancel func is
// invoked when the connection is closed or reaped.
func (m *ConnectionManager) Register(remoteAddr, query string, cancel context.CancelFunc) string {
	now := time.Now()
	conn := &trackedConnection{
		StreamConnection: StreamConnection{
			ID:           uuid.New().String(),
			RemoteAddr:   remoteAddr,
			Query:        query,
			StartedAt:    now,
			LastActivity: now,
		},
		cancel: cancel,
	}

	m.mu.Lock()
	m.connections[conn.ID] = conn
	total := len(m.connections)
	m.mu.Unlock()

	m.logger.Printf("Stream connection %s opened from %s (%d active)", conn.ID, remoteAddr, total)
	return conn.ID
}

// Touch records activity on a connection, resetting its idle clock
func (m *ConnectionManager) Touch(id string) {
	m.mu.Lock()
	if conn, ok := m.connections[id]; ok {
		conn.LastActivity = time.Now()
		conn.EventsSent++
	}
	m.mu.Unlock()
}

// Unregister removes a connection that ended on its own
func (m *ConnectionManager) Unregister(id string) {
	m.mu.Lock()
	delete(m.connections, id)
	m.mu.Unlock()
}

// Close cancels and removes a connection. Returns false if the ID is unknown.
func (m *ConnectionManager) Close(id string) bool {
	m.mu.Lock()
	conn, ok := m.connections[id]
	if ok {
		delete(m.connections, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	conn.cancel()
	m.logger.Printf("Stream connection %s closed", id)
	return true
}

// CloseAll cancels every active connection and returns how many were closed
func (m *ConnectionManager) CloseAll() int {
	m.mu.Lock()
	closed := make([]*trackedConnection, 0, len(m.connections))
	for id, conn := range m.connections {
		closed = append(closed, conn)
		delete(m.connections, id)
	}
	m.mu.Unlock()

	for _, conn := range closed {
		conn.cancel()
	}
	if len(closed) > 0 {
		m.logger.Printf("Closed %d streaming connections", len(closed))
	}
	return len(closed)
}

// List returns a snapshot of the active connections
func (m *ConnectionManager) List() []StreamConnection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]StreamConnection, 0, len(m.connections))
	for _, conn := range m.connections {
		list = append(list, conn.StreamConnection)
	}
	return list
}

// Count returns the number of active connections
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Start launches the idle reaper. No-op when idleTimeout is zero.
func (m *ConnectionManager) Start() {
	if m.idleTimeout <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(m.reapPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				if reaped := m.reap(); reaped > 0 {
					m.logger.Printf("Reaped %d idle streaming connections", reaped)
				}
			}
		}
	}()
}

// Stop terminates the reaper and closes every remaining connection
func (m *ConnectionManager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.CloseAll()
}

func (m *ConnectionManager) reap() int {
	cutoff := time.Now().Add(-m.idleTimeout)

	m.mu.Lock()
	stale := make([]*trackedConnection, 0)
	for id, conn := range m.connections {
		if conn.LastActivity.Before(cutoff) {
			stale = append(stale, conn)
			delete(m.connections, id)
		}
	}
	m.mu.Unlock()

	for _, conn := range stale {
		conn.cancel()
	}
	return len(stale)
}
