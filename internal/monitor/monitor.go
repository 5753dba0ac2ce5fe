// ABOUTME: WebSocket status feed for the receive binary
// ABOUTME: Broadcasts periodic stream stats snapshots to connected clients
package monitor

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// writeTimeout bounds each client write so a stalled connection cannot
// block the broadcast loop.
const writeTimeout = 10 * time.Second

// Stats is one snapshot of receiver state.
type Stats struct {
	SessionID    string  `json:"session_id"`
	Uptime       string  `json:"uptime"`
	StreamCount  int     `json:"stream_count"`
	LatencyMs    float64 `json:"latency_ms"`
	HasErrors    bool    `json:"has_errors"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

// StatsFunc produces the current snapshot; called once per broadcast tick.
type StatsFunc func() Stats

// Config holds monitor configuration
type Config struct {
	Port     int
	Interval time.Duration
}

// Monitor serves receiver stats over WebSocket at /status.
type Monitor struct {
	config    Config
	sessionID string
	statsFn   StatsFunc
	startTime time.Time

	upgrader   websocket.Upgrader
	httpServer *http.Server

	clientsMu sync.Mutex
	clients   map[string]*websocket.Conn

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a monitor. Zero interval selects one second.
func New(config Config, statsFn StatsFunc) *Monitor {
	if config.Interval == 0 {
		config.Interval = time.Second
	}
	return &Monitor{
		config:    config,
		sessionID: uuid.New().String(),
		statsFn:   statsFn,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Local-network status feed, no origin restrictions.
				return true
			},
		},
		clients:  make(map[string]*websocket.Conn),
		stopChan: make(chan struct{}),
	}
}

// SessionID returns the monitor's session identifier.
func (m *Monitor) SessionID() string {
	return m.sessionID
}

// Start begins serving and broadcasting.
func (m *Monitor) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", m.handleWebSocket)

	m.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", m.config.Port),
		Handler: mux,
	}

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		if err := m.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Monitor server error: %v", err)
		}
	}()
	go func() {
		defer m.wg.Done()
		m.broadcastLoop()
	}()

	log.Printf("Status feed listening on port %d (session %s)", m.config.Port, m.sessionID)
	return nil
}

// Stop closes all connections and shuts the server down.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
		m.clientsMu.Lock()
		for id, conn := range m.clients {
			conn.Close()
			delete(m.clients, id)
		}
		m.clientsMu.Unlock()
		if m.httpServer != nil {
			m.httpServer.Close()
		}
		m.wg.Wait()
	})
}

func (m *Monitor) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Monitor upgrade failed: %v", err)
		return
	}

	id := uuid.New().String()
	m.clientsMu.Lock()
	m.clients[id] = conn
	m.clientsMu.Unlock()

	log.Printf("Monitor client connected: %s", id)

	// Drain reads so pings and close frames are processed.
	go func() {
		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, id)
			m.clientsMu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (m *Monitor) broadcastLoop() {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.broadcast()
		}
	}
}

func (m *Monitor) broadcast() {
	stats := m.statsFn()
	stats.SessionID = m.sessionID
	stats.Uptime = time.Since(m.startTime).Round(time.Second).String()

	payload, err := json.Marshal(stats)
	if err != nil {
		return
	}

	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	for id, conn := range m.clients {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(m.clients, id)
		}
	}
}
