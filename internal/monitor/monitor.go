// Package monitor exposes controller events to remote clients over
// websocket, plus a small status endpoint. It is a read-only observer:
// everything it knows arrives through the controller's event bus.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"moldmap/internal/controller"
	"moldmap/internal/util"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// wireEvent is the JSON envelope broadcast to websocket clients.
type wireEvent struct {
	Kind string `json:"kind"`
	Data any    `json:"data,omitempty"`
}

// Monitor broadcasts controller events to websocket clients.
type Monitor struct {
	Addr string

	ctrl    *controller.Controller
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	server  *http.Server
	unsub   func()
	done    chan struct{}
}

// New constructs a Monitor serving on addr for the given controller.
func New(addr string, ctrl *controller.Controller) *Monitor {
	return &Monitor{Addr: addr, ctrl: ctrl, clients: map[*websocket.Conn]bool{}}
}

// Start subscribes to the controller bus and serves HTTP. This call
// blocks until the server stops or fails.
func (m *Monitor) Start() error {
	events, unsub := m.ctrl.Bus().Subscribe()
	m.mu.Lock()
	m.unsub = unsub
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		for {
			select {
			case <-done:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				m.broadcast(wireEvent{Kind: ev.Kind, Data: ev.Data})
			}
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", m.handleWS)
	mux.HandleFunc("/api/status", m.handleStatus)
	m.mu.Lock()
	m.server = &http.Server{Addr: m.Addr, Handler: mux}
	server := m.server
	m.mu.Unlock()
	util.Info("monitor: listening on %s", m.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down and drops all clients.
func (m *Monitor) Stop() {
	m.mu.Lock()
	server := m.server
	unsub := m.unsub
	done := m.done
	m.server = nil
	m.unsub = nil
	m.done = nil
	m.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	if done != nil {
		close(done)
	}
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			util.Warn("monitor: shutdown: %v", err)
		}
	}
	m.mu.Lock()
	for c := range m.clients {
		_ = c.Close()
		delete(m.clients, c)
	}
	m.mu.Unlock()
}

// handleWS upgrades the connection and registers the client for broadcasts.
func (m *Monitor) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.Warn("monitor: ws upgrade: %v", err)
		return
	}
	m.mu.Lock()
	m.clients[conn] = true
	m.mu.Unlock()
	util.Info("monitor: ws client connected (%s)", conn.RemoteAddr())

	// drain reads to observe the close
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				m.mu.Lock()
				delete(m.clients, conn)
				m.mu.Unlock()
				_ = conn.Close()
				return
			}
		}
	}()
}

// handleStatus reports connection state as JSON.
func (m *Monitor) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"state":     m.ctrl.State().String(),
		"mode":      string(m.ctrl.Mode()),
		"connected": m.ctrl.IsConnected(),
	})
}

// broadcast sends one event to every connected client, dropping clients
// whose writes fail.
func (m *Monitor) broadcast(ev wireEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		util.Warn("monitor: encode event: %v", err)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.clients {
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			util.Warn("monitor: ws write: %v", err)
			_ = c.Close()
			delete(m.clients, c)
		}
	}
}
