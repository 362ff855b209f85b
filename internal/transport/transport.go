// Package transport carries commands to the mold controller and events
// back from it. Two implementations satisfy the same contract: a physical
// byte-stream transport over a serial port, and an in-process simulator
// used when no hardware is attached. Callers never block on a transport
// method except for the bounded join inside Disconnect.
package transport

import (
	"sync"
	"time"

	"moldmap/internal/geom"
	"moldmap/internal/protocol"
)

// joinTimeout bounds how long Disconnect waits for a background worker.
const joinTimeout = 2 * time.Second

// Handler receives one successfully parsed inbound event. Handlers must
// return quickly; delivery happens on the transport's worker goroutine.
type Handler func(protocol.Event)

// Transport is the capability contract both implementations satisfy.
// Failures are reported as booleans, never panics: a failed connect or
// send leaves the transport in its previous state.
type Transport interface {
	// Connect establishes the session. Returns false on failure.
	Connect() bool
	// Disconnect tears down the session and stops background activity.
	// Safe to call when not connected.
	Disconnect()
	IsConnected() bool
	// SendMap transmits a MAP command. Returns false if not connected or
	// the write fails.
	SendMap(jobID string, path []geom.Point3, units string, feedrate float64) bool
	// SendStop transmits a STOP command under the same contract.
	SendStop() bool
	// Subscribe registers the single handler invoked once per parsed
	// event, in arrival order. A later call replaces the previous handler.
	Subscribe(h Handler)
}

// handlerRef holds the registered handler. Replacement and invocation
// take the same lock, so a swap never races a delivery in progress.
type handlerRef struct {
	mu sync.Mutex
	h  Handler
}

func (r *handlerRef) set(h Handler) {
	r.mu.Lock()
	r.h = h
	r.mu.Unlock()
}

func (r *handlerRef) emit(ev protocol.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.h != nil {
		r.h(ev)
	}
}

// waitTimeout waits for wg up to d. Returns false if the wait timed out;
// the caller proceeds regardless (best-effort join).
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
