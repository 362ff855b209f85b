// Package controller wraps the active transport behind a lifecycle facade.
// It owns at most one transport at a time, constructs the right kind for
// the current mode, and republishes every parsed device event on a bus so
// independent listeners can react without touching the transport.
package controller

import (
	"sync"

	"moldmap/internal/geom"
	"moldmap/internal/protocol"
	"moldmap/internal/transport"
	"moldmap/internal/util"
)

// Mode selects which transport Connect constructs.
type Mode string

const (
	// ModeSimulated uses the in-process device emulator.
	ModeSimulated Mode = "sim"
	// ModeSerial uses a physical serial port.
	ModeSerial Mode = "serial"
)

// State describes the controller session lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "idle"
	}
}

// Controller holds the active transport plus the connection parameters
// used to build the next one. Disconnect or any failure returns it to
// StateIdle; reconnecting always starts a fresh session.
type Controller struct {
	mu      sync.Mutex
	mode    Mode
	port    string
	baud    int
	simRate float64
	tr      transport.Transport
	state   State

	bus *Bus
}

// New creates an idle controller in the given mode.
func New(mode Mode) *Controller {
	return &Controller{
		mode:    mode,
		baud:    115200,
		simRate: transport.DefaultSimRate,
		bus:     NewBus(),
	}
}

// Bus exposes the event bus for subscribers.
func (c *Controller) Bus() *Bus { return c.bus }

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode returns the current transport mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetPort sets the serial endpoint used by the next serial connect.
func (c *Controller) SetPort(port string) {
	c.mu.Lock()
	c.port = port
	c.mu.Unlock()
}

// SetBaud sets the serial baud rate used by the next serial connect.
func (c *Controller) SetBaud(baud int) {
	c.mu.Lock()
	c.baud = baud
	c.mu.Unlock()
}

// SetSimRate sets the simulated update rate used by the next sim connect.
func (c *Controller) SetSimRate(rate float64) {
	c.mu.Lock()
	c.simRate = rate
	c.mu.Unlock()
}

// SetMode switches the transport mode. When connected this performs
// disconnect, switch, reconnect.
func (c *Controller) SetMode(mode Mode) bool {
	c.mu.Lock()
	wasConnected := c.state == StateConnected
	c.mode = mode
	c.mu.Unlock()
	if wasConnected {
		c.Disconnect()
		return c.Connect()
	}
	return true
}

// Connect tears down any existing session, constructs the transport for
// the current mode, subscribes the dispatcher and delegates to the
// transport. On success it notifies observers with a connected event.
func (c *Controller) Connect() bool {
	c.Disconnect()

	c.mu.Lock()
	c.state = StateConnecting
	var tr transport.Transport
	switch c.mode {
	case ModeSerial:
		st := transport.NewSerial(c.port, c.baud)
		st.OnSessionEnd = c.sessionLost
		tr = st
	default:
		tr = transport.NewSim(c.simRate)
	}
	tr.Subscribe(c.dispatch)
	c.mu.Unlock()

	if !tr.Connect() {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		util.Error("controller: connect failed (mode=%s)", c.mode)
		return false
	}

	c.mu.Lock()
	c.tr = tr
	c.state = StateConnected
	c.mu.Unlock()
	c.bus.Publish(Event{Kind: KindConnected})
	return true
}

// Disconnect delegates to the active transport and notifies observers.
// No-op when already idle.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	tr := c.tr
	c.tr = nil
	c.state = StateIdle
	c.mu.Unlock()
	if tr == nil {
		return
	}
	tr.Disconnect()
	c.bus.Publish(Event{Kind: KindDisconnected})
}

// IsConnected reports whether a transport session is active.
func (c *Controller) IsConnected() bool {
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	return tr != nil && tr.IsConnected()
}

// SendMap forwards waypoints, wrapped in a MAP command, to the active
// transport. Returns false when idle.
func (c *Controller) SendMap(jobID string, path []geom.Point3, units string, feedrate float64) bool {
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr == nil {
		return false
	}
	return tr.SendMap(jobID, path, units, feedrate)
}

// SendStop forwards a STOP command to the active transport.
func (c *Controller) SendStop() bool {
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr == nil {
		return false
	}
	return tr.SendStop()
}

// dispatch republishes one parsed device event, keyed by its discriminant.
func (c *Controller) dispatch(ev protocol.Event) {
	c.bus.Publish(Event{Kind: ev.Kind(), Data: ev})
}

// sessionLost handles a transport read failure: the session is gone, so
// return to idle and tell observers.
func (c *Controller) sessionLost() {
	c.mu.Lock()
	c.tr = nil
	c.state = StateIdle
	c.mu.Unlock()
	util.Warn("controller: transport session lost")
	c.bus.Publish(Event{Kind: KindDisconnected})
}
