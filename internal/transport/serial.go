package transport

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"

	serial "go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"moldmap/internal/geom"
	"moldmap/internal/protocol"
	"moldmap/internal/util"
)

// readChunk is the per-poll read size; readPoll doubles as the interval
// at which the reader observes the stop flag.
const (
	readChunk = 256
	readPoll  = 100 * time.Millisecond
)

// serialPort is the minimal surface we need from go.bug.st/serial.Port.
// Narrowing it here lets tests inject a scripted port.
type serialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(time.Duration) error
	Drain() error
}

// portOpener opens a serial port. Replaced in tests.
type portOpener func(path string, baud int) (serialPort, error)

func openRealPort(path string, baud int) (serialPort, error) {
	return serial.Open(path, &serial.Mode{BaudRate: baud})
}

// Serial is the physical transport: a byte stream with a background
// reader that reassembles '\n'-terminated frames and dispatches parsed
// events to the subscribed handler.
type Serial struct {
	portName string
	baud     int
	opener   portOpener

	// OnSessionEnd, when set before Connect, is invoked once if the read
	// loop dies on an I/O error (connection considered lost). It is not
	// invoked on an orderly Disconnect.
	OnSessionEnd func()

	handler handlerRef

	mu   sync.Mutex
	port serialPort
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewSerial creates a physical transport for the given port and baud rate.
// Nothing is opened until Connect.
func NewSerial(portName string, baud int) *Serial {
	return &Serial{portName: portName, baud: baud, opener: openRealPort}
}

// Connect opens the port and starts the background reader. Returns false
// without side effects on failure.
func (s *Serial) Connect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		return true
	}
	if s.portName == "" {
		util.Error("serial: no port specified")
		return false
	}
	port, err := s.opener(s.portName, s.baud)
	if err != nil {
		util.Error("serial: open %s failed: %v", s.portName, err)
		return false
	}
	if err := port.SetReadTimeout(readPoll); err != nil {
		util.Error("serial: set read timeout: %v", err)
		_ = port.Close()
		return false
	}
	// fresh session: new stop flag, the reader starts with an empty buffer
	s.port = port
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.readLoop(port, s.stop)
	util.Info("serial: connected to %s at %d baud", s.portName, s.baud)
	return true
}

// Disconnect signals the reader to stop, joins it with a bounded wait and
// closes the port. No-op when not connected.
func (s *Serial) Disconnect() {
	s.mu.Lock()
	port := s.port
	stop := s.stop
	s.port = nil
	s.mu.Unlock()
	if port == nil {
		return
	}
	close(stop)
	if !waitTimeout(&s.wg, joinTimeout) {
		util.Warn("serial: reader did not stop within %s", joinTimeout)
	}
	if err := port.Close(); err != nil {
		util.Warn("serial: close: %v", err)
	}
	util.Info("serial: disconnected from %s", s.portName)
}

// IsConnected reports whether a session is open.
func (s *Serial) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}

// SendMap serializes and writes a MAP command.
func (s *Serial) SendMap(jobID string, path []geom.Point3, units string, feedrate float64) bool {
	return s.send(protocol.NewMapCommand(jobID, path, units, feedrate))
}

// SendStop serializes and writes a STOP command.
func (s *Serial) SendStop() bool {
	return s.send(protocol.StopCommand{Cmd: protocol.CmdStop})
}

// Subscribe registers the event handler, replacing any previous one.
func (s *Serial) Subscribe(h Handler) { s.handler.set(h) }

func (s *Serial) send(cmd protocol.Command) bool {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		util.Error("serial: send while not connected")
		return false
	}
	line, err := protocol.EncodeCommand(cmd)
	if err != nil {
		util.Error("serial: %v", err)
		return false
	}
	if _, err := port.Write(append([]byte(line), '\n')); err != nil {
		util.Error("serial: write failed: %v", err)
		return false
	}
	if err := port.Drain(); err != nil {
		util.Error("serial: flush failed: %v", err)
		return false
	}
	util.Debug("serial: sent %s", line)
	return true
}

// readLoop polls the port, accumulates bytes into a partial-line buffer
// owned exclusively by this goroutine, and dispatches each complete frame.
// An I/O error ends the session.
func (s *Serial) readLoop(port serialPort, stop chan struct{}) {
	defer s.wg.Done()
	var buf []byte
	chunk := make([]byte, readChunk)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := port.Read(chunk)
		if err != nil {
			select {
			case <-stop:
				// orderly shutdown closed the port under us
			default:
				util.Error("serial: read failed, closing session: %v", err)
				s.sessionLost()
			}
			return
		}
		if n == 0 {
			continue // read timeout, poll again
		}
		buf = append(buf, chunk[:n]...)
		buf = s.drainLines(buf)
	}
}

// drainLines extracts every complete frame from buf, dispatching parsed
// events and discarding bad lines with a warning. Returns the remainder.
func (s *Serial) drainLines(buf []byte) []byte {
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			return buf
		}
		line := string(bytes.TrimSpace(buf[:idx]))
		buf = buf[idx+1:]
		if line == "" {
			continue
		}
		ev, err := protocol.ParseEvent(line)
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedFrame) || errors.Is(err, protocol.ErrUnknownMessageType) {
				util.Warn("serial: discarding frame: %v (%s)", err, line)
				continue
			}
			util.Warn("serial: %v", err)
			continue
		}
		util.Debug("serial: received %s", line)
		s.handler.emit(ev)
	}
}

// sessionLost tears down state after a read failure and notifies the owner.
func (s *Serial) sessionLost() {
	s.mu.Lock()
	port := s.port
	s.port = nil
	s.mu.Unlock()
	if port != nil {
		_ = port.Close()
	}
	if s.OnSessionEnd != nil {
		s.OnSessionEnd()
	}
}

// PortInfo describes one enumerated serial endpoint.
type PortInfo struct {
	Device      string
	Description string
	HWID        string
}

// ListPorts enumerates the serial ports the platform reports. Used by the
// CLI and consulted at connect time; an enumeration failure only means an
// empty list.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		info := PortInfo{Device: d.Name, Description: d.Product}
		if d.IsUSB {
			info.HWID = "USB VID:PID=" + d.VID + ":" + d.PID + " SER=" + d.SerialNumber
		}
		ports = append(ports, info)
	}
	return ports, nil
}
