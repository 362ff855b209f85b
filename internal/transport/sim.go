package transport

import (
	"sync"
	"time"

	"moldmap/internal/geom"
	"moldmap/internal/protocol"
	"moldmap/internal/util"
)

// DefaultSimRate is the simulated position update rate in Hz.
const DefaultSimRate = 20.0

// Sim is the in-process device emulator transport. Connect starts a
// background consumer that takes commands off an internal queue and plays
// back the event sequence real hardware would produce: a validation
// verdict, timed position updates, periodic progress, and a completion
// with the wall-clock time actually spent.
type Sim struct {
	rate    float64
	handler handlerRef

	mu        sync.Mutex
	connected bool
	queue     chan protocol.Command
	interrupt chan struct{}
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewSim creates a simulated transport emitting rate position updates per
// second. Non-positive rates fall back to DefaultSimRate.
func NewSim(rate float64) *Sim {
	if rate <= 0 {
		rate = DefaultSimRate
	}
	return &Sim{rate: rate}
}

// Connect starts the background consumer. Always succeeds.
func (s *Sim) Connect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return true
	}
	s.queue = make(chan protocol.Command, 16)
	s.interrupt = make(chan struct{}, 1)
	s.stop = make(chan struct{})
	s.connected = true
	s.wg.Add(1)
	go s.consume(s.queue, s.interrupt, s.stop)
	util.Info("sim: connected (rate=%.1f/s)", s.rate)
	return true
}

// Disconnect terminates the consumer promptly with a bounded join.
func (s *Sim) Disconnect() {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	s.connected = false
	stop := s.stop
	s.mu.Unlock()
	close(stop)
	if !waitTimeout(&s.wg, joinTimeout) {
		util.Warn("sim: consumer did not stop within %s", joinTimeout)
	}
	util.Info("sim: disconnected")
}

// IsConnected reports whether the consumer is running.
func (s *Sim) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// SendMap queues a MAP command for the consumer. The enqueue happens
// outside the lock so a saturated queue cannot stall Disconnect.
func (s *Sim) SendMap(jobID string, path []geom.Point3, units string, feedrate float64) bool {
	queue, _, stop, ok := s.session()
	if !ok {
		return false
	}
	select {
	case queue <- protocol.NewMapCommand(jobID, path, units, feedrate):
	case <-stop:
		return false
	}
	util.Debug("sim: queued MAP job=%s waypoints=%d", jobID, len(path))
	return true
}

// SendStop queues a STOP command and signals any traversal in flight to
// terminate early.
func (s *Sim) SendStop() bool {
	queue, interrupt, stop, ok := s.session()
	if !ok {
		return false
	}
	select {
	case interrupt <- struct{}{}:
	default:
	}
	select {
	case queue <- protocol.StopCommand{Cmd: protocol.CmdStop}:
		return true
	case <-stop:
		return false
	}
}

// session snapshots the channels of the current session, ok=false when
// disconnected.
func (s *Sim) session() (queue chan protocol.Command, interrupt, stop chan struct{}, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, nil, nil, false
	}
	return s.queue, s.interrupt, s.stop, true
}

// Subscribe registers the event handler, replacing any previous one.
func (s *Sim) Subscribe(h Handler) { s.handler.set(h) }

func (s *Sim) consume(queue chan protocol.Command, interrupt, stop chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-stop:
			return
		case cmd := <-queue:
			switch c := cmd.(type) {
			case protocol.MapCommand:
				s.simulate(c, interrupt, stop)
			case protocol.StopCommand:
				// stop with no traversal in flight; clear any unclaimed
				// interrupt so it cannot cancel the next map
				select {
				case <-interrupt:
				default:
				}
				util.Info("sim: stop received while idle")
			default:
				util.Debug("sim: ignoring %T", cmd)
			}
		}
	}
}

// simulate plays back one mapping run. A STOP observed mid-run terminates
// the loop without emitting COMPLETE.
func (s *Sim) simulate(cmd protocol.MapCommand, interrupt, stop chan struct{}) {
	path := cmd.Points()
	if len(path) == 0 {
		s.handler.emit(protocol.Validation{Type: protocol.TypeValidation, Status: protocol.StatusInvalid, Message: "empty path"})
		return
	}
	s.handler.emit(protocol.Validation{Type: protocol.TypeValidation, Status: protocol.StatusValid})

	util.Info("sim: starting job %s with %d waypoints", cmd.JobID, len(path))
	start := time.Now()
	interval := time.Duration(float64(time.Second) / s.rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i, wp := range path {
		select {
		case <-stop:
			return
		case <-interrupt:
			util.Info("sim: job %s interrupted at waypoint %d/%d", cmd.JobID, i, len(path))
			return
		case <-ticker.C:
		}
		s.handler.emit(protocol.Position{
			Type: protocol.TypePosition,
			Pos:  [3]float64{wp.X, wp.Y, wp.Z},
			T:    time.Now().UnixMilli(),
		})
		if (i+1)%10 == 0 || i == len(path)-1 {
			s.handler.emit(protocol.Progress{Type: protocol.TypeProgress, Visited: i + 1, Total: len(path)})
		}
	}

	duration := time.Since(start).Seconds()
	s.handler.emit(protocol.Complete{Type: protocol.TypeComplete, JobID: cmd.JobID, DurationS: duration})
	util.Info("sim: job %s complete in %.2fs", cmd.JobID, duration)
}
