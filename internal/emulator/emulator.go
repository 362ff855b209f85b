// Package emulator implements a standalone mold controller emulator. It
// speaks the device side of the wire protocol on a caller-supplied reader
// and writer, so it can sit behind a pty (socat) as pseudo-hardware or be
// driven directly in tests. The in-process transport simulator covers the
// common case; this emulator exists to exercise the full physical stack,
// bounds checking included.
package emulator

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"moldmap/internal/geom"
	"moldmap/internal/protocol"
	"moldmap/internal/util"
)

// Config controls emulated controller behavior.
type Config struct {
	UpdateRate     float64 // position updates per second
	BoundsMin      geom.Point3
	BoundsMax      geom.Point3
	ValidateBounds bool
}

// DefaultConfig mirrors the stock controller firmware settings.
func DefaultConfig() Config {
	return Config{
		UpdateRate:     20.0,
		BoundsMin:      geom.Pt(-100, -100, -100),
		BoundsMax:      geom.Pt(100, 100, 100),
		ValidateBounds: true,
	}
}

func (c Config) inBounds(p geom.Point3) bool {
	if !c.ValidateBounds {
		return true
	}
	return c.BoundsMin.X <= p.X && p.X <= c.BoundsMax.X &&
		c.BoundsMin.Y <= p.Y && p.Y <= c.BoundsMax.Y &&
		c.BoundsMin.Z <= p.Z && p.Z <= c.BoundsMax.Z
}

// Emulator consumes command lines and produces event lines.
type Emulator struct {
	cfg Config

	writeMu sync.Mutex
	out     io.Writer

	stateMu    sync.Mutex
	running    bool
	currentJob string

	queue     chan protocol.Command
	interrupt chan struct{}
	wg        sync.WaitGroup
}

// New creates an emulator writing events to out.
func New(cfg Config, out io.Writer) *Emulator {
	if cfg.UpdateRate <= 0 {
		cfg.UpdateRate = 20.0
	}
	return &Emulator{
		cfg:       cfg,
		out:       out,
		queue:     make(chan protocol.Command, 16),
		interrupt: make(chan struct{}, 1),
	}
}

// Run reads command lines from in until EOF, handling each as the
// hardware would. Mapping runs execute on a background consumer so a
// STOP arriving mid-run interrupts it.
func (e *Emulator) Run(in io.Reader) error {
	e.wg.Add(1)
	go e.consume()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		e.handleLine(line)
	}
	close(e.queue)
	e.wg.Wait()
	return scanner.Err()
}

func (e *Emulator) handleLine(line string) {
	cmd, err := protocol.ParseCommand(line)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownMessageType) {
			e.send(protocol.ErrorEvent{Type: protocol.TypeError, Code: "UNKNOWN_CMD", Message: err.Error()})
			return
		}
		util.Warn("emulator: %v", err)
		e.send(protocol.ErrorEvent{Type: protocol.TypeError, Code: "PARSE_ERROR", Message: err.Error()})
		return
	}
	switch c := cmd.(type) {
	case protocol.MapCommand:
		e.queue <- c
	case protocol.StopCommand:
		util.Info("emulator: STOP received")
		select {
		case e.interrupt <- struct{}{}:
		default:
		}
		e.send(protocol.Progress{Type: protocol.TypeProgress, Visited: 0, Total: 0})
		e.queue <- c
	case protocol.StatusCommand:
		e.sendStatus()
	}
}

func (e *Emulator) consume() {
	defer e.wg.Done()
	for cmd := range e.queue {
		switch c := cmd.(type) {
		case protocol.MapCommand:
			e.handleMap(c)
		case protocol.StopCommand:
			// stop with nothing running; clear the unclaimed interrupt so
			// it cannot cancel the next map
			select {
			case <-e.interrupt:
			default:
			}
		}
	}
}

func (e *Emulator) handleMap(cmd protocol.MapCommand) {
	path := cmd.Points()
	util.Info("emulator: MAP job=%s waypoints=%d", cmd.JobID, len(path))

	if len(path) == 0 {
		e.send(protocol.Validation{Type: protocol.TypeValidation, Status: protocol.StatusInvalid, Message: "empty path"})
		return
	}
	for i, p := range path {
		if !e.cfg.inBounds(p) {
			e.send(protocol.Validation{
				Type:    protocol.TypeValidation,
				Status:  protocol.StatusInvalid,
				Message: fmt.Sprintf("waypoint %d out of bounds: [%g %g %g]", i, p.X, p.Y, p.Z),
			})
			return
		}
	}
	e.send(protocol.Validation{Type: protocol.TypeValidation, Status: protocol.StatusValid})

	e.setRunning(true, cmd.JobID)
	defer e.setRunning(false, "")

	start := time.Now()
	interval := time.Duration(float64(time.Second) / e.cfg.UpdateRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i, wp := range path {
		select {
		case <-e.interrupt:
			util.Info("emulator: job %s interrupted at waypoint %d/%d", cmd.JobID, i, len(path))
			return
		case <-ticker.C:
		}
		e.send(protocol.Position{
			Type: protocol.TypePosition,
			Pos:  [3]float64{wp.X, wp.Y, wp.Z},
			T:    time.Now().UnixMilli(),
		})
		if (i+1)%10 == 0 || i == len(path)-1 {
			e.send(protocol.Progress{Type: protocol.TypeProgress, Visited: i + 1, Total: len(path)})
		}
	}

	duration := time.Since(start).Seconds()
	e.send(protocol.Complete{Type: protocol.TypeComplete, JobID: cmd.JobID, DurationS: duration})
	util.Info("emulator: job %s complete in %.2fs", cmd.JobID, duration)
}

func (e *Emulator) setRunning(running bool, job string) {
	e.stateMu.Lock()
	e.running = running
	e.currentJob = job
	e.stateMu.Unlock()
}

// send writes one event line.
func (e *Emulator) send(ev protocol.Event) {
	line, err := protocol.EncodeEvent(ev)
	if err != nil {
		util.Error("emulator: %v", err)
		return
	}
	e.writeLine(line)
}

// sendStatus answers STATUS with the firmware's raw status object. The
// host reader has no STATUS event kind and discards it, same as the
// hardware it mimics.
func (e *Emulator) sendStatus() {
	e.stateMu.Lock()
	running, job := e.running, e.currentJob
	e.stateMu.Unlock()
	line := fmt.Sprintf(`{"type":"STATUS","running":%t,"job_id":%q}`, running, job)
	e.writeLine(line)
}

func (e *Emulator) writeLine(line string) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if _, err := io.WriteString(e.out, line+"\n"); err != nil {
		util.Error("emulator: write: %v", err)
	}
}
