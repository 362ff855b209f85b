// Package protocol defines the line-oriented JSON wire format spoken
// between the host and the mold controller, and converts between wire
// lines and typed commands/events.
//
// One JSON object per UTF-8 line, '\n'-terminated. Outbound commands
// carry a "cmd" discriminator, inbound events a "type" discriminator:
//
//	{"cmd":"MAP","job_id":"j1","path":[[x,y,z],...],"meta":{"units":"mm","feedrate":50}}
//	{"cmd":"STOP"}
//	{"cmd":"STATUS"}
//	{"type":"VALIDATION","status":"VALID"}
//	{"type":"POS","pos":[x,y,z],"t":1712345678901}
//	{"type":"PROGRESS","visited":10,"total":25}
//	{"type":"COMPLETE","job_id":"j1","duration_s":1.25}
//	{"type":"ERROR","code":"UNKNOWN_CMD","message":"..."}
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"moldmap/internal/geom"
)

var (
	// ErrMalformedFrame reports a line that is not valid JSON. The reader
	// logs and discards the line; it is never fatal.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnknownMessageType reports a JSON object whose discriminator is
	// missing or unrecognized. Likewise discarded, never fatal.
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Command discriminators (host -> controller).
const (
	CmdMap    = "MAP"
	CmdStop   = "STOP"
	CmdStatus = "STATUS"
)

// Event discriminators (controller -> host).
const (
	TypeValidation = "VALIDATION"
	TypePosition   = "POS"
	TypeProgress   = "PROGRESS"
	TypeComplete   = "COMPLETE"
	TypeError      = "ERROR"
)

// Validation statuses.
const (
	StatusValid   = "VALID"
	StatusInvalid = "INVALID"
	StatusError   = "ERROR"
)

// MapMeta carries movement metadata for a MAP command.
type MapMeta struct {
	Units    string  `json:"units"`
	Feedrate float64 `json:"feedrate"`
}

// MapCommand asks the controller to traverse a path.
type MapCommand struct {
	Cmd   string       `json:"cmd"`
	JobID string       `json:"job_id"`
	Path  [][3]float64 `json:"path"`
	Meta  MapMeta      `json:"meta"`
}

// StopCommand halts the current operation.
type StopCommand struct {
	Cmd string `json:"cmd"`
}

// StatusCommand queries controller state.
type StatusCommand struct {
	Cmd string `json:"cmd"`
}

// Command is implemented by every outbound command type.
type Command interface{ command() string }

func (c MapCommand) command() string    { return c.Cmd }
func (c StopCommand) command() string   { return c.Cmd }
func (c StatusCommand) command() string { return c.Cmd }

// NewMapCommand builds a MapCommand from caller-owned waypoints.
// The path is value-copied into wire form.
func NewMapCommand(jobID string, path []geom.Point3, units string, feedrate float64) MapCommand {
	wire := make([][3]float64, 0, len(path))
	for _, p := range path {
		wire = append(wire, [3]float64{p.X, p.Y, p.Z})
	}
	return MapCommand{Cmd: CmdMap, JobID: jobID, Path: wire, Meta: MapMeta{Units: units, Feedrate: feedrate}}
}

// Points converts the wire path back to geometry points.
func (c MapCommand) Points() []geom.Point3 {
	pts := make([]geom.Point3, 0, len(c.Path))
	for _, p := range c.Path {
		pts = append(pts, geom.Pt(p[0], p[1], p[2]))
	}
	return pts
}

// EncodeCommand serializes a command to a single wire line (no newline).
func EncodeCommand(c Command) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode %s command: %w", c.command(), err)
	}
	return string(b), nil
}

// ParseCommand parses one wire line into a typed command.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	var env struct {
		Cmd string `json:"cmd"`
	}
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch env.Cmd {
	case CmdMap:
		var c MapCommand
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return c, nil
	case CmdStop:
		return StopCommand{Cmd: CmdStop}, nil
	case CmdStatus:
		return StatusCommand{Cmd: CmdStatus}, nil
	default:
		return nil, fmt.Errorf("%w: cmd %q", ErrUnknownMessageType, env.Cmd)
	}
}

// Validation is the controller's verdict on a received path.
type Validation struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Position is a live position report during a traversal.
type Position struct {
	Type string     `json:"type"`
	Pos  [3]float64 `json:"pos"`
	T    int64      `json:"t"` // ms since epoch
}

// Point returns the reported position as a geometry point.
func (p Position) Point() geom.Point3 { return geom.Pt(p.Pos[0], p.Pos[1], p.Pos[2]) }

// Progress reports traversal progress in waypoints.
type Progress struct {
	Type    string `json:"type"`
	Visited int    `json:"visited"`
	Total   int    `json:"total"`
}

// Percent returns progress as a percentage, 0 when Total is 0.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Visited) / float64(p.Total) * 100
}

// Complete marks a finished traversal.
type Complete struct {
	Type      string  `json:"type"`
	JobID     string  `json:"job_id"`
	DurationS float64 `json:"duration_s"`
}

// ErrorEvent reports a controller-side failure.
type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event is implemented by every inbound event type. Events are immutable
// once parsed.
type Event interface{ Kind() string }

func (Validation) Kind() string { return TypeValidation }
func (Position) Kind() string   { return TypePosition }
func (Progress) Kind() string   { return TypeProgress }
func (Complete) Kind() string   { return TypeComplete }
func (ErrorEvent) Kind() string { return TypeError }

// EncodeEvent serializes an event to a single wire line (no newline).
func EncodeEvent(e Event) (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode %s event: %w", e.Kind(), err)
	}
	return string(b), nil
}

// ParseEvent parses one wire line into a typed event. Malformed JSON
// yields ErrMalformedFrame, an unrecognized or missing discriminator
// ErrUnknownMessageType; in both cases the caller discards the line and
// keeps reading.
func ParseEvent(line string) (Event, error) {
	line = strings.TrimSpace(line)
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	var (
		ev  Event
		err error
	)
	switch env.Type {
	case TypeValidation:
		var v Validation
		err = json.Unmarshal([]byte(line), &v)
		ev = v
	case TypePosition:
		var v Position
		err = json.Unmarshal([]byte(line), &v)
		ev = v
	case TypeProgress:
		var v Progress
		err = json.Unmarshal([]byte(line), &v)
		ev = v
	case TypeComplete:
		var v Complete
		err = json.Unmarshal([]byte(line), &v)
		ev = v
	case TypeError:
		var v ErrorEvent
		err = json.Unmarshal([]byte(line), &v)
		ev = v
	default:
		return nil, fmt.Errorf("%w: type %q", ErrUnknownMessageType, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return ev, nil
}
