package planner

import (
	"fmt"

	"moldmap/internal/geom"
)

// Mode selects the path planning strategy.
type Mode string

const (
	// ModeGreedy orders the raw vertices with greedy nearest-neighbor.
	ModeGreedy Mode = "greedy"
	// ModeEdgeSample samples points along edges before ordering them.
	ModeEdgeSample Mode = "edge_sample"
)

// Config holds the planner parameters for one Plan call.
type Config struct {
	Mode              Mode
	EdgeSampleSpacing float64      // mm between samples on edges
	StartPoint        *geom.Point3 // optional starting position
	IncludeVertices   bool         // include original vertices in edge_sample candidates
}

// DefaultConfig returns the planner defaults used when nothing is persisted.
func DefaultConfig() Config {
	return Config{
		Mode:              ModeGreedy,
		EdgeSampleSpacing: 5.0,
		IncludeVertices:   true,
	}
}

// ToMap flattens the config into a key-value map for the external store.
// The start point, when present, is stored as three scalar keys.
func (c Config) ToMap() map[string]any {
	m := map[string]any{
		"mode":                string(c.Mode),
		"edge_sample_spacing": c.EdgeSampleSpacing,
		"include_vertices":    c.IncludeVertices,
	}
	if c.StartPoint != nil {
		m["start_x"] = c.StartPoint.X
		m["start_y"] = c.StartPoint.Y
		m["start_z"] = c.StartPoint.Z
	}
	return m
}

// ConfigFromMap rebuilds a Config from a flat key-value map. Missing keys
// fall back to defaults; absent start keys mean no start point.
func ConfigFromMap(m map[string]any) Config {
	c := DefaultConfig()
	if v, ok := m["mode"].(string); ok && v != "" {
		c.Mode = Mode(v)
	}
	if v, ok := asFloat(m["edge_sample_spacing"]); ok {
		c.EdgeSampleSpacing = v
	}
	if v, ok := m["include_vertices"].(bool); ok {
		c.IncludeVertices = v
	}
	x, okx := asFloat(m["start_x"])
	y, oky := asFloat(m["start_y"])
	z, okz := asFloat(m["start_z"])
	if okx && oky && okz {
		p := geom.Pt(x, y, z)
		c.StartPoint = &p
	}
	return c
}

// asFloat accepts the numeric types a JSON round-trip may produce.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func (c Config) validate() error {
	switch c.Mode {
	case ModeGreedy:
	case ModeEdgeSample:
		if c.EdgeSampleSpacing <= 0 {
			return fmt.Errorf("%w: edge_sample_spacing %g must be positive", ErrInvalidConfig, c.EdgeSampleSpacing)
		}
	default:
		return fmt.Errorf("%w: mode %q", ErrInvalidConfig, c.Mode)
	}
	return nil
}
